// Package validator enforces the article rules and computes the content fingerprint.
package validator

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/textutil"
)

var (
	defaultDeniedDomains = []string{
		"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd", "buff.ly",
	}
	defaultDeniedExtensions = []string{
		".exe", ".zip", ".rar", ".7z", ".tar", ".gz", ".msi", ".dmg",
		".apk", ".bat", ".sh", ".jar", ".iso", ".bin", ".scr",
	}
)

// Rules holds the thresholds. Zero values use the defaults.
type Rules struct {
	TitleMin          int
	TitleMax          int
	DescriptionMin    int
	DescriptionMax    int
	MaxAge            time.Duration
	DeniedDomains     []string
	DeniedExtensions  []string
	CheckReachability bool
}

// Validator checks articles one at a time.
type Validator struct {
	rules      Rules
	denied     []string
	extensions map[string]struct{}
	links      LinkChecker
	clock      clock.Clock
}

// New builds a Validator. links may be nil when reachability checks are off.
func New(rules Rules, links LinkChecker, clk clock.Clock) *Validator {
	if rules.TitleMin <= 0 {
		rules.TitleMin = 3
	}
	if rules.TitleMax <= 0 {
		rules.TitleMax = 500
	}
	if rules.DescriptionMin <= 0 {
		rules.DescriptionMin = 10
	}
	if rules.DescriptionMax <= 0 {
		rules.DescriptionMax = 2000
	}
	if rules.MaxAge <= 0 {
		rules.MaxAge = 365 * 24 * time.Hour
	}
	if clk == nil {
		clk = clock.Real{}
	}

	denied := rules.DeniedDomains
	if len(denied) == 0 {
		denied = defaultDeniedDomains
	}
	exts := rules.DeniedExtensions
	if len(exts) == 0 {
		exts = defaultDeniedExtensions
	}

	v := &Validator{rules: rules, links: links, clock: clk, extensions: map[string]struct{}{}}
	for _, d := range denied {
		v.denied = append(v.denied, strings.ToLower(strings.TrimSpace(d)))
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		v.extensions[e] = struct{}{}
	}
	return v
}

// Validate applies every rule and always returns the content hash.
func (v *Validator) Validate(ctx context.Context, a domain.Article) domain.ValidationResult {
	res := domain.ValidationResult{ContentHash: ContentHash(a)}

	switch n := textutil.RuneLen(a.Title); {
	case n < v.rules.TitleMin:
		res.Errors = append(res.Errors, fmt.Sprintf("title must be at least %d characters", v.rules.TitleMin))
	case n > v.rules.TitleMax:
		res.Errors = append(res.Errors, fmt.Sprintf("title must be at most %d characters", v.rules.TitleMax))
	}

	res.URLValidation = v.checkLink(ctx, a.Link)
	if !res.URLValidation.Valid || (v.rules.CheckReachability && !res.URLValidation.Reachable) {
		res.Errors = append(res.Errors, res.URLValidation.Reason)
	}

	switch n := textutil.RuneLen(a.Description); {
	case n < v.rules.DescriptionMin:
		res.Warnings = append(res.Warnings, fmt.Sprintf("description is shorter than %d characters", v.rules.DescriptionMin))
	case n > v.rules.DescriptionMax:
		res.Warnings = append(res.Warnings, fmt.Sprintf("description is longer than %d characters", v.rules.DescriptionMax))
	}

	now := v.clock.Now()
	switch {
	case a.PublishedAt.After(now):
		res.Warnings = append(res.Warnings, "publish date is in the future")
	case now.Sub(a.PublishedAt) > v.rules.MaxAge:
		res.Warnings = append(res.Warnings, fmt.Sprintf("publish date is older than %d days", int(v.rules.MaxAge.Hours()/24)))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (v *Validator) checkLink(ctx context.Context, link string) domain.URLValidation {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return domain.URLValidation{Reason: "link is not a valid http(s) url"}
	}

	host := strings.ToLower(u.Hostname())
	if d, ok := v.deniedDomain(host); ok {
		return domain.URLValidation{Reason: fmt.Sprintf("link domain %s is denied", d)}
	}
	if ext := path.Ext(strings.ToLower(u.Path)); ext != "" {
		if _, bad := v.extensions[ext]; bad {
			return domain.URLValidation{Reason: fmt.Sprintf("link points to a denied file type %s", ext)}
		}
	}

	if !v.rules.CheckReachability || v.links == nil {
		return domain.URLValidation{Valid: true, Reachable: true}
	}
	out := v.links.Check(ctx, u.String())
	if !out.Reachable {
		out.Reason = fmt.Sprintf("link is unreachable: %s", out.Reason)
	}
	return out
}

// deniedDomain matches on the registrable domain or any subdomain of a denied entry.
func (v *Validator) deniedDomain(host string) (string, bool) {
	registrable, _ := publicsuffix.EffectiveTLDPlusOne(host)
	for _, d := range v.denied {
		if d == "" {
			continue
		}
		if host == d || registrable == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}
