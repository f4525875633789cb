// Package telegram posts run alerts to a chat via the bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishSummary posts a Markdown digest of the run.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	return n.send(ctx, FormatSummary(summary))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatSummary renders the totals and the failed feeds.
func FormatSummary(s domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Feed ingestion run* `%s`\n", s.RunID)
	fmt.Fprintf(&b, "feeds: %d ok, %d failed, %d skipped\n",
		s.Totals.FeedsSucceeded, s.Totals.FeedsFailed, s.Totals.FeedsSkipped)
	fmt.Fprintf(&b, "articles: %d fetched, %d stored, %d duplicate, %d invalid\n",
		s.Totals.Fetched, s.Totals.Stored, s.Totals.Duplicate, s.Totals.Invalid)

	var failed []string
	for _, f := range s.Feeds {
		if !f.Success && !f.Skipped {
			failed = append(failed, f.Name)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "failed: %s\n", strings.Join(failed, ", "))
	}
	fmt.Fprintf(&b, "took %s", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	return b.String()
}
