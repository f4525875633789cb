package usecase

import (
	"context"
	"fmt"
	"runtime/debug"

	"FeedIngestor/internal/domain"
)

// InvalidArticle pairs a rejected article with the rules it failed.
type InvalidArticle struct {
	Article domain.Article
	Errors  []string
}

// ProcessingError is an article whose validation panicked.
type ProcessingError struct {
	Article domain.Article
	Err     error
}

// BatchSummary counts the outcomes of one validated batch.
type BatchSummary struct {
	Total     int
	Valid     int
	Invalid   int
	Duplicate int
	Similar   int
	Errored   int
}

// BatchValidation is the outcome of ValidateBatch.
type BatchValidation struct {
	ValidArticles     []domain.Article
	InvalidArticles   []InvalidArticle
	DuplicateArticles []domain.Article
	ProcessingErrors  []ProcessingError
	Summary           BatchSummary
}

// ValidateBatch validates and deduplicates articles in order. Valid articles carry their content
// hash and similarity annotations and are remembered so later duplicates in the same run are
// caught. Invalid articles are recorded; duplicates are only counted. A panic on one article is
// recovered and counted without affecting the others.
func (p *Pipeline) ValidateBatch(ctx context.Context, articles []domain.Article, source string) BatchValidation {
	out := BatchValidation{Summary: BatchSummary{Total: len(articles)}}
	for _, a := range articles {
		if err := p.validateOne(ctx, a, source, &out); err != nil {
			out.ProcessingErrors = append(out.ProcessingErrors, ProcessingError{Article: a, Err: err})
			out.Summary.Errored++
			p.errors.Record(ctx, source, domain.KindProcessingError, err.Error(), map[string]any{"link": a.Link})
		}
	}
	return out
}

func (p *Pipeline) validateOne(ctx context.Context, a domain.Article, source string, out *BatchValidation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("article validation panicked", "feed", source, "link", a.Link, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic validating %s: %v", a.Link, r)
		}
	}()

	result := p.validator.Validate(ctx, a)
	a.ContentHash = result.ContentHash

	if !result.Valid {
		out.InvalidArticles = append(out.InvalidArticles, InvalidArticle{Article: a, Errors: result.Errors})
		out.Summary.Invalid++
		p.errors.Record(ctx, source, domain.KindValidation, "article failed validation", map[string]any{
			"link":         a.Link,
			"title":        a.Title,
			"content_hash": a.ContentHash,
			"errors":       result.Errors,
			"status_code":  result.URLValidation.StatusCode,
		})
		return nil
	}
	if len(result.Warnings) > 0 {
		p.logger.Debug("article accepted with warnings", "feed", source, "link", a.Link, "warnings", result.Warnings)
	}

	dup, dupErr := p.dedup.CheckDuplicates(ctx, a, a.ContentHash)
	if dupErr != nil {
		p.logger.Warn("duplicate check incomplete", "feed", source, "link", a.Link, "error", dupErr)
	}
	if dup.IsDuplicate {
		out.DuplicateArticles = append(out.DuplicateArticles, a)
		out.Summary.Duplicate++
		return nil
	}
	if dup.HasSimilar {
		a.Similar = dup.SimilarArticles
		out.Summary.Similar++
	}

	p.dedup.Remember(a)
	out.ValidArticles = append(out.ValidArticles, a)
	out.Summary.Valid++
	return nil
}
