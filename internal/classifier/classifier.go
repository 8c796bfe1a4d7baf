// Package classifier assigns a category, tags and a short summary to saved content.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"laterai/internal/domain"
)

// MaxSummaryRunes bounds the summary regardless of what the model returns.
const MaxSummaryRunes = 100

// Input is the content to classify.
type Input struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Result is the enrichment. AIProcessed is false for fallback results.
type Result struct {
	Category    domain.Category `json:"category"`
	Tags        []string        `json:"tags"`
	Summary     string          `json:"summary"`
	AIProcessed bool            `json:"ai_processed"`
}

// Patch converts a live result into an item patch.
func (r Result) Patch() domain.ItemPatch {
	return domain.EnrichmentPatch(r.Category, r.Tags, r.Summary)
}

// Classifier never fails; a failed classification returns Fallback.
type Classifier interface {
	Classify(ctx context.Context, in Input) Result
}

// Fallback is the deterministic result used when classification is
// unavailable or fails.
func Fallback(in Input) Result {
	summary := strings.TrimSpace(in.Title)
	if summary == "" {
		summary = truncateRunes(strings.TrimSpace(in.Content), MaxSummaryRunes)
	}
	return Result{
		Category: domain.CategoryOther,
		Tags:     []string{},
		Summary:  summary,
	}
}

// sanitize coerces a raw model reply into a valid result.
func sanitize(category string, tags []any, summary string) Result {
	clean := make([]string, 0, domain.MaxTags)
	for _, t := range tags {
		s := strings.TrimSpace(fmt.Sprint(t))
		if t == nil || s == "" {
			continue
		}
		clean = append(clean, s)
		if len(clean) == domain.MaxTags {
			break
		}
	}
	return Result{
		Category:    domain.ParseCategory(category),
		Tags:        clean,
		Summary:     truncateRunes(strings.TrimSpace(summary), MaxSummaryRunes),
		AIProcessed: true,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
