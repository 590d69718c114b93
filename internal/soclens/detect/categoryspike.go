package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// CategorySpikeRule flags threat categories whose volume crosses a
// rarity-adjusted threshold. Categories that make up a small share of the
// upload's categorized traffic get a lower bar: a spike in something rare
// is more interesting than volume in a category that dominates anyway.
type CategorySpikeRule struct {
	BaseThreshold int
}

func (r *CategorySpikeRule) Name() string { return PatternCategorySpike }

func (r *CategorySpikeRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	counts := make(map[string]int)
	total := 0
	for _, rb := range scope.Rollups {
		if unset(rb.Key.ThreatCategory) {
			continue
		}
		counts[rb.Key.ThreatCategory] += rb.Total
		total += rb.Total
	}
	if total == 0 {
		return nil, nil
	}

	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var drafts []Draft
	for _, cat := range cats {
		n := counts[cat]
		share := float64(n) / float64(total)
		threshold := r.BaseThreshold
		switch {
		case share <= 0.05:
			threshold = r.BaseThreshold / 4
		case share <= 0.20:
			threshold = r.BaseThreshold / 2
		}
		if threshold < 1 {
			threshold = 1
		}
		if n < threshold {
			continue
		}
		drafts = append(drafts, Draft{
			PatternName: PatternCategorySpike,
			Severity:    model.SeverityMedium,
			Title:       fmt.Sprintf("Spike in threat category '%s'", cat),
			Summary: fmt.Sprintf(
				"Threat category '%s' occurred %d times (%.0f%% of categorized traffic), above its adjusted threshold of %d. Worth pivoting into users/IPs and timeline.",
				cat, n, share*100, threshold),
			Evidence: model.Evidence{
				"threat_category": cat,
				"count":           n,
				"threshold":       threshold,
				"base_threshold":  r.BaseThreshold,
				"share":           share,
			},
		})
	}
	return drafts, nil
}
