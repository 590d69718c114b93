package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// multiCategoryCriticalHits is the blocked-hit count at which breadth
// across categories escalates to critical.
const multiCategoryCriticalHits = 40

// MultiCategoryRule flags one user/IP with blocked hits spread across many
// threat categories. That breadth suggests multi-stage automated activity
// on the endpoint rather than casual browsing.
type MultiCategoryRule struct {
	MinCategories int
	MinBlocks     int
}

func (r *MultiCategoryRule) Name() string { return PatternMultiCategory }

func (r *MultiCategoryRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type key struct {
		user     string
		clientIP string
	}
	type tally struct {
		categories map[string]struct{}
		hits       int
	}
	perEntity := make(map[key]*tally)
	for _, rb := range scope.Rollups {
		if rb.Key.Action != actionBlocked || unset(rb.Key.ThreatCategory) {
			continue
		}
		k := key{rb.Key.UserEmail, rb.Key.ClientIP}
		t := perEntity[k]
		if t == nil {
			t = &tally{categories: make(map[string]struct{})}
			perEntity[k] = t
		}
		t.categories[rb.Key.ThreatCategory] = struct{}{}
		t.hits += rb.Total
	}

	type hit struct {
		key
		cats int
		hits int
	}
	var hits []hit
	for k, t := range perEntity {
		if len(t.categories) >= r.MinCategories && t.hits >= r.MinBlocks {
			hits = append(hits, hit{k, len(t.categories), t.hits})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].hits != hits[j].hits {
			return hits[i].hits > hits[j].hits
		}
		if hits[i].user != hits[j].user {
			return hits[i].user < hits[j].user
		}
		return hits[i].clientIP < hits[j].clientIP
	})
	if len(hits) > 10 {
		hits = hits[:10]
	}

	drafts := make([]Draft, 0, len(hits))
	for _, h := range hits {
		severity := model.SeverityHigh
		if h.hits >= multiCategoryCriticalHits {
			severity = model.SeverityCritical
		}
		drafts = append(drafts, Draft{
			PatternName: PatternMultiCategory,
			Severity:    severity,
			Title:       "Suspected endpoint compromise (multi-stage) from one host/user",
			Summary: fmt.Sprintf(
				"%s / %s generated blocked activity across %d threat categories (%d total blocked hits). This breadth suggests automated malicious activity rather than casual browsing.",
				entity(h.user), entity(h.clientIP), h.cats, h.hits),
			Evidence: model.Evidence{
				"user_email":                 h.user,
				"client_ip":                  h.clientIP,
				"blocked_hits":               h.hits,
				"distinct_threat_categories": h.cats,
				"mitre":                      []string{"TA0001", "TA0011"},
			},
		})
	}
	return drafts, nil
}
