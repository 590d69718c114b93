package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

const actionBlocked = "Blocked"

// RepeatedBlockedRule flags a user/IP pair repeatedly blocked in the same
// threat category, consistent with infection or repeated malicious
// browsing.
type RepeatedBlockedRule struct {
	MinHits int
}

func (r *RepeatedBlockedRule) Name() string { return PatternRepeatedBlocked }

func (r *RepeatedBlockedRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type key struct {
		user     string
		clientIP string
		category string
	}
	counts := make(map[key]int)
	for _, rb := range scope.Rollups {
		if rb.Key.Action != actionBlocked || unset(rb.Key.ThreatCategory) {
			continue
		}
		counts[key{rb.Key.UserEmail, rb.Key.ClientIP, rb.Key.ThreatCategory}] += rb.Total
	}

	type hit struct {
		key
		count int
	}
	var hits []hit
	for k, n := range counts {
		if n >= r.MinHits {
			hits = append(hits, hit{k, n})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		if hits[i].user != hits[j].user {
			return hits[i].user < hits[j].user
		}
		if hits[i].clientIP != hits[j].clientIP {
			return hits[i].clientIP < hits[j].clientIP
		}
		return hits[i].category < hits[j].category
	})
	if len(hits) > 25 {
		hits = hits[:25]
	}

	drafts := make([]Draft, 0, len(hits))
	for _, h := range hits {
		drafts = append(drafts, Draft{
			PatternName: PatternRepeatedBlocked,
			Severity:    model.SeverityHigh,
			Title:       fmt.Sprintf("Repeated blocked %s", h.category),
			Summary: fmt.Sprintf(
				"%s / %s triggered %d blocked events in threat category '%s'. This is consistent with infection/beaconing or repeated malicious browsing.",
				entity(h.user), entity(h.clientIP), h.count, h.category),
			Evidence: model.Evidence{
				"user_email":      h.user,
				"client_ip":       h.clientIP,
				"threat_category": h.category,
				"blocked_hits":    h.count,
				"threshold":       r.MinHits,
			},
		})
	}
	return drafts, nil
}
