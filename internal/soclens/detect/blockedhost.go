package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// BlockedHostRule flags destination hosts that concentrate blocked traffic,
// a pivot point worth expanding into users, IPs and timeline.
type BlockedHostRule struct {
	MinHits int
}

func (r *BlockedHostRule) Name() string { return PatternBlockedHost }

func (r *BlockedHostRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	counts := make(map[string]int)
	for _, rb := range scope.Rollups {
		if rb.Key.Action != actionBlocked || unset(rb.Key.DestHost) {
			continue
		}
		counts[rb.Key.DestHost] += rb.Total
	}

	type hit struct {
		host  string
		count int
	}
	var hits []hit
	for host, n := range counts {
		if n >= r.MinHits {
			hits = append(hits, hit{host, n})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].host < hits[j].host
	})
	if len(hits) > 20 {
		hits = hits[:20]
	}

	drafts := make([]Draft, 0, len(hits))
	for _, h := range hits {
		drafts = append(drafts, Draft{
			PatternName: PatternBlockedHost,
			Severity:    model.SeverityMedium,
			Title:       fmt.Sprintf("Blocked traffic concentrated to %s", h.host),
			Summary: fmt.Sprintf(
				"%s accounts for %d blocked events. Worth pivoting into users/IPs and timeline.",
				h.host, h.count),
			Evidence: model.Evidence{
				"dest_host":    h.host,
				"blocked_hits": h.count,
				"threshold":    r.MinHits,
			},
		})
	}
	return drafts, nil
}
