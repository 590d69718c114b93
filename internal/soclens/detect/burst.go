package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// BurstRule flags a single client IP producing an abnormal number of
// events inside one minute bucket.
type BurstRule struct {
	Threshold int
}

func (r *BurstRule) Name() string { return PatternBurst }

func (r *BurstRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type key struct {
		bucket   time.Time
		clientIP string
	}
	counts := make(map[key]int)
	for _, rb := range scope.Rollups {
		if unset(rb.Key.ClientIP) {
			continue
		}
		counts[key{rb.Key.Bucket, rb.Key.ClientIP}] += rb.Total
	}

	type hit struct {
		key
		count int
	}
	var hits []hit
	for k, n := range counts {
		if n >= r.Threshold {
			hits = append(hits, hit{k, n})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		if !hits[i].bucket.Equal(hits[j].bucket) {
			return hits[i].bucket.Before(hits[j].bucket)
		}
		return hits[i].clientIP < hits[j].clientIP
	})
	if len(hits) > 20 {
		hits = hits[:20]
	}

	drafts := make([]Draft, 0, len(hits))
	for _, h := range hits {
		severity := model.SeverityHigh
		if h.count >= 2*r.Threshold {
			severity = model.SeverityCritical
		}
		drafts = append(drafts, Draft{
			PatternName: PatternBurst,
			Severity:    severity,
			Title:       fmt.Sprintf("Burst from %s", h.clientIP),
			Summary: fmt.Sprintf(
				"%s generated %d events in one minute (%s). This often indicates automation (scan/beacon) or a runaway process.",
				h.clientIP, h.count, h.bucket.Format(time.RFC3339)),
			Evidence: model.Evidence{
				"bucket":    h.bucket.Format(time.RFC3339),
				"client_ip": h.clientIP,
				"count":     h.count,
				"threshold": r.Threshold,
			},
		})
	}
	return drafts, nil
}
