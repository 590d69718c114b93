package rollup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/logger"
	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

// Aggregator recomputes per-minute, per-dimension rollups for one upload.
// Rollups are derived state: discardable and rebuilt from the event store.
type Aggregator struct {
	events  store.EventStore
	rollups store.RollupStore
}

// NewAggregator builds an Aggregator over the event and rollup stores.
func NewAggregator(events store.EventStore, rollups store.RollupStore) *Aggregator {
	return &Aggregator{events: events, rollups: rollups}
}

// Recompute rebuilds the upload's rollup buckets. It is deterministic and
// idempotent: the same event set always produces identical bucket totals,
// and the store replace is an upsert by composite key, not an additive
// insert. Events without a timestamp are excluded (no minute to bucket).
func (a *Aggregator) Recompute(ctx context.Context, uploadID string) (int, error) {
	events, err := a.events.ListEvents(ctx, uploadID)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	totals := make(map[model.BucketKey]int)
	for _, e := range events {
		if e.EventTime == nil {
			continue
		}
		key := model.BucketKey{
			UploadID:       uploadID,
			Bucket:         e.EventTime.UTC().Truncate(time.Minute),
			UserEmail:      dim(e.UserEmail),
			ClientIP:       dim(e.ClientIP),
			DestHost:       dim(e.DestHost),
			Action:         dim(e.Action),
			ThreatCategory: dim(e.ThreatCategory),
		}
		totals[key]++
	}

	buckets := make([]model.RollupBucket, 0, len(totals))
	for key, total := range totals {
		buckets = append(buckets, model.RollupBucket{Key: key, Total: total})
	}
	// map iteration order is random; sort so recomputes are byte-identical
	sort.Slice(buckets, func(i, j int) bool {
		return lessKey(buckets[i].Key, buckets[j].Key)
	})

	if err := a.rollups.ReplaceRollups(ctx, uploadID, buckets); err != nil {
		return 0, fmt.Errorf("replace rollups: %w", err)
	}

	logger.L().Infow("rollup recompute complete",
		"upload_id", uploadID,
		"events", len(events),
		"buckets", len(buckets))
	return len(buckets), nil
}

// dim maps a missing dimension value onto the unset sentinel so the
// composite key stays total.
func dim(s *string) string {
	if s == nil || *s == "" {
		return model.UnsetDim
	}
	return *s
}

func lessKey(a, b model.BucketKey) bool {
	if !a.Bucket.Equal(b.Bucket) {
		return a.Bucket.Before(b.Bucket)
	}
	if a.UserEmail != b.UserEmail {
		return a.UserEmail < b.UserEmail
	}
	if a.ClientIP != b.ClientIP {
		return a.ClientIP < b.ClientIP
	}
	if a.DestHost != b.DestHost {
		return a.DestHost < b.DestHost
	}
	if a.Action != b.Action {
		return a.Action < b.Action
	}
	return a.ThreatCategory < b.ThreatCategory
}
