package rollup

import (
	"context"
	"fmt"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

// featureTopN bounds each top-N breakdown in the feature summary.
const featureTopN = 20

// FeatureComputer builds the per-upload feature summary (totals, time
// range, action counts, top users/IPs/hosts/categories) after ingest.
type FeatureComputer struct {
	events   store.EventStore
	features store.FeatureStore
}

func NewFeatureComputer(events store.EventStore, features store.FeatureStore) *FeatureComputer {
	return &FeatureComputer{events: events, features: features}
}

// Compute recomputes and upserts the summary, returning it.
func (f *FeatureComputer) Compute(ctx context.Context, uploadID string) (model.UploadFeatures, error) {
	events, err := f.events.ListEvents(ctx, uploadID)
	if err != nil {
		return model.UploadFeatures{}, fmt.Errorf("list events: %w", err)
	}

	out := model.UploadFeatures{
		UploadID:    uploadID,
		TotalEvents: len(events),
	}
	users := make(map[string]int)
	ips := make(map[string]int)
	hosts := make(map[string]int)
	threats := make(map[string]int)

	for _, e := range events {
		if e.EventTime != nil {
			if out.StartTime == nil || e.EventTime.Before(*out.StartTime) {
				t := *e.EventTime
				out.StartTime = &t
			}
			if out.EndTime == nil || e.EventTime.After(*out.EndTime) {
				t := *e.EventTime
				out.EndTime = &t
			}
		}
		switch dim(e.Action) {
		case "Blocked":
			out.Blocked++
		case "Allowed":
			out.Allowed++
		}
		users[dim(e.UserEmail)]++
		ips[dim(e.ClientIP)]++
		hosts[dim(e.DestHost)]++
		if e.ThreatCategory != nil {
			threats[*e.ThreatCategory]++
		}
	}

	out.TopUsers = topN(users, featureTopN)
	out.TopIPs = topN(ips, featureTopN)
	out.TopHosts = topN(hosts, featureTopN)
	out.TopThreats = topN(threats, featureTopN)

	if err := f.features.UpsertFeatures(ctx, out); err != nil {
		return model.UploadFeatures{}, fmt.Errorf("upsert features: %w", err)
	}
	return out, nil
}

// topN returns the n highest counts, count descending then value ascending
// so equal counts order predictably.
func topN(m map[string]int, n int) []model.TopEntry {
	entries := make([]model.TopEntry, 0, len(m))
	for v, c := range m {
		entries = append(entries, model.TopEntry{Value: v, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count == entries[j].Count {
			return entries[i].Value < entries[j].Value
		}
		return entries[i].Count > entries[j].Count
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
