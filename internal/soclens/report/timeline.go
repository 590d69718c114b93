package report

import (
	"sort"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// BuildTimeline derives a chronological timeline from the time references
// findings carry in their evidence. Findings without a time anchor do not
// appear on the timeline.
func BuildTimeline(findings []model.Finding) []model.TimelineItem {
	var items []model.TimelineItem
	for _, f := range findings {
		start, end, ok := evidenceSpan(f.Evidence)
		if !ok {
			continue
		}
		items = append(items, model.TimelineItem{
			TsStart:            start,
			TsEnd:              end,
			Label:              f.Title,
			EvidenceFindingIDs: []string{f.ID},
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].TsStart.Equal(items[j].TsStart) {
			return items[i].TsStart.Before(items[j].TsStart)
		}
		return items[i].Label < items[j].Label
	})
	return items
}

// evidenceSpan pulls a time range out of the evidence keys the rules emit.
func evidenceSpan(ev model.Evidence) (time.Time, time.Time, bool) {
	if t, ok := evidenceTime(ev["bucket"]); ok {
		return t, t.Add(time.Minute), true
	}
	if t, ok := evidenceTime(ev["window_start"]); ok {
		minutes, _ := ev["window_minutes"].(int)
		if minutes <= 0 {
			minutes = 1
		}
		return t, t.Add(time.Duration(minutes) * time.Minute), true
	}
	if start, ok := evidenceTime(ev["first_phish"]); ok {
		if end, ok := evidenceTime(ev["first_payload"]); ok {
			if end.Before(start) {
				start, end = end, start
			}
			return start, end.Add(time.Minute), true
		}
		return start, start.Add(time.Minute), true
	}
	return time.Time{}, time.Time{}, false
}

func evidenceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	default:
		return time.Time{}, false
	}
}
