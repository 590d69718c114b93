package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// OffHoursRule flags users whose activity falls predominantly outside the
// configured business hours. Users with too few events overall are ignored
// so a handful of late-night requests does not trip the rule.
type OffHoursRule struct {
	StartHour int // inclusive, UTC
	EndHour   int // exclusive, UTC
	MinSample int
	MinRatio  float64
}

func (r *OffHoursRule) Name() string { return PatternOffHours }

func (r *OffHoursRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type tally struct {
		total    int
		offHours int
	}
	perUser := make(map[string]*tally)
	for i := range scope.Events {
		evt := &scope.Events[i]
		if evt.EventTime == nil || evt.UserEmail == nil || *evt.UserEmail == "" {
			continue
		}
		t := perUser[*evt.UserEmail]
		if t == nil {
			t = &tally{}
			perUser[*evt.UserEmail] = t
		}
		t.total++
		hour := evt.EventTime.UTC().Hour()
		if hour < r.StartHour || hour >= r.EndHour {
			t.offHours++
		}
	}

	users := make([]string, 0, len(perUser))
	for u := range perUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var drafts []Draft
	for _, u := range users {
		t := perUser[u]
		if t.total < r.MinSample {
			continue
		}
		ratio := float64(t.offHours) / float64(t.total)
		if ratio <= r.MinRatio {
			continue
		}
		drafts = append(drafts, Draft{
			PatternName: PatternOffHours,
			Severity:    model.SeverityMedium,
			Title:       fmt.Sprintf("Off-hours activity by %s", u),
			Summary: fmt.Sprintf(
				"%s generated %d of %d events outside %02d:00-%02d:00 UTC (%.0f%%). Sustained off-hours activity can indicate account misuse or automation.",
				u, t.offHours, t.total, r.StartHour, r.EndHour, ratio*100),
			Evidence: model.Evidence{
				"user_email":       u,
				"total_events":     t.total,
				"off_hours_events": t.offHours,
				"off_hours_ratio":  ratio,
				"min_ratio":        r.MinRatio,
			},
		})
	}
	return drafts, nil
}
