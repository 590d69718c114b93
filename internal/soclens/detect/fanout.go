package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// FanoutRule flags a user reaching an unusual number of distinct
// destination hosts inside a sliding time window. High fan-out from one
// account is typical of scanning or data-gathering automation.
type FanoutRule struct {
	WindowMinutes int
	HostThreshold int
}

func (r *FanoutRule) Name() string { return PatternFanout }

func (r *FanoutRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type visit struct {
		at   time.Time
		host string
	}
	perUser := make(map[string][]visit)
	for i := range scope.Events {
		evt := &scope.Events[i]
		if evt.EventTime == nil || evt.UserEmail == nil || *evt.UserEmail == "" {
			continue
		}
		if evt.DestHost == nil || *evt.DestHost == "" {
			continue
		}
		perUser[*evt.UserEmail] = append(perUser[*evt.UserEmail],
			visit{evt.EventTime.UTC(), *evt.DestHost})
	}

	users := make([]string, 0, len(perUser))
	for u := range perUser {
		users = append(users, u)
	}
	sort.Strings(users)

	window := time.Duration(r.WindowMinutes) * time.Minute
	var drafts []Draft
	for _, u := range users {
		visits := perUser[u]
		sort.Slice(visits, func(i, j int) bool {
			if !visits[i].at.Equal(visits[j].at) {
				return visits[i].at.Before(visits[j].at)
			}
			return visits[i].host < visits[j].host
		})

		// two-pointer sliding window over the sorted visits, tracking the
		// distinct host count as the window advances
		inWindow := make(map[string]int)
		best, bestStart := 0, time.Time{}
		lo := 0
		for hi := range visits {
			inWindow[visits[hi].host]++
			for visits[hi].at.Sub(visits[lo].at) > window {
				inWindow[visits[lo].host]--
				if inWindow[visits[lo].host] == 0 {
					delete(inWindow, visits[lo].host)
				}
				lo++
			}
			if len(inWindow) > best {
				best = len(inWindow)
				bestStart = visits[lo].at
			}
		}
		if best < r.HostThreshold {
			continue
		}
		drafts = append(drafts, Draft{
			PatternName: PatternFanout,
			Severity:    model.SeverityHigh,
			Title:       fmt.Sprintf("High destination fan-out by %s", u),
			Summary: fmt.Sprintf(
				"%s contacted %d distinct hosts within %d minutes (from %s). Broad fan-out from a single account is consistent with scanning or automated reconnaissance.",
				u, best, r.WindowMinutes, bestStart.Format(time.RFC3339)),
			Evidence: model.Evidence{
				"user_email":     u,
				"distinct_hosts": best,
				"threshold":      r.HostThreshold,
				"window_minutes": r.WindowMinutes,
				"window_start":   bestStart.Format(time.RFC3339),
			},
		})
	}
	return drafts, nil
}
