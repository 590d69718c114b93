package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// beaconCategory matches the C2-flavored threat categories. Prefix match:
// feeds emit variants like "Botnet Callback" or "Command & Control".
func beaconCategory(cat string) bool {
	lc := strings.ToLower(cat)
	return strings.HasPrefix(lc, "botnet") ||
		strings.HasPrefix(lc, "command") ||
		strings.HasPrefix(lc, "c2")
}

// BeaconRule flags repeated blocked callbacks from one user/IP to the same
// destination host across multiple distinct minutes. This is not a
// periodicity analysis; it produces a defendable "suspected" label.
type BeaconRule struct {
	MinMinutes int
	MinHits    int
}

func (r *BeaconRule) Name() string { return PatternBeacon }

func (r *BeaconRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type key struct {
		user     string
		clientIP string
		destHost string
	}
	type tally struct {
		minutes map[time.Time]struct{}
		hits    int
	}
	perTarget := make(map[key]*tally)
	for _, rb := range scope.Rollups {
		if rb.Key.Action != actionBlocked || unset(rb.Key.DestHost) {
			continue
		}
		if unset(rb.Key.ThreatCategory) || !beaconCategory(rb.Key.ThreatCategory) {
			continue
		}
		k := key{rb.Key.UserEmail, rb.Key.ClientIP, rb.Key.DestHost}
		t := perTarget[k]
		if t == nil {
			t = &tally{minutes: make(map[time.Time]struct{})}
			perTarget[k] = t
		}
		t.minutes[rb.Key.Bucket] = struct{}{}
		t.hits += rb.Total
	}

	type hit struct {
		key
		minutes int
		hits    int
	}
	var hits []hit
	for k, t := range perTarget {
		if len(t.minutes) >= r.MinMinutes && t.hits >= r.MinHits {
			hits = append(hits, hit{k, len(t.minutes), t.hits})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].hits != hits[j].hits {
			return hits[i].hits > hits[j].hits
		}
		if hits[i].destHost != hits[j].destHost {
			return hits[i].destHost < hits[j].destHost
		}
		return hits[i].clientIP < hits[j].clientIP
	})
	if len(hits) > 15 {
		hits = hits[:15]
	}

	drafts := make([]Draft, 0, len(hits))
	for _, h := range hits {
		drafts = append(drafts, Draft{
			PatternName: PatternBeacon,
			Severity:    model.SeverityHigh,
			Title:       "C2 beaconing suspected (repeated blocked callbacks)",
			Summary: fmt.Sprintf(
				"%s / %s repeatedly attempted to reach %s across %d distinct minutes (%d total blocked hits). Repeated callback attempts are consistent with beaconing behavior.",
				entity(h.user), entity(h.clientIP), h.destHost, h.minutes, h.hits),
			Evidence: model.Evidence{
				"user_email":     h.user,
				"client_ip":      h.clientIP,
				"dest_host":      h.destHost,
				"active_minutes": h.minutes,
				"blocked_hits":   h.hits,
				"mitre":          []string{"TA0011", "T1071"},
			},
		})
	}
	return drafts, nil
}
