package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

var payloadPrefixes = []string{
	"malware",
	"ransomware",
	"botnet",
	"cryptomining",
	"data transfer",
	"data leakage",
}

func phishCategory(cat string) bool {
	return strings.HasPrefix(strings.ToLower(cat), "phishing")
}

func payloadCategory(cat string) bool {
	lc := strings.ToLower(cat)
	for _, p := range payloadPrefixes {
		if strings.HasPrefix(lc, p) {
			return true
		}
	}
	return false
}

// ChainRule flags the same user/IP showing blocked phishing activity and
// blocked payload-stage categories (malware, ransomware, exfil) with the
// first payload hit landing within the window after the first phish hit.
type ChainRule struct {
	WindowMinutes int
	MinPhish      int
	MinPayload    int
}

func (r *ChainRule) Name() string { return PatternChain }

func (r *ChainRule) Evaluate(ctx context.Context, scope *Scope) ([]Draft, error) {
	type key struct {
		user     string
		clientIP string
	}
	type side struct {
		first time.Time
		hits  int
	}
	phish := make(map[key]*side)
	payload := make(map[key]*side)

	record := func(m map[key]*side, k key, bucket time.Time, n int) {
		s := m[k]
		if s == nil {
			s = &side{first: bucket}
			m[k] = s
		} else if bucket.Before(s.first) {
			s.first = bucket
		}
		s.hits += n
	}

	for _, rb := range scope.Rollups {
		if rb.Key.Action != actionBlocked || unset(rb.Key.ThreatCategory) {
			continue
		}
		k := key{rb.Key.UserEmail, rb.Key.ClientIP}
		switch {
		case phishCategory(rb.Key.ThreatCategory):
			record(phish, k, rb.Key.Bucket, rb.Total)
		case payloadCategory(rb.Key.ThreatCategory):
			record(payload, k, rb.Key.Bucket, rb.Total)
		}
	}

	window := time.Duration(r.WindowMinutes) * time.Minute
	type hit struct {
		key
		firstPhish   time.Time
		firstPayload time.Time
		phishHits    int
		payloadHits  int
	}
	var hits []hit
	for k, p := range phish {
		y := payload[k]
		if y == nil {
			continue
		}
		if p.hits < r.MinPhish || y.hits < r.MinPayload {
			continue
		}
		// upper bound only: a payload bucket preceding the phish bucket
		// still qualifies, same as the rollup granularity allows
		if y.first.After(p.first.Add(window)) {
			continue
		}
		hits = append(hits, hit{k, p.first, y.first, p.hits, y.hits})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].payloadHits != hits[j].payloadHits {
			return hits[i].payloadHits > hits[j].payloadHits
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
		drafts = append(drafts, Draft{
			PatternName: PatternChain,
			Severity:    model.SeverityHigh,
			Title:       "Phish to payload chain suspected",
			Summary: fmt.Sprintf(
				"%s / %s shows blocked phishing activity followed by blocked malware/ransomware/botnet/exfil-related categories within ~%d minutes. This sequence is consistent with a phish leading to follow-on compromise attempts.",
				entity(h.user), entity(h.clientIP), r.WindowMinutes),
			Evidence: model.Evidence{
				"user_email":    h.user,
				"client_ip":     h.clientIP,
				"first_phish":   h.firstPhish,
				"first_payload": h.firstPayload,
				"phish_hits":    h.phishHits,
				"payload_hits":  h.payloadHits,
				"mitre":         []string{"TA0001", "TA0002", "TA0011"},
			},
		})
	}
	return drafts, nil
}
