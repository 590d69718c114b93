package detect

import (
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// Confidence is a severity prior boosted by evidence quality and strength,
// clamped to [0.10, 0.99].

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// severityBase is the starting confidence per severity level.
func severityBase(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return 0.72
	case model.SeverityHigh:
		return 0.62
	case model.SeverityMedium:
		return 0.50
	case model.SeverityLow:
		return 0.38
	default:
		return 0.50
	}
}

// ratioScore converts "how far above threshold" into a 0..1 score,
// saturating at capMultiple times the threshold.
func ratioScore(value, threshold, capMultiple float64) float64 {
	if threshold <= 0 {
		return 0
	}
	r := (value - threshold) / (threshold * (capMultiple - 1.0))
	return clamp(r, 0, 1)
}

// entityBoost rewards each populated entity field in the evidence with a
// small quality bump.
func entityBoost(ev model.Evidence) float64 {
	boost := 0.0
	for _, key := range []string{"user_email", "client_ip", "dest_host", "threat_category"} {
		if v, ok := ev[key].(string); ok && v != "" && v != model.UnsetDim {
			boost += 0.03
		}
	}
	return boost
}

// calcConfidence mirrors the severity-prior + evidence-boost scheme: base
// by severity, small boosts for populated entities, and pattern-specific
// boosts scaled by threshold excess.
func calcConfidence(pattern string, severity model.Severity, ev model.Evidence) float64 {
	boost := entityBoost(ev)

	num := func(key string) float64 {
		switch v := ev[key].(type) {
		case int:
			return float64(v)
		case float64:
			return v
		default:
			return 0
		}
	}

	switch pattern {
	case PatternBurst:
		boost += 0.30 * ratioScore(num("count"), num("threshold"), 5.0)
	case PatternOffHours:
		boost += 0.20 * ratioScore(num("off_hours_ratio")*100, num("min_ratio")*100, 2.0)
	case PatternFanout:
		boost += 0.26 * ratioScore(num("distinct_hosts"), num("threshold"), 4.0)
	case PatternCategorySpike:
		boost += 0.24 * ratioScore(num("count"), num("threshold"), 6.0)
	case PatternRepeatedBlocked:
		boost += 0.28 * ratioScore(num("blocked_hits"), num("threshold"), 6.0)
	case PatternBlockedHost:
		boost += 0.22 * ratioScore(num("blocked_hits"), num("threshold"), 6.0)
	case PatternMultiCategory:
		boost += 0.20 * ratioScore(num("distinct_threat_categories"), 3.0, 4.0)
		boost += 0.22 * ratioScore(num("blocked_hits"), 12.0, 6.0)
	case PatternBeacon:
		boost += 0.18 * ratioScore(num("active_minutes"), 4.0, 5.0)
		boost += 0.18 * ratioScore(num("blocked_hits"), 8.0, 8.0)
		// the category filter is already specific (botnet/C2)
		boost += 0.04
	case PatternChain:
		boost += 0.14 * ratioScore(num("phish_hits"), 2.0, 8.0)
		boost += 0.16 * ratioScore(num("payload_hits"), 2.0, 10.0)
		// a tighter phish→payload gap earns a bonus: 0..30min maps to 0.10..0
		if fp, ok := ev["first_phish"].(time.Time); ok {
			if fy, ok := ev["first_payload"].(time.Time); ok && !fy.Before(fp) {
				delta := fy.Sub(fp).Seconds()
				t := clamp(1.0-delta/1800.0, 0, 1)
				boost += 0.10 * t
			}
		}
	}

	return clamp(severityBase(severity)+boost, 0.10, 0.99)
}
