package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

func bucketAt(minute int) time.Time {
	return time.Date(2025, 6, 1, 11, minute, 0, 0, time.UTC)
}

func blockedBucket(minute int, user, ip, host, category string, total int) model.RollupBucket {
	return model.RollupBucket{
		Key: model.BucketKey{
			UploadID:       "up",
			Bucket:         bucketAt(minute),
			UserEmail:      user,
			ClientIP:       ip,
			DestHost:       host,
			Action:         "Blocked",
			ThreatCategory: category,
		},
		Total: total,
	}
}

func TestOffHoursRule(t *testing.T) {
	rule := &OffHoursRule{StartHour: 8, EndHour: 18, MinSample: 20, MinRatio: 0.5}

	mkEvents := func(user string, offHours, inHours int) []model.Event {
		var events []model.Event
		for i := 0; i < offHours; i++ {
			at := time.Date(2025, 6, 1, 2, i%60, 0, 0, time.UTC)
			events = append(events, model.Event{UserEmail: &user, EventTime: &at})
		}
		for i := 0; i < inHours; i++ {
			at := time.Date(2025, 6, 1, 10, i%60, 0, 0, time.UTC)
			events = append(events, model.Event{UserEmail: &user, EventTime: &at})
		}
		return events
	}

	t.Run("fires above ratio with enough sample", func(t *testing.T) {
		scope := &Scope{UploadID: "up", Events: mkEvents("night@example.com", 18, 6)}
		drafts, err := rule.Evaluate(context.Background(), scope)
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, model.SeverityMedium, drafts[0].Severity)
		assert.Equal(t, 18, drafts[0].Evidence["off_hours_events"])
	})

	t.Run("small sample ignored", func(t *testing.T) {
		scope := &Scope{UploadID: "up", Events: mkEvents("few@example.com", 9, 1)}
		drafts, err := rule.Evaluate(context.Background(), scope)
		require.NoError(t, err)
		assert.Empty(t, drafts)
	})

	t.Run("ratio at threshold does not fire", func(t *testing.T) {
		scope := &Scope{UploadID: "up", Events: mkEvents("even@example.com", 12, 12)}
		drafts, err := rule.Evaluate(context.Background(), scope)
		require.NoError(t, err)
		assert.Empty(t, drafts)
	})
}

func TestFanoutRule_SlidingWindow(t *testing.T) {
	rule := &FanoutRule{WindowMinutes: 10, HostThreshold: 5}

	user := "scanner@example.com"
	var events []model.Event
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// 5 distinct hosts inside 10 minutes
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i*2) * time.Minute)
		host := fmt.Sprintf("host-%d.example.com", i)
		events = append(events, model.Event{UserEmail: &user, DestHost: &host, EventTime: &at})
	}

	drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Events: events})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 5, drafts[0].Evidence["distinct_hosts"])

	// the same hosts spread across an hour stay under the window
	var spread []model.Event
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i*15) * time.Minute)
		host := fmt.Sprintf("host-%d.example.com", i)
		spread = append(spread, model.Event{UserEmail: &user, DestHost: &host, EventTime: &at})
	}
	drafts, err = rule.Evaluate(context.Background(), &Scope{UploadID: "up", Events: spread})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestCategorySpikeRule_RarityAdjustment(t *testing.T) {
	rule := &CategorySpikeRule{BaseThreshold: 40}

	// dominant category: 100 of 110 categorized events, threshold stays 40
	// rare category: 10 of 110 (9%) -> threshold halves to 20, still under
	rollups := []model.RollupBucket{
		blockedBucket(0, "a@b.com", "10.0.0.1", "h1", "Adware/Spyware", 100),
		blockedBucket(1, "a@b.com", "10.0.0.1", "h2", "Ransomware", 10),
	}
	drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Adware/Spyware", drafts[0].Evidence["threat_category"])

	// a genuinely rare category (<=5%) gets a quarter threshold
	rollups = []model.RollupBucket{
		blockedBucket(0, "a@b.com", "10.0.0.1", "h1", "Adware/Spyware", 200),
		blockedBucket(1, "a@b.com", "10.0.0.1", "h2", "Ransomware", 10),
	}
	drafts, err = rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
}

func TestRepeatedBlockedRule(t *testing.T) {
	rule := &RepeatedBlockedRule{MinHits: 25}

	rollups := []model.RollupBucket{
		blockedBucket(0, "a@b.com", "10.0.0.1", "bad.example.com", "Phishing", 15),
		blockedBucket(1, "a@b.com", "10.0.0.1", "bad.example.com", "Phishing", 12),
		blockedBucket(2, "c@d.com", "10.0.0.2", "ok.example.com", "Phishing", 5),
	}
	drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 27, drafts[0].Evidence["blocked_hits"])
	assert.Equal(t, "a@b.com", drafts[0].Evidence["user_email"])
}

func TestBlockedHostRule(t *testing.T) {
	rule := &BlockedHostRule{MinHits: 15}

	rollups := []model.RollupBucket{
		blockedBucket(0, "a@b.com", "10.0.0.1", "sink.example.com", "Malware", 9),
		blockedBucket(1, "c@d.com", "10.0.0.2", "sink.example.com", "Phishing", 11),
		blockedBucket(2, "a@b.com", "10.0.0.1", "quiet.example.com", "Malware", 10),
		blockedBucket(3, "a@b.com", "10.0.0.1", model.UnsetDim, "Malware", 50),
	}
	drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
	require.NoError(t, err)
	require.Len(t, drafts, 1, "only the host summing past the threshold fires; the unset host never does")
	assert.Equal(t, model.SeverityMedium, drafts[0].Severity)
	assert.Equal(t, "sink.example.com", drafts[0].Evidence["dest_host"])
	assert.Equal(t, 20, drafts[0].Evidence["blocked_hits"])
}

func TestMultiCategoryRule_SeverityEscalation(t *testing.T) {
	rule := &MultiCategoryRule{MinCategories: 3, MinBlocks: 12}

	mk := func(total int) []model.RollupBucket {
		per := total / 3
		return []model.RollupBucket{
			blockedBucket(0, "pwned@example.com", "10.0.0.3", "h1", "Phishing", per),
			blockedBucket(1, "pwned@example.com", "10.0.0.3", "h2", "Malware Site", per),
			blockedBucket(2, "pwned@example.com", "10.0.0.3", "h3", "Botnet Callback", total-2*per),
		}
	}

	drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: mk(15)})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.SeverityHigh, drafts[0].Severity)
	assert.Equal(t, 3, drafts[0].Evidence["distinct_threat_categories"])

	drafts, err = rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: mk(45)})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.SeverityCritical, drafts[0].Severity)
}

func TestBeaconRule(t *testing.T) {
	rule := &BeaconRule{MinMinutes: 4, MinHits: 8}

	var rollups []model.RollupBucket
	for m := 0; m < 4; m++ {
		rollups = append(rollups,
			blockedBucket(m*3, "bot@example.com", "10.0.0.4", "beacon.c2relay.cc", "Botnet Callback", 2))
	}
	drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 4, drafts[0].Evidence["active_minutes"])
	assert.Equal(t, 8, drafts[0].Evidence["blocked_hits"])

	// non-C2 categories never count toward a beacon
	var benign []model.RollupBucket
	for m := 0; m < 6; m++ {
		benign = append(benign,
			blockedBucket(m, "bot@example.com", "10.0.0.4", "ads.example.com", "Adware/Spyware", 3))
	}
	drafts, err = rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: benign})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestChainRule(t *testing.T) {
	rule := &ChainRule{WindowMinutes: 30, MinPhish: 2, MinPayload: 2}

	t.Run("payload within window fires", func(t *testing.T) {
		rollups := []model.RollupBucket{
			blockedBucket(0, "victim@example.com", "10.0.0.5", "phish.example.com", "Phishing", 3),
			blockedBucket(12, "victim@example.com", "10.0.0.5", "drop.example.com", "Malware Site", 2),
		}
		drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, 3, drafts[0].Evidence["phish_hits"])
		assert.Equal(t, 2, drafts[0].Evidence["payload_hits"])
	})

	t.Run("payload outside window does not fire", func(t *testing.T) {
		rollups := []model.RollupBucket{
			blockedBucket(0, "victim@example.com", "10.0.0.5", "phish.example.com", "Phishing", 3),
			blockedBucket(45, "victim@example.com", "10.0.0.5", "drop.example.com", "Malware Site", 2),
		}
		drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
		require.NoError(t, err)
		assert.Empty(t, drafts)
	})

	t.Run("different entities never chain", func(t *testing.T) {
		rollups := []model.RollupBucket{
			blockedBucket(0, "one@example.com", "10.0.0.5", "phish.example.com", "Phishing", 3),
			blockedBucket(10, "two@example.com", "10.0.0.6", "drop.example.com", "Ransomware", 3),
		}
		drafts, err := rule.Evaluate(context.Background(), &Scope{UploadID: "up", Rollups: rollups})
		require.NoError(t, err)
		assert.Empty(t, drafts)
	})
}

func TestCalcConfidence(t *testing.T) {
	t.Run("severity priors", func(t *testing.T) {
		ev := model.Evidence{}
		assert.InDelta(t, 0.72, calcConfidence("UNKNOWN", model.SeverityCritical, ev), 0.001)
		assert.InDelta(t, 0.62, calcConfidence("UNKNOWN", model.SeverityHigh, ev), 0.001)
		assert.InDelta(t, 0.50, calcConfidence("UNKNOWN", model.SeverityMedium, ev), 0.001)
		assert.InDelta(t, 0.38, calcConfidence("UNKNOWN", model.SeverityLow, ev), 0.001)
	})

	t.Run("entity boosts", func(t *testing.T) {
		ev := model.Evidence{
			"user_email": "a@b.com",
			"client_ip":  "10.0.0.1",
			"dest_host":  "h.example.com",
		}
		assert.InDelta(t, 0.50+0.09, calcConfidence("UNKNOWN", model.SeverityMedium, ev), 0.001)
	})

	t.Run("sentinel entities earn no boost", func(t *testing.T) {
		ev := model.Evidence{"user_email": model.UnsetDim, "client_ip": ""}
		assert.InDelta(t, 0.50, calcConfidence("UNKNOWN", model.SeverityMedium, ev), 0.001)
	})

	t.Run("always clamped to ceiling", func(t *testing.T) {
		ev := model.Evidence{
			"user_email": "a@b.com", "client_ip": "10.0.0.1",
			"dest_host": "h", "threat_category": "Phishing",
			"count": 100000, "threshold": 50,
		}
		got := calcConfidence(PatternBurst, model.SeverityCritical, ev)
		assert.LessOrEqual(t, got, 0.99)
	})

	t.Run("ratio boost grows with excess", func(t *testing.T) {
		at := calcConfidence(PatternBurst, model.SeverityHigh,
			model.Evidence{"count": 50, "threshold": 50})
		above := calcConfidence(PatternBurst, model.SeverityHigh,
			model.Evidence{"count": 150, "threshold": 50})
		assert.Greater(t, above, at)
	})

	t.Run("blocked host concentration boost", func(t *testing.T) {
		// saturated ratio: 0.50 prior + 0.03 dest_host + full 0.22 boost
		ev := model.Evidence{"dest_host": "sink.example.com", "blocked_hits": 90, "threshold": 15}
		assert.InDelta(t, 0.50+0.03+0.22, calcConfidence(PatternBlockedHost, model.SeverityMedium, ev), 0.001)
	})
}

func TestRatioScore(t *testing.T) {
	assert.Equal(t, 0.0, ratioScore(10, 0, 5))
	assert.Equal(t, 0.0, ratioScore(50, 50, 5))
	assert.InDelta(t, 0.5, ratioScore(150, 50, 5), 0.001)
	assert.Equal(t, 1.0, ratioScore(10000, 50, 5))
}
