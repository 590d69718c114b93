package detect

import (
	"context"

	"github.com/varunr-/SOCLens/internal/soclens/config"
	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// Pattern names are stable identifiers carried on findings; downstream
// consumers key off them, so they never change.
const (
	PatternBurst           = "BURST_FROM_SINGLE_IP"
	PatternOffHours        = "OFF_HOURS_ACCESS"
	PatternFanout          = "MANY_DESTINATIONS_SINGLE_USER"
	PatternCategorySpike   = "THREAT_CATEGORY_SPIKE"
	PatternRepeatedBlocked = "REPEATED_BLOCKED_THREAT_CATEGORY"
	PatternBlockedHost     = "TOP_BLOCKED_DEST_HOST"
	PatternMultiCategory   = "ENDPOINT_COMPROMISE_MULTI_CATEGORY"
	PatternBeacon          = "C2_BEACONING_SUSPECTED"
	PatternChain           = "PHISH_TO_PAYLOAD_CHAIN_SUSPECTED"
)

// Scope is the read-only view a rule evaluates: the events and rollups of
// exactly one upload. Rules must not mutate it.
type Scope struct {
	UploadID string
	Events   []model.Event
	Rollups  []model.RollupBucket
}

// Draft is a rule's raw output before the engine assigns identity,
// confidence and ordering metadata.
type Draft struct {
	PatternName string
	Severity    model.Severity
	Title       string
	Summary     string
	Evidence    model.Evidence
}

// Rule is one independently evaluable detection pattern.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, scope *Scope) ([]Draft, error)
}

// NewDefaultRegistry builds the ordered rule list. The registry is
// constructed once at process start and never mutated at runtime.
func NewDefaultRegistry(cfg config.DetectionCfg) []Rule {
	return []Rule{
		&BurstRule{Threshold: cfg.BurstPerMinute},
		&OffHoursRule{
			StartHour: cfg.OffHoursStart,
			EndHour:   cfg.OffHoursEnd,
			MinSample: cfg.OffHoursMinSample,
			MinRatio:  cfg.OffHoursMinRatio,
		},
		&FanoutRule{
			WindowMinutes: cfg.FanoutWindowMinutes,
			HostThreshold: cfg.FanoutHosts,
		},
		&CategorySpikeRule{BaseThreshold: cfg.CategorySpikeBase},
		&RepeatedBlockedRule{MinHits: cfg.RepeatedBlockedHits},
		&BlockedHostRule{MinHits: cfg.BlockedHostHits},
		&MultiCategoryRule{
			MinCategories: cfg.MultiCategoryMin,
			MinBlocks:     cfg.MultiCategoryMinBlocks,
		},
		&BeaconRule{
			MinMinutes: cfg.BeaconMinMinutes,
			MinHits:    cfg.BeaconMinHits,
		},
		&ChainRule{
			WindowMinutes: cfg.ChainWindowMinutes,
			MinPhish:      cfg.ChainMinPhish,
			MinPayload:    cfg.ChainMinPayload,
		},
	}
}

// unset reports whether a rollup dimension carries the unset sentinel.
func unset(s string) bool {
	return s == model.UnsetDim || s == ""
}

// entity formats a dimension value for titles and summaries.
func entity(s string) string {
	if unset(s) {
		return model.UnsetDim
	}
	return s
}
