package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type LoggingCfg struct {
	Level string `mapstructure:"level"`
}

type StoreCfg struct {
	Driver string `mapstructure:"driver"` // "memory" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// DetectionCfg holds per-rule thresholds. Zero values are replaced by
// defaults in Load so a partial config file stays usable.
type DetectionCfg struct {
	BurstPerMinute int `mapstructure:"burst_per_minute"`

	OffHoursStart     int     `mapstructure:"off_hours_start"` // hour of day, UTC
	OffHoursEnd       int     `mapstructure:"off_hours_end"`
	OffHoursMinSample int     `mapstructure:"off_hours_min_sample"`
	OffHoursMinRatio  float64 `mapstructure:"off_hours_min_ratio"`

	FanoutWindowMinutes int `mapstructure:"fanout_window_minutes"`
	FanoutHosts         int `mapstructure:"fanout_hosts"`

	CategorySpikeBase int `mapstructure:"category_spike_base"`

	RepeatedBlockedHits int `mapstructure:"repeated_blocked_hits"`

	BlockedHostHits int `mapstructure:"blocked_host_hits"`

	MultiCategoryMin       int `mapstructure:"multi_category_min"`
	MultiCategoryMinBlocks int `mapstructure:"multi_category_min_blocks"`

	BeaconMinMinutes int `mapstructure:"beacon_min_minutes"`
	BeaconMinHits    int `mapstructure:"beacon_min_hits"`

	ChainWindowMinutes int `mapstructure:"chain_window_minutes"`
	ChainMinPhish      int `mapstructure:"chain_min_phish"`
	ChainMinPayload    int `mapstructure:"chain_min_payload"`
}

type CollaboratorCfg struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Version      string          `mapstructure:"version"`
	Store        StoreCfg        `mapstructure:"store"`
	Detection    DetectionCfg    `mapstructure:"detection"`
	Collaborator CollaboratorCfg `mapstructure:"collaborator"`
	Logging      LoggingCfg      `mapstructure:"logging"`
}

var cfg *Config

// Load populates global config from a viper instance
func Load(v *viper.Viper) error {
	// set defaults
	v.SetDefault("version", "0.1")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("logging.level", "info")

	v.SetDefault("detection.burst_per_minute", 50)
	v.SetDefault("detection.off_hours_start", 8)
	v.SetDefault("detection.off_hours_end", 18)
	v.SetDefault("detection.off_hours_min_sample", 20)
	v.SetDefault("detection.off_hours_min_ratio", 0.5)
	v.SetDefault("detection.fanout_window_minutes", 10)
	v.SetDefault("detection.fanout_hosts", 25)
	v.SetDefault("detection.category_spike_base", 30)
	v.SetDefault("detection.repeated_blocked_hits", 25)
	v.SetDefault("detection.blocked_host_hits", 15)
	v.SetDefault("detection.multi_category_min", 3)
	v.SetDefault("detection.multi_category_min_blocks", 12)
	v.SetDefault("detection.beacon_min_minutes", 4)
	v.SetDefault("detection.beacon_min_hits", 8)
	v.SetDefault("detection.chain_window_minutes", 30)
	v.SetDefault("detection.chain_min_phish", 2)
	v.SetDefault("detection.chain_min_payload", 2)

	v.SetDefault("collaborator.enabled", false)
	v.SetDefault("collaborator.timeout", "20s")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	cfg = &c
	return nil
}

func Get() *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	return cfg
}

// DefaultDetection returns a DetectionCfg populated with defaults,
// for callers (mostly tests) that do not go through viper.
func DefaultDetection() DetectionCfg {
	return DetectionCfg{
		BurstPerMinute:         50,
		OffHoursStart:          8,
		OffHoursEnd:            18,
		OffHoursMinSample:      20,
		OffHoursMinRatio:       0.5,
		FanoutWindowMinutes:    10,
		FanoutHosts:            25,
		CategorySpikeBase:      30,
		RepeatedBlockedHits:    25,
		BlockedHostHits:        15,
		MultiCategoryMin:       3,
		MultiCategoryMinBlocks: 12,
		BeaconMinMinutes:       4,
		BeaconMinHits:          8,
		ChainWindowMinutes:     30,
		ChainMinPhish:          2,
		ChainMinPayload:        2,
	}
}
