package trackmanager

import "github.com/asgard/pandora/c2engine/internal/c2/c2err"

// Config holds the tunable parameters for the Track Manager, each with
// the default named in spec section 4.4.
type Config struct {
	UpdateRateHz           float64 `yaml:"update_rate_hz" json:"update_rate_hz"`
	CorrelationDistanceM   float64 `yaml:"correlation_distance_m" json:"correlation_distance_m"`
	CorrelationVelocityMps float64 `yaml:"correlation_velocity_mps" json:"correlation_velocity_mps"`
	CoastingTimeoutMs      int64   `yaml:"coasting_timeout_ms" json:"coasting_timeout_ms"`
	DropTimeoutMs          int64   `yaml:"drop_timeout_ms" json:"drop_timeout_ms"`
	MaxCoastCount          int     `yaml:"max_coast_count" json:"max_coast_count"`
	EnableKalmanFilter     bool    `yaml:"enable_kalman_filter" json:"enable_kalman_filter"`
	MaxTracks              int     `yaml:"max_tracks" json:"max_tracks"`
	HistoryRetentionMs     int64   `yaml:"history_retention_ms" json:"history_retention_ms"`
}

// DefaultConfig returns the table of defaults from spec section 4.4.
func DefaultConfig() Config {
	return Config{
		UpdateRateHz:           10,
		CorrelationDistanceM:   100,
		CorrelationVelocityMps: 10,
		CoastingTimeoutMs:      5000,
		DropTimeoutMs:          15000,
		MaxCoastCount:          10,
		EnableKalmanFilter:     true,
		MaxTracks:              200,
		HistoryRetentionMs:     60000,
	}
}

// Validate rejects nonsensical timing configuration, e.g. a drop timeout
// at or below the coasting timeout -- a track could never observably
// coast before being dropped.
func (c Config) Validate() error {
	if c.UpdateRateHz <= 0 {
		return c2err.New(c2err.KindInvalidConfig, "update_rate_hz must be positive")
	}
	if c.CoastingTimeoutMs <= 0 || c.DropTimeoutMs <= 0 {
		return c2err.New(c2err.KindInvalidConfig, "timeouts must be positive")
	}
	if c.DropTimeoutMs <= c.CoastingTimeoutMs {
		return c2err.New(c2err.KindInvalidConfig, "drop_timeout_ms must exceed coasting_timeout_ms")
	}
	if c.MaxCoastCount <= 0 {
		return c2err.New(c2err.KindInvalidConfig, "max_coast_count must be positive")
	}
	if c.MaxTracks <= 0 {
		return c2err.New(c2err.KindInvalidConfig, "max_tracks must be positive")
	}
	if c.CorrelationDistanceM < 0 || c.CorrelationVelocityMps < 0 {
		return c2err.New(c2err.KindInvalidConfig, "correlation thresholds must be non-negative")
	}
	return nil
}
