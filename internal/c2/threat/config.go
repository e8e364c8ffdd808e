package threat

import "github.com/asgard/pandora/c2engine/internal/c2/c2err"

// Config holds the Threat Assessor's tunables.
type Config struct {
	AssessmentIntervalMs    int64   `yaml:"assessment_interval_ms" json:"assessment_interval_ms"`
	AlertQueueMaxSize       int     `yaml:"alert_queue_max_size" json:"alert_queue_max_size"`
	AutoSlewToHighestThreat bool    `yaml:"auto_slew_to_highest_threat" json:"auto_slew_to_highest_threat"`
	HighThreatThreshold     int     `yaml:"high_threat_threshold" json:"high_threat_threshold"`
	HeadingToleranceDeg     float64 `yaml:"heading_tolerance_deg" json:"heading_tolerance_deg"`
}

// DefaultConfig returns the defaults from spec section 4.6.
func DefaultConfig() Config {
	return Config{
		AssessmentIntervalMs:    500,
		AlertQueueMaxSize:       100,
		AutoSlewToHighestThreat: true,
		HighThreatThreshold:     4,
		HeadingToleranceDeg:     30,
	}
}

func (c Config) Validate() error {
	if c.AssessmentIntervalMs <= 0 {
		return c2err.New(c2err.KindInvalidConfig, "assessment_interval_ms must be positive")
	}
	if c.AlertQueueMaxSize <= 0 {
		return c2err.New(c2err.KindInvalidConfig, "alert_queue_max_size must be positive")
	}
	if c.HighThreatThreshold < 1 || c.HighThreatThreshold > 5 {
		return c2err.New(c2err.KindInvalidConfig, "high_threat_threshold must be in [1,5]")
	}
	return nil
}
