package threat

import (
	"strings"
	"time"
)

// Alert is one emitted threat notification, deduplicated per track id
// within a sliding window.
type Alert struct {
	ID               string
	TrackID          string
	RuleID           string
	Message          string
	Level            int
	CreatedTime      time.Time
	Acknowledged     bool
	AcknowledgedBy   string
	AcknowledgedTime time.Time
}

func formatAlertMessage(template, trackID string) string {
	return strings.ReplaceAll(template, "%TRACK%", trackID)
}
