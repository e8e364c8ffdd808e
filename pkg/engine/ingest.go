package engine

import (
	"errors"

	"github.com/asgard/pandora/c2engine/internal/c2/c2err"
	"github.com/asgard/pandora/c2engine/internal/c2/geo"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
	"github.com/asgard/pandora/c2engine/internal/c2/trackmanager"
)

// rejectionReason maps a returned c2err.Error to the metric label, or
// the empty string for errors that aren't ingress rejections (e.g. a
// NotRunning error after Stop, which the caller should already know
// about without a counter).
func rejectionReason(err error) string {
	var ce *c2err.Error
	if !errors.As(err, &ce) {
		return ""
	}
	switch ce.Kind {
	case c2err.KindInvalidPosition:
		return "invalid_position"
	case c2err.KindTrackCapacity:
		return "track_capacity"
	default:
		return ""
	}
}

func (e *Engine) countRejection(err error) error {
	if reason := rejectionReason(err); reason != "" {
		e.Metrics.DetectionsRejected.WithLabelValues(reason).Inc()
	}
	return err
}

// IngestRadar feeds a radar return through the Track Manager, counting
// any ingress rejection for the metrics the spec's failure model (7
// and 4.4.7) calls for.
func (e *Engine) IngestRadar(pos geo.Position, vel track.Velocity, confidence float64, tsMs int64) error {
	return e.countRejection(e.Tracks.ProcessRadarDetection(pos, vel, confidence, tsMs))
}

// IngestRF feeds an RF bearing/position fix through the Track Manager.
func (e *Engine) IngestRF(pos geo.Position, signalStrength, confidence float64, tsMs int64) error {
	return e.countRejection(e.Tracks.ProcessRFDetection(pos, signalStrength, confidence, tsMs))
}

// IngestCamera feeds a camera fix through the Track Manager.
func (e *Engine) IngestCamera(cameraID string, box track.BoundingBox, estimatedPos geo.Position, tsMs int64) error {
	return e.countRejection(e.Tracks.ProcessCameraDetection(cameraID, box, estimatedPos, tsMs))
}

// IngestSensorData feeds a generic detection through the Track Manager.
func (e *Engine) IngestSensorData(d trackmanager.Detection) error {
	return e.countRejection(e.Tracks.OnSensorData(d))
}
