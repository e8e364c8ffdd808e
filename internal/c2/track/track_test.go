package track

import (
	"math"
	"testing"
	"time"

	"github.com/asgard/pandora/c2engine/internal/c2/geo"
)

func TestNewTrackDefaults(t *testing.T) {
	now := time.Now()
	tr := New("TRK-0001", now, nil)

	if tr.Classification() != ClassificationPending {
		t.Errorf("expected default classification Pending, got %s", tr.Classification())
	}
	if tr.ThreatLevel() != 1 {
		t.Errorf("expected default threat level 1, got %d", tr.ThreatLevel())
	}
	if tr.State() != StateInitiated {
		t.Errorf("expected default state Initiated, got %s", tr.State())
	}
	if tr.LastUpdateTime().Before(tr.CreatedTime()) {
		t.Error("expected last_update_time >= created_time")
	}
}

func TestSetThreatLevelClamps(t *testing.T) {
	tr := New("TRK-0001", time.Now(), nil)
	tr.SetThreatLevel(99, time.Now())
	if tr.ThreatLevel() != 5 {
		t.Errorf("expected clamp to 5, got %d", tr.ThreatLevel())
	}
	tr.SetThreatLevel(-10, time.Now())
	if tr.ThreatLevel() != 1 {
		t.Errorf("expected clamp to 1, got %d", tr.ThreatLevel())
	}
}

func TestSetStateOneWayOnly(t *testing.T) {
	tr := New("TRK-0001", time.Now(), nil)
	tr.SetState(StateActive, time.Now())
	tr.SetState(StateInitiated, time.Now()) // backward, must be ignored
	if tr.State() != StateActive {
		t.Errorf("expected state to remain Active, got %s", tr.State())
	}

	tr.SetState(StateDropped, time.Now())
	tr.SetState(StateActive, time.Now()) // out of terminal state, must be ignored
	if tr.State() != StateDropped {
		t.Errorf("expected Dropped to be terminal, got %s", tr.State())
	}
}

func TestUpdateFromKeepsHigherConfidenceOnly(t *testing.T) {
	now := time.Now()
	a := New("TRK-A", now, nil)
	a.SetClassification(ClassificationHostile, now)
	a.SetClassificationConfidence(0.9, now)

	b := New("TRK-B", now, nil)
	b.SetClassification(ClassificationFriendly, now)
	b.SetClassificationConfidence(0.2, now)

	a.UpdateFrom(b, now)
	if a.Classification() != ClassificationHostile {
		t.Errorf("expected classification to stay Hostile when other's confidence is lower, got %s", a.Classification())
	}

	c := New("TRK-C", now, nil)
	c.SetClassification(ClassificationNeutral, now)
	c.SetClassificationConfidence(0.99, now)
	a.UpdateFrom(c, now)
	if a.Classification() != ClassificationNeutral {
		t.Errorf("expected classification to adopt higher-confidence value, got %s", a.Classification())
	}
}

func TestPositionHistoryBounded(t *testing.T) {
	tr := New("TRK-0001", time.Now(), nil)
	base := time.Now()
	for i := 0; i < 150; i++ {
		tr.AddPositionHistory(geo.Position{Latitude: float64(i), Longitude: 0}, base.Add(time.Duration(i)*time.Second))
	}
	hist := tr.History()
	if len(hist) != 100 {
		t.Fatalf("expected history capped at 100, got %d", len(hist))
	}
	if hist[len(hist)-1].Position.Latitude != 149 {
		t.Errorf("expected newest-last ordering, got last=%f", hist[len(hist)-1].Position.Latitude)
	}
}

func TestDistanceToSymmetricAndZero(t *testing.T) {
	p := geo.Position{Latitude: 34.05, Longitude: -118.24}
	tr := New("TRK-0001", time.Now(), nil)
	tr.SetPosition(p, time.Now())

	if d := tr.DistanceTo(p); d != 0 {
		t.Errorf("expected 0 distance to own position, got %f", d)
	}

	other := New("TRK-0002", time.Now(), nil)
	other.SetPosition(geo.Position{Latitude: 34.06, Longitude: -118.25, Altitude: 50}, time.Now())
	if d1, d2 := tr.DistanceToTrack(other), other.DistanceToTrack(tr); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("expected DistanceToTrack to be symmetric, got %f vs %f", d1, d2)
	}
}

func TestTouchUpdateTimeDoesNotAdvanceDetectionTime(t *testing.T) {
	base := time.Now()
	tr := New("TRK-0001", base, nil)

	later := base.Add(5 * time.Second)
	tr.TouchUpdateTime(later)

	if !tr.LastDetectionTime().Equal(base) {
		t.Error("expected assessor writeback to leave last_detection_time untouched")
	}
	if !tr.LastUpdateTime().Equal(later) {
		t.Error("expected assessor writeback to advance last_update_time")
	}
}

func TestMetadataRoundTrips(t *testing.T) {
	tr := New("TRK-0001", time.Now(), nil)

	if got := tr.Metadata(); len(got) != 0 {
		t.Fatalf("expected empty metadata on a fresh track, got %v", got)
	}

	tr.SetMetadata(map[string]any{"signalStrengthDbm": -62.5, "emitter": "DJI-OcuSync"}, time.Now())
	got := tr.Metadata()
	if got["signalStrengthDbm"] != -62.5 || got["emitter"] != "DJI-OcuSync" {
		t.Fatalf("expected metadata to round-trip unchanged, got %v", got)
	}

	// Mutating the returned map must not affect the track's own state.
	got["emitter"] = "tampered"
	if tr.Metadata()["emitter"] != "DJI-OcuSync" {
		t.Error("expected Metadata() to return a copy, not the internal map")
	}

	tr.SetMetadata(map[string]any{"rssi": -40}, time.Now())
	merged := tr.Metadata()
	if merged["signalStrengthDbm"] != -62.5 || merged["rssi"] != -40 {
		t.Errorf("expected a second SetMetadata call to merge rather than replace, got %v", merged)
	}
}
