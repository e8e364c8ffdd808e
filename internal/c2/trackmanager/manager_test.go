package trackmanager

import (
	"testing"
	"time"

	"github.com/asgard/pandora/c2engine/internal/c2/eventbus"
	"github.com/asgard/pandora/c2engine/internal/c2/geo"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
)

func newTestManager(t *testing.T) (*Manager, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	cfg := DefaultConfig()
	cfg.EnableKalmanFilter = false // deterministic raw-passthrough for assertions
	m, err := New(cfg, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	m.Start()
	return m, bus
}

func TestProcessDetectionCreatesNewTrack(t *testing.T) {
	m, _ := newTestManager(t)

	pos := geo.Position{Latitude: 38.0, Longitude: -77.0, Altitude: 100}
	if err := m.ProcessRadarDetection(pos, track.Velocity{North: 10}, 0.5, 1000); err != nil {
		t.Fatalf("ProcessRadarDetection: %v", err)
	}

	tracks := m.AllTracks()
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if tracks[0].State() != track.StateActive {
		t.Errorf("expected new track to be Active after first detection, got %s", tracks[0].State())
	}
}

func TestCorrelationReusesExistingTrack(t *testing.T) {
	m, _ := newTestManager(t)

	pos := geo.Position{Latitude: 38.0, Longitude: -77.0}
	if err := m.ProcessRadarDetection(pos, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("first detection: %v", err)
	}

	nearby := geo.Position{Latitude: 38.0001, Longitude: -77.0}
	if err := m.ProcessRadarDetection(nearby, track.Velocity{}, 0.5, 1100); err != nil {
		t.Fatalf("second detection: %v", err)
	}

	if len(m.AllTracks()) != 1 {
		t.Fatalf("expected correlation to reuse the existing track, got %d tracks", len(m.AllTracks()))
	}
	if m.Stats().CorrelationSuccessCount != 1 {
		t.Errorf("expected 1 correlation success, got %d", m.Stats().CorrelationSuccessCount)
	}
}

func TestFarDetectionCreatesSeparateTrack(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.ProcessRadarDetection(geo.Position{Latitude: 38.0, Longitude: -77.0}, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("first detection: %v", err)
	}
	if err := m.ProcessRadarDetection(geo.Position{Latitude: 40.0, Longitude: -74.0}, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("second detection: %v", err)
	}

	if len(m.AllTracks()) != 2 {
		t.Fatalf("expected 2 distinct tracks, got %d", len(m.AllTracks()))
	}
}

func TestInvalidPositionRejected(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.ProcessRadarDetection(geo.Position{Latitude: 999, Longitude: 0}, track.Velocity{}, 0.5, 1000)
	if err == nil {
		t.Fatal("expected error for invalid position")
	}
}

func TestTrackCapacityRejected(t *testing.T) {
	m, _ := newTestManager(t)

	cfg := DefaultConfig()
	cfg.EnableKalmanFilter = false
	cfg.MaxTracks = 1
	bus := eventbus.New()
	small, err := New(cfg, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(small.Close)
	small.Start()

	if err := small.ProcessRadarDetection(geo.Position{Latitude: 10, Longitude: 10}, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("first detection: %v", err)
	}
	err = small.ProcessRadarDetection(geo.Position{Latitude: 50, Longitude: 50}, track.Velocity{}, 0.5, 1000)
	if err == nil {
		t.Fatal("expected track capacity error for second distinct track")
	}
}

func TestNotRunningRejectsDetections(t *testing.T) {
	bus := eventbus.New()
	cfg := DefaultConfig()
	m, err := New(cfg, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	// Deliberately never call Start.

	err = m.ProcessRadarDetection(geo.Position{Latitude: 10, Longitude: 10}, track.Velocity{}, 0.5, 1000)
	if err == nil {
		t.Fatal("expected ErrNotRunning before Start")
	}
}

func TestProcessRFDetectionKeepsSignalStrengthAndConfidenceSeparate(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.ProcessRFDetection(geo.Position{Latitude: 1, Longitude: 1}, 0.62, 0.7, 1000); err != nil {
		t.Fatalf("ProcessRFDetection: %v", err)
	}

	all := m.AllTracks()
	if len(all) != 1 {
		t.Fatalf("expected 1 track, got %d", len(all))
	}
	if got := all[0].ClassificationConfidence(); got != 0.7 {
		t.Errorf("expected classification confidence to come from the confidence argument (0.7), got %f", got)
	}
}

func TestDetectionMetadataRoundTrips(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.OnSensorData(Detection{
		Position:    geo.Position{Latitude: 1, Longitude: 1},
		Confidence:  0.5,
		TimestampMs: 1000,
		Source:      track.SourceRFDetector,
		Metadata:    map[string]any{"signalStrengthDbm": -55.0},
	})
	if err != nil {
		t.Fatalf("OnSensorData: %v", err)
	}

	all := m.AllTracks()
	if len(all) != 1 {
		t.Fatalf("expected 1 track, got %d", len(all))
	}
	got := all[0].Metadata()
	if got["signalStrengthDbm"] != -55.0 {
		t.Errorf("expected metadata to round-trip onto the track, got %v", got)
	}
}

func TestLifecycleCoastingAndDrop(t *testing.T) {
	bus := eventbus.New()
	cfg := DefaultConfig()
	cfg.EnableKalmanFilter = false
	cfg.UpdateRateHz = 1000 // fast tick so the test does not sleep long
	cfg.CoastingTimeoutMs = 5
	cfg.DropTimeoutMs = 10
	cfg.MaxCoastCount = 1000
	m, err := New(cfg, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	m.Start()

	pos := geo.Position{Latitude: 1, Longitude: 1}
	if err := m.ProcessRadarDetection(pos, track.Velocity{}, 0.5, time.Now().UnixMilli()); err != nil {
		t.Fatalf("detection: %v", err)
	}

	var trk *track.Track
	for _, tr := range m.AllTracks() {
		trk = tr
	}
	if trk == nil {
		t.Fatal("expected a track to exist")
	}

	deadline := time.Now().Add(2 * time.Second)
	for trk.State() != track.StateDropped {
		if time.Now().After(deadline) {
			t.Fatalf("track never reached Dropped, stuck at %s", trk.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestCoastingBoundaryIsStrict asserts that a track exactly at
// age == coastingTimeout has not yet gone stale -- the transition fires
// on the first tick where age strictly exceeds the timeout, never on
// the tick that lands exactly on it.
func TestCoastingBoundaryIsStrict(t *testing.T) {
	bus := eventbus.New()
	cfg := DefaultConfig()
	cfg.EnableKalmanFilter = false
	cfg.UpdateRateHz = 0.01 // ticker period far longer than the test, so only our manual calls drive processCycle
	cfg.CoastingTimeoutMs = 200
	cfg.DropTimeoutMs = 100000
	m, err := New(cfg, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	m.Start()

	// Whole-millisecond instant, so the detection timestamp (carried in ms)
	// lands exactly on now and the ages below are exact.
	now := time.UnixMilli(time.Now().UnixMilli())
	if err := m.ProcessRadarDetection(geo.Position{Latitude: 1, Longitude: 1}, track.Velocity{}, 0.5, now.UnixMilli()); err != nil {
		t.Fatalf("detection: %v", err)
	}
	var trk *track.Track
	for _, tr := range m.AllTracks() {
		trk = tr
	}
	if trk == nil {
		t.Fatal("expected a track to exist")
	}

	m.do(func() { m.processCycle(now.Add(200 * time.Millisecond)) })
	if trk.State() != track.StateActive {
		t.Errorf("expected track to remain Active at age == coastingTimeout, got %s", trk.State())
	}

	m.do(func() { m.processCycle(now.Add(201 * time.Millisecond)) })
	if trk.State() != track.StateCoasting {
		t.Errorf("expected track to go Coasting once age > coastingTimeout, got %s", trk.State())
	}
}

func TestDropTrackManual(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.ProcessRadarDetection(geo.Position{Latitude: 1, Longitude: 1}, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("detection: %v", err)
	}
	all := m.AllTracks()
	id := all[0].ID()

	if err := m.DropTrack(id); err != nil {
		t.Fatalf("DropTrack: %v", err)
	}
	trk, ok := m.Track(id)
	if !ok {
		t.Fatal("expected track still queryable after drop")
	}
	if trk.State() != track.StateDropped {
		t.Errorf("expected Dropped, got %s", trk.State())
	}
}

func TestDropTrackUnknownID(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.DropTrack("no-such-track"); err == nil {
		t.Fatal("expected error for unknown track id")
	}
}

func TestMergeTrack(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.ProcessRadarDetection(geo.Position{Latitude: 1, Longitude: 1}, track.Velocity{}, 0.9, 1000); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := m.ProcessRadarDetection(geo.Position{Latitude: 50, Longitude: 50}, track.Velocity{}, 0.2, 1000); err != nil {
		t.Fatalf("second: %v", err)
	}

	all := m.AllTracks()
	if len(all) != 2 {
		t.Fatalf("expected 2 tracks before merge, got %d", len(all))
	}
	keepID, mergeID := all[0].ID(), all[1].ID()

	if err := m.MergeTrack(keepID, mergeID); err != nil {
		t.Fatalf("MergeTrack: %v", err)
	}
	if _, ok := m.Track(mergeID); ok {
		t.Fatal("expected merged-away track to be removed from the store")
	}
	if len(m.AllTracks()) != 1 {
		t.Fatalf("expected 1 track after merge, got %d", len(m.AllTracks()))
	}
}

func TestPromoteTrackRaisesConfidenceOnly(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.ProcessRadarDetection(geo.Position{Latitude: 1, Longitude: 1}, track.Velocity{}, 0.2, 1000); err != nil {
		t.Fatalf("detection: %v", err)
	}
	all := m.AllTracks()
	id := all[0].ID()
	wantClass := all[0].Classification()

	if err := m.PromoteTrack(id); err != nil {
		t.Fatalf("PromoteTrack: %v", err)
	}

	trk, _ := m.Track(id)
	if trk.ClassificationConfidence() != 1.0 {
		t.Errorf("expected confidence raised to 1.0, got %f", trk.ClassificationConfidence())
	}
	if trk.Classification() != wantClass {
		t.Errorf("expected classification label unchanged at %s, got %s", wantClass, trk.Classification())
	}
}

func TestPromoteTrackUnknownID(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.PromoteTrack("no-such-track"); err == nil {
		t.Fatal("expected error for unknown track id")
	}
}

func TestHighestThreatTrack(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.ProcessRadarDetection(geo.Position{Latitude: 1, Longitude: 1}, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := m.ProcessRadarDetection(geo.Position{Latitude: 50, Longitude: 50}, track.Velocity{}, 0.5, 1000); err != nil {
		t.Fatalf("second: %v", err)
	}

	all := m.AllTracks()
	if err := m.SetTrackThreatLevel(all[1].ID(), 5, time.Now()); err != nil {
		t.Fatalf("SetTrackThreatLevel: %v", err)
	}

	best, ok := m.HighestThreatTrack()
	if !ok {
		t.Fatal("expected a highest-threat track")
	}
	if best.ID() != all[1].ID() {
		t.Errorf("expected %s to be highest threat, got %s", all[1].ID(), best.ID())
	}
}
