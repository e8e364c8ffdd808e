// Package trackmanager owns the live track store: correlating incoming
// detections against existing tracks, running the smoothing filter,
// advancing the lifecycle state machine, and answering queries. Every
// mutation and read of the track map runs on a single owner goroutine
// reached through a command channel, the actor discipline the design
// notes prefer over a per-track-plus-outer-RWMutex scheme to sidestep
// lock ordering entirely -- the same shape as the teacher's
// internal/nysus/events.Bus dispatch loop and Valkyrie's
// fusion.ExtendedKalmanFilter.Run goroutine.
package trackmanager

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asgard/pandora/c2engine/internal/c2/c2err"
	"github.com/asgard/pandora/c2engine/internal/c2/eventbus"
	"github.com/asgard/pandora/c2engine/internal/c2/filter"
	"github.com/asgard/pandora/c2engine/internal/c2/geo"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
)

// metersPerDegree converts the Kalman filter's lat/lon-degree velocity
// state into the track's NED meters-per-second representation, the same
// short-range approximation geo.ShortRangeOffset uses.
const metersPerDegree = 111000.0

// Detection is one sensor observation offered to the manager. Velocity,
// SignalStrength, and BoundingBox are nil when the source does not
// provide them (RF detections carry no velocity; only RF detections
// carry a signal strength; only camera detections carry a box).
// Metadata passes through to the track unexamined -- the core stores it
// only so a caller can retrieve it later, same as the original's opaque
// per-detection metadata map.
type Detection struct {
	SensorID       string
	Position       geo.Position
	Velocity       *track.Velocity
	SignalStrength *float64
	Confidence     float64
	TimestampMs    int64
	Source         track.Source
	CameraID       string
	BoundingBox    *track.BoundingBox
	Metadata       map[string]any
}

// FilterDegenerateHook is invoked whenever a track's smoothing filter is
// reinitialized after producing a non-finite state, so callers can feed
// a metric.
type FilterDegenerateHook func(trackID string)

// Option configures a Manager at construction.
type Option func(*Manager)

// WithLogger attaches a structured logger; defaults to logrus.New().
func WithLogger(l *logrus.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithFilterDegenerateHook registers a callback fired on filter reinit.
func WithFilterDegenerateHook(h FilterDegenerateHook) Option {
	return func(m *Manager) { m.onFilterDegenerate = h }
}

type command struct {
	fn   func()
	done chan struct{}
}

// Manager is the track store and lifecycle engine. Construct with New,
// which starts the owner goroutine immediately; Start/Stop only toggle
// whether ingestion and the lifecycle tick are active.
type Manager struct {
	cfg    Config
	bus    *eventbus.Bus
	logger *logrus.Logger

	onFilterDegenerate FilterDegenerateHook

	cmdCh chan command
	stopC chan struct{}

	// Everything below is touched only from the owner goroutine's
	// command closures and processCycle -- no lock needed.
	running bool
	tracks  map[string]*track.Track
	filters map[string]*filter.Kalman2D
	nextID  uint64
	stats   Stats
}

// New constructs a Manager and starts its owner goroutine. The manager
// does not begin correlating detections or ticking the lifecycle clock
// until Start is called.
func New(cfg Config, bus *eventbus.Bus, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		bus:     bus,
		logger:  logrus.New(),
		cmdCh:   make(chan command, 64),
		stopC:   make(chan struct{}),
		tracks:  make(map[string]*track.Track),
		filters: make(map[string]*filter.Kalman2D),
	}
	for _, o := range opts {
		o(m)
	}
	go m.loop()
	return m, nil
}

// Start enables detection ingestion and the periodic lifecycle tick.
func (m *Manager) Start() {
	m.do(func() { m.running = true })
}

// Stop disables ingestion and the lifecycle tick; queries still succeed.
func (m *Manager) Stop() {
	m.do(func() { m.running = false })
}

// Close terminates the owner goroutine permanently. The Manager is
// unusable afterward.
func (m *Manager) Close() {
	close(m.stopC)
}

// do submits fn to the owner goroutine and blocks until it completes,
// the single chokepoint every exported method funnels through.
func (m *Manager) do(fn func()) {
	c := command{fn: fn, done: make(chan struct{})}
	m.cmdCh <- c
	<-c.done
}

func (m *Manager) loop() {
	period := time.Duration(float64(time.Second) / m.cfg.UpdateRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-m.cmdCh:
			cmd.fn()
			close(cmd.done)
		case now := <-ticker.C:
			if m.running {
				m.processCycle(now)
			}
		case <-m.stopC:
			return
		}
	}
}

// OnSensorData is the generic ingestion entry point; the three typed
// Process* wrappers build a Detection and call this.
func (m *Manager) OnSensorData(d Detection) error {
	var err error
	m.do(func() { err = m.processDetection(d) })
	return err
}

// ProcessRadarDetection ingests a radar return, which carries both
// position and velocity.
func (m *Manager) ProcessRadarDetection(pos geo.Position, vel track.Velocity, confidence float64, tsMs int64) error {
	v := vel
	return m.OnSensorData(Detection{
		Position:    pos,
		Velocity:    &v,
		Confidence:  confidence,
		TimestampMs: tsMs,
		Source:      track.SourceRadar,
	})
}

// ProcessRFDetection ingests an RF bearing/position fix, which carries no
// velocity -- the filter must rely on position deltas alone. signalStrength
// and confidence are independent values from the RF sensor driver: signal
// strength reflects received power, confidence reflects the driver's own
// estimate of fix quality (e.g. whether direction-finding was available).
func (m *Manager) ProcessRFDetection(pos geo.Position, signalStrength, confidence float64, tsMs int64) error {
	s := signalStrength
	return m.OnSensorData(Detection{
		Position:       pos,
		SignalStrength: &s,
		Confidence:     confidence,
		TimestampMs:    tsMs,
		Source:         track.SourceRFDetector,
	})
}

// ProcessCameraDetection ingests a camera fix: an estimated ground
// position plus the raw bounding box, opaque to the core.
func (m *Manager) ProcessCameraDetection(cameraID string, box track.BoundingBox, estimatedPos geo.Position, tsMs int64) error {
	b := box
	return m.OnSensorData(Detection{
		Position:    estimatedPos,
		TimestampMs: tsMs,
		Source:      track.SourceCamera,
		CameraID:    cameraID,
		BoundingBox: &b,
	})
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func (m *Manager) processDetection(d Detection) error {
	if !m.running {
		return c2err.ErrNotRunning
	}
	if !d.Position.Valid() {
		m.logger.WithField("sensor_id", d.SensorID).Warn("rejected detection with invalid position")
		return c2err.ErrInvalidPosition
	}

	now := timeFromMillis(d.TimestampMs)

	t, found := m.findCorrelatedTrack(d.Position, d.Velocity)
	if found {
		m.stats.CorrelationSuccessCount++
	} else {
		if len(m.tracks) >= m.cfg.MaxTracks {
			m.logger.Warn("rejected detection: track capacity reached")
			return c2err.ErrTrackCapacity
		}
		id := m.newTrackID()
		t = track.New(id, now, m.publishTrackEvent)
		m.tracks[id] = t
		if m.cfg.EnableKalmanFilter {
			m.filters[id] = filter.NewKalman2D(filter.DefaultConfig())
		}
		m.stats.TotalTracksCreated++
		m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackCreated, Payload: id, OccurredAt: now})
	}

	smoothedPos, smoothedVel := m.smooth(t, d, now)

	t.SetPosition(smoothedPos, now)
	t.SetVelocity(smoothedVel, now)
	t.AddSource(d.Source)
	t.ResetCoastCount()
	if d.Confidence > 0 {
		t.SetClassificationConfidence(d.Confidence, now)
	}
	if d.Source == track.SourceCamera {
		t.SetVisuallyTracked(true, now)
		if d.CameraID != "" {
			t.AssociateCamera(d.CameraID, now)
		}
		if d.BoundingBox != nil {
			t.SetBoundingBox(*d.BoundingBox, now)
		}
	}
	if d.Metadata != nil {
		t.SetMetadata(d.Metadata, now)
	}
	t.AddPositionHistory(smoothedPos, now)
	t.TouchDetectionTime(now)
	if t.State() == track.StateInitiated {
		t.SetState(track.StateActive, now)
	}

	m.stats.LastUpdateTimeMs = d.TimestampMs
	return nil
}

// smooth runs the detection through the per-track Kalman filter (lat/lon
// degrees as the filter's x/y) and converts the filter's velocity state
// back into the track's NED meters-per-second frame. Altitude and the
// down-velocity component pass through from the raw detection -- the
// filter does not model altitude.
func (m *Manager) smooth(t *track.Track, d Detection, now time.Time) (geo.Position, track.Velocity) {
	down := 0.0
	if d.Velocity != nil {
		down = d.Velocity.Down
	}

	if !m.cfg.EnableKalmanFilter {
		vel := track.Velocity{Down: down}
		if d.Velocity != nil {
			vel.North, vel.East = d.Velocity.North, d.Velocity.East
		}
		return d.Position, vel
	}

	kf, ok := m.filters[t.ID()]
	if !ok {
		kf = filter.NewKalman2D(filter.DefaultConfig())
		m.filters[t.ID()] = kf
	}

	dt := now.Sub(t.LastDetectionTime()).Seconds()
	if kf.Update(d.Position.Latitude, d.Position.Longitude, dt) {
		m.logger.WithField("track_id", t.ID()).Warn("filter degenerate, reinitialized from raw measurement")
		if m.onFilterDegenerate != nil {
			m.onFilterDegenerate(t.ID())
		}
	}

	x, y, vx, vy := kf.State()
	latRad := x * math.Pi / 180.0
	north := vx * metersPerDegree
	east := vy * metersPerDegree * math.Cos(latRad)

	pos := geo.Position{Latitude: x, Longitude: y, Altitude: d.Position.Altitude}
	vel := track.Velocity{North: north, East: east, Down: down}
	return pos, vel
}

func (m *Manager) newTrackID() string {
	m.nextID++
	return fmt.Sprintf("TRACK-%06d", m.nextID)
}

func velocityGap(a, b track.Velocity) float64 {
	dn := a.North - b.North
	de := a.East - b.East
	dd := a.Down - b.Down
	return math.Sqrt(dn*dn + de*de + dd*dd)
}

// findCorrelatedTrack picks the live track nearest to pos within the
// configured gates, tie-broken by earliest creation time.
func (m *Manager) findCorrelatedTrack(pos geo.Position, vel *track.Velocity) (*track.Track, bool) {
	var best *track.Track
	var bestGap float64

	for _, t := range m.tracks {
		if t.State() == track.StateDropped {
			continue
		}
		posGap := t.DistanceTo(pos)
		if posGap > m.cfg.CorrelationDistanceM {
			continue
		}
		velGap := 0.0
		if vel != nil {
			velGap = velocityGap(t.Velocity(), *vel)
		}
		if velGap > m.cfg.CorrelationVelocityMps {
			continue
		}
		if best == nil || posGap < bestGap || (posGap == bestGap && t.CreatedTime().Before(best.CreatedTime())) {
			best, bestGap = t, posGap
		}
	}
	return best, best != nil
}

// publishTrackEvent fans a Track's internal event callback out onto the
// event bus. TrackCreated and TrackDropped are manager-level moments
// published directly by processDetection and processCycle instead, since
// neither corresponds to a single Track-internal event kind.
func (m *Manager) publishTrackEvent(e track.Event) {
	switch e.Kind {
	case track.EventClassificationChanged:
		m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackClassificationChanged, Payload: e, OccurredAt: e.OccurredAt})
	case track.EventThreatLevelChanged:
		m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackThreatLevelChanged, Payload: e, OccurredAt: e.OccurredAt})
	case track.EventUpdated:
		m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackUpdated, Payload: e, OccurredAt: e.OccurredAt})
	}
}
