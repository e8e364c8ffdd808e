// Package threat implements the Threat Assessor: the periodic re-rater
// that scores every live track against the defended-asset proximity
// picture and the rule set, writes back classification/threat-level
// changes, and emits de-duplicated alerts. Per-track scoring runs on an
// alitto/pond worker pool the way sixy6e-go-gsf fans conversion work out
// across a fixed pool, so one track's panic cannot abort the tick for
// the rest.
package threat

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/asgard/pandora/c2engine/internal/c2/assets"
	"github.com/asgard/pandora/c2engine/internal/c2/c2err"
	"github.com/asgard/pandora/c2engine/internal/c2/eventbus"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
	"github.com/asgard/pandora/c2engine/internal/c2/trackmanager"
)

// AssessErrorHook is invoked whenever a per-track assessment panics, so
// callers can feed a metric.
type AssessErrorHook func(trackID string, recovered any)

// Option configures an Assessor at construction.
type Option func(*Assessor)

// WithLogger attaches a structured logger; defaults to logrus.New().
func WithLogger(l *logrus.Logger) Option {
	return func(a *Assessor) { a.logger = l }
}

// WithAssessErrorHook registers a callback fired on a recovered panic.
func WithAssessErrorHook(h AssessErrorHook) Option {
	return func(a *Assessor) { a.onAssessError = h }
}

// AlertSuppressedHook is invoked whenever the 30-second de-dup window
// suppresses a would-be alert, so callers can feed a metric. The bus
// already carries a threat_alert_new event for the emitted case; there
// is no event for a suppression, since nothing changed.
type AlertSuppressedHook func(trackID, ruleID string)

// WithAlertSuppressedHook registers a callback fired on every suppressed
// alert.
func WithAlertSuppressedHook(h AlertSuppressedHook) Option {
	return func(a *Assessor) { a.onAlertSuppressed = h }
}

// TickDurationHook is invoked once per assessment tick with its
// wall-clock duration, so callers can feed a histogram metric.
type TickDurationHook func(d time.Duration)

// WithTickDurationHook registers a callback fired after every full
// assessment tick completes.
func WithTickDurationHook(h TickDurationHook) Option {
	return func(a *Assessor) { a.onTickDuration = h }
}

// Assessor is the periodic scorer. Construct with New; Start begins the
// assessment tick, Close stops it and releases the worker pool.
type Assessor struct {
	cfg        Config
	tm         *trackmanager.Manager
	assetStore *assets.Store
	bus        *eventbus.Bus
	logger     *logrus.Logger
	pool       *pond.WorkerPool

	onAssessError     AssessErrorHook
	onAlertSuppressed AlertSuppressedHook
	onTickDuration    TickDurationHook

	mu          sync.Mutex
	alerts      []Alert
	nextAlertID uint64

	runMu   sync.Mutex
	running bool
	stopC   chan struct{}
}

// New constructs an Assessor against a running Track Manager and asset
// store; call Start to begin ticking.
func New(cfg Config, tm *trackmanager.Manager, assetStore *assets.Store, bus *eventbus.Bus, opts ...Option) (*Assessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Assessor{
		cfg:        cfg,
		tm:         tm,
		assetStore: assetStore,
		bus:        bus,
		logger:     logrus.New(),
		pool:       pond.New(runtime.NumCPU(), 0),
		stopC:      make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Start begins the periodic assessment tick at the configured interval.
func (a *Assessor) Start() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.stopC = make(chan struct{})
	go a.loop(a.stopC)
}

// Stop halts the periodic tick. It does not wait for a tick already in
// progress; that tick runs to completion after Stop returns.
func (a *Assessor) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return
	}
	a.running = false
	close(a.stopC)
}

// Close stops the tick and releases the worker pool. The Assessor is
// unusable afterward.
func (a *Assessor) Close() {
	a.Stop()
	a.pool.StopAndWait()
}

func (a *Assessor) loop(stop chan struct{}) {
	ticker := time.NewTicker(time.Duration(a.cfg.AssessmentIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.runTick()
		case <-stop:
			return
		}
	}
}

// RunOnce runs one assessment pass synchronously, for callers that drive
// their own scheduling (and for tests).
func (a *Assessor) RunOnce() {
	a.runTick()
}

func (a *Assessor) runTick() {
	start := time.Now()
	tracks := a.tm.AllTracks()
	now := start

	var wg sync.WaitGroup
	for _, t := range tracks {
		if t.State() == track.StateDropped {
			continue
		}
		t := t
		wg.Add(1)
		a.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logger.WithFields(logrus.Fields{
						"track_id": t.ID(),
						"panic":    r,
					}).Error("threat assessment panic recovered")
					if a.onAssessError != nil {
						a.onAssessError(t.ID(), r)
					}
				}
			}()
			a.assessOne(t, now)
		})
	}
	wg.Wait()

	if a.onTickDuration != nil {
		a.onTickDuration(time.Since(start))
	}
	a.bus.Publish(eventbus.Event{Topic: eventbus.TopicAssessmentComplete, OccurredAt: now})
}

type alertTrigger struct {
	ruleID  string
	message string
}

// scoreTrack implements spec sections 4.6.1-4.6.2: the base additive
// score plus rule-set overrides. A Friendly classification short-
// circuits the entire calculation -- friendlies never get elevated and
// no rule, including one that would force Hostile, is evaluated against
// them. This is the chosen resolution to the friendly-immunity question:
// immunity is total, not just a floor on the final number.
func (a *Assessor) scoreTrack(t *track.Track) (level int, forcedClass track.Classification, triggers []alertTrigger) {
	if t.Classification() == track.ClassificationFriendly {
		return 1, track.ClassificationUnknown, nil
	}

	level = 1
	switch t.Classification() {
	case track.ClassificationHostile:
		level += 2
	case track.ClassificationPending:
		level += 1
	}

	pos := t.Position()
	nearest, proximity, haveAsset := a.assetStore.NearestAsset(pos)
	var bearingToAsset float64
	if haveAsset {
		bearingToAsset = t.BearingTo(nearest.Position)
		switch {
		case proximity <= nearest.CriticalRadiusM:
			level += 3
		case proximity <= nearest.WarningRadiusM:
			level += 2
		case proximity <= 2*nearest.WarningRadiusM:
			level += 1
		}
	}

	vel := t.Velocity()
	if haveAsset && assets.ClampHeadingDiff(vel.Heading(), bearingToAsset) <= a.cfg.HeadingToleranceDeg {
		level++
	}
	if vel.Speed() > 30 {
		level++
	}
	if t.ClassificationConfidence() < 0.5 {
		level--
	}
	if level < 1 {
		level = 1
	}

	forcedClass = track.ClassificationUnknown
	for _, rule := range a.assetStore.Rules() {
		if !rule.Enabled {
			continue
		}
		if !ruleMatches(rule, t, proximity, haveAsset, vel, bearingToAsset) {
			continue
		}
		if rule.SetThreatLevel >= 0 {
			level = rule.SetThreatLevel
		} else {
			level += rule.ThreatLevelIncrease
		}
		if rule.ForceClassification != track.ClassificationUnknown {
			forcedClass = rule.ForceClassification
		}
		if rule.GenerateAlert {
			triggers = append(triggers, alertTrigger{ruleID: rule.ID, message: rule.AlertMessage})
		}
	}

	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}
	return level, forcedClass, triggers
}

func ruleMatches(r assets.ThreatRule, t *track.Track, proximity float64, haveAsset bool, vel track.Velocity, bearingToAsset float64) bool {
	if r.MinProximityM >= 0 && (!haveAsset || proximity < r.MinProximityM) {
		return false
	}
	if r.MaxProximityM >= 0 && (!haveAsset || proximity > r.MaxProximityM) {
		return false
	}

	speed := vel.Speed()
	if r.MinVelocityMps >= 0 && speed < r.MinVelocityMps {
		return false
	}
	if r.MaxVelocityMps >= 0 && speed > r.MaxVelocityMps {
		return false
	}

	if r.MinHeadingToAssetDeg >= 0 || r.MaxHeadingToAssetDeg >= 0 {
		if !haveAsset {
			return false
		}
		diff := assets.ClampHeadingDiff(vel.Heading(), bearingToAsset)
		if r.MinHeadingToAssetDeg >= 0 && diff < r.MinHeadingToAssetDeg {
			return false
		}
		if r.MaxHeadingToAssetDeg >= 0 && diff > r.MaxHeadingToAssetDeg {
			return false
		}
	}

	if r.RequiresRFDetection && !t.HasSource(track.SourceRFDetector) {
		return false
	}
	if r.RequiresVisualConfirmation && !t.VisuallyTracked() {
		return false
	}
	if r.AlertIfVisualMissing && t.VisuallyTracked() {
		return false
	}
	return true
}

// assessOne writes back a scored track and generates any alerts its
// matched rules called for. Writebacks only touch the track when the
// value actually changes, per spec section 4.6.4; the camera-slew
// request fires only on a tick where the level changes to a value at or
// above the high-threat threshold (including a rise from 4 to 5), not on
// every tick a track remains high, to avoid flooding the bus with an
// event per tick.
func (a *Assessor) assessOne(t *track.Track, now time.Time) {
	level, forcedClass, triggers := a.scoreTrack(t)

	oldLevel := t.ThreatLevel()
	if level != oldLevel {
		_ = a.tm.SetTrackThreatLevel(t.ID(), level, now)
	}

	if forcedClass != track.ClassificationUnknown && forcedClass != t.Classification() {
		_ = a.tm.SetTrackClassification(t.ID(), forcedClass, now)
	}

	for _, trig := range triggers {
		a.maybeEmitAlert(t, trig, level, now)
	}

	if level != oldLevel && level >= a.cfg.HighThreatThreshold && !t.VisuallyTracked() && a.cfg.AutoSlewToHighestThreat {
		a.bus.Publish(eventbus.Event{Topic: eventbus.TopicSlewCameraRequest, Payload: t.Position(), OccurredAt: now})
	}
}

// maybeEmitAlert applies the 30-second per-track de-dup window from
// spec section 4.6.3 before appending a new alert and publishing it.
func (a *Assessor) maybeEmitAlert(t *track.Track, trig alertTrigger, level int, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.alerts) - 1; i >= 0; i-- {
		al := a.alerts[i]
		if al.TrackID != t.ID() || al.Acknowledged {
			continue
		}
		if now.Sub(al.CreatedTime) <= 30*time.Second {
			if a.onAlertSuppressed != nil {
				a.onAlertSuppressed(t.ID(), trig.ruleID)
			}
			return
		}
	}

	a.nextAlertID++
	alert := Alert{
		ID:          fmt.Sprintf("ALERT-%06d", a.nextAlertID),
		TrackID:     t.ID(),
		RuleID:      trig.ruleID,
		Message:     formatAlertMessage(trig.message, t.ID()),
		Level:       level,
		CreatedTime: now,
	}
	a.alerts = append(a.alerts, alert)
	if len(a.alerts) > a.cfg.AlertQueueMaxSize {
		a.alerts = a.alerts[len(a.alerts)-a.cfg.AlertQueueMaxSize:]
	}

	a.bus.Publish(eventbus.Event{Topic: eventbus.TopicThreatAlertNew, Payload: alert, OccurredAt: now})
}

// AcknowledgeAlert marks an alert acknowledged by an operator, removing
// it from UnacknowledgedAlerts while leaving it in Alerts.
func (a *Assessor) AcknowledgeAlert(id, operatorID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.alerts {
		if a.alerts[i].ID != id {
			continue
		}
		a.alerts[i].Acknowledged = true
		a.alerts[i].AcknowledgedBy = operatorID
		a.alerts[i].AcknowledgedTime = time.Now()
		a.bus.Publish(eventbus.Event{
			Topic:      eventbus.TopicThreatAlertAcknowledged,
			Payload:    a.alerts[i],
			OccurredAt: a.alerts[i].AcknowledgedTime,
		})
		return nil
	}
	return c2err.New(c2err.KindUnknownTrack, "unknown alert id: "+id)
}

// Alerts returns every retained alert, acknowledged or not.
func (a *Assessor) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, len(a.alerts))
	copy(out, a.alerts)
	return out
}

// UnacknowledgedAlerts returns only the alerts awaiting acknowledgement.
func (a *Assessor) UnacknowledgedAlerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Alert
	for _, al := range a.alerts {
		if !al.Acknowledged {
			out = append(out, al)
		}
	}
	return out
}

// ThreatQueue returns every non-Dropped Hostile or Pending track sorted
// by (threat_level DESC, proximity_to_nearest_asset ASC), stable for
// equal keys.
func (a *Assessor) ThreatQueue() []*track.Track {
	var out []*track.Track
	for _, t := range a.tm.AllTracks() {
		if t.State() == track.StateDropped {
			continue
		}
		switch t.Classification() {
		case track.ClassificationHostile, track.ClassificationPending:
			out = append(out, t)
		}
	}

	proximity := make(map[string]float64, len(out))
	for _, t := range out {
		if _, d, ok := a.assetStore.NearestAsset(t.Position()); ok {
			proximity[t.ID()] = d
		} else {
			proximity[t.ID()] = math.MaxFloat64
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].ThreatLevel(), out[j].ThreatLevel()
		if li != lj {
			return li > lj
		}
		return proximity[out[i].ID()] < proximity[out[j].ID()]
	})
	return out
}

// HighestUnconfirmedThreat returns the highest-threat live track that
// has no current visual custody, the target auto-slew would select.
// Carried over from the original implementation's camera-cueing path,
// which the distilled spec folded into the slew_camera_request writeback
// without naming this query explicitly.
func (a *Assessor) HighestUnconfirmedThreat() (*track.Track, bool) {
	var best *track.Track
	for _, t := range a.tm.AllTracks() {
		if t.State() == track.StateDropped || t.VisuallyTracked() {
			continue
		}
		if best == nil || t.ThreatLevel() > best.ThreatLevel() {
			best = t
		}
	}
	return best, best != nil
}
