// Package engine wires the core's leaf components -- the event bus, the
// Track Manager, the defended-asset/rule store, and the Threat Assessor
// -- into one constructable unit, the shape spec section 9's "the
// core's lifecycle becomes new(config) -> start -> stop -> drop" calls
// for. This is the one place in the module that imports the bus, manager,
// store, assessor and metrics packages together; everything else only
// sees the pieces it needs.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/asgard/pandora/c2engine/internal/c2/assets"
	"github.com/asgard/pandora/c2engine/internal/c2/c2config"
	"github.com/asgard/pandora/c2engine/internal/c2/eventbus"
	"github.com/asgard/pandora/c2engine/internal/c2/threat"
	"github.com/asgard/pandora/c2engine/internal/c2/trackmanager"
	"github.com/asgard/pandora/c2engine/internal/platform/observability"
)

// Engine is the fully wired counter-UAS core: one Track Manager, one
// Threat Assessor sharing its asset/rule store, and the event bus
// connecting them to external observers.
type Engine struct {
	Bus      *eventbus.Bus
	Tracks   *trackmanager.Manager
	Assets   *assets.Store
	Assessor *threat.Assessor
	Metrics  *observability.Metrics
	logger   *logrus.Logger

	countingSubs []eventbus.Subscription
	stopCounting chan struct{}
}

// Option configures an Engine at construction.
type Option func(*options)

type options struct {
	logger   *logrus.Logger
	registry prometheus.Registerer
}

// WithLogger attaches a structured logger shared by every subsystem.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry overrides the Prometheus registerer metrics are
// registered against; defaults to prometheus.DefaultRegisterer. Tests
// should pass a fresh prometheus.NewRegistry() to avoid collisions
// across parallel runs.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// New constructs every subsystem from cfg and returns an Engine ready
// for Start. The Track Manager and Threat Assessor are not yet ticking.
func New(cfg c2config.EngineConfig, opts ...Option) (*Engine, error) {
	o := &options{logger: logrus.New(), registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(o)
	}

	metrics := observability.NewMetrics(o.registry)

	bus := eventbus.New(
		eventbus.WithLogger(o.logger),
		eventbus.WithDropHook(func(topic eventbus.Topic, _ uuid.UUID) {
			metrics.EventBusDropped.WithLabelValues(string(topic)).Inc()
		}),
	)

	tm, err := trackmanager.New(cfg.TrackManager, bus,
		trackmanager.WithLogger(o.logger),
		trackmanager.WithFilterDegenerateHook(func(string) {
			metrics.FilterReinitCount.Inc()
		}),
	)
	if err != nil {
		return nil, err
	}

	store := assets.NewStore()

	assessor, err := threat.New(cfg.ThreatAssessor, tm, store, bus,
		threat.WithLogger(o.logger),
		threat.WithAssessErrorHook(func(string, any) {
			metrics.AssessmentErrors.Inc()
		}),
		threat.WithAlertSuppressedHook(func(string, string) {
			metrics.AlertsSuppressed.Inc()
		}),
		threat.WithTickDurationHook(func(d time.Duration) {
			metrics.AssessmentDuration.Observe(d.Seconds())
		}),
	)
	if err != nil {
		tm.Close()
		return nil, err
	}

	e := &Engine{
		Bus:          bus,
		Tracks:       tm,
		Assets:       store,
		Assessor:     assessor,
		Metrics:      metrics,
		logger:       o.logger,
		stopCounting: make(chan struct{}),
	}
	e.wireCountingSubscriptions()
	return e, nil
}

// wireCountingSubscriptions subscribes the engine's own metrics to the
// bus for the counters best driven by events rather than call-site
// hooks: tracks created/dropped, alerts emitted. Each subscription uses
// its own goroutine so a slow metrics drain never blocks Publish,
// matching the bus's own non-blocking contract. Subscriptions and their
// reader goroutines are torn down in Close via stopCounting, since the
// bus never closes a subscriber's channel on Unsubscribe.
func (e *Engine) wireCountingSubscriptions() {
	e.countDeliveries(e.Bus.Subscribe(eventbus.TopicTrackCreated), e.Metrics.TracksCreated)
	e.countDeliveries(e.Bus.Subscribe(eventbus.TopicTrackDropped), e.Metrics.TracksDropped)
	e.countDeliveries(e.Bus.Subscribe(eventbus.TopicThreatAlertNew), e.Metrics.AlertsEmitted)
}

func (e *Engine) countDeliveries(sub eventbus.Subscription, counter prometheus.Counter) {
	e.countingSubs = append(e.countingSubs, sub)
	go func() {
		for {
			select {
			case <-sub.Events:
				counter.Inc()
			case <-e.stopCounting:
				return
			}
		}
	}()
}

// Start begins detection ingestion, the lifecycle tick, and the
// periodic assessment tick.
func (e *Engine) Start() {
	e.Tracks.Start()
	e.Assessor.Start()
}

// Stop halts ingestion and both periodic ticks. Track Manager commands
// already submitted complete before Stop returns; an assessment tick
// already in progress is not waited for and finishes after Stop returns.
func (e *Engine) Stop() {
	e.Assessor.Stop()
	e.Tracks.Stop()
}

// Close releases every goroutine and worker pool the engine owns. The
// Engine is unusable afterward.
func (e *Engine) Close() {
	e.Assessor.Close()
	e.Tracks.Close()

	close(e.stopCounting)
	for _, sub := range e.countingSubs {
		sub.Unsubscribe()
	}
}
