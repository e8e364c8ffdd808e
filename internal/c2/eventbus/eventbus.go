// Package eventbus provides a typed publish-subscribe fan-out for track
// lifecycle, threat, and alert events. It follows the same
// channel-and-goroutine shape as the teacher's internal/nysus/events.Bus,
// but adds the bounded-per-subscriber-queue-with-drop-oldest behavior the
// spec requires: a slow subscriber must never block a publisher.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Topic names one of the nine event streams the core publishes.
type Topic string

const (
	TopicTrackCreated                Topic = "track_created"
	TopicTrackUpdated                Topic = "track_updated"
	TopicTrackDropped                Topic = "track_dropped"
	TopicTrackClassificationChanged  Topic = "track_classification_changed"
	TopicTrackThreatLevelChanged     Topic = "track_threat_level_changed"
	TopicThreatAlertNew              Topic = "threat_alert_new"
	TopicThreatAlertAcknowledged     Topic = "threat_alert_acknowledged"
	TopicSlewCameraRequest           Topic = "slew_camera_request"
	TopicAssessmentComplete          Topic = "assessment_complete"
)

// Event is the immutable payload delivered to subscribers. Payload
// carries the topic-specific data (copies, never references into the
// track store).
type Event struct {
	Topic      Topic
	Payload    any
	OccurredAt time.Time
}

// defaultQueueSize bounds each subscriber's backlog before drop-oldest
// kicks in.
const defaultQueueSize = 256

// DropHook is invoked whenever a subscriber's queue overflows, so callers
// can feed a SubscriberLagged metric.
type DropHook func(topic Topic, subscriberID uuid.UUID)

type subscriber struct {
	id        uuid.UUID
	topic     Topic
	queue     chan Event
	mu        sync.Mutex // serializes drop-oldest-then-send around queue
	dropCount uint64
}

// Bus is the event fan-out. Zero value is not usable; construct with New.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic][]*subscriber
	queueSize int
	onDrop    DropHook
	logger    *logrus.Logger
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithQueueSize overrides the default per-subscriber queue bound.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithDropHook registers a callback invoked on every drop-oldest event.
func WithDropHook(h DropHook) Option {
	return func(b *Bus) { b.onDrop = h }
}

// WithLogger attaches a structured logger; defaults to a standard
// logrus.New() instance if omitted.
func WithLogger(l *logrus.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New constructs an event bus ready to accept subscriptions and
// publishes.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[Topic][]*subscriber),
		queueSize: defaultQueueSize,
		logger:    logrus.New(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscription is a live subscriber handle: drain Events from the channel
// in FIFO order, call Unsubscribe when done.
type Subscription struct {
	ID          uuid.UUID
	Events      <-chan Event
	Unsubscribe func()
}

// Subscribe registers a new subscriber for topic and returns a channel
// delivering events in FIFO publish order, at-least-once within process
// lifetime. The channel is bounded; a slow reader loses its oldest
// undelivered events rather than blocking Publish.
func (b *Bus) Subscribe(topic Topic) Subscription {
	sub := &subscriber{
		id:    uuid.New(),
		topic: topic,
		queue: make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return Subscription{
		ID:     sub.id,
		Events: sub.queue,
		Unsubscribe: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[topic] = append(list[:i], list[i+1:]...)
					break
				}
			}
		},
	}
}

// Publish delivers an event to every current subscriber of its topic.
// Never blocks: a full subscriber queue has its oldest entry dropped to
// make room, per spec "bounded per-subscriber queues with drop-oldest on
// overflow".
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	// Copy the slice header under the lock; subscriber pointers are
	// stable so the deliveries below happen outside the bus lock.
	subs := append([]*subscriber(nil), b.subs[e.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscriber, e Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	select {
	case sub.queue <- e:
		return
	default:
	}

	// Queue full: drop the oldest entry, then retry the send.
	select {
	case <-sub.queue:
		sub.dropCount++
		if b.onDrop != nil {
			b.onDrop(e.Topic, sub.id)
		}
		b.logger.WithFields(logrus.Fields{
			"topic":      e.Topic,
			"subscriber": sub.id,
		}).Warn("event bus subscriber lagging, dropped oldest event")
	default:
	}

	select {
	case sub.queue <- e:
	default:
		// Another publisher raced us and refilled the queue; give up
		// rather than block. Publisher is never blocked by a slow
		// subscriber.
	}
}
