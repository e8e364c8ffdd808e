package trackmanager

import (
	"time"

	"github.com/asgard/pandora/c2engine/internal/c2/eventbus"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
)

// processCycle runs once per lifecycle tick on the owner goroutine:
// advances Active tracks to Coasting once they go stale, drops tracks
// that have coasted too long or too many ticks, and prunes tracks that
// have sat Dropped past the retention horizon.
func (m *Manager) processCycle(now time.Time) {
	coastingTimeout := time.Duration(m.cfg.CoastingTimeoutMs) * time.Millisecond
	dropTimeout := time.Duration(m.cfg.DropTimeoutMs) * time.Millisecond

	for id, t := range m.tracks {
		if t.State() == track.StateDropped {
			continue
		}

		age := now.Sub(t.LastDetectionTime())
		switch t.State() {
		case track.StateCoasting:
			m.deadReckon(id, t, now)
			if age > dropTimeout || t.CoastCount() >= m.cfg.MaxCoastCount {
				t.SetState(track.StateDropped, now)
				m.stats.TotalTracksDropped++
				m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackDropped, Payload: id, OccurredAt: now})
			} else {
				t.IncrementCoastCount()
			}
		case track.StateActive:
			if age > coastingTimeout {
				t.SetState(track.StateCoasting, now)
				t.IncrementCoastCount()
			}
		}
	}

	m.pruneDroppedLocked(now)
	m.refreshStatsLocked()
}

// deadReckon propagates a coasting track's position by its current
// velocity over the elapsed tick interval, per spec 4.4.2's "propagate
// the filter by dt (dead-reckoning)". It advances last_update_time but
// deliberately leaves last_detection_time untouched so the coasting/drop
// clock keeps counting from the last genuine sensor contact.
func (m *Manager) deadReckon(id string, t *track.Track, now time.Time) {
	dt := now.Sub(t.LastUpdateTime()).Seconds()
	if dt <= 0 {
		return
	}
	if kf, ok := m.filters[id]; ok && kf.Initialized() {
		kf.Predict(dt)
	}
	predicted := t.PredictedPosition(dt)
	t.SetPosition(predicted, now)
}

func (m *Manager) pruneDroppedLocked(now time.Time) {
	horizon := now.Add(-time.Duration(m.cfg.HistoryRetentionMs) * time.Millisecond)
	for id, t := range m.tracks {
		if t.State() == track.StateDropped && t.LastUpdateTime().Before(horizon) {
			delete(m.tracks, id)
			delete(m.filters, id)
		}
	}
}

func (m *Manager) refreshStatsLocked() {
	active, coasting := 0, 0
	for _, t := range m.tracks {
		switch t.State() {
		case track.StateActive:
			active++
		case track.StateCoasting:
			coasting++
		}
	}
	m.stats.CurrentActiveCount = active
	m.stats.CurrentCoastingCount = coasting
}

// PruneDroppedTracks removes dropped tracks past the retention horizon
// on demand, outside the normal lifecycle tick cadence.
func (m *Manager) PruneDroppedTracks() {
	m.do(func() { m.pruneDroppedLocked(time.Now()) })
}
