package trackmanager

import (
	"github.com/asgard/pandora/c2engine/internal/c2/geo"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
)

// AllTracks returns every track currently in the store, including
// Dropped ones awaiting pruning.
func (m *Manager) AllTracks() []*track.Track {
	var out []*track.Track
	m.do(func() {
		out = make([]*track.Track, 0, len(m.tracks))
		for _, t := range m.tracks {
			out = append(out, t)
		}
	})
	return out
}

// Track returns the track with the given id, if present.
func (m *Manager) Track(id string) (*track.Track, bool) {
	var t *track.Track
	var ok bool
	m.do(func() { t, ok = m.tracks[id] })
	return t, ok
}

// TracksByClassification returns every track currently holding the given
// classification.
func (m *Manager) TracksByClassification(c track.Classification) []*track.Track {
	var out []*track.Track
	m.do(func() {
		for _, t := range m.tracks {
			if t.Classification() == c {
				out = append(out, t)
			}
		}
	})
	return out
}

// TracksByThreatLevel returns every track at or above the given minimum
// threat level.
func (m *Manager) TracksByThreatLevel(min int) []*track.Track {
	var out []*track.Track
	m.do(func() {
		for _, t := range m.tracks {
			if t.ThreatLevel() >= min {
				out = append(out, t)
			}
		}
	})
	return out
}

// TracksInRadius returns every track within radiusM of center.
func (m *Manager) TracksInRadius(center geo.Position, radiusM float64) []*track.Track {
	var out []*track.Track
	m.do(func() {
		for _, t := range m.tracks {
			if t.DistanceTo(center) <= radiusM {
				out = append(out, t)
			}
		}
	})
	return out
}

// HostileTracks is shorthand for TracksByClassification(Hostile).
func (m *Manager) HostileTracks() []*track.Track {
	return m.TracksByClassification(track.ClassificationHostile)
}

// PendingTracks is shorthand for TracksByClassification(Pending).
func (m *Manager) PendingTracks() []*track.Track {
	return m.TracksByClassification(track.ClassificationPending)
}

// HighestThreatTrack returns the live (non-Dropped) track with the
// highest threat level, if any exist.
func (m *Manager) HighestThreatTrack() (*track.Track, bool) {
	var best *track.Track
	m.do(func() {
		for _, t := range m.tracks {
			if t.State() == track.StateDropped {
				continue
			}
			if best == nil || t.ThreatLevel() > best.ThreatLevel() {
				best = t
			}
		}
	})
	return best, best != nil
}

// Stats returns a snapshot of the manager's bookkeeping counters.
func (m *Manager) Stats() Stats {
	var s Stats
	m.do(func() { s = m.stats })
	return s
}
