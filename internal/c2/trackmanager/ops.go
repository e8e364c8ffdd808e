package trackmanager

import (
	"time"

	"github.com/asgard/pandora/c2engine/internal/c2/c2err"
	"github.com/asgard/pandora/c2engine/internal/c2/eventbus"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
)

// DropTrack manually forces a track to the Dropped state, e.g. on
// operator command.
func (m *Manager) DropTrack(id string) error {
	var err error
	m.do(func() {
		t, ok := m.tracks[id]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		now := time.Now()
		t.SetState(track.StateDropped, now)
		m.stats.TotalTracksDropped++
		m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackDropped, Payload: id, OccurredAt: now})
	})
	return err
}

// PromoteTrack is an operator confirming a track by eye: it raises
// classification confidence to 1.0 without changing the classification
// label itself.
func (m *Manager) PromoteTrack(id string) error {
	var err error
	m.do(func() {
		t, ok := m.tracks[id]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		t.SetClassificationConfidence(1.0, time.Now())
	})
	return err
}

// MergeTrack folds mergeID into keepID -- the higher-confidence
// classification and union of sources survive on keepID, and mergeID is
// dropped and removed from the store.
func (m *Manager) MergeTrack(keepID, mergeID string) error {
	var err error
	m.do(func() {
		keep, ok := m.tracks[keepID]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		merge, ok := m.tracks[mergeID]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}

		now := time.Now()
		keep.UpdateFrom(merge, now)
		merge.SetState(track.StateDropped, now)
		delete(m.tracks, mergeID)
		delete(m.filters, mergeID)
		m.stats.TotalTracksDropped++
		m.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackDropped, Payload: mergeID, OccurredAt: now})
	})
	return err
}

// AssociateCamera records which camera currently has visual custody of a
// track, a supplement carried over from the original camera-handoff path
// that the distilled spec omitted.
func (m *Manager) AssociateCamera(trackID, cameraID string) error {
	var err error
	m.do(func() {
		t, ok := m.tracks[trackID]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		now := time.Now()
		t.AssociateCamera(cameraID, now)
		t.SetVisuallyTracked(true, now)
	})
	return err
}

// SetTrackBoundingBox records the latest video bounding box for a track
// already under visual custody.
func (m *Manager) SetTrackBoundingBox(trackID string, box track.BoundingBox) error {
	var err error
	m.do(func() {
		t, ok := m.tracks[trackID]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		t.SetBoundingBox(box, time.Now())
	})
	return err
}

// SetTrackClassification is the Threat Assessor's writeback path: it
// updates the track but deliberately calls SetClassification directly
// rather than TouchDetectionTime, so an assessment pass never itself
// resets the coasting/drop timers.
func (m *Manager) SetTrackClassification(trackID string, c track.Classification, now time.Time) error {
	var err error
	m.do(func() {
		t, ok := m.tracks[trackID]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		t.SetClassification(c, now)
	})
	return err
}

// SetTrackThreatLevel is the Threat Assessor's writeback for a new
// scored threat level.
func (m *Manager) SetTrackThreatLevel(trackID string, level int, now time.Time) error {
	var err error
	m.do(func() {
		t, ok := m.tracks[trackID]
		if !ok {
			err = c2err.ErrUnknownTrack
			return
		}
		t.SetThreatLevel(level, now)
	})
	return err
}
