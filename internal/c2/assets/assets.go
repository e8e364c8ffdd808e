// Package assets holds the defended-asset store and the threat rule set
// the Threat Assessor scores tracks against. Both collections are
// read-mostly, so each is guarded by a plain sync.RWMutex rather than the
// command-channel discipline used by the Track Manager's track store.
package assets

import (
	"math"
	"sync"

	"github.com/asgard/pandora/c2engine/internal/c2/geo"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
)

// DefendedAsset is a protected ground point with critical and warning
// radii used to score threats.
type DefendedAsset struct {
	ID              string
	Name            string
	Position        geo.Position
	CriticalRadiusM float64
	WarningRadiusM  float64
	PriorityLevel   int
}

// ThreatRule is a declarative predicate + action scored against a track
// and its nearest defended asset. A predicate value of -1 means
// "unused" per spec sentinel convention.
type ThreatRule struct {
	ID          string
	Name        string
	Description string
	Enabled     bool

	MinProximityM      float64
	MaxProximityM      float64
	MinVelocityMps     float64
	MaxVelocityMps     float64
	MinHeadingToAssetDeg float64
	MaxHeadingToAssetDeg float64

	RequiresVisualConfirmation bool
	RequiresRFDetection        bool

	// AlertIfVisualMissing captures RULE-005's distinct polarity from
	// the original implementation: "alert when visual confirmation is
	// ABSENT", which is not the same predicate as
	// RequiresVisualConfirmation (which gates the rule on visual
	// confirmation being PRESENT). See DESIGN.md.
	AlertIfVisualMissing bool

	ThreatLevelIncrease int
	SetThreatLevel      int // -1 means unused; >=0 replaces the working level

	ForceClassification track.Classification // ClassificationUnknown means "no force"

	GenerateAlert bool
	AlertMessage  string // %TRACK% is replaced with the track id
}

const unused = -1.0

// NewDefaultRule returns a rule with all numeric predicates sentineled to
// "unused" and Enabled true, the baseline callers customize from.
func NewDefaultRule(id, name string) ThreatRule {
	return ThreatRule{
		ID:                   id,
		Name:                 name,
		Enabled:              true,
		MinProximityM:        unused,
		MaxProximityM:        unused,
		MinVelocityMps:       unused,
		MaxVelocityMps:       unused,
		MinHeadingToAssetDeg: unused,
		MaxHeadingToAssetDeg: unused,
		SetThreatLevel:       -1,
		ForceClassification:  track.ClassificationUnknown,
	}
}

// DefaultRules returns the five-rule default policy from spec section
// 4.5, grounded on original_source's ThreatAssessor::loadDefaultRules.
func DefaultRules() []ThreatRule {
	critical := NewDefaultRule("RULE-001", "Critical Proximity")
	critical.Description = "Track within critical radius of defended asset"
	critical.MaxProximityM = 500.0
	critical.SetThreatLevel = 5
	critical.ForceClassification = track.ClassificationHostile
	critical.GenerateAlert = true
	critical.AlertMessage = "CRITICAL: Track %TRACK% within critical radius!"

	warning := NewDefaultRule("RULE-002", "Warning Proximity")
	warning.Description = "Track within warning radius"
	warning.MinProximityM = 500.0
	warning.MaxProximityM = 1500.0
	warning.ThreatLevelIncrease = 2
	warning.GenerateAlert = true
	warning.AlertMessage = "WARNING: Track %TRACK% approaching defended area"

	highVelocity := NewDefaultRule("RULE-003", "High Velocity Approach")
	highVelocity.Description = "Fast moving track heading toward asset"
	highVelocity.MinVelocityMps = 20.0
	highVelocity.MinHeadingToAssetDeg = 0.0
	highVelocity.MaxHeadingToAssetDeg = 30.0
	highVelocity.ThreatLevelIncrease = 1

	rfConfirmed := NewDefaultRule("RULE-004", "RF Confirmed")
	rfConfirmed.Description = "Track confirmed by RF detection"
	rfConfirmed.RequiresRFDetection = true
	rfConfirmed.ThreatLevelIncrease = 1
	rfConfirmed.ForceClassification = track.ClassificationHostile

	visualUnconfirmed := NewDefaultRule("RULE-005", "Unconfirmed Visual")
	visualUnconfirmed.Description = "High threat without visual confirmation"
	visualUnconfirmed.AlertIfVisualMissing = true
	visualUnconfirmed.MinProximityM = 0
	visualUnconfirmed.MaxProximityM = 2000.0
	visualUnconfirmed.GenerateAlert = true
	visualUnconfirmed.AlertMessage = "Track %TRACK% requires visual confirmation"

	return []ThreatRule{critical, warning, highVelocity, rfConfirmed, visualUnconfirmed}
}

// Store holds the defended-asset list and the rule set, read-mostly
// behind a single RWMutex.
type Store struct {
	mu     sync.RWMutex
	assets []DefendedAsset
	rules  []ThreatRule
}

// NewStore constructs an empty asset store preloaded with the default
// rule set, per spec "a default rule set must be loadable on
// construction".
func NewStore() *Store {
	return &Store{rules: DefaultRules()}
}

// AddAsset appends a defended asset.
func (s *Store) AddAsset(a DefendedAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, a)
}

// RemoveAsset deletes the asset with the given id, if present.
func (s *Store) RemoveAsset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assets {
		if a.ID == id {
			s.assets = append(s.assets[:i], s.assets[i+1:]...)
			return
		}
	}
}

// ClearAssets removes every defended asset.
func (s *Store) ClearAssets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = nil
}

// Assets returns a snapshot of the defended-asset list.
func (s *Store) Assets() []DefendedAsset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DefendedAsset, len(s.assets))
	copy(out, s.assets)
	return out
}

// NearestAsset returns the defended asset nearest to pos (by 3-D
// distance) and its distance in meters. The second return is false when
// the store holds no assets.
func (s *Store) NearestAsset(pos geo.Position) (DefendedAsset, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.assets) == 0 {
		return DefendedAsset{}, 0, false
	}

	best := s.assets[0]
	bestDist := geo.Haversine(pos, best.Position)
	for _, a := range s.assets[1:] {
		d := geo.Haversine(pos, a.Position)
		if d < bestDist {
			bestDist = d
			best = a
		}
	}
	return best, bestDist, true
}

// AddRule appends a rule in declaration order.
func (s *Store) AddRule(r ThreatRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

// RemoveRule deletes the rule with the given id, if present.
func (s *Store) RemoveRule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return
		}
	}
}

// SetRuleEnabled toggles a rule without removing it.
func (s *Store) SetRuleEnabled(id string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].Enabled = enabled
			return
		}
	}
}

// ClearRules removes every rule.
func (s *Store) ClearRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = nil
}

// LoadDefaultRules resets the rule set back to the five-rule default
// policy.
func (s *Store) LoadDefaultRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = DefaultRules()
}

// Rules returns a snapshot of the rule set, in declaration order.
func (s *Store) Rules() []ThreatRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ThreatRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// ClampHeadingDiff normalizes |a-b| into [0, 180], reused by the
// assessor when checking rule heading predicates.
func ClampHeadingDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}
