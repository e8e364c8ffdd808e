package assets

import (
	"testing"

	"github.com/asgard/pandora/c2engine/internal/c2/geo"
)

func TestNewStoreLoadsDefaultRules(t *testing.T) {
	s := NewStore()
	rules := s.Rules()
	if len(rules) != 5 {
		t.Fatalf("expected 5 default rules, got %d", len(rules))
	}
	for _, r := range rules {
		if !r.Enabled {
			t.Errorf("expected default rule %s to be enabled", r.ID)
		}
	}
}

func TestNearestAssetEmptyStore(t *testing.T) {
	s := NewStore()
	s.ClearAssets()
	_, _, ok := s.NearestAsset(geo.Position{})
	if ok {
		t.Error("expected NearestAsset to report false for an empty store")
	}
}

func TestNearestAssetPicksClosest(t *testing.T) {
	s := NewStore()
	s.AddAsset(DefendedAsset{ID: "A", Position: geo.Position{Latitude: 0, Longitude: 0}})
	s.AddAsset(DefendedAsset{ID: "B", Position: geo.Position{Latitude: 1, Longitude: 1}})

	nearest, _, ok := s.NearestAsset(geo.Position{Latitude: 0.001, Longitude: 0})
	if !ok {
		t.Fatal("expected a nearest asset")
	}
	if nearest.ID != "A" {
		t.Errorf("expected asset A to be nearest, got %s", nearest.ID)
	}
}

func TestSetRuleEnabledToggles(t *testing.T) {
	s := NewStore()
	s.SetRuleEnabled("RULE-001", false)
	for _, r := range s.Rules() {
		if r.ID == "RULE-001" && r.Enabled {
			t.Error("expected RULE-001 to be disabled")
		}
	}
}

func TestRemoveAssetAndRule(t *testing.T) {
	s := NewStore()
	s.AddAsset(DefendedAsset{ID: "A"})
	s.RemoveAsset("A")
	if len(s.Assets()) != 0 {
		t.Error("expected asset to be removed")
	}

	s.RemoveRule("RULE-001")
	for _, r := range s.Rules() {
		if r.ID == "RULE-001" {
			t.Error("expected RULE-001 to be removed")
		}
	}
}

func TestClampHeadingDiffNormalizes(t *testing.T) {
	if d := ClampHeadingDiff(350, 10); d != 20 {
		t.Errorf("expected 20, got %f", d)
	}
}
