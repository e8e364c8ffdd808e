// Package c2config loads the Track Manager's and Threat Assessor's
// typed config structs from a YAML or JSON deployment file, the way
// picogrid-legion-simulations' pkg/config and 99souls-ariadne's engine
// config both turn a file on disk into the constructor-injected structs
// the rest of the system already accepts. The core itself stays pure
// in-memory -- this package only turns bytes into the structs
// trackmanager.New and threat.New take directly, per spec section 6's
// "a JSON round-trip is expected for persistence but is not part of the
// core contract".
package c2config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/asgard/pandora/c2engine/internal/c2/threat"
	"github.com/asgard/pandora/c2engine/internal/c2/trackmanager"
)

// EngineConfig bundles the two subsystem configs that together
// parameterize one running engine instance.
type EngineConfig struct {
	TrackManager   trackmanager.Config `yaml:"track_manager" json:"track_manager"`
	ThreatAssessor threat.Config       `yaml:"threat_assessor" json:"threat_assessor"`
}

// DefaultEngineConfig returns both subsystems' documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TrackManager:   trackmanager.DefaultConfig(),
		ThreatAssessor: threat.DefaultConfig(),
	}
}

// Load reads path and unmarshals it into an EngineConfig, seeded with
// the documented defaults so a partial file only overrides the fields it
// names. The format is chosen by file extension: .yaml/.yml or .json.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("c2config: read %s: %w", path, err)
	}

	cfg := DefaultEngineConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return EngineConfig{}, fmt.Errorf("c2config: parse yaml %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return EngineConfig{}, fmt.Errorf("c2config: parse json %s: %w", path, err)
		}
	default:
		return EngineConfig{}, fmt.Errorf("c2config: unrecognized config extension %q", ext)
	}

	if err := cfg.TrackManager.Validate(); err != nil {
		return EngineConfig{}, err
	}
	if err := cfg.ThreatAssessor.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// WriteYAML serializes cfg to path in YAML form, for operators checking
// the resolved defaults into a deployment file.
func WriteYAML(path string, cfg EngineConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("c2config: marshal yaml: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
