// Command c2engine-demo drives the core through the literal end-to-end
// scenario spec section 8 describes: a radar detection near Los
// Angeles, a correlated follow-up, a defended asset at the same point,
// and one assessment tick -- then prints the resulting track and alert
// state. It is a CLI harness for the library, not a product surface;
// sensor drivers, the GUI, and persistence all live outside this
// module.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asgard/pandora/c2engine/internal/c2/assets"
	"github.com/asgard/pandora/c2engine/internal/c2/c2config"
	"github.com/asgard/pandora/c2engine/internal/c2/geo"
	"github.com/asgard/pandora/c2engine/internal/c2/track"
	"github.com/asgard/pandora/c2engine/pkg/engine"
)

func main() {
	configPath := flag.String("config", "", "optional YAML/JSON engine config file (defaults used if omitted)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := c2config.DefaultEngineConfig()
	if *configPath != "" {
		loaded, err := c2config.Load(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to load engine config")
		}
		cfg = loaded
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("failed to construct engine")
	}
	defer eng.Close()
	eng.Start()

	alerts := eng.Bus.Subscribe("threat_alert_new")
	go func() {
		for ev := range alerts.Events {
			fmt.Printf("ALERT: %+v\n", ev.Payload)
		}
	}()

	assetPos := geo.Position{Latitude: 34.0522, Longitude: -118.2437, Altitude: 0}
	eng.Assets.AddAsset(assets.DefendedAsset{
		ID:              "ASSET-001",
		Name:            "Forward Operating Base",
		Position:        assetPos,
		CriticalRadiusM: 500,
		WarningRadiusM:  1500,
		PriorityLevel:   5,
	})

	t0 := time.Now().UnixMilli()
	firstPos := geo.Position{Latitude: 34.0522, Longitude: -118.2437, Altitude: 100}
	if err := eng.IngestRadar(firstPos, track.Velocity{}, 0.9, t0); err != nil {
		logger.WithError(err).Error("initial detection rejected")
	}

	secondPos := geo.Position{Latitude: 34.0527, Longitude: -118.2437, Altitude: 100}
	if err := eng.IngestRadar(secondPos, track.Velocity{North: 5}, 0.9, t0+500); err != nil {
		logger.WithError(err).Error("follow-up detection rejected")
	}

	time.Sleep(200 * time.Millisecond)
	eng.Assessor.RunOnce()
	time.Sleep(100 * time.Millisecond)

	fmt.Println("--- tracks ---")
	for _, tr := range eng.Tracks.AllTracks() {
		fmt.Printf("%s class=%s level=%d state=%s pos=%+v\n",
			tr.ID(), tr.Classification(), tr.ThreatLevel(), tr.State(), tr.Position())
	}

	fmt.Println("--- threat queue ---")
	for _, tr := range eng.Assessor.ThreatQueue() {
		fmt.Printf("%s level=%d\n", tr.ID(), tr.ThreatLevel())
	}

	eng.Stop()
}
