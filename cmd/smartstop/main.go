package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/smartstop/go-smartstop/internal/config"
	"github.com/smartstop/go-smartstop/internal/log"
	"github.com/smartstop/go-smartstop/pkg/announce"
	"github.com/smartstop/go-smartstop/pkg/audioio"
	"github.com/smartstop/go-smartstop/pkg/node"
	"github.com/smartstop/go-smartstop/pkg/occupancy"
)

func main() {
	broker := flag.String("broker", "", "MQTT broker URL (or SMARTSTOP_BROKER env)")
	deviceID := flag.String("device", "", "Device ID (or SMARTSTOP_DEVICE_ID env)")
	location := flag.String("location", "", "Location tag for count telemetry (or SMARTSTOP_LOCATION env)")
	audioBackend := flag.String("audio", "auto", "Audio backend: auto, i2s, mock")
	rangerBackend := flag.String("ranger", occupancy.RangerMock, "Ultrasonic ranger backend: mock")
	mediaDir := flag.String("media-dir", "/var/lib/smartstop/media", "Announcement media directory")
	playlist := flag.String("playlist", "", "Comma-separated announcement tracks")
	warningTrack := flag.String("warning-track", "", "Full-capacity warning track")
	maxPeople := flag.Int("max-people", 0, "Full-capacity people threshold (0 = default)")
	disable := flag.String("disable", "", "Comma-separated subsystems to disable: counter, voice, occupancy, announce, telemetry")
	combined := flag.Bool("combined-ir", false, "Publish the combined deviceId/count/voice IR payload")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	cfg := node.DefaultConfig()
	cfg.Telemetry.Broker = config.FlagOrEnv(*broker, "SMARTSTOP_BROKER", cfg.Telemetry.Broker)
	cfg.Telemetry.DeviceID = config.FlagOrEnv(*deviceID, "SMARTSTOP_DEVICE_ID", cfg.Telemetry.DeviceID)
	cfg.Telemetry.Location = config.FlagOrEnv(*location, "SMARTSTOP_LOCATION", cfg.Telemetry.Location)
	cfg.Telemetry.Username = config.Env("SMARTSTOP_MQTT_USERNAME", "")
	cfg.Telemetry.Password = config.Env("SMARTSTOP_MQTT_PASSWORD", "")
	cfg.Telemetry.CombinedIR = *combined
	cfg.Audio.Backend = audioio.Backend(*audioBackend)
	if *playlist != "" {
		cfg.Announce.Playlist = strings.Split(*playlist, ",")
	}
	if *warningTrack != "" {
		cfg.Announce.WarningTrack = *warningTrack
	}
	if *maxPeople > 0 {
		cfg.Announce.MaxPeople = *maxPeople
	}

	for _, name := range strings.Split(*disable, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "counter":
			cfg.EnableCounter = false
		case "voice":
			cfg.EnableVoice = false
		case "occupancy":
			cfg.EnableOccupancy = false
		case "announce":
			cfg.EnableAnnounce = false
		case "telemetry":
			cfg.EnableTelemetry = false
		default:
			logger.Error("unknown subsystem", "name", name)
			os.Exit(2)
		}
	}

	hw, err := buildHardware(cfg, *mediaDir, *rangerBackend)
	if err != nil {
		logger.Error("hardware init failed", "error", err)
		os.Exit(1)
	}

	n, err := node.New(cfg, hw, logger)
	if err != nil {
		logger.Error("node init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("smartstop node starting",
		"device", cfg.Telemetry.DeviceID,
		"location", cfg.Telemetry.Location,
	)

	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("node stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("smartstop node stopped")
}

// buildHardware constructs the device backends for the enabled
// subsystems. The ultrasonic driver is carried by a board-specific
// sidecar that pushes readings; until it lands the only selectable
// ranger backend is the mock, and -ranger makes that explicit in
// deployment config.
func buildHardware(cfg node.Config, mediaDir, ranger string) (node.Hardware, error) {
	var hw node.Hardware

	if cfg.EnableVoice {
		src, err := audioio.NewSource(cfg.Audio, log.Subsystem("audio"))
		if err != nil {
			return hw, err
		}
		hw.Audio = src
	}
	if cfg.EnableOccupancy {
		r, err := occupancy.NewRanger(ranger, cfg.Occupancy.Zones)
		if err != nil {
			return hw, err
		}
		hw.Ranger = r
	}
	if cfg.EnableAnnounce {
		hw.Player = announce.NewFilePlayer(mediaDir, log.Subsystem("announce"))
	}

	return hw, nil
}
