// Package node composes the bus-stop subsystems into one runnable unit.
//
// Each subsystem (people counter, voice detector, occupancy estimator,
// announcement arbitrator, telemetry) is independently enabled, so the
// same binary covers the voice-only, counting-only, ultrasonic-only and
// fully integrated deployments. The node owns the shared SystemState and
// wires the single writer of each field.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smartstop/go-smartstop/pkg/announce"
	"github.com/smartstop/go-smartstop/pkg/audioio"
	"github.com/smartstop/go-smartstop/pkg/counter"
	"github.com/smartstop/go-smartstop/pkg/occupancy"
	"github.com/smartstop/go-smartstop/pkg/state"
	"github.com/smartstop/go-smartstop/pkg/telemetry"
	"github.com/smartstop/go-smartstop/pkg/vad"
)

// ErrNothingEnabled indicates a configuration with every subsystem off.
var ErrNothingEnabled = errors.New("node: no subsystem enabled")

// Config selects and configures the node's subsystems.
type Config struct {
	EnableCounter   bool `json:"enable_counter"`
	EnableVoice     bool `json:"enable_voice"`
	EnableOccupancy bool `json:"enable_occupancy"`
	EnableAnnounce  bool `json:"enable_announce"`
	EnableTelemetry bool `json:"enable_telemetry"`

	Counter   counter.Config   `json:"counter"`
	Audio     audioio.Config   `json:"audio"`
	VAD       vad.Config       `json:"vad"`
	Occupancy occupancy.Config `json:"occupancy"`
	Announce  announce.Config  `json:"announce"`
	Telemetry telemetry.Config `json:"telemetry"`
}

// DefaultConfig returns the fully integrated node.
func DefaultConfig() Config {
	return Config{
		EnableCounter:   true,
		EnableVoice:     true,
		EnableOccupancy: true,
		EnableAnnounce:  true,
		EnableTelemetry: true,
		Counter:         counter.DefaultConfig(),
		Audio:           audioio.DefaultConfig(),
		VAD:             vad.DefaultConfig(),
		Occupancy:       occupancy.DefaultConfig(),
		Announce:        announce.DefaultConfig(),
		Telemetry:       telemetry.DefaultConfig(),
	}
}

// Validate checks that at least one subsystem is enabled. Per-subsystem
// configs are validated by their constructors.
func (c *Config) Validate() error {
	if !c.EnableCounter && !c.EnableVoice && !c.EnableOccupancy &&
		!c.EnableAnnounce && !c.EnableTelemetry {
		return ErrNothingEnabled
	}
	return nil
}

// Hardware supplies the device backends for the enabled subsystems.
// A nil field for an enabled subsystem is a construction error.
type Hardware struct {
	// Audio feeds the voice detector.
	Audio audioio.Source
	// Ranger measures the occupancy zones.
	Ranger occupancy.Ranger
	// Player renders announcements.
	Player announce.Player
}

// Node is the composition root. Construct with New, drive with Run.
type Node struct {
	cfg    Config
	hw     Hardware
	logger *slog.Logger

	sys        *state.SystemState
	counter    *counter.Counter
	detector   *vad.Detector
	estimator  *occupancy.Estimator
	arbitrator *announce.Arbitrator
	publisher  *telemetry.Publisher
}

// New wires the enabled subsystems together.
func New(cfg Config, hw Hardware, logger *slog.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Node{
		cfg:    cfg,
		hw:     hw,
		logger: logger,
		sys:    state.New(),
	}

	var err error

	if cfg.EnableCounter {
		n.counter, err = counter.New(cfg.Counter, logger.With("subsystem", "counter"))
		if err != nil {
			return nil, err
		}
		n.counter.OnChange = n.onCountChange
	}

	if cfg.EnableVoice {
		if hw.Audio == nil {
			return nil, errors.New("node: voice enabled without an audio source")
		}
		n.detector, err = vad.New(cfg.VAD, logger.With("subsystem", "vad"))
		if err != nil {
			return nil, err
		}
	}

	if cfg.EnableOccupancy {
		if hw.Ranger == nil {
			return nil, errors.New("node: occupancy enabled without a ranger")
		}
		n.estimator, err = occupancy.New(cfg.Occupancy, hw.Ranger, logger.With("subsystem", "occupancy"))
		if err != nil {
			return nil, err
		}
		n.estimator.OnUpdate = n.onOccupancy
	}

	if cfg.EnableAnnounce {
		if hw.Player == nil {
			return nil, errors.New("node: announcements enabled without a player")
		}
		n.arbitrator, err = announce.New(cfg.Announce, hw.Player, n.sys, logger.With("subsystem", "announce"))
		if err != nil {
			return nil, err
		}
	}

	if cfg.EnableTelemetry {
		n.publisher, err = telemetry.New(cfg.Telemetry, n.sys, n.commands(), logger.With("subsystem", "telemetry"))
		if err != nil {
			return nil, err
		}
	}

	return n, nil
}

// State exposes the shared snapshot for external readers.
func (n *Node) State() *state.SystemState { return n.sys }

// Edges returns the counter's event queue for the beam driver to push
// into, or nil when counting is disabled.
func (n *Node) Edges() *counter.Queue {
	if n.counter == nil {
		return nil
	}
	return n.counter.Queue()
}

// onCountChange is the counter's single-writer path into the shared
// state. Runs on the counter task; must not block.
func (n *Node) onCountChange(count int) {
	n.sys.SetPeopleCount(count)
	if n.publisher != nil {
		entries, exits := n.counter.Totals()
		n.publisher.NotifyCount(count, entries, exits)
	}
}

// onOccupancy is the estimator's single-writer path into the shared
// state. Runs on the estimator task; must not block.
func (n *Node) onOccupancy(snap occupancy.Snapshot) {
	n.sys.SetDensity(snap.Density)
	if n.publisher != nil {
		n.publisher.NotifyOccupancy(snap)
	}
}

// onVoice is the detector's single-writer path into the shared state.
func (n *Node) onVoice(active bool, f vad.Features) {
	n.sys.SetVoiceActive(active)
	n.logger.Info("voice activity changed",
		"active", active,
		"ratio", f.RatioEMA,
		"voicing_db", f.VoicingDB,
		"flatness", f.Flatness,
	)
}

// commands maps inbound MQTT commands onto the local subsystems.
// Disabled subsystems leave their callback nil; the publisher then
// drops the command.
func (n *Node) commands() telemetry.Commands {
	cmds := telemetry.Commands{}
	if n.cfg.EnableCounter {
		cmds.ResetCount = func() { n.counter.Reset() }
	}
	if n.cfg.EnableAnnounce {
		cmds.PlayTrack = func(track int) error { return n.arbitrator.RequestTrack(track) }
		cmds.StopAudio = func() { n.arbitrator.StopPlayback() }
	}
	return cmds
}

// Run starts every enabled subsystem and blocks until ctx is cancelled
// or a subsystem fails. Occupancy calibration happens first; telemetry
// connects best-effort and hands the session to its watchdog.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if n.estimator != nil {
		n.logger.Info("calibrating occupancy zones")
		if err := n.estimator.Calibrate(ctx); err != nil {
			return fmt.Errorf("node: calibration: %w", err)
		}
	}

	if n.publisher != nil {
		if err := n.publisher.Connect(); err != nil {
			// The watchdog keeps retrying; sensing starts regardless.
			n.logger.Warn("initial broker connect failed", "error", err)
		}
		defer n.publisher.Close()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 8)

	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Error("subsystem stopped", "subsystem", name, "error", err)
				select {
				case errCh <- fmt.Errorf("%s: %w", name, err):
				default:
				}
				cancel()
			}
		}()
	}

	if n.counter != nil {
		start("counter", n.counter.Run)
	}
	if n.detector != nil {
		start("vad", func(ctx context.Context) error {
			return n.detector.Run(ctx, n.hw.Audio, n.onVoice)
		})
	}
	if n.estimator != nil {
		start("occupancy", n.estimator.Run)
	}
	if n.arbitrator != nil {
		start("announce", n.arbitrator.Run)
	}
	if n.publisher != nil {
		start("telemetry", n.publisher.Run)
		start("connectivity", n.publisher.Watch)
	}

	n.logger.Info("node running")
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}
