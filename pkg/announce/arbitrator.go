// Package announce arbitrates announcement playback over the node's single
// audio output.
//
// The arbitrator owns the playback state: nothing else starts or stops
// tracks. In normal conditions it rotates round-robin through a fixed
// playlist whenever the player is idle. When the stop reaches full
// capacity it preempts whatever is playing and force-plays the warning
// track, re-triggering it periodically (not looping) while the condition
// holds. Explicit track requests from the command channel override the
// rotation until the next capacity transition. If the audio media is
// unavailable at boot the arbitrator still tracks the capacity condition
// but playback is disabled.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smartstop/go-smartstop/pkg/state"
)

// Config holds arbitration configuration.
type Config struct {
	// Playlist is the normal announcement rotation, in order.
	Playlist []string `json:"playlist"`

	// WarningTrack is force-played at full capacity.
	WarningTrack string `json:"warning_track"`

	// MaxPeople triggers full capacity when the count reaches it.
	// Zero disables the count predicate.
	MaxPeople int `json:"max_people"`

	// MaxDensity triggers full capacity when occupancy density reaches
	// it. Zero disables the density predicate.
	MaxDensity float64 `json:"max_density"`

	// RetriggerInterval is the delay between warning replays while the
	// full-capacity condition holds.
	RetriggerInterval time.Duration `json:"retrigger_interval"`

	// IdleGap is the pause between rotation tracks.
	IdleGap time.Duration `json:"idle_gap"`

	// TickInterval is how often the arbitrator re-evaluates.
	TickInterval time.Duration `json:"tick_interval"`
}

// DefaultConfig returns the deployed arbitration settings.
func DefaultConfig() Config {
	return Config{
		Playlist:          []string{"announcement_1.mp3", "announcement_2.mp3", "announcement_3.mp3"},
		WarningTrack:      "full_capacity_warning.mp3",
		MaxPeople:         15,
		MaxDensity:        1.0,
		RetriggerInterval: 30 * time.Second,
		IdleGap:           10 * time.Second,
		TickInterval:      250 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.WarningTrack == "" {
		return fmt.Errorf("warning_track must be set")
	}
	if c.RetriggerInterval <= 0 {
		return fmt.Errorf("retrigger_interval must be positive, got %v", c.RetriggerInterval)
	}
	if c.MaxPeople < 0 || c.MaxDensity < 0 {
		return fmt.Errorf("capacity thresholds must be non-negative")
	}
	if c.MaxPeople == 0 && c.MaxDensity == 0 {
		return fmt.Errorf("at least one capacity predicate must be enabled")
	}
	return nil
}

// PlaybackState is the arbitrator's published view of the audio output.
type PlaybackState struct {
	CurrentTrack  string `json:"current_track"`
	IsPlaying     bool   `json:"is_playing"`
	PlaylistIndex int    `json:"playlist_index"`
}

// Arbitrator selects and preempts announcement playback.
type Arbitrator struct {
	cfg    Config
	player Player
	sys    *state.SystemState
	logger *slog.Logger

	mu            sync.Mutex
	disabled      bool // media unavailable at boot
	full          bool
	current       string
	playlistIndex int
	override      string // requested track, "" when none
	lastWarning   time.Time
	idleSince     time.Time
}

// New creates an arbitrator. If the player reports ErrMediaUnavailable
// the arbitrator drops into degraded mode: capacity tracking continues,
// playback is disabled.
func New(cfg Config, player Player, sys *state.SystemState, logger *slog.Logger) (*Arbitrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("announce config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbitrator{
		cfg:    cfg,
		player: player,
		sys:    sys,
		logger: logger,
	}, nil
}

// Disable puts the arbitrator into degraded mode (no playback).
// Called at boot when the audio media fails to open.
func (a *Arbitrator) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disabled = true
	a.logger.Warn("announcement playback disabled, running degraded")
}

// RequestTrack queues an explicit playlist track (0-based), overriding
// the automatic rotation until the next capacity transition.
func (a *Arbitrator) RequestTrack(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 || n >= len(a.cfg.Playlist) {
		return fmt.Errorf("%w: %d", ErrUnknownTrack, n)
	}
	a.override = a.cfg.Playlist[n]
	a.logger.Info("track requested", "track", a.override)

	// Preempt the rotation so the request starts on the next tick.
	if !a.full && !a.disabled {
		a.stopLocked(time.Now())
	}
	return nil
}

// StopPlayback halts the current track without changing mode.
func (a *Arbitrator) StopPlayback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked(time.Now())
}

// Playback returns the current playback state.
func (a *Arbitrator) Playback() PlaybackState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return PlaybackState{
		CurrentTrack:  a.current,
		IsPlaying:     a.player.Playing(),
		PlaylistIndex: a.playlistIndex,
	}
}

// FullCapacity reports the current capacity condition.
func (a *Arbitrator) FullCapacity() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.full
}

// Run evaluates the arbitration state machine until ctx is cancelled.
func (a *Arbitrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.StopPlayback()
			return ctx.Err()
		case <-ticker.C:
			a.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one evaluation of the state machine at the given time.
func (a *Arbitrator) Tick(ctx context.Context, now time.Time) {
	count := a.sys.PeopleCount()
	density := a.sys.Density()

	full := (a.cfg.MaxPeople > 0 && count >= a.cfg.MaxPeople) ||
		(a.cfg.MaxDensity > 0 && density >= a.cfg.MaxDensity)

	a.mu.Lock()
	defer a.mu.Unlock()

	if full != a.full {
		a.transitionLocked(ctx, full, now)
		return
	}

	if a.disabled {
		return
	}

	if a.full {
		// Re-trigger the warning periodically rather than looping it.
		if !a.player.Playing() && now.Sub(a.lastWarning) >= a.cfg.RetriggerInterval {
			a.playLocked(ctx, a.cfg.WarningTrack)
			a.lastWarning = now
		}
		return
	}

	if a.player.Playing() {
		return
	}
	if a.current != "" {
		// The last track just finished.
		if a.current == a.override {
			a.override = ""
		}
		a.current = ""
		a.idleSince = now
	}

	if a.override != "" {
		a.playLocked(ctx, a.override)
		return
	}

	if len(a.cfg.Playlist) == 0 {
		return
	}
	if a.idleSince.IsZero() || now.Sub(a.idleSince) >= a.cfg.IdleGap {
		track := a.cfg.Playlist[a.playlistIndex]
		a.playlistIndex = (a.playlistIndex + 1) % len(a.cfg.Playlist)
		a.playLocked(ctx, track)
	}
}

// transitionLocked handles a capacity boundary crossing. Any override is
// cleared; the warning preempts on entry, rotation resumes on exit.
func (a *Arbitrator) transitionLocked(ctx context.Context, full bool, now time.Time) {
	a.full = full
	a.override = ""
	a.sys.SetFullCapacity(full)

	if a.disabled {
		a.logger.Info("capacity transition (playback disabled)", "full", full)
		return
	}

	if full {
		a.logger.Info("full capacity reached, playing warning")
		a.stopLocked(now)
		a.playLocked(ctx, a.cfg.WarningTrack)
		a.lastWarning = now
	} else {
		a.logger.Info("capacity back to normal, resuming rotation")
		a.stopLocked(now)
		a.idleSince = now
	}
}

func (a *Arbitrator) playLocked(ctx context.Context, track string) {
	if err := a.player.Play(ctx, track); err != nil {
		if errors.Is(err, ErrMediaUnavailable) {
			a.disabled = true
			a.logger.Warn("media unavailable, playback disabled", "track", track)
			return
		}
		a.logger.Warn("play failed", "track", track, "error", err)
		return
	}
	a.current = track
	a.logger.Debug("playing", "track", track)
}

func (a *Arbitrator) stopLocked(now time.Time) {
	if err := a.player.Stop(); err != nil {
		a.logger.Warn("stop failed", "error", err)
	}
	if a.current != "" {
		a.idleSince = now
	}
	a.current = ""
}
