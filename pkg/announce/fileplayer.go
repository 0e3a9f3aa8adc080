package announce

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// FilePlayer renders announcement tracks from a media directory by
// spawning an external player process, one at a time.
type FilePlayer struct {
	dir     string
	command string
	args    []string
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	current string
}

// FilePlayerOption configures a FilePlayer.
type FilePlayerOption func(*FilePlayer)

// WithCommand overrides the player binary and its leading arguments
// (default "aplay"). The track path is appended as the last argument.
func WithCommand(command string, args ...string) FilePlayerOption {
	return func(p *FilePlayer) {
		p.command = command
		p.args = args
	}
}

// NewFilePlayer creates a player over the given media directory.
func NewFilePlayer(dir string, logger *slog.Logger, opts ...FilePlayerOption) *FilePlayer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FilePlayer{
		dir:     dir,
		command: "aplay",
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play starts rendering a track, replacing any current playback.
// A missing media file reports ErrMediaUnavailable.
func (p *FilePlayer) Play(ctx context.Context, track string) error {
	path := filepath.Join(p.dir, track)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrMediaUnavailable, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	cmd := exec.CommandContext(ctx, p.command, append(append([]string{}, p.args...), path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMediaUnavailable, p.command, err)
	}
	p.cmd = cmd
	p.current = track

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.cmd == cmd {
			p.cmd = nil
			p.current = ""
		}
		if err != nil && ctx.Err() == nil {
			p.logger.Debug("player process ended", "track", track, "error", err)
		}
	}()

	return nil
}

// Stop halts playback. Safe to call when idle.
func (p *FilePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *FilePlayer) stopLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
	p.current = ""
}

// Playing reports whether a track is being rendered.
func (p *FilePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Current returns the active track, or "" when idle.
func (p *FilePlayer) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Name returns "file".
func (p *FilePlayer) Name() string {
	return "file"
}

var _ Player = (*FilePlayer)(nil)
