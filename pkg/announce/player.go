package announce

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors for the announce package.
var (
	// ErrMediaUnavailable indicates the audio storage could not be
	// opened; playback runs in degraded mode.
	ErrMediaUnavailable = errors.New("announce: audio media unavailable")

	// ErrUnknownTrack indicates a track outside the playlist was requested.
	ErrUnknownTrack = errors.New("announce: unknown track")
)

// Player drives the single exclusive audio output path. Play starts a
// track and returns immediately; the hardware renders it asynchronously.
// Only the arbitrator calls Play/Stop, which serializes all transitions.
type Player interface {
	// Play starts the given track, replacing any current playback.
	Play(ctx context.Context, track string) error

	// Stop halts playback. Safe to call when idle.
	Stop() error

	// Playing reports whether a track is currently being rendered.
	Playing() bool

	// Name returns the backend name (e.g., "i2s", "mock").
	Name() string
}

// MockPlayer is a Player for tests. Tracks stay "playing" until the test
// calls Finish, so arbitration timing is fully deterministic.
type MockPlayer struct {
	mu      sync.Mutex
	current string
	playing bool
	broken  bool

	// Played records every track handed to Play, in order.
	Played []string
	// Stops counts Stop calls that interrupted an active track.
	Stops int
}

// NewMockPlayer creates an idle mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// SetBroken makes Play fail with ErrMediaUnavailable.
func (m *MockPlayer) SetBroken(broken bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken = broken
}

// Play starts a track.
func (m *MockPlayer) Play(_ context.Context, track string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return ErrMediaUnavailable
	}
	m.current = track
	m.playing = true
	m.Played = append(m.Played, track)
	return nil
}

// Stop halts playback.
func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.Stops++
	}
	m.playing = false
	m.current = ""
	return nil
}

// Playing reports whether a track is active.
func (m *MockPlayer) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Current returns the active track, or "" when idle.
func (m *MockPlayer) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Finish simulates the current track reaching its end.
func (m *MockPlayer) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.current = ""
}

// Name returns "mock".
func (m *MockPlayer) Name() string {
	return "mock"
}

var _ Player = (*MockPlayer)(nil)
