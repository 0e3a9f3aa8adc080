package announce

import (
	"context"
	"testing"
	"time"

	"github.com/smartstop/go-smartstop/pkg/state"
)

func testConfig() Config {
	return Config{
		Playlist:          []string{"track_1.mp3", "track_2.mp3"},
		WarningTrack:      "warning.mp3",
		MaxPeople:         10,
		MaxDensity:        0.9,
		RetriggerInterval: 30 * time.Second,
		IdleGap:           10 * time.Second,
		TickInterval:      250 * time.Millisecond,
	}
}

func newArbitrator(t *testing.T) (*Arbitrator, *MockPlayer, *state.SystemState) {
	t.Helper()
	player := NewMockPlayer()
	sys := state.New()
	a, err := New(testConfig(), player, sys, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a, player, sys
}

var t0 = time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time { return t0.Add(offset) }

func TestArbitrator_RotationRoundRobin(t *testing.T) {
	a, player, _ := newArbitrator(t)
	ctx := context.Background()

	a.Tick(ctx, at(0))
	if got := player.Current(); got != "track_1.mp3" {
		t.Fatalf("first track = %q, want track_1.mp3", got)
	}

	player.Finish()
	a.Tick(ctx, at(time.Second))        // observes the finish
	a.Tick(ctx, at(5*time.Second))      // inside the idle gap
	if player.Playing() {
		t.Fatal("should still be idle inside the gap")
	}
	a.Tick(ctx, at(12 * time.Second))
	if got := player.Current(); got != "track_2.mp3" {
		t.Fatalf("second track = %q, want track_2.mp3", got)
	}

	player.Finish()
	a.Tick(ctx, at(13*time.Second))
	a.Tick(ctx, at(24*time.Second))
	if got := player.Current(); got != "track_1.mp3" {
		t.Fatalf("rotation should wrap, got %q", got)
	}
}

func TestArbitrator_FullCapacityPreempts(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	a.Tick(ctx, at(0))
	if got := player.Current(); got != "track_1.mp3" {
		t.Fatalf("setup: playing %q", got)
	}

	sys.SetPeopleCount(10)
	a.Tick(ctx, at(time.Second))

	if got := player.Current(); got != "warning.mp3" {
		t.Fatalf("current = %q, want warning.mp3", got)
	}
	if player.Stops == 0 {
		t.Error("the rotation track should have been preempted")
	}
	if !sys.FullCapacity() {
		t.Error("FullCapacity not published to system state")
	}
	if !a.FullCapacity() {
		t.Error("arbitrator should report full capacity")
	}
}

func TestArbitrator_DensityAloneTriggers(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	sys.SetDensity(0.95)
	a.Tick(ctx, at(0))

	if got := player.Current(); got != "warning.mp3" {
		t.Fatalf("current = %q, want warning.mp3 on density trigger", got)
	}
}

func TestArbitrator_WarningRetriggersNotLoops(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	sys.SetPeopleCount(10)
	a.Tick(ctx, at(0))
	if n := len(player.Played); n != 1 {
		t.Fatalf("played %d tracks, want 1", n)
	}

	// Warning finishes; nothing replays before the retrigger interval.
	player.Finish()
	a.Tick(ctx, at(5*time.Second))
	a.Tick(ctx, at(20*time.Second))
	if n := len(player.Played); n != 1 {
		t.Fatalf("warning replayed too early, %d plays", n)
	}

	a.Tick(ctx, at(31*time.Second))
	if n := len(player.Played); n != 2 {
		t.Fatalf("warning not retriggered, %d plays", n)
	}
	if got := player.Current(); got != "warning.mp3" {
		t.Fatalf("retriggered %q, want warning.mp3", got)
	}
}

func TestArbitrator_NormalResumesAfterFull(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	sys.SetPeopleCount(10)
	a.Tick(ctx, at(0))

	sys.SetPeopleCount(3)
	a.Tick(ctx, at(time.Minute))

	if player.Playing() {
		t.Fatal("warning should stop on the transition back to normal")
	}
	if sys.FullCapacity() {
		t.Error("FullCapacity should be cleared")
	}

	// Rotation resumes after the idle gap.
	a.Tick(ctx, at(time.Minute+11*time.Second))
	if got := player.Current(); got != "track_1.mp3" {
		t.Fatalf("rotation did not resume, current %q", got)
	}
}

func TestArbitrator_RequestTrackOverridesRotation(t *testing.T) {
	a, player, _ := newArbitrator(t)
	ctx := context.Background()

	a.Tick(ctx, at(0)) // track_1 playing

	if err := a.RequestTrack(1); err != nil {
		t.Fatalf("RequestTrack failed: %v", err)
	}
	a.Tick(ctx, at(time.Second))

	if got := player.Current(); got != "track_2.mp3" {
		t.Fatalf("current = %q, want requested track_2.mp3", got)
	}

	// After the requested track ends, rotation picks up where it left off.
	player.Finish()
	a.Tick(ctx, at(2*time.Second))
	a.Tick(ctx, at(13*time.Second))
	if got := player.Current(); got != "track_2.mp3" {
		t.Fatalf("rotation after override = %q, want track_2.mp3", got)
	}
}

func TestArbitrator_RequestTrackClearedByTransition(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	if err := a.RequestTrack(1); err != nil {
		t.Fatalf("RequestTrack failed: %v", err)
	}

	// Full capacity arrives before the override plays.
	sys.SetPeopleCount(10)
	a.Tick(ctx, at(0))
	if got := player.Current(); got != "warning.mp3" {
		t.Fatalf("current = %q, want warning.mp3", got)
	}

	// Back to normal: the old override is gone, rotation restarts.
	sys.SetPeopleCount(0)
	a.Tick(ctx, at(time.Minute))
	a.Tick(ctx, at(time.Minute+11*time.Second))
	if got := player.Current(); got != "track_1.mp3" {
		t.Fatalf("current = %q, want rotation track_1.mp3", got)
	}
}

func TestArbitrator_RequestTrackOutOfRange(t *testing.T) {
	a, _, _ := newArbitrator(t)

	if err := a.RequestTrack(5); err == nil {
		t.Error("out-of-range track should fail")
	}
	if err := a.RequestTrack(-1); err == nil {
		t.Error("negative track should fail")
	}
}

func TestArbitrator_DegradedModeTracksCapacity(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	a.Disable()

	sys.SetPeopleCount(10)
	a.Tick(ctx, at(0))

	if player.Playing() {
		t.Error("degraded mode must not play")
	}
	if len(player.Played) != 0 {
		t.Errorf("degraded mode played %v", player.Played)
	}
	if !sys.FullCapacity() {
		t.Error("capacity tracking must continue in degraded mode")
	}
}

func TestArbitrator_BrokenPlayerEntersDegradedMode(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()
	player.SetBroken(true)

	// First rotation attempt hits ErrMediaUnavailable and disables playback.
	a.Tick(ctx, at(0))
	if len(player.Played) != 0 {
		t.Errorf("broken player played %v", player.Played)
	}

	// Capacity tracking survives; no warning playback is attempted.
	sys.SetPeopleCount(10)
	a.Tick(ctx, at(time.Second))
	if !sys.FullCapacity() {
		t.Error("capacity tracking must continue after media failure")
	}
	if player.Playing() {
		t.Error("degraded mode must not play the warning")
	}
}

func TestArbitrator_SingleTrackPlaying(t *testing.T) {
	a, player, sys := newArbitrator(t)
	ctx := context.Background()

	// Drive through several transitions; at most one track is ever active.
	for i := 0; i < 10; i++ {
		sys.SetPeopleCount(i * 3) // crosses 10 at i=4
		a.Tick(ctx, at(time.Duration(i)*time.Second))
		if player.Playing() && player.Current() == "" {
			t.Fatal("playing with no current track")
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	bad := testConfig()
	bad.WarningTrack = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing warning track should fail")
	}

	bad = testConfig()
	bad.MaxPeople = 0
	bad.MaxDensity = 0
	if err := bad.Validate(); err == nil {
		t.Error("no enabled predicate should fail")
	}
}
