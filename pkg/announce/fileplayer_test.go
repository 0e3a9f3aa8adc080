package announce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFilePlayer_MissingTrackIsMediaUnavailable(t *testing.T) {
	p := NewFilePlayer(t.TempDir(), nil)

	err := p.Play(context.Background(), "missing.wav")
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("Play = %v, want ErrMediaUnavailable", err)
	}
	if p.Playing() {
		t.Fatal("failed play must not leave the player active")
	}
}

func TestFilePlayer_PlaysAndFinishes(t *testing.T) {
	dir := t.TempDir()
	track := "chime.wav"
	if err := os.WriteFile(filepath.Join(dir, track), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}

	// "true" exits immediately, simulating a very short track.
	p := NewFilePlayer(dir, nil, WithCommand("true"))

	if err := p.Play(context.Background(), track); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Playing() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Playing() {
		t.Fatal("player never observed process exit")
	}
	if p.Current() != "" {
		t.Fatalf("current = %q after finish, want empty", p.Current())
	}
}

func TestFilePlayer_StopKillsProcess(t *testing.T) {
	dir := t.TempDir()
	track := "chime.wav"
	if err := os.WriteFile(filepath.Join(dir, track), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}

	// tail -f never exits on its own, standing in for a long track.
	p := NewFilePlayer(dir, nil, WithCommand("tail", "-f"))

	if err := p.Play(context.Background(), track); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.Playing() {
		t.Fatal("player should be active")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if p.Playing() {
		t.Fatal("player still active after Stop")
	}
}
