// Package audioio provides audio capture for the voice activity detector.
//
// The production backend reads PCM16 blocks from the I2S microphone's DMA
// buffer; the mock backend generates synthetic audio (silence, tones or
// noise) for tests and development without hardware. Blocks are fixed-size
// and power-of-two so they can be handed straight to the FFT.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio capture backend type.
type Backend string

const (
	// BackendAuto selects the best available backend for the platform.
	BackendAuto Backend = "auto"
	// BackendI2S reads from the I2S microphone DMA buffer.
	BackendI2S Backend = "i2s"
	// BackendMock uses a synthetic generator for testing.
	BackendMock Backend = "mock"
)

// Config holds audio capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (plenty for the 120-3400 Hz voice band)
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels. The INMP441 is mono.
	Channels int `json:"channels"`

	// BlockSize is the number of samples per block. Must be a power of
	// two; one block is one unit of FFT analysis.
	BlockSize int `json:"block_size"`

	// Device is the platform-specific device identifier (ignored by mock).
	Device string `json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 16000,
		Channels:   1,
		BlockSize:  1024, // 64ms at 16kHz
		Device:     "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a positive power of two, got %d", c.BlockSize)
	}
	return nil
}

// BlockDuration returns the wall-clock duration of one block.
// A Read never needs to wait longer than this for DMA data.
func (c *Config) BlockDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.BlockSize) / float64(c.SampleRate) * float64(time.Second))
}
