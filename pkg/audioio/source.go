package audioio

import (
	"context"
	"io"
)

// Block represents one fixed-size block of captured audio.
type Block struct {
	// Samples contains PCM16 audio samples (little-endian).
	Samples []int16

	// SampleRate is the sample rate of this block.
	SampleRate int
}

// Duration returns the duration of this block in seconds.
func (b *Block) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	// After calling Start, blocks are available via Read or Stream.
	Start(ctx context.Context) error

	// Stop halts audio capture.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next block. It blocks for at most roughly one
	// block's worth of time while the DMA buffer fills, or until the
	// context is cancelled. Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (Block, error)

	// Stream returns a channel that receives blocks.
	// The channel is closed when the source is stopped.
	Stream() <-chan Block

	// Config returns the current capture configuration.
	Config() Config

	// Name returns the backend name (e.g., "i2s", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// BlocksRead is the total number of blocks read.
	BlocksRead int64 `json:"blocks_read"`

	// Overruns is the number of blocks dropped because the consumer
	// fell behind the DMA producer.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the capture backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
