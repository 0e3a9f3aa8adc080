package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio: silence, a sine tone, noise, or a mix.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Block
	stopCh   chan struct{}

	// Stats
	blocksRead atomic.Int64
	overruns   atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = no tone
	amplitude float64 // 0.0 to 1.0
	noiseAmp  float64 // 0.0 to 1.0
	realtime  bool    // pace generation at the real block rate
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithNoise mixes uniform noise of the given amplitude into the output.
func WithNoise(amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.noiseAmp = amplitude
	}
}

// WithRealtimePacing makes the mock emit blocks at the real block rate
// instead of as fast as the consumer reads them.
func WithRealtimePacing() MockSourceOption {
	return func(m *MockSource) {
		m.realtime = true
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan Block, 8),
		stopCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SetTone changes the generated tone while running. Frequency 0 is silence.
func (m *MockSource) SetTone(frequency, amplitude float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frequency = frequency
	m.amplitude = amplitude
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Block, 8)

	go m.generateLoop(ctx, m.streamCh, m.stopCh)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"block_size", m.cfg.BlockSize,
	)

	return nil
}

// generateLoop owns streamCh: only the loop itself may close it, after it
// has seen stopCh close. Stop never touches streamCh, so a pending send can
// never race a close.
func (m *MockSource) generateLoop(ctx context.Context, streamCh chan Block, stopCh <-chan struct{}) {
	defer close(streamCh)

	var tick <-chan time.Time
	if m.realtime {
		ticker := time.NewTicker(m.cfg.BlockDuration())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				m.Stop()
				return
			case <-stopCh:
				return
			case <-tick:
			}
		}

		block := m.generateBlock()

		if tick != nil {
			// Paced mode mirrors DMA: a slow consumer loses blocks.
			select {
			case streamCh <- block:
				m.blocksRead.Add(1)
			case <-stopCh:
				return
			default:
				m.overruns.Add(1)
			}
		} else {
			select {
			case streamCh <- block:
				m.blocksRead.Add(1)
			case <-stopCh:
				return
			case <-ctx.Done():
				m.Stop()
				return
			}
		}
	}
}

func (m *MockSource) generateBlock() Block {
	m.mu.Lock()
	freq, amp, noise := m.frequency, m.amplitude, m.noiseAmp
	m.mu.Unlock()

	samples := make([]int16, m.cfg.BlockSize)
	for i := range samples {
		var v float64
		if freq > 0 {
			v = amp * math.Sin(2*math.Pi*freq*m.phase/float64(m.cfg.SampleRate))
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
		if noise > 0 {
			v += noise * (2*rand.Float64() - 1)
		}
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = int16(v * 32767)
	}

	return Block{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
	}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)

	m.logger.Debug("mock audio source stopped")

	return nil
}

// Read reads the next block.
func (m *MockSource) Read(ctx context.Context) (Block, error) {
	select {
	case <-ctx.Done():
		return Block{}, ctx.Err()
	case block, ok := <-m.streamCh:
		if !ok {
			return Block{}, io.EOF
		}
		return block, nil
	}
}

// Stream returns the block channel.
func (m *MockSource) Stream() <-chan Block {
	return m.streamCh
}

// Config returns the capture configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		BlocksRead: m.blocksRead.Load(),
		Overruns:   m.overruns.Load(),
		Running:    running,
		Backend:    "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)
