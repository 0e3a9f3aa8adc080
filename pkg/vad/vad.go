// Package vad implements spectral voice activity detection over fixed-size
// audio blocks.
//
// Each block is high-pass filtered, Hann windowed and transformed; three
// features are extracted from the power spectrum: the voice-band energy
// fraction (tracked as an EMA), a voicing measure comparing low-band to
// mid-band energy in dB, and the spectral flatness of the voice band. An
// "on" frame needs two of the three features to agree; an "off" frame needs
// any single feature past a looser threshold. The active state only flips
// after OnFrames consecutive on-frames or OffFrames consecutive off-frames,
// which suppresses chatter at the decision boundary. Blocks below the RMS
// noise floor always vote off.
//
// The numeric thresholds are empirically tuned per deployment; treat them
// as calibration values, not contracts.
package vad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/smartstop/go-smartstop/pkg/audioio"
	"github.com/smartstop/go-smartstop/pkg/dsp"
)

// Config holds voice detection configuration.
type Config struct {
	// SampleRate of the incoming blocks in Hz.
	SampleRate int `json:"sample_rate"`

	// BlockSize is the samples per analysis block; power of two.
	BlockSize int `json:"block_size"`

	// HighPassCutoff removes DC and rumble below this frequency.
	HighPassCutoff float64 `json:"high_pass_cutoff"`

	// VoiceBandLow/High bound the human-voice band in Hz.
	VoiceBandLow  float64 `json:"voice_band_low"`
	VoiceBandHigh float64 `json:"voice_band_high"`

	// RatioAlpha is the EMA coefficient for the voice-band ratio.
	RatioAlpha float64 `json:"ratio_alpha"`

	// RatioOn/RatioOff are the EMA thresholds for on and off votes.
	RatioOn  float64 `json:"ratio_on"`
	RatioOff float64 `json:"ratio_off"`

	// Voicing compares energy in [VoicingLowLo, VoicingLowHi] against
	// [VoicingMidLo, VoicingMidHi] as 10*log10(low/mid), clamped to
	// +/-VoicingClampDB.
	VoicingLowLo   float64 `json:"voicing_low_lo"`
	VoicingLowHi   float64 `json:"voicing_low_hi"`
	VoicingMidLo   float64 `json:"voicing_mid_lo"`
	VoicingMidHi   float64 `json:"voicing_mid_hi"`
	VoicingClampDB float64 `json:"voicing_clamp_db"`
	VoicingOnDB    float64 `json:"voicing_on_db"`
	VoicingOffDB   float64 `json:"voicing_off_db"`

	// FlatnessOn/FlatnessOff are spectral flatness thresholds over the
	// voice band; speech is tonal, so lower is more voice-like.
	FlatnessOn  float64 `json:"flatness_on"`
	FlatnessOff float64 `json:"flatness_off"`

	// NoiseFloorRMS is the absolute full-scale RMS below which a block
	// always votes off.
	NoiseFloorRMS float64 `json:"noise_floor_rms"`

	// OnFrames / OffFrames are the consecutive frame counts required to
	// activate and deactivate.
	OnFrames  int `json:"on_frames"`
	OffFrames int `json:"off_frames"`
}

// DefaultConfig returns the deployed tuning for 16kHz, 1024-sample blocks.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		BlockSize:      1024,
		HighPassCutoff: 80,
		VoiceBandLow:   120,
		VoiceBandHigh:  3400,
		RatioAlpha:     0.3,
		RatioOn:        0.55,
		RatioOff:       0.40,
		VoicingLowLo:   120,
		VoicingLowHi:   600,
		VoicingMidLo:   600,
		VoicingMidHi:   3400,
		VoicingClampDB: 20,
		VoicingOnDB:    3,
		VoicingOffDB:   0,
		FlatnessOn:     0.45,
		FlatnessOff:    0.60,
		NoiseFloorRMS:  0.008,
		OnFrames:       3,
		OffFrames:      8,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a positive power of two, got %d", c.BlockSize)
	}
	if c.RatioAlpha <= 0 || c.RatioAlpha > 1 {
		return fmt.Errorf("ratio_alpha must be in (0,1], got %f", c.RatioAlpha)
	}
	if c.OnFrames <= 0 || c.OffFrames <= 0 {
		return fmt.Errorf("on_frames and off_frames must be positive")
	}
	if c.VoiceBandLow >= c.VoiceBandHigh {
		return fmt.Errorf("voice band is empty: %f >= %f", c.VoiceBandLow, c.VoiceBandHigh)
	}
	return nil
}

// Features is the per-block feature set.
type Features struct {
	RatioEMA  float64 `json:"ratio_ema"`
	VoicingDB float64 `json:"voicing_db"`
	Flatness  float64 `json:"flatness"`
	RMS       float64 `json:"rms"`
}

// Detector runs the per-block analysis and hysteresis state machine.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	hp     *dsp.HighPass
	fft    *dsp.FFT
	window []float64
	frame  []float64
	spec   []float64

	ratioEMA   float64
	active     bool
	upStreak   int
	downStreak int
}

// New creates a detector.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	fft, err := dsp.NewFFT(cfg.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}

	return &Detector{
		cfg:    cfg,
		logger: logger,
		hp:     dsp.NewHighPass(cfg.HighPassCutoff, float64(cfg.SampleRate)),
		fft:    fft,
		window: dsp.HannWindow(cfg.BlockSize),
		frame:  make([]float64, cfg.BlockSize),
		spec:   make([]float64, cfg.BlockSize/2+1),
	}, nil
}

// Active returns the current hysteresis state.
func (d *Detector) Active() bool {
	return d.active
}

// Process analyzes one block and returns the feature set and the
// (possibly updated) active state.
func (d *Detector) Process(samples []int16) (Features, bool) {
	f := d.analyze(samples)

	var frameOn bool
	if f.RMS < d.cfg.NoiseFloorRMS {
		// Below the noise floor the block is silence by definition.
		frameOn = false
	} else {
		frameOn = d.vote(f)
	}

	if frameOn {
		d.upStreak++
		d.downStreak = 0
		if !d.active && d.upStreak >= d.cfg.OnFrames {
			d.active = true
			d.logger.Debug("voice active",
				"ratio_ema", f.RatioEMA,
				"voicing_db", f.VoicingDB,
				"flatness", f.Flatness,
			)
		}
	} else {
		d.downStreak++
		d.upStreak = 0
		if d.active && d.downStreak >= d.cfg.OffFrames {
			d.active = false
			d.logger.Debug("voice inactive")
		}
	}

	return f, d.active
}

// analyze extracts the per-block features.
func (d *Detector) analyze(samples []int16) Features {
	rms := dsp.RMS(samples)

	n := d.cfg.BlockSize
	for i := 0; i < n; i++ {
		if i < len(samples) {
			d.frame[i] = float64(samples[i]) / 32768.0
		} else {
			d.frame[i] = 0
		}
	}

	d.hp.Filter(d.frame)
	for i := range d.frame {
		d.frame[i] *= d.window[i]
	}

	d.spec = d.fft.PowerSpectrum(d.frame, d.spec)

	const eps = 1e-12
	sr := float64(d.cfg.SampleRate)

	total := dsp.BandEnergy(d.spec, n, sr, 0, sr/2)
	voice := dsp.BandEnergy(d.spec, n, sr, d.cfg.VoiceBandLow, d.cfg.VoiceBandHigh)

	ratio := 0.0
	if total > eps {
		ratio = voice / total
	}
	d.ratioEMA = d.cfg.RatioAlpha*ratio + (1-d.cfg.RatioAlpha)*d.ratioEMA

	low := dsp.BandEnergy(d.spec, n, sr, d.cfg.VoicingLowLo, d.cfg.VoicingLowHi)
	mid := dsp.BandEnergy(d.spec, n, sr, d.cfg.VoicingMidLo, d.cfg.VoicingMidHi)
	voicing := 10 * math.Log10((low+eps)/(mid+eps))
	if voicing > d.cfg.VoicingClampDB {
		voicing = d.cfg.VoicingClampDB
	} else if voicing < -d.cfg.VoicingClampDB {
		voicing = -d.cfg.VoicingClampDB
	}

	lo, hi := dsp.BinRange(n, sr, d.cfg.VoiceBandLow, d.cfg.VoiceBandHigh)
	flatness := dsp.SpectralFlatness(d.spec, lo, hi)

	return Features{
		RatioEMA:  d.ratioEMA,
		VoicingDB: voicing,
		Flatness:  flatness,
		RMS:       rms,
	}
}

// vote applies the 2-of-3 on rule, falling back to the looser single
// feature off rule when the frame is not an on frame.
func (d *Detector) vote(f Features) bool {
	votes := 0
	if f.RatioEMA > d.cfg.RatioOn {
		votes++
	}
	if f.VoicingDB > d.cfg.VoicingOnDB {
		votes++
	}
	if f.Flatness < d.cfg.FlatnessOn {
		votes++
	}
	if votes >= 2 {
		return true
	}

	// Not clearly on. If any feature is past its loose off threshold the
	// frame is an off frame; otherwise it keeps the current state alive.
	if f.RatioEMA < d.cfg.RatioOff ||
		f.VoicingDB < d.cfg.VoicingOffDB ||
		f.Flatness > d.cfg.FlatnessOff {
		return false
	}
	return d.active
}

// ErrSourceStopped is returned by Run when the audio source stops
// delivering blocks before the context is cancelled.
var ErrSourceStopped = errors.New("vad: audio source stopped")

// Run reads blocks from the source until ctx is cancelled or the source
// is stopped. If the source stops on its own, Run deactivates a live
// voice decision and returns ErrSourceStopped so the caller can tell the
// stream died rather than the node shutting down.
func (d *Detector) Run(ctx context.Context, src audioio.Source, onDecision func(active bool, f Features)) error {
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("vad: start source: %w", err)
	}
	defer src.Stop()

	prev := d.active
	for {
		block, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				if d.active {
					d.active = false
					d.upStreak = 0
					d.downStreak = 0
					if onDecision != nil {
						onDecision(false, Features{})
					}
				}
				d.logger.Warn("audio source stopped mid-stream")
				return ErrSourceStopped
			}
			return fmt.Errorf("vad: read block: %w", err)
		}

		f, active := d.Process(block.Samples)
		if onDecision != nil && active != prev {
			onDecision(active, f)
		}
		prev = active
	}
}
