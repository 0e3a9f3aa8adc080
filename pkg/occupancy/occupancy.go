// Package occupancy estimates how full the shelter is from multi-zone
// ultrasonic ranging.
//
// Each zone is an independently addressed ultrasonic sensor with its own
// quiescent baseline, sampled on a fixed cycle. Zones are measured
// sequentially with a short inter-zone delay so one sensor's pulse cannot
// be read as another's echo. A zone is occupied when its smoothed distance
// is closer than the calibrated threshold; density is the occupied
// fraction across all zones.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds occupancy estimator configuration.
type Config struct {
	// Zones is the number of ultrasonic zones.
	Zones int `json:"zones"`

	// ZoneNames label zones in telemetry. Zones beyond the slice get
	// indexed names.
	ZoneNames []string `json:"zone_names"`

	// CycleInterval is the time between full zone scans.
	CycleInterval time.Duration `json:"cycle_interval"`

	// InterZoneDelay separates consecutive zone measurements to avoid
	// acoustic cross-talk.
	InterZoneDelay time.Duration `json:"inter_zone_delay"`

	// SamplesPerZone is how many pulses are averaged per measurement.
	SamplesPerZone int `json:"samples_per_zone"`

	// SmoothingWindow is the moving-average length over cycle readings.
	SmoothingWindow int `json:"smoothing_window"`

	// CalibrationSamples is how many readings establish the baseline.
	CalibrationSamples int `json:"calibration_samples"`

	// Margin is subtracted from the baseline to form the occupancy
	// threshold, in centimeters.
	Margin float64 `json:"margin"`
}

// DefaultConfig returns a Config matching the three-zone shelter layout.
func DefaultConfig() Config {
	return Config{
		Zones:              3,
		ZoneNames:          []string{"LEFT", "CENTER", "RIGHT"},
		CycleInterval:      2500 * time.Millisecond,
		InterZoneDelay:     60 * time.Millisecond,
		SamplesPerZone:     3,
		SmoothingWindow:    3,
		CalibrationSamples: 5,
		Margin:             20,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Zones <= 0 {
		return fmt.Errorf("zones must be positive, got %d", c.Zones)
	}
	if c.SamplesPerZone <= 0 {
		return fmt.Errorf("samples_per_zone must be positive, got %d", c.SamplesPerZone)
	}
	if c.SmoothingWindow <= 0 {
		return fmt.Errorf("smoothing_window must be positive, got %d", c.SmoothingWindow)
	}
	if c.CalibrationSamples <= 0 {
		return fmt.Errorf("calibration_samples must be positive, got %d", c.CalibrationSamples)
	}
	if c.Margin < 0 {
		return fmt.Errorf("margin must be non-negative, got %f", c.Margin)
	}
	return nil
}

// ZoneReading is the published view of one zone.
type ZoneReading struct {
	Name             string  `json:"name"`
	RawDistance      float64 `json:"raw_distance"`
	SmoothedDistance float64 `json:"smoothed_distance"`
	Baseline         float64 `json:"baseline"`
	Threshold        float64 `json:"threshold"`
	Occupied         bool    `json:"occupied"`
}

// Snapshot is the published view of all zones plus the derived density.
type Snapshot struct {
	Zones   []ZoneReading `json:"zones"`
	Density float64       `json:"density"`
}

// zoneState is the internal per-zone tracking state.
type zoneState struct {
	baseline  float64
	threshold float64
	window    []float64 // moving-average buffer of cycle readings
	last      ZoneReading
}

// Estimator runs the zone scan cycle and derives occupancy density.
type Estimator struct {
	cfg    Config
	ranger Ranger
	logger *slog.Logger

	mu         sync.RWMutex
	zones      []zoneState
	calibrated bool
	density    float64

	// OnUpdate, if set, is called with the snapshot after every cycle.
	// Called from the estimator's task; must not block.
	OnUpdate func(Snapshot)
}

// New creates an occupancy estimator over the given ranger.
func New(cfg Config, ranger Ranger, logger *slog.Logger) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("occupancy config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Estimator{
		cfg:    cfg,
		ranger: ranger,
		logger: logger,
		zones:  make([]zoneState, cfg.Zones),
	}
	for z := range e.zones {
		e.zones[z].last.Name = cfg.zoneName(z)
	}
	return e, nil
}

// zoneName returns the telemetry label for a zone, falling back to an
// indexed name when the caller supplied none.
func (c *Config) zoneName(z int) string {
	if z < len(c.ZoneNames) && c.ZoneNames[z] != "" {
		return c.ZoneNames[z]
	}
	return fmt.Sprintf("ZONE_%d", z)
}

// Calibrate samples each zone's quiescent baseline and fixes the
// occupancy thresholds. Call once at boot with the shelter empty.
func (e *Estimator) Calibrate(ctx context.Context) error {
	for z := 0; z < e.cfg.Zones; z++ {
		var sum float64
		valid := 0
		for i := 0; i < e.cfg.CalibrationSamples; i++ {
			d, err := e.ranger.Measure(ctx, z)
			if err == nil && d > 0 {
				sum += d
				valid++
			}
			if err := sleep(ctx, e.cfg.InterZoneDelay); err != nil {
				return err
			}
		}
		if valid == 0 {
			return fmt.Errorf("occupancy: zone %d produced no valid calibration samples", z)
		}

		baseline := sum / float64(valid)
		threshold := baseline - e.cfg.Margin

		e.mu.Lock()
		e.zones[z].baseline = baseline
		e.zones[z].threshold = threshold
		e.zones[z].last.Baseline = baseline
		e.zones[z].last.Threshold = threshold
		e.mu.Unlock()

		e.logger.Info("zone calibrated",
			"zone", z,
			"baseline_cm", baseline,
			"threshold_cm", threshold,
		)
	}

	e.mu.Lock()
	e.calibrated = true
	e.mu.Unlock()
	return nil
}

// Run scans all zones on the configured cycle until ctx is cancelled.
// Calibrate must have been called first.
func (e *Estimator) Run(ctx context.Context) error {
	e.mu.RLock()
	calibrated := e.calibrated
	e.mu.RUnlock()
	if !calibrated {
		return errors.New("occupancy: Run called before Calibrate")
	}

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.ScanOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Warn("zone scan failed", "error", err)
			}
		}
	}
}

// ScanOnce measures every zone once and updates the snapshot.
func (e *Estimator) ScanOnce(ctx context.Context) error {
	for z := 0; z < e.cfg.Zones; z++ {
		raw, ok := e.measureZone(ctx, z)
		e.applyReading(z, raw, ok)
		if err := sleep(ctx, e.cfg.InterZoneDelay); err != nil {
			return err
		}
	}

	e.recomputeDensity()

	if e.OnUpdate != nil {
		e.OnUpdate(e.Snapshot())
	}
	return nil
}

// measureZone takes the configured number of pulses for one zone and
// averages the valid ones. Echo timeouts are excluded, not propagated.
func (e *Estimator) measureZone(ctx context.Context, zone int) (float64, bool) {
	var sum float64
	valid := 0
	for i := 0; i < e.cfg.SamplesPerZone; i++ {
		d, err := e.ranger.Measure(ctx, zone)
		if err != nil {
			if !errors.Is(err, ErrNoEcho) {
				e.logger.Debug("zone measure error", "zone", zone, "error", err)
			}
			continue
		}
		if d > 0 {
			sum += d
			valid++
		}
	}
	if valid == 0 {
		return 0, false
	}
	return sum / float64(valid), true
}

// applyReading pushes a cycle reading into the zone's moving average and
// re-evaluates occupancy. An all-timeout cycle leaves the zone's smoothed
// state untouched.
func (e *Estimator) applyReading(zone int, raw float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	zs := &e.zones[zone]
	zs.last.RawDistance = raw
	if !ok {
		return
	}

	zs.window = append(zs.window, raw)
	if len(zs.window) > e.cfg.SmoothingWindow {
		zs.window = zs.window[1:]
	}

	var sum float64
	for _, v := range zs.window {
		sum += v
	}
	smoothed := sum / float64(len(zs.window))

	zs.last.SmoothedDistance = smoothed
	zs.last.Occupied = smoothed > 0 && smoothed <= zs.threshold
}

func (e *Estimator) recomputeDensity() {
	e.mu.Lock()
	defer e.mu.Unlock()

	occupied := 0
	for i := range e.zones {
		if e.zones[i].last.Occupied {
			occupied++
		}
	}
	e.density = float64(occupied) / float64(len(e.zones))
}

// Density returns the current occupied-zone fraction in [0,1].
func (e *Estimator) Density() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.density
}

// Snapshot returns a copy of the per-zone readings and density.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	zones := make([]ZoneReading, len(e.zones))
	for i := range e.zones {
		zones[i] = e.zones[i].last
	}
	return Snapshot{Zones: zones, Density: e.density}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
