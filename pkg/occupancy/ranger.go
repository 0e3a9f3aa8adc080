package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoEcho indicates the ultrasonic echo timed out; the sample is
// excluded from the zone average rather than treated as a reading.
var ErrNoEcho = errors.New("occupancy: no echo within timeout")

// Ranger measures the distance for one zone. Measure must return within
// the sensor's bounded echo timeout; a timeout is reported as ErrNoEcho,
// never by blocking indefinitely.
type Ranger interface {
	// Measure triggers a pulse on the given zone and returns the
	// measured distance in centimeters.
	Measure(ctx context.Context, zone int) (float64, error)

	// Name returns the backend name (e.g., "hcsr04", "mock").
	Name() string
}

// Ranger backends selectable from deployment config.
const (
	RangerMock = "mock"
)

// mockIdleDistance is the distance an empty zone reads on the mock.
const mockIdleDistance = 150

// NewRanger selects a ranger backend by name. Only the mock is wired
// up today; the HC-SR04 GPIO driver ships with the sensor sidecar and
// gets its own case here when it lands.
func NewRanger(backend string, zones int) (Ranger, error) {
	switch backend {
	case RangerMock:
		return NewMockRanger(zones, mockIdleDistance), nil
	default:
		return nil, fmt.Errorf("occupancy: unknown ranger backend %q", backend)
	}
}

// MockRanger is a Ranger for tests with settable per-zone distances.
type MockRanger struct {
	mu        sync.Mutex
	distances map[int]float64
	failing   map[int]bool
	measures  int
}

// NewMockRanger creates a mock where every zone reads the given distance.
func NewMockRanger(zones int, distance float64) *MockRanger {
	m := &MockRanger{
		distances: make(map[int]float64, zones),
		failing:   make(map[int]bool),
	}
	for z := 0; z < zones; z++ {
		m.distances[z] = distance
	}
	return m
}

// Set changes the distance reported for a zone.
func (m *MockRanger) Set(zone int, distance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distances[zone] = distance
}

// SetFailing makes a zone report echo timeouts.
func (m *MockRanger) SetFailing(zone int, failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[zone] = failing
}

// Measures returns the total number of Measure calls.
func (m *MockRanger) Measures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.measures
}

// Measure returns the configured distance for the zone.
func (m *MockRanger) Measure(_ context.Context, zone int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.measures++
	if m.failing[zone] {
		return 0, ErrNoEcho
	}
	return m.distances[zone], nil
}

// Name returns "mock".
func (m *MockRanger) Name() string {
	return "mock"
}

var _ Ranger = (*MockRanger)(nil)
