// Package state holds the shared system snapshot that ties the sensing
// subsystems to telemetry and announcement arbitration.
//
// Each field has exactly one producing subsystem: the people counter writes
// PeopleCount, the voice detector writes VoiceActive, the occupancy
// estimator writes Density, and the arbitrator writes FullCapacity.
// Consumers only read. Every field is a single word updated atomically, so
// readers never observe a torn value and no locking is needed.
package state

import (
	"math"
	"sync/atomic"
)

// SystemState is the shared snapshot of the node's sensing outputs.
type SystemState struct {
	peopleCount  atomic.Int64
	voiceActive  atomic.Bool
	densityBits  atomic.Uint64
	fullCapacity atomic.Bool
}

// Snapshot is a plain-value copy of the system state.
type Snapshot struct {
	PeopleCount  int     `json:"people_count"`
	VoiceActive  bool    `json:"voice"`
	Density      float64 `json:"density"`
	FullCapacity bool    `json:"full_capacity"`
}

// New creates an empty system state.
func New() *SystemState {
	return &SystemState{}
}

// SetPeopleCount records the current people count.
// Sole writer: the people counter.
func (s *SystemState) SetPeopleCount(n int) {
	if n < 0 {
		n = 0
	}
	s.peopleCount.Store(int64(n))
}

// PeopleCount returns the current people count.
func (s *SystemState) PeopleCount() int {
	return int(s.peopleCount.Load())
}

// SetVoiceActive records the voice activity decision.
// Sole writer: the voice activity detector.
func (s *SystemState) SetVoiceActive(active bool) {
	s.voiceActive.Store(active)
}

// VoiceActive returns the current voice activity decision.
func (s *SystemState) VoiceActive() bool {
	return s.voiceActive.Load()
}

// SetDensity records the occupancy density in [0,1].
// Sole writer: the occupancy estimator.
func (s *SystemState) SetDensity(d float64) {
	s.densityBits.Store(math.Float64bits(d))
}

// Density returns the current occupancy density.
func (s *SystemState) Density() float64 {
	return math.Float64frombits(s.densityBits.Load())
}

// SetFullCapacity records the full-capacity condition.
// Sole writer: the announcement arbitrator.
func (s *SystemState) SetFullCapacity(full bool) {
	s.fullCapacity.Store(full)
}

// FullCapacity returns the current full-capacity condition.
func (s *SystemState) FullCapacity() bool {
	return s.fullCapacity.Load()
}

// Snapshot returns a consistent plain-value copy for serialization.
func (s *SystemState) Snapshot() Snapshot {
	return Snapshot{
		PeopleCount:  s.PeopleCount(),
		VoiceActive:  s.VoiceActive(),
		Density:      s.Density(),
		FullCapacity: s.FullCapacity(),
	}
}
