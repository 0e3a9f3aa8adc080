package state

import (
	"sync"
	"testing"
)

func TestSystemState_Defaults(t *testing.T) {
	s := New()

	snap := s.Snapshot()
	if snap.PeopleCount != 0 || snap.VoiceActive || snap.Density != 0 || snap.FullCapacity {
		t.Errorf("fresh state not zero: %+v", snap)
	}
}

func TestSystemState_PeopleCountFloor(t *testing.T) {
	s := New()
	s.SetPeopleCount(-3)
	if got := s.PeopleCount(); got != 0 {
		t.Errorf("PeopleCount = %d, want 0 after negative store", got)
	}
}

func TestSystemState_RoundTrip(t *testing.T) {
	s := New()
	s.SetPeopleCount(7)
	s.SetVoiceActive(true)
	s.SetDensity(2.0 / 3.0)
	s.SetFullCapacity(true)

	snap := s.Snapshot()
	if snap.PeopleCount != 7 {
		t.Errorf("PeopleCount = %d, want 7", snap.PeopleCount)
	}
	if !snap.VoiceActive {
		t.Error("VoiceActive should be true")
	}
	if snap.Density != 2.0/3.0 {
		t.Errorf("Density = %f, want %f", snap.Density, 2.0/3.0)
	}
	if !snap.FullCapacity {
		t.Error("FullCapacity should be true")
	}
}

func TestSystemState_ConcurrentReaders(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	done := make(chan struct{})

	// One writer per field, per the ownership discipline.
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.SetPeopleCount(i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.SetDensity(float64(i%10) / 10)
		}
	}()

	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := s.Snapshot()
			if snap.PeopleCount < 0 {
				t.Error("observed negative count")
				return
			}
			if snap.Density < 0 || snap.Density > 1 {
				t.Errorf("observed torn density %f", snap.Density)
				return
			}
		}
	}()

	wg.Wait()
	close(done)
}
