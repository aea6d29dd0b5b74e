package audio

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// MeterStore holds the latest meter per stream. Workers overwrite their
// entry at frame cadence; readers only ever see the most recent value.
// Meters exist only while their stream is running. It is safe for
// concurrent use.
type MeterStore struct {
	mu      sync.RWMutex
	meters  map[string]types.Meter
	holders map[string]*PeakHolder
}

// NewMeterStore creates an empty meter store.
func NewMeterStore() *MeterStore {
	return &MeterStore{
		meters:  make(map[string]types.Meter),
		holders: make(map[string]*PeakHolder),
	}
}

// Publish overwrites the meter for a stream. The held peak decays on its
// own clock so VU displays keep a readable maximum between updates.
func (s *MeterStore) Publish(streamID string, levels Levels, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holder, ok := s.holders[streamID]
	if !ok {
		holder = NewPeakHolder()
		s.holders[streamID] = holder
	}
	s.meters[streamID] = types.Meter{
		StreamID:  streamID,
		Peak:      levels.Peak,
		HeldPeak:  holder.Update(levels.Peak, now),
		RMS:       levels.RMS,
		Clipped:   levels.Clipped,
		UpdatedAt: now,
	}
}

// Get returns the meter for a stream, if present.
func (s *MeterStore) Get(streamID string) (types.Meter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meters[streamID]
	return m, ok
}

// Remove deletes the meter for a stream. Called on pause and stop so
// paused and stopped streams report no meter at all.
func (s *MeterStore) Remove(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meters, streamID)
	delete(s.holders, streamID)
}

// List returns all current meters.
func (s *MeterStore) List() []types.Meter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Meter, 0, len(s.meters))
	for _, m := range s.meters {
		out = append(out, m)
	}
	return out
}
