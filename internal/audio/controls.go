package audio

import (
	"sync"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// ControlTable holds per-stream gain and mute settings. Workers read it
// on every frame, so lookups take only a read lock and missing entries
// resolve to unity gain unmuted. It is safe for concurrent use.
type ControlTable struct {
	mu       sync.RWMutex
	controls map[string]types.Control
}

// NewControlTable creates an empty control table.
func NewControlTable() *ControlTable {
	return &ControlTable{
		controls: make(map[string]types.Control),
	}
}

// Set stores the control record for a stream.
func (t *ControlTable) Set(streamID string, gainDB float64, muted bool) types.Control {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := types.Control{StreamID: streamID, GainDB: gainDB, Muted: muted}
	t.controls[streamID] = c
	return c
}

// Get returns the control record for a stream, or the zero defaults when
// none was set.
func (t *ControlTable) Get(streamID string) types.Control {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.controls[streamID]; ok {
		return c
	}
	return types.Control{StreamID: streamID}
}

// Gain returns the linear gain multiplier and mute flag for a stream.
func (t *ControlTable) Gain(streamID string) (gain float64, muted bool) {
	c := t.Get(streamID)
	return DBToLinear(c.GainDB), c.Muted
}

// Remove deletes the control record for a stream.
func (t *ControlTable) Remove(streamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.controls, streamID)
}

// List returns all explicitly set control records.
func (t *ControlTable) List() []types.Control {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Control, 0, len(t.controls))
	for _, c := range t.controls {
		out = append(out, c)
	}
	return out
}
