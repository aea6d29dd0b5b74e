package audio

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// Catalog provides device lookups against a backend. Every query hits
// the backend so hot-plugged devices appear without a restart.
type Catalog struct {
	backend Backend
}

// NewCatalog creates a catalog over the given backend.
func NewCatalog(backend Backend) *Catalog {
	return &Catalog{backend: backend}
}

// Devices returns the current device list. Enumeration failures log and
// return an empty catalog rather than failing the caller.
func (c *Catalog) Devices() []types.Device {
	devices, err := c.backend.Devices()
	if err != nil {
		slog.Error("failed to list audio devices", "error", err)
		return nil
	}
	return devices
}

// Lookup resolves a device id to its direction.
func (c *Catalog) Lookup(deviceID string) (types.Direction, bool) {
	for _, d := range c.Devices() {
		if d.ID == deviceID {
			return d.Direction, true
		}
	}
	return "", false
}

// Resolve picks the effective device for a node: an explicit node
// reference wins, then the session default, then the backend default.
func (c *Catalog) Resolve(nodeDeviceID string, defaults types.Defaults, dir types.Direction) (string, error) {
	if nodeDeviceID != "" {
		return nodeDeviceID, nil
	}

	sessionDefault := defaults.InputDeviceID
	if dir == types.DirectionPlayback {
		sessionDefault = defaults.OutputDeviceID
	}
	if sessionDefault != "" {
		return sessionDefault, nil
	}

	id, err := c.backend.DefaultDevice(dir)
	if err != nil {
		return "", &types.DeviceUnavailableError{DeviceID: "default", Err: err}
	}
	return id, nil
}
