package audio

import (
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// Handle controls an open device stream. Stop suspends data flow while
// keeping the device open, which makes pause and resume cheap; Close
// releases the device.
type Handle interface {
	Start() error
	Stop() error
	Close() error
}

// Backend abstracts the host audio system. Frame callbacks run on the
// backend's audio thread and must not block; onErr is invoked once when
// the device fails mid-stream, such as on hot-unplug.
type Backend interface {
	// Devices enumerates the current device catalog.
	Devices() ([]types.Device, error)
	// DefaultDevice returns the backend default device id for a direction.
	DefaultDevice(dir types.Direction) (string, error)
	// OpenCapture opens a capture stream delivering interleaved frames.
	OpenCapture(deviceID string, format Format, onFrame func([]float32), onErr func(error)) (Handle, error)
	// OpenPlayback opens a playback stream pulling interleaved frames.
	OpenPlayback(deviceID string, format Format, onFrame func([]float32), onErr func(error)) (Handle, error)
	// OpenDuplex opens a combined capture and playback stream.
	OpenDuplex(inDeviceID, outDeviceID string, format Format, onFrames func(in, out []float32), onErr func(error)) (Handle, error)
	// Close releases all backend resources.
	Close() error
}

// openResult carries the outcome of an asynchronous device open.
type openResult struct {
	handle Handle
	err    error
}

// OpenWithTimeout runs open in a goroutine and fails with a
// DeviceUnavailableError if it does not complete within the timeout.
// Host audio APIs can block indefinitely on wedged devices.
func OpenWithTimeout(deviceID string, timeout time.Duration, open func() (Handle, error)) (Handle, error) {
	ch := make(chan openResult, 1)
	go func() {
		h, err := open()
		ch <- openResult{handle: h, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, &types.DeviceUnavailableError{DeviceID: deviceID, Err: res.err}
		}
		return res.handle, nil
	case <-time.After(timeout):
		// Leaked goroutine closes the handle if the open eventually returns.
		go func() {
			if res := <-ch; res.handle != nil {
				res.handle.Close()
			}
		}()
		return nil, &types.DeviceUnavailableError{DeviceID: deviceID, Err: errOpenTimeout}
	}
}

var errOpenTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "device open timed out" }
func (timeoutError) Timeout() bool { return true }
