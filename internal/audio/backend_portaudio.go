package audio

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// PortAudioBackend talks to the host audio system through PortAudio.
// Device ids are direction-prefixed indexes ("in:3", "out:0") because a
// physical device can expose both capture and playback endpoints.
type PortAudioBackend struct {
	mu     sync.Mutex
	closed bool
}

// NewPortAudioBackend initializes the PortAudio library.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioBackend{}, nil
}

// Devices enumerates capture and playback endpoints of all host devices.
func (b *PortAudioBackend) Devices() ([]types.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var out []types.Device
	for i, info := range infos {
		if info.MaxInputChannels > 0 {
			out = append(out, types.Device{
				ID:         fmt.Sprintf("in:%d", i),
				Name:       info.Name,
				Direction:  types.DirectionCapture,
				Channels:   info.MaxInputChannels,
				SampleRate: info.DefaultSampleRate,
			})
		}
		if info.MaxOutputChannels > 0 {
			out = append(out, types.Device{
				ID:         fmt.Sprintf("out:%d", i),
				Name:       info.Name,
				Direction:  types.DirectionPlayback,
				Channels:   info.MaxOutputChannels,
				SampleRate: info.DefaultSampleRate,
			})
		}
	}
	return out, nil
}

// DefaultDevice returns the host default endpoint for a direction.
func (b *PortAudioBackend) DefaultDevice(dir types.Direction) (string, error) {
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return "", fmt.Errorf("failed to query host api: %w", err)
	}

	var info *portaudio.DeviceInfo
	if dir == types.DirectionCapture {
		info = host.DefaultInputDevice
	} else {
		info = host.DefaultOutputDevice
	}
	if info == nil {
		return "", fmt.Errorf("no default %s device", dir)
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return "", fmt.Errorf("failed to list devices: %w", err)
	}
	for i, candidate := range infos {
		if candidate == info {
			if dir == types.DirectionCapture {
				return fmt.Sprintf("in:%d", i), nil
			}
			return fmt.Sprintf("out:%d", i), nil
		}
	}
	return "", fmt.Errorf("default %s device not in catalog", dir)
}

// deviceByID resolves a direction-prefixed id to its PortAudio device.
func deviceByID(deviceID string, dir types.Direction) (*portaudio.DeviceInfo, error) {
	prefix := "in:"
	if dir == types.DirectionPlayback {
		prefix = "out:"
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(deviceID, prefix))
	if err != nil || !strings.HasPrefix(deviceID, prefix) {
		return nil, fmt.Errorf("malformed device id %q", deviceID)
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if idx < 0 || idx >= len(infos) {
		return nil, fmt.Errorf("device index %d out of range", idx)
	}
	return infos[idx], nil
}

// paHandle wraps a PortAudio stream as a backend handle.
type paHandle struct {
	stream *portaudio.Stream
}

func (h *paHandle) Start() error { return h.stream.Start() }
func (h *paHandle) Stop() error  { return h.stream.Stop() }
func (h *paHandle) Close() error { return h.stream.Close() }

// OpenCapture opens a capture stream. Frames are delivered on the
// PortAudio callback thread; the callback copies before handing off
// because PortAudio reuses its buffer.
func (b *PortAudioBackend) OpenCapture(deviceID string, format Format, onFrame func([]float32), onErr func(error)) (Handle, error) {
	dev, err := deviceByID(deviceID, types.DirectionCapture)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = format.BlockSize

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		onFrame(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}
	return &paHandle{stream: stream}, nil
}

// OpenPlayback opens a playback stream. The callback must fill the
// output buffer completely on every invocation.
func (b *PortAudioBackend) OpenPlayback(deviceID string, format Format, onFrame func([]float32), onErr func(error)) (Handle, error) {
	dev, err := deviceByID(deviceID, types.DirectionPlayback)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = format.BlockSize

	stream, err := portaudio.OpenStream(params, func(out []float32) {
		onFrame(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open playback stream: %w", err)
	}
	return &paHandle{stream: stream}, nil
}

// OpenDuplex opens a combined capture and playback stream on a pair of
// endpoints, used for low-latency monitor routes.
func (b *PortAudioBackend) OpenDuplex(inDeviceID, outDeviceID string, format Format, onFrames func(in, out []float32), onErr func(error)) (Handle, error) {
	inDev, err := deviceByID(inDeviceID, types.DirectionCapture)
	if err != nil {
		return nil, err
	}
	outDev, err := deviceByID(outDeviceID, types.DirectionPlayback)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(inDev, outDev)
	params.Input.Channels = format.Channels
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = format.BlockSize

	stream, err := portaudio.OpenStream(params, func(in, out []float32) {
		onFrames(in, out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open duplex stream: %w", err)
	}
	return &paHandle{stream: stream}, nil
}

// Close terminates the PortAudio library.
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return portaudio.Terminate()
}
