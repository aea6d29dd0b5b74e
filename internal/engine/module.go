package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/adapters"
	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// Module is the control plane of the audio router. It owns the route
// graph, the stream records, and all lifecycle authority; the engine
// executes the transitions it decides on. State diverges from the
// engine only transiently, inside a locked transition.
type Module struct {
	config   *config.Config
	graph    *audio.Graph
	catalog  *audio.Catalog
	engine   *Engine
	meters   *audio.MeterStore
	controls *audio.ControlTable
	diag     *adapters.Diagnostics

	mu         sync.Mutex
	streams    map[string]*types.Stream
	policy     types.PolicyMode
	pushToTalk bool
	enabled    bool
	defaults   types.Defaults

	// Callbacks into the notification layer, set once before use.
	OnSilence    func(streamID string, ev audio.SilenceEvent)
	OnDeviceLost func(streamID string, err error)
	OnRecording  func(streamID, path string)
	OnTransition func(streamID string, state types.StreamState)
	OnUnderrun   func(streamID string, count int64)
	OnBargeIn    func(streamID string, interrupted []string)
}

// NewModule creates the control plane and loads persisted routes.
func NewModule(cfg *config.Config, backend audio.Backend, asr adapters.ASRAdapter, tts adapters.TTSAdapter) *Module {
	snap := cfg.Snapshot()

	m := &Module{
		config:   cfg,
		graph:    audio.NewGraph(),
		catalog:  audio.NewCatalog(backend),
		meters:   audio.NewMeterStore(),
		controls: audio.NewControlTable(),
		diag:     adapters.NewDiagnostics(),
		streams:  make(map[string]*types.Stream),
		policy:   snap.DuplexPolicy,
		enabled:  snap.ModuleEnabled,
		defaults: snap.AudioDefaults,
	}

	silenceCfg := audio.SilenceConfig{
		Threshold:  snap.SilenceThreshold,
		DurationMs: snap.SilenceDurationMs,
		RecoveryMs: snap.SilenceRecoveryMs,
	}
	m.engine = New(backend, m.catalog, m.meters, m.controls, asr, tts, m.diag, silenceCfg, Hooks{
		StreamFinished:    m.handleStreamFinished,
		DeviceLost:        m.handleDeviceLost,
		Silence:           m.handleSilence,
		RecordingFinished: m.handleRecording,
		Underrun:          m.handleUnderrun,
	})

	m.graph.Replace(snap.Routes)
	for _, route := range m.graph.List() {
		m.streams[route.RouteID] = &types.Stream{
			StreamID:       route.RouteID,
			RouteID:        route.RouteID,
			Direction:      route.Direction(),
			State:          types.StateStopped,
			LastTransition: time.Now(),
		}
	}

	return m
}

// Engine exposes the data plane, mainly for status reporting.
func (m *Module) Engine() *Engine {
	return m.engine
}

// Meters exposes the meter store for status push loops.
func (m *Module) Meters() *audio.MeterStore {
	return m.meters
}

// Devices returns the current device catalog.
func (m *Module) Devices() []types.Device {
	return m.catalog.Devices()
}

// Enabled reports whether the module feature switch is on.
func (m *Module) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled flips the module feature switch. Disabling stops every
// stream first so nothing keeps running invisibly. While the switch is
// off, every other control operation fails with ErrModuleDisabled.
func (m *Module) SetEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !enabled {
		for id, stream := range m.streams {
			if stream.State != types.StateStopped {
				m.stopStreamLocked(id)
			}
		}
	}
	m.enabled = enabled
	return m.config.SetModuleEnabled(enabled)
}

// --- Routes ---

// UpsertRoute validates and stores a route. Replacing a route whose
// stream is running stops the stream first; the new template takes
// effect on the next start.
func (m *Module) UpsertRoute(route types.Route) (types.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.Route{}, types.ErrModuleDisabled
	}
	if err := audio.ValidateRoute(&route, m.catalog.Lookup); err != nil {
		return types.Route{}, err
	}

	if route.RouteID != "" {
		if stream, ok := m.streams[route.RouteID]; ok && stream.State != types.StateStopped {
			m.stopStreamLocked(route.RouteID)
		}
	}

	stored := m.graph.Upsert(route)

	if _, ok := m.streams[stored.RouteID]; !ok {
		m.streams[stored.RouteID] = &types.Stream{
			StreamID:       stored.RouteID,
			RouteID:        stored.RouteID,
			Direction:      stored.Direction(),
			State:          types.StateStopped,
			LastTransition: time.Now(),
		}
	} else {
		m.streams[stored.RouteID].Direction = stored.Direction()
	}

	if err := m.config.SaveRoutes(m.graph.List()); err != nil {
		slog.Error("failed to persist routes", "error", err)
	}
	return stored, nil
}

// RemoveRoute deletes a route and cascades to its stream, control,
// meter, and diagnostics. Removing an unknown route is a no-op.
func (m *Module) RemoveRoute(routeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.ErrModuleDisabled
	}
	if stream, ok := m.streams[routeID]; ok && stream.State != types.StateStopped {
		m.stopStreamLocked(routeID)
	}

	if !m.graph.Remove(routeID) {
		return nil
	}

	delete(m.streams, routeID)
	m.controls.Remove(routeID)
	m.meters.Remove(routeID)
	m.diag.Forget(routeID)

	if err := m.config.SaveRoutes(m.graph.List()); err != nil {
		slog.Error("failed to persist routes", "error", err)
	}
	return nil
}

// Routes returns all routes in insertion order.
func (m *Module) Routes() []types.Route {
	return m.graph.List()
}

// Route returns the route with the given id.
func (m *Module) Route(routeID string) (types.Route, error) {
	route, ok := m.graph.Get(routeID)
	if !ok {
		return types.Route{}, types.ErrRouteNotFound
	}
	return route, nil
}

// --- Streams ---

// StartStream starts or resumes the stream for a route, enforcing the
// duplex policy. Under barge-in a capture start pauses every running
// playback stream atomically and reports their ids. Starting a stream
// that is already running is a no-op. With override set, gated policy
// modes admit the start instead of rejecting it.
func (m *Module) StartStream(streamID string, override bool) (types.StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.StartResult{}, types.ErrModuleDisabled
	}

	stream, ok := m.streams[streamID]
	if !ok {
		return types.StartResult{}, types.ErrStreamNotFound
	}
	route, ok := m.graph.Get(streamID)
	if !ok {
		return types.StartResult{}, types.ErrRouteNotFound
	}
	if !route.Enabled {
		v := types.NewValidationError()
		v.Add("route.enabled", "route is disabled", false)
		return types.StartResult{}, v
	}

	if stream.State == types.StateRunning {
		return types.StartResult{Stream: *stream, EngineRunning: m.engine.Running()}, nil
	}

	interrupted, err := m.applyPolicyLocked(stream.Direction, override)
	if err != nil {
		return types.StartResult{}, err
	}

	resumed := stream.State == types.StatePaused
	if resumed {
		err = m.engine.ResumeWorker(streamID)
		if errors.Is(err, ErrWorkerNotFound) {
			// Worker was torn down while paused, start fresh.
			resumed = false
			err = nil
		}
	}
	if !resumed && err == nil {
		err = m.engine.StartWorker(streamID, route, m.defaults)
	}
	if err != nil {
		// Roll back any barge-in pauses so a failed start changes nothing.
		for _, id := range interrupted {
			if resumeErr := m.engine.ResumeWorker(id); resumeErr != nil {
				slog.Error("failed to roll back barge-in pause", "stream_id", id, "error", resumeErr)
				continue
			}
			m.transitionLocked(id, types.StateRunning)
		}
		return types.StartResult{}, err
	}

	m.transitionLocked(streamID, types.StateRunning)
	if len(interrupted) > 0 && m.OnBargeIn != nil {
		go m.OnBargeIn(streamID, slices.Clone(interrupted))
	}
	return types.StartResult{
		Stream:        *stream,
		Interrupted:   interrupted,
		EngineRunning: m.engine.Running(),
	}, nil
}

// applyPolicyLocked enforces the duplex policy for a pending start in
// the given direction. Under barge-in it pauses running playback streams
// and returns their ids. Override admits starts the gated modes would
// reject. Caller must hold m.mu.
func (m *Module) applyPolicyLocked(dir types.Direction, override bool) ([]string, error) {
	opposing := m.runningLocked(opposite(dir))
	if len(opposing) == 0 {
		return nil, nil
	}

	switch m.policy {
	case types.PolicyAllowOverlap:
		return nil, nil

	case types.PolicyCaptureGated:
		if dir == types.DirectionCapture && !override {
			return nil, &types.PolicyConflictError{Mode: m.policy, BlockedBy: opposing}
		}
		return nil, nil

	case types.PolicyPlaybackGated:
		if dir == types.DirectionPlayback && !override {
			return nil, &types.PolicyConflictError{Mode: m.policy, BlockedBy: opposing}
		}
		return nil, nil

	case types.PolicyBargeIn:
		if dir != types.DirectionCapture {
			return nil, nil
		}
		var interrupted []string
		for _, id := range opposing {
			if err := m.engine.PauseWorker(id); err != nil {
				// Partial barge-in must never be observable; undo and fail.
				for _, paused := range interrupted {
					if resumeErr := m.engine.ResumeWorker(paused); resumeErr != nil {
						slog.Error("failed to roll back barge-in pause", "stream_id", paused, "error", resumeErr)
						continue
					}
					m.transitionLocked(paused, types.StateRunning)
				}
				return nil, fmt.Errorf("barge-in pause of stream %s failed: %w", id, err)
			}
			m.transitionLocked(id, types.StatePaused)
			interrupted = append(interrupted, id)
		}
		slices.Sort(interrupted)
		return interrupted, nil
	}
	return nil, nil
}

// PauseStream pauses a running stream. Pausing a paused stream is a
// no-op; pausing a stopped stream is an invalid transition.
func (m *Module) PauseStream(streamID string) (types.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.Stream{}, types.ErrModuleDisabled
	}

	stream, ok := m.streams[streamID]
	if !ok {
		return types.Stream{}, types.ErrStreamNotFound
	}

	switch stream.State {
	case types.StatePaused:
		return *stream, nil
	case types.StateStopped:
		return types.Stream{}, &types.InvalidTransitionError{StreamID: streamID, From: stream.State, Op: "pause"}
	}

	if err := m.engine.PauseWorker(streamID); err != nil {
		return types.Stream{}, err
	}
	m.transitionLocked(streamID, types.StatePaused)
	return *stream, nil
}

// StopStream stops a stream from any state. Stopping a stopped stream
// is a no-op.
func (m *Module) StopStream(streamID string) (types.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.Stream{}, types.ErrModuleDisabled
	}

	stream, ok := m.streams[streamID]
	if !ok {
		return types.Stream{}, types.ErrStreamNotFound
	}
	if stream.State == types.StateStopped {
		return *stream, nil
	}

	m.stopStreamLocked(streamID)
	return *stream, nil
}

// stopStreamLocked tears down a stream's worker and marks it stopped.
// Caller must hold m.mu.
func (m *Module) stopStreamLocked(streamID string) {
	if err := m.engine.StopWorker(streamID); err != nil && !errors.Is(err, ErrWorkerNotFound) {
		slog.Error("failed to stop worker", "stream_id", streamID, "error", err)
	}
	m.transitionLocked(streamID, types.StateStopped)
}

// Streams returns all stream records.
func (m *Module) Streams() []types.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, *s)
	}
	return out
}

// Stream returns the stream record for a route.
func (m *Module) Stream(streamID string) (types.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[streamID]
	if !ok {
		return types.Stream{}, types.ErrStreamNotFound
	}
	return *stream, nil
}

// --- Policy, controls, defaults ---

// Policy returns the active duplex policy.
func (m *Module) Policy() types.PolicyMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// SetPolicy switches the duplex policy. Already-running streams are not
// re-evaluated; the new mode applies to subsequent starts.
func (m *Module) SetPolicy(mode types.PolicyMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.ErrModuleDisabled
	}
	if !types.ValidPolicyMode(mode) {
		v := types.NewValidationError()
		v.Add("mode", "not a valid duplex policy", string(mode))
		return v
	}

	m.policy = mode
	return m.config.SetDuplexPolicy(mode)
}

// SetControl updates gain and mute for a stream. The worker picks up the
// change on its next frame.
func (m *Module) SetControl(streamID string, gainDB float64, muted bool) (types.Control, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return types.Control{}, types.ErrModuleDisabled
	}
	if _, ok := m.streams[streamID]; !ok {
		return types.Control{}, types.ErrStreamNotFound
	}
	return m.controls.Set(streamID, gainDB, muted), nil
}

// Control returns the control record for a stream.
func (m *Module) Control(streamID string) (types.Control, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[streamID]; !ok {
		return types.Control{}, types.ErrStreamNotFound
	}
	return m.controls.Get(streamID), nil
}

// PushToTalk returns the global push-to-talk flag.
func (m *Module) PushToTalk() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushToTalk
}

// SetPushToTalk updates the global push-to-talk flag. The flag is state
// only: interpretation is left to dashboard clients.
func (m *Module) SetPushToTalk(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return types.ErrModuleDisabled
	}
	m.pushToTalk = active
	return nil
}

// Defaults returns the session default device selection.
func (m *Module) Defaults() types.Defaults {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults
}

// SetDefaults updates the session default devices. Explicit device ids
// must exist in the catalog.
func (m *Module) SetDefaults(defaults types.Defaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return types.ErrModuleDisabled
	}
	if defaults.InputDeviceID != "" {
		if _, ok := m.catalog.Lookup(defaults.InputDeviceID); !ok {
			return &types.UnknownDeviceError{DeviceID: defaults.InputDeviceID, Field: "default_input_device_id"}
		}
	}
	if defaults.OutputDeviceID != "" {
		if _, ok := m.catalog.Lookup(defaults.OutputDeviceID); !ok {
			return &types.UnknownDeviceError{DeviceID: defaults.OutputDeviceID, Field: "default_output_device_id"}
		}
	}

	m.defaults = defaults
	return m.config.SetAudioDefaults(defaults)
}

// --- Snapshot ---

// Snapshot assembles a consistent view of the whole module under the
// control-plane lock.
func (m *Module) Snapshot() types.ModuleSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	streams := make([]types.Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, *s)
	}
	slices.SortFunc(streams, func(a, b types.Stream) int {
		if a.StreamID < b.StreamID {
			return -1
		}
		if a.StreamID > b.StreamID {
			return 1
		}
		return 0
	})

	return types.ModuleSnapshot{
		Enabled:       m.enabled,
		Defaults:      m.defaults,
		DuplexPolicy:  m.policy,
		PushToTalk:    m.pushToTalk,
		Routes:        m.graph.List(),
		Streams:       streams,
		Controls:      m.controls.List(),
		Meters:        m.meters.List(),
		EngineRunning: m.engine.Running(),
		Underruns:     m.engine.UnderrunCounts(),
		Diagnostics: types.AdapterDiagnostics{
			ASR: m.diag.ASR(),
			TTS: m.diag.TTS(),
		},
	}
}

// Shutdown stops every stream and tears down the engine.
func (m *Module) Shutdown() {
	m.mu.Lock()
	for id, stream := range m.streams {
		if stream.State != types.StateStopped {
			m.stopStreamLocked(id)
		}
	}
	m.mu.Unlock()
	m.engine.StopAll()
}

// --- Engine hooks ---

// handleStreamFinished marks a stream stopped after its signal ran out
// or its sink failed.
func (m *Module) handleStreamFinished(streamID string, err error) {
	if err != nil {
		slog.Error("stream finished with error", "stream_id", streamID, "error", err)
	} else {
		slog.Info("stream finished", "stream_id", streamID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if stream, ok := m.streams[streamID]; ok && stream.State != types.StateStopped {
		m.stopStreamLocked(streamID)
	}
}

// handleDeviceLost marks a stream stopped after its device disappeared.
func (m *Module) handleDeviceLost(streamID string, err error) {
	m.mu.Lock()
	if stream, ok := m.streams[streamID]; ok && stream.State != types.StateStopped {
		m.stopStreamLocked(streamID)
	}
	m.mu.Unlock()

	if m.OnDeviceLost != nil {
		m.OnDeviceLost(streamID, err)
	}
}

func (m *Module) handleSilence(streamID string, ev audio.SilenceEvent) {
	if m.OnSilence != nil {
		m.OnSilence(streamID, ev)
	}
}

func (m *Module) handleUnderrun(streamID string, count int64) {
	slog.Warn("playback underruns", "stream_id", streamID, "count", count)
	if m.OnUnderrun != nil {
		m.OnUnderrun(streamID, count)
	}
}

func (m *Module) handleRecording(streamID, path string) {
	slog.Info("recording finalized", "stream_id", streamID, "path", path)
	if m.OnRecording != nil {
		m.OnRecording(streamID, path)
	}
}

// --- Internal helpers ---

// runningLocked returns ids of running streams in a direction, sorted.
// Caller must hold m.mu.
func (m *Module) runningLocked(dir types.Direction) []string {
	var ids []string
	for id, s := range m.streams {
		if s.State == types.StateRunning && s.Direction == dir {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// transitionLocked records a state change. Caller must hold m.mu; the
// callback is dispatched on its own goroutine so observers cannot block
// a transition.
func (m *Module) transitionLocked(streamID string, state types.StreamState) {
	stream, ok := m.streams[streamID]
	if !ok {
		return
	}
	stream.State = state
	stream.LastTransition = time.Now()
	if m.OnTransition != nil {
		go m.OnTransition(streamID, state)
	}
}

func opposite(dir types.Direction) types.Direction {
	if dir == types.DirectionCapture {
		return types.DirectionPlayback
	}
	return types.DirectionCapture
}
