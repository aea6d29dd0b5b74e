package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/notify"
	"github.com/oszuidwest/zwfm-audiorouter/internal/recording"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// statusForError maps module errors onto HTTP status codes.
func statusForError(err error) int {
	var verr *types.ValidationError
	var unknownDev *types.UnknownDeviceError
	var invalidTr *types.InvalidTransitionError
	var policyErr *types.PolicyConflictError
	var devErr *types.DeviceUnavailableError

	switch {
	case errors.As(err, &verr), errors.As(err, &unknownDev), errors.As(err, &invalidTr):
		return http.StatusBadRequest
	case errors.As(err, &policyErr), errors.Is(err, types.ErrModuleDisabled):
		return http.StatusConflict
	case errors.Is(err, types.ErrRouteNotFound), errors.Is(err, types.ErrStreamNotFound):
		return http.StatusNotFound
	case errors.As(err, &devErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeModuleError writes an error response with the mapped status code.
func (s *Server) writeModuleError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), err.Error())
}

// handleAPIStatus returns the full module snapshot.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.module.Devices(),
	})
}

// handleAPIMeters returns meters for running streams.
// GET /api/meters
func (s *Server) handleAPIMeters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, types.WSMetersResponse{
		Type:          "meters",
		Meters:        s.module.Meters().List(),
		EngineRunning: s.module.Engine().Running(),
	})
}

// --- Routes ---

// handleListRoutes returns all routes.
// GET /api/routes
func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.module.Routes())
}

// handleCreateRoute validates and stores a new route.
// POST /api/routes
func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := parseJSON[types.Route](s, w, r)
	if !ok {
		return
	}
	route.RouteID = "" // Ids are assigned server side

	stored, err := s.module.UpsertRoute(route)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusCreated, stored)
}

// handleGetRoute returns a single route by id.
// GET /api/routes/{id}
func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := s.module.Route(r.PathValue("id"))
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

// handleUpdateRoute replaces a route by id.
// PUT /api/routes/{id}
func (s *Server) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.module.Route(id); err != nil {
		s.writeModuleError(w, err)
		return
	}

	route, ok := parseJSON[types.Route](s, w, r)
	if !ok {
		return
	}
	route.RouteID = id

	stored, err := s.module.UpsertRoute(route)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, stored)
}

// handleDeleteRoute deletes a route by id. Deleting an unknown route
// succeeds: the outcome is the same either way.
// DELETE /api/routes/{id}
func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.module.RemoveRoute(r.PathValue("id")); err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Streams ---

// handleListStreams returns all stream records.
// GET /api/streams
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.module.Streams())
}

// handleGetStream returns a single stream record.
// GET /api/streams/{id}
func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	stream, err := s.module.Stream(r.PathValue("id"))
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stream)
}

// StartStreamRequest is the optional request body for stream starts.
type StartStreamRequest struct {
	Override bool `json:"override"` // Bypass gated policy modes
}

// handleStartStream starts or resumes a stream.
// POST /api/streams/{id}/start
func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req StartStreamRequest
	if err := s.readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	result, err := s.module.StartStream(r.PathValue("id"), req.Override)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, result)
}

// handlePauseStream pauses a running stream.
// POST /api/streams/{id}/pause
func (s *Server) handlePauseStream(w http.ResponseWriter, r *http.Request) {
	stream, err := s.module.PauseStream(r.PathValue("id"))
	if err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, stream)
}

// handleStopStream stops a stream.
// POST /api/streams/{id}/stop
func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	stream, err := s.module.StopStream(r.PathValue("id"))
	if err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, stream)
}

// --- Policy ---

// PolicyRequest is the request body for POST /api/policy.
type PolicyRequest struct {
	Mode string `json:"mode"`
}

// handleAPIPolicy reads or updates the duplex policy.
// GET/POST /api/policy
func (s *Server) handleAPIPolicy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]any{"mode": s.module.Policy()})

	case http.MethodPost:
		req, ok := parseJSON[PolicyRequest](s, w, r)
		if !ok {
			return
		}
		if err := s.module.SetPolicy(types.PolicyMode(req.Mode)); err != nil {
			s.writeModuleError(w, err)
			return
		}
		s.broadcastStatus()
		s.writeJSON(w, http.StatusOK, map[string]any{"mode": s.module.Policy()})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// --- Controls ---

// ControlRequest is the request body for POST /api/controls/{id}.
type ControlRequest struct {
	GainDB float64 `json:"gain_db"`
	Muted  bool    `json:"muted"`
}

// handleAPIControl reads or updates gain and mute for a stream.
// GET/POST /api/controls/{id}
func (s *Server) handleAPIControl(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		control, err := s.module.Control(id)
		if err != nil {
			s.writeModuleError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, control)

	case http.MethodPost:
		req, ok := parseJSON[ControlRequest](s, w, r)
		if !ok {
			return
		}
		control, err := s.module.SetControl(id, req.GainDB, req.Muted)
		if err != nil {
			s.writeModuleError(w, err)
			return
		}
		s.broadcastStatus()
		s.writeJSON(w, http.StatusOK, control)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// --- Defaults, module switch, push-to-talk ---

// handleAPIDefaults updates the session default devices.
// POST /api/defaults
func (s *Server) handleAPIDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	defaults, ok := parseJSON[types.Defaults](s, w, r)
	if !ok {
		return
	}
	if err := s.module.SetDefaults(defaults); err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, s.module.Defaults())
}

// ModuleRequest is the request body for POST /api/module.
type ModuleRequest struct {
	Enabled bool `json:"enabled"`
}

// handleAPIModule flips the audio module feature switch.
// POST /api/module
func (s *Server) handleAPIModule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[ModuleRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.module.SetEnabled(req.Enabled); err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.module.Enabled()})
}

// PTTRequest is the request body for POST /api/ptt.
type PTTRequest struct {
	Active bool `json:"active"`
}

// handleAPIPTT updates the global push-to-talk flag.
// POST /api/ptt
func (s *Server) handleAPIPTT(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[PTTRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.module.SetPushToTalk(req.Active); err != nil {
		s.writeModuleError(w, err)
		return
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, map[string]bool{"active": s.module.PushToTalk()})
}

// --- Settings ---

// SettingsUpdateRequest is the request body for POST /api/settings.
type SettingsUpdateRequest struct {
	// Silence detection
	SilenceThreshold *float64 `json:"silence_threshold"`

	// Webhook
	WebhookURL *string `json:"webhook_url"`

	// Log
	LogPath *string `json:"log_path"`

	// Upload
	Upload *config.UploadConfig `json:"upload"`
}

// handleAPISettings updates notification and upload settings.
// POST /api/settings
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[SettingsUpdateRequest](s, w, r)
	if !ok {
		return
	}

	if req.SilenceThreshold != nil {
		if err := s.config.SetSilenceThreshold(*req.SilenceThreshold); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if req.WebhookURL != nil {
		if err := s.config.SetWebhookURL(*req.WebhookURL); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if req.LogPath != nil {
		if err := s.config.SetLogPath(*req.LogPath); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if req.Upload != nil {
		if err := s.config.SetUpload(*req.Upload); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	s.broadcastStatus()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Notification and upload tests ---

// handleAPITestWebhook sends a test notification to the configured webhook.
// POST /api/notifications/test-webhook
func (s *Server) handleAPITestWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	if cfg.WebhookURL == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "No webhook URL configured"})
		return
	}

	if err := notify.SendTestWebhook(cfg.WebhookURL, cfg.StationName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// S3TestRequest is the request body for testing S3 connectivity.
type S3TestRequest struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key_id"`
	SecretKey string `json:"secret_access_key"`
}

// handleAPITestS3 tests S3 connectivity with the provided credentials.
// POST /api/upload/test-s3
func (s *Server) handleAPITestS3(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[S3TestRequest](s, w, r)
	if !ok {
		return
	}

	if req.Bucket == "" {
		s.writeError(w, http.StatusBadRequest, "bucket is required")
		return
	}
	if req.AccessKey == "" {
		s.writeError(w, http.StatusBadRequest, "access_key_id is required")
		return
	}
	if req.SecretKey == "" {
		s.writeError(w, http.StatusBadRequest, "secret_access_key is required")
		return
	}

	err := recording.TestS3Connection(config.UploadConfig{
		Enabled:         true,
		Endpoint:        req.Endpoint,
		Bucket:          req.Bucket,
		AccessKeyID:     req.AccessKey,
		SecretAccessKey: req.SecretKey,
	})
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
