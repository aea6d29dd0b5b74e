package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/engine"
)

// MaxLogEntries is the maximum number of event log entries to return.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg    *config.Config
	module *engine.Module
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, module *engine.Module) *CommandHandler {
	return &CommandHandler{
		cfg:    cfg,
		module: module,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "routes/add",
// "streams/start").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "routes":
		h.handleRoutes(action, cmd, send)
	case "streams":
		h.handleStreams(action, cmd, send)
	case "policy":
		h.handlePolicy(action, cmd, send)
	case "controls":
		h.handleControls(action, cmd, send)
	case "defaults":
		h.handleDefaults(action, cmd, send)
	case "module":
		h.handleModule(action, cmd, send)
	case "ptt":
		h.handlePTT(action, cmd, send)
	case "silence":
		h.handleSilence(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "upload":
		h.handleUpload(action, cmd, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleRoutes routes routes/* commands
func (h *CommandHandler) handleRoutes(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "add", "update":
		h.handleRouteUpsert(action, cmd, send)
	case "delete":
		h.handleRouteDelete(cmd, send)
	default:
		slog.Warn("unknown routes action", "action", action)
	}
}

// handleStreams routes streams/* commands
func (h *CommandHandler) handleStreams(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleStreamStart(cmd, send)
	case "pause":
		h.handleStreamPause(cmd, send)
	case "stop":
		h.handleStreamStop(cmd, send)
	default:
		slog.Warn("unknown streams action", "action", action)
	}
}

// handlePolicy routes policy/* commands
func (h *CommandHandler) handlePolicy(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handlePolicyUpdate(cmd, send)
	default:
		slog.Warn("unknown policy action", "action", action)
	}
}

// handleControls routes controls/* commands
func (h *CommandHandler) handleControls(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleControlUpdate(cmd, send)
	default:
		slog.Warn("unknown controls action", "action", action)
	}
}

// handleDefaults routes defaults/* commands
func (h *CommandHandler) handleDefaults(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDefaultsUpdate(cmd, send)
	default:
		slog.Warn("unknown defaults action", "action", action)
	}
}

// handleModule routes module/* commands
func (h *CommandHandler) handleModule(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleModuleUpdate(cmd, send)
	default:
		slog.Warn("unknown module action", "action", action)
	}
}

// handlePTT routes ptt/* commands
func (h *CommandHandler) handlePTT(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handlePTTUpdate(cmd, send)
	default:
		slog.Warn("unknown ptt action", "action", action)
	}
}

// handleSilence routes silence/* commands
func (h *CommandHandler) handleSilence(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleSilenceUpdate(cmd, send)
	default:
		slog.Warn("unknown silence action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleWebhookTest(send)
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "view":
			h.handleLogView(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleUpload routes upload/* commands
func (h *CommandHandler) handleUpload(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleUploadUpdate(cmd, send)
	case "test-s3":
		h.handleTestS3(cmd, send)
	default:
		slog.Warn("unknown upload action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
