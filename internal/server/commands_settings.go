package server

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/events"
	"github.com/oszuidwest/zwfm-audiorouter/internal/notify"
	"github.com/oszuidwest/zwfm-audiorouter/internal/recording"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// --- Policy handlers ---

// handlePolicyUpdate processes a policy/update command.
func (h *CommandHandler) handlePolicyUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *PolicyUpdateRequest) error {
		slog.Info("policy/update: switching duplex policy", "mode", req.Mode)
		return h.module.SetPolicy(types.PolicyMode(req.Mode))
	})
}

// --- Control handlers ---

// handleControlUpdate processes a controls/update command.
func (h *CommandHandler) handleControlUpdate(cmd WSCommand, send chan<- any) {
	var req ControlUpdateRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	control, err := h.module.SetControl(req.StreamID, req.GainDB, req.Muted)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, control)
}

// --- Defaults handlers ---

// handleDefaultsUpdate processes a defaults/update command.
func (h *CommandHandler) handleDefaultsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DefaultsUpdateRequest) error {
		return h.module.SetDefaults(types.Defaults{
			InputDeviceID:  req.InputDeviceID,
			OutputDeviceID: req.OutputDeviceID,
		})
	})
}

// --- Module switch handlers ---

// handleModuleUpdate processes a module/update command.
func (h *CommandHandler) handleModuleUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *ModuleUpdateRequest) error {
		slog.Info("module/update: switching audio module", "enabled", req.Enabled)
		return h.module.SetEnabled(req.Enabled)
	})
}

// --- Push-to-talk handlers ---

// handlePTTUpdate processes a ptt/update command.
func (h *CommandHandler) handlePTTUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *PTTUpdateRequest) error {
		return h.module.SetPushToTalk(req.Active)
	})
}

// --- Silence detection handlers ---

// handleSilenceUpdate processes a silence/update command.
func (h *CommandHandler) handleSilenceUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *SilenceUpdateRequest) error {
		if req.Threshold == nil {
			return nil // No change requested
		}
		return h.cfg.SetSilenceThreshold(*req.Threshold)
	})
}

// --- Notification handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleWebhookTest processes a notifications/webhook/test command.
func (h *CommandHandler) handleWebhookTest(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "notifications/webhook/test"}, send, func() (any, error) {
		cfg := h.cfg.Snapshot()
		if err := notify.SendTestWebhook(cfg.WebhookURL, cfg.StationName); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// handleLogUpdate processes a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *LogUpdateRequest) error {
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleLogView processes a notifications/log/view command.
func (h *CommandHandler) handleLogView(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "notifications/log/view"}, send, func() (any, error) {
		path := h.cfg.LogPath()
		if path == "" {
			return map[string]any{"entries": []events.StreamEvent{}}, nil
		}
		entries, err := events.ReadLast(path, MaxLogEntries)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries, "path": path}, nil
	})
}

// --- Upload handlers ---

// handleUploadUpdate processes an upload/update command.
func (h *CommandHandler) handleUploadUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *UploadUpdateRequest) error {
		return h.cfg.SetUpload(config.UploadConfig{
			Enabled:         req.Enabled,
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKeyID,
			SecretAccessKey: req.SecretAccessKey,
			Prefix:          req.Prefix,
		})
	})
}

// handleTestS3 processes an upload/test-s3 command.
func (h *CommandHandler) handleTestS3(cmd WSCommand, send chan<- any) {
	var req S3TestRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		err := recording.TestS3Connection(config.UploadConfig{
			Enabled:         true,
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKey,
			SecretAccessKey: req.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return nil, nil
	})
}
