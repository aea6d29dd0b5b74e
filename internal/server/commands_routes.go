package server

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// nodeFromRequest converts a request node into its stored form.
func nodeFromRequest(n NodeRequest) types.Node {
	return types.Node{
		Kind:     types.NodeKind(n.Kind),
		Name:     n.Name,
		DeviceID: n.DeviceID,
		Config:   n.Config,
	}
}

// routeFromRequest assembles a route from a validated request body.
func routeFromRequest(req *RouteRequest) types.Route {
	processors := make([]types.Node, 0, len(req.Processors))
	for _, p := range req.Processors {
		processors = append(processors, nodeFromRequest(p))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return types.Route{
		RouteID:    req.RouteID,
		Name:       req.Name,
		Source:     nodeFromRequest(req.Source),
		Processors: processors,
		Sink:       nodeFromRequest(req.Sink),
		Enabled:    enabled,
	}
}

// handleRouteUpsert processes routes/add and routes/update commands.
func (h *CommandHandler) handleRouteUpsert(action string, cmd WSCommand, send chan<- any) {
	var req RouteRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	stored, err := h.module.UpsertRoute(routeFromRequest(&req))
	if err != nil {
		SendEntityResult(send, "routes", action, req.RouteID, false, err.Error())
		return
	}

	slog.Info("route stored", "route_id", stored.RouteID, "name", stored.Name)
	SendEntityResult(send, "routes", action, stored.RouteID, true, "")
}

// handleRouteDelete processes a routes/delete command.
func (h *CommandHandler) handleRouteDelete(cmd WSCommand, send chan<- any) {
	var req RouteDeleteRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	if err := h.module.RemoveRoute(req.RouteID); err != nil {
		SendEntityResult(send, "routes", "delete", req.RouteID, false, err.Error())
		return
	}

	slog.Info("route removed", "route_id", req.RouteID)
	SendEntityResult(send, "routes", "delete", req.RouteID, true, "")
}

// handleStreamStart processes a streams/start command.
func (h *CommandHandler) handleStreamStart(cmd WSCommand, send chan<- any) {
	var req StreamRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	result, err := h.module.StartStream(req.StreamID, req.Override)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, result)
}

// handleStreamPause processes a streams/pause command.
func (h *CommandHandler) handleStreamPause(cmd WSCommand, send chan<- any) {
	var req StreamRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	stream, err := h.module.PauseStream(req.StreamID)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, stream)
}

// handleStreamStop processes a streams/stop command.
func (h *CommandHandler) handleStreamStop(cmd WSCommand, send chan<- any) {
	var req StreamRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	stream, err := h.module.StopStream(req.StreamID)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, stream)
}
