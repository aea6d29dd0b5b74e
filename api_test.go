package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
	"github.com/oszuidwest/zwfm-audiorouter/internal/util"
)

func TestStatusForError(t *testing.T) {
	verr := types.NewValidationError()
	verr.Add("source.kind", "unsupported kind", "sink_file")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", verr, http.StatusBadRequest},
		{"unknown device", &types.UnknownDeviceError{DeviceID: "ghost", Field: "source"}, http.StatusBadRequest},
		{"invalid transition", &types.InvalidTransitionError{StreamID: "s1", From: types.StateStopped, Op: "pause"}, http.StatusBadRequest},
		{"policy conflict", &types.PolicyConflictError{Mode: types.PolicyCaptureGated, BlockedBy: []string{"p1"}}, http.StatusConflict},
		{"module disabled", types.ErrModuleDisabled, http.StatusConflict},
		{"route not found", types.ErrRouteNotFound, http.StatusNotFound},
		{"stream not found", types.ErrStreamNotFound, http.StatusNotFound},
		{"device unavailable", &types.DeviceUnavailableError{DeviceID: "mic0", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped sentinel", util.WrapError("failed to load stream", types.ErrStreamNotFound), http.StatusNotFound},
		{"wrapped typed error", util.WrapError("failed to open", &types.DeviceUnavailableError{DeviceID: "spk0"}), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
