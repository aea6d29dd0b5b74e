package audio

import (
	"errors"
	"testing"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

func testLookup(deviceID string) (types.Direction, bool) {
	switch deviceID {
	case "mic0":
		return types.DirectionCapture, true
	case "spk0":
		return types.DirectionPlayback, true
	}
	return "", false
}

func toneToFileRoute(id string) types.Route {
	return types.Route{
		RouteID: id,
		Source:  types.Node{Kind: types.KindTestTone},
		Sink:    types.Node{Kind: types.KindFile, Config: map[string]any{"path": "/tmp/out.wav"}},
		Enabled: true,
	}
}

func TestValidateRoute(t *testing.T) {
	tests := []struct {
		name    string
		route   types.Route
		wantErr bool
	}{
		{
			name:  "tone to file",
			route: toneToFileRoute(""),
		},
		{
			name: "mic to asr with processor chain",
			route: types.Route{
				Source: types.Node{Kind: types.KindMic, DeviceID: "mic0"},
				Processors: []types.Node{
					{Kind: types.KindResampler},
					{Kind: types.KindASRIngress},
				},
				Sink: types.Node{Kind: types.KindASR},
			},
		},
		{
			name: "sink kind in source position",
			route: types.Route{
				Source: types.Node{Kind: types.KindSpeakers},
				Sink:   types.Node{Kind: types.KindFile},
			},
			wantErr: true,
		},
		{
			name: "source kind in processor position",
			route: types.Route{
				Source:     types.Node{Kind: types.KindMic},
				Processors: []types.Node{{Kind: types.KindTestTone}},
				Sink:       types.Node{Kind: types.KindASR},
			},
			wantErr: true,
		},
		{
			name: "mic bound to playback device",
			route: types.Route{
				Source: types.Node{Kind: types.KindMic, DeviceID: "spk0"},
				Sink:   types.Node{Kind: types.KindASR},
			},
			wantErr: true,
		},
		{
			name: "speakers bound to capture device",
			route: types.Route{
				Source: types.Node{Kind: types.KindTestTone},
				Sink:   types.Node{Kind: types.KindSpeakers, DeviceID: "mic0"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoute(&tt.route, testLookup)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRouteUnknownDevice(t *testing.T) {
	route := types.Route{
		Source: types.Node{Kind: types.KindMic, DeviceID: "gone"},
		Sink:   types.Node{Kind: types.KindASR},
	}
	err := ValidateRoute(&route, testLookup)
	var unknown *types.UnknownDeviceError
	if !errors.As(err, &unknown) {
		t.Fatalf("ValidateRoute() error = %v, want *UnknownDeviceError", err)
	}
	if unknown.DeviceID != "gone" {
		t.Errorf("DeviceID = %q, want %q", unknown.DeviceID, "gone")
	}
}

func TestGraphUpsertGeneratesID(t *testing.T) {
	g := NewGraph()
	stored := g.Upsert(toneToFileRoute(""))
	if stored.RouteID == "" {
		t.Fatal("Upsert() did not assign a route id")
	}
	if stored.CreatedAt == 0 {
		t.Error("Upsert() did not set CreatedAt")
	}
	got, ok := g.Get(stored.RouteID)
	if !ok {
		t.Fatal("Get() did not find stored route")
	}
	if got.RouteID != stored.RouteID {
		t.Errorf("Get().RouteID = %q, want %q", got.RouteID, stored.RouteID)
	}
}

func TestGraphUpsertReplacePreservesCreatedAt(t *testing.T) {
	g := NewGraph()
	first := g.Upsert(toneToFileRoute("r1"))

	replacement := toneToFileRoute("r1")
	replacement.Name = "renamed"
	second := g.Upsert(replacement)

	if second.CreatedAt != first.CreatedAt {
		t.Errorf("CreatedAt = %d, want %d (preserved)", second.CreatedAt, first.CreatedAt)
	}
	if got, _ := g.Get("r1"); got.Name != "renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "renamed")
	}
	if n := len(g.List()); n != 1 {
		t.Errorf("len(List()) = %d, want 1", n)
	}
}

func TestGraphListOrder(t *testing.T) {
	g := NewGraph()
	g.Upsert(toneToFileRoute("b"))
	g.Upsert(toneToFileRoute("a"))
	g.Upsert(toneToFileRoute("c"))
	g.Upsert(toneToFileRoute("a")) // replace must not move it

	var got []string
	for _, r := range g.List() {
		got = append(got, r.RouteID)
	}
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("len(List()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGraphRemove(t *testing.T) {
	g := NewGraph()
	g.Upsert(toneToFileRoute("r1"))

	if !g.Remove("r1") {
		t.Error("Remove(r1) = false, want true")
	}
	if g.Remove("r1") {
		t.Error("second Remove(r1) = true, want false")
	}
	if _, ok := g.Get("r1"); ok {
		t.Error("Get(r1) found route after removal")
	}
}

func TestGraphReplace(t *testing.T) {
	g := NewGraph()
	g.Upsert(toneToFileRoute("old"))

	g.Replace([]types.Route{toneToFileRoute("n1"), toneToFileRoute("n2")})

	if _, ok := g.Get("old"); ok {
		t.Error("Replace() kept a route from before")
	}
	list := g.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].RouteID != "n1" || list[1].RouteID != "n2" {
		t.Errorf("List() order = [%s %s], want [n1 n2]", list[0].RouteID, list[1].RouteID)
	}
}
