package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// Graph is the authoritative store of configured routes. Routes are kept
// in insertion order so listings are stable across calls. It is safe for
// concurrent use.
type Graph struct {
	mu     sync.RWMutex
	routes map[string]*types.Route
	order  []string
}

// NewGraph creates an empty route graph.
func NewGraph() *Graph {
	return &Graph{
		routes: make(map[string]*types.Route),
	}
}

// DeviceLookup resolves a device id to its direction. The second return
// value reports whether the device exists in the current catalog.
type DeviceLookup func(deviceID string) (types.Direction, bool)

// ValidateRoute checks a route's topology: node kinds must match their
// position, and every device reference must resolve in the catalog with
// the right direction. Returned errors are either *types.ValidationError
// or *types.UnknownDeviceError.
func ValidateRoute(route *types.Route, lookup DeviceLookup) error {
	v := types.NewValidationError()

	if !types.SourceKinds[route.Source.Kind] {
		v.Add("source.kind", "not a valid source kind", string(route.Source.Kind))
	}
	for i := range route.Processors {
		if !types.ProcessorKinds[route.Processors[i].Kind] {
			v.Add("processors.kind", "not a valid processor kind", string(route.Processors[i].Kind))
		}
	}
	if !types.SinkKinds[route.Sink.Kind] {
		v.Add("sink.kind", "not a valid sink kind", string(route.Sink.Kind))
	}
	if v.HasErrors() {
		return v
	}

	if id := route.Source.DeviceID; id != "" {
		dir, ok := lookup(id)
		if !ok {
			return &types.UnknownDeviceError{DeviceID: id, Field: "source"}
		}
		if (route.Source.Kind == types.KindMic || route.Source.Kind == types.KindLoopback) && dir != types.DirectionCapture {
			v.Add("source.device_id", "device is not a capture device", id)
		}
	}
	if id := route.Sink.DeviceID; id != "" {
		dir, ok := lookup(id)
		if !ok {
			return &types.UnknownDeviceError{DeviceID: id, Field: "sink"}
		}
		if route.Sink.Kind == types.KindSpeakers && dir != types.DirectionPlayback {
			v.Add("sink.device_id", "device is not a playback device", id)
		}
	}
	if v.HasErrors() {
		return v
	}
	return nil
}

// Upsert inserts a route or replaces an existing one with the same id.
// An empty route id receives a generated one. The stored copy is
// returned.
func (g *Graph) Upsert(route types.Route) types.Route {
	g.mu.Lock()
	defer g.mu.Unlock()

	if route.RouteID == "" {
		route.RouteID = uuid.NewString()
	}

	if existing, ok := g.routes[route.RouteID]; ok {
		route.CreatedAt = existing.CreatedAt
		*existing = route
		return route
	}

	route.CreatedAt = time.Now().Unix()
	stored := route
	g.routes[route.RouteID] = &stored
	g.order = append(g.order, route.RouteID)
	return route
}

// Remove deletes a route by id. Removing a route that does not exist is
// a no-op; the return value reports whether a route was deleted.
func (g *Graph) Remove(routeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.routes[routeID]; !ok {
		return false
	}
	delete(g.routes, routeID)
	for i, id := range g.order {
		if id == routeID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the route with the given id.
func (g *Graph) Get(routeID string) (types.Route, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	route, ok := g.routes[routeID]
	if !ok {
		return types.Route{}, false
	}
	return *route, true
}

// List returns copies of all routes in insertion order.
func (g *Graph) List() []types.Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.Route, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.routes[id])
	}
	return out
}

// Replace swaps the whole graph contents, preserving the given order.
// Used when loading persisted routes at startup.
func (g *Graph) Replace(routes []types.Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = make(map[string]*types.Route, len(routes))
	g.order = g.order[:0]
	for i := range routes {
		route := routes[i]
		if route.RouteID == "" {
			route.RouteID = uuid.NewString()
		}
		if _, ok := g.routes[route.RouteID]; ok {
			continue
		}
		g.routes[route.RouteID] = &route
		g.order = append(g.order, route.RouteID)
	}
}
