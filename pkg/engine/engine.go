// Package engine orchestrates the waypoint fan generator, bearing
// scout, trail attractors, routing service, and elevation profiler
// into the two entry points the MCP tools call: Generate and Explore.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/tracemyride/routegen/pkg/attractors"
	"github.com/tracemyride/routegen/pkg/core"
	"github.com/tracemyride/routegen/pkg/elevation"
	"github.com/tracemyride/routegen/pkg/fan"
	"github.com/tracemyride/routegen/pkg/geo"
	"github.com/tracemyride/routegen/pkg/routing"
	"github.com/tracemyride/routegen/pkg/scout"
	"github.com/tracemyride/routegen/pkg/spur"
)

// UpstreamRouterError wraps a routing-service failure. It is always
// fatal: without a router there is no route to return.
type UpstreamRouterError struct{ Err error }

func (e *UpstreamRouterError) Error() string { return fmt.Sprintf("routing service: %v", e.Err) }
func (e *UpstreamRouterError) Unwrap() error { return e.Err }

// UpstreamOverpassError wraps an Overpass failure. Generate treats it
// as non-fatal (falls back to an empty attractor bag); a standalone
// Explore call treats it as fatal, since trail relations are the only
// thing it returns.
type UpstreamOverpassError struct{ Err error }

func (e *UpstreamOverpassError) Error() string { return fmt.Sprintf("overpass: %v", e.Err) }
func (e *UpstreamOverpassError) Unwrap() error { return e.Err }

// DemUnavailable wraps an elevation-service failure. Always non-fatal:
// the route still returns, with a nil or empty elevation profile.
type DemUnavailable struct{ Err error }

func (e *DemUnavailable) Error() string { return fmt.Sprintf("elevation service: %v", e.Err) }
func (e *DemUnavailable) Unwrap() error { return e.Err }

// InvalidInput reports a request rejected at the boundary before any
// upstream call was made.
type InvalidInput struct{ Message string }

func (e *InvalidInput) Error() string { return e.Message }

// Request is a route generation request.
type Request struct {
	Start            geo.Location
	DistanceKm       float64
	Shape            string // "loop" or "out_and_back"
	ElevationTargetM *float64
	PreferTrails     bool     // when set, sample trail attractors and bias waypoints toward them
	RouteTypes       []string // Overpass route-relation types to bias toward; nil uses the default set
}

// Result is a generated route: its spur-cleaned geometry, that
// geometry's haversine length, and its elevation profile and gain/loss.
type Result struct {
	Polyline         geo.Polyline
	DistanceKm       float64
	Shape            string
	ElevationProfile elevation.Profile
	ElevationGainM   float64
	ElevationLossM   float64
}

// AttractorsClient is the Overpass dependency the engine needs.
type AttractorsClient interface {
	Attractors(ctx context.Context, center geo.Location, radiusKm float64, types []string) ([]geo.Location, error)
	Explore(ctx context.Context, center geo.Location, radiusKm float64, types []string) (attractors.ExploreResult, error)
}

// Engine wires the route-generation pipeline together.
type Engine struct {
	Router    fan.Router
	Elevation interface {
		fan.ElevationProfiler
		scout.ElevationQuerier
	}
	Attractors AttractorsClient
	logger     *slog.Logger

	seed    int64
	counter atomic.Int64
}

// New builds an Engine from its three upstream clients.
func New(router *routing.Client, elev *elevation.Client, attr *attractors.Client) *Engine {
	return &Engine{
		Router:     router,
		Elevation:  elev,
		Attractors: attr,
		logger:     slog.Default(),
		seed:       time.Now().UnixNano(),
	}
}

// SetLogger sets the engine's logger.
func (e *Engine) SetLogger(logger *slog.Logger) { e.logger = logger }

// nextRand returns a fresh RNG for one generation attempt. math/rand's
// *rand.Rand is not safe for concurrent use, and Generate may run
// concurrently across tool invocations, so each call gets its own
// source instead of sharing one behind a lock.
func (e *Engine) nextRand() *rand.Rand {
	n := e.counter.Add(1)
	return rand.New(rand.NewSource(e.seed + n))
}

const outAndBackScoutRadiusFactor = 0.35

// scoutRadiusKm derives the radius at which the bearing scout and the
// attractor query operate, from the requested distance and shape: a
// loop scouts at the radius of a circle with that circumference
// (distance/2π); an out-and-back scouts at 0.35x the distance.
func scoutRadiusKm(distanceKm float64, shape string) float64 {
	if shape == "out_and_back" {
		return distanceKm * outAndBackScoutRadiusFactor
	}
	return distanceKm / (2 * math.Pi)
}

// Generate runs the full pipeline: fetch trail attractors, scout a
// bearing, fan out waypoints and route them, remove spurs, and profile
// elevation. Router failures are fatal (UpstreamRouterError); Overpass
// and DEM failures degrade gracefully.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := core.ValidateGenerationRequest(req.Start.Latitude, req.Start.Longitude, req.DistanceKm, req.Shape, req.ElevationTargetM); err != nil {
		return nil, &InvalidInput{Message: err.Error()}
	}

	radiusKm := scoutRadiusKm(req.DistanceKm, req.Shape)

	var attractorBag []geo.Location
	if req.PreferTrails && e.Attractors != nil {
		bag, err := e.Attractors.Attractors(ctx, req.Start, radiusKm, req.RouteTypes)
		if err != nil {
			e.logger.Warn("trail attractor lookup failed, continuing without it", "error", err)
		} else {
			attractorBag = bag
		}
	}

	var uphillBearing *float64
	if req.ElevationTargetM != nil {
		b := scout.UphillBearing(ctx, req.Start, radiusKm, attractorBag, e.Elevation, e.nextRand())
		uphillBearing = &b
	} else {
		uphillBearing = scout.TrailBearing(req.Start, attractorBag)
	}

	fanReq := fan.Request{Start: req.Start, DistanceKm: req.DistanceKm, ElevationTargetM: req.ElevationTargetM}

	var attempt fan.Result
	var err error
	switch req.Shape {
	case "out_and_back":
		attempt, err = fan.GenerateOutAndBack(ctx, fanReq, uphillBearing, attractorBag, e.Router, e.Elevation, e.nextRand())
	default:
		attempt, err = fan.GenerateLoop(ctx, fanReq, uphillBearing, attractorBag, e.Router, e.Elevation, e.nextRand())
	}
	if err != nil {
		return nil, &UpstreamRouterError{Err: err}
	}

	cleaned := spur.Remove(attempt.Polyline)

	profile, err := e.Elevation.Profile(ctx, cleaned)
	if err != nil {
		e.logger.Warn("elevation profile unavailable, returning route without it", "error", &DemUnavailable{Err: err})
		profile = nil
	}
	gain, loss := elevation.GainLoss(profile)

	return &Result{
		Polyline:         cleaned,
		DistanceKm:       geo.PolylineLength(cleaned),
		Shape:            req.Shape,
		ElevationProfile: profile,
		ElevationGainM:   gain,
		ElevationLossM:   loss,
	}, nil
}

// Explore runs a standalone trail-relation query with no route
// generation attached. Unlike Generate, an Overpass failure here is
// fatal: trail relations are the only thing this call returns.
func (e *Engine) Explore(ctx context.Context, center geo.Location, radiusKm float64, types []string) (*attractors.ExploreResult, error) {
	if err := core.ValidateCoords(center.Latitude, center.Longitude); err != nil {
		return nil, &InvalidInput{Message: err.Error()}
	}
	if err := core.ValidateRadius(radiusKm*1000, osmExploreMaxRadiusM); err != nil {
		return nil, &InvalidInput{Message: err.Error()}
	}

	result, err := e.Attractors.Explore(ctx, center, radiusKm, types)
	if err != nil {
		return nil, &UpstreamOverpassError{Err: err}
	}
	return &result, nil
}

// osmExploreMaxRadiusM bounds a standalone explore query; generation
// itself derives its own (smaller) query radius from distanceKm.
const osmExploreMaxRadiusM = 50000
