// Package tools provides the route generation MCP tools implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tracemyride/routegen/pkg/attractors"
	"github.com/tracemyride/routegen/pkg/core"
	"github.com/tracemyride/routegen/pkg/elevation"
	"github.com/tracemyride/routegen/pkg/engine"
	"github.com/tracemyride/routegen/pkg/geo"
	"github.com/tracemyride/routegen/pkg/routing"
)

var (
	clientsOnce     sync.Once
	sharedEngine    *engine.Engine
	sharedRouting   *routing.Client
	sharedElevation *elevation.Client
)

// sharedClients lazily builds the package-level routing, elevation,
// and engine instances every handler shares, wiring each upstream
// client exactly once per process.
func sharedClients() (*engine.Engine, *routing.Client, *elevation.Client) {
	clientsOnce.Do(func() {
		sharedRouting = routing.NewClient()
		sharedElevation = elevation.NewClient()
		sharedEngine = engine.New(sharedRouting, sharedElevation, attractors.NewClient())
	})
	return sharedEngine, sharedRouting, sharedElevation
}

// sharedGenerationEngine returns the package-level engine.
func sharedGenerationEngine() *engine.Engine {
	e, _, _ := sharedClients()
	return e
}

// RouteGenerationSystemPrompt describes, for an LLM client, how to
// translate a natural-language ask ("a hilly 8k loop near the
// trailhead") into a generate_route tool call.
func RouteGenerationSystemPrompt() string {
	return `You can generate outdoor running and hiking routes with the generate_route tool.

Given a starting point, a target distance in kilometers, and optionally a
target elevation gain in meters, generate_route returns a routed polyline
that approximates those targets, biased toward nearby trails when any are
found. Use shape "loop" for routes that return to the start via a
different path, and "out_and_back" for routes that retrace their own path.

Use explore_trails to list named hiking/biking relations near a point
before generating a route, when the user wants to know what trails are
nearby rather than get a generated route.`
}

// generateRouteInput is the generate_route tool's parsed request body.
type generateRouteInput struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	DistanceKm       float64  `json:"distance_km"`
	Shape            string   `json:"shape"`
	ElevationTargetM *float64 `json:"elevation_target_m,omitempty"`
	PreferTrails     *bool    `json:"prefer_trails,omitempty"`
	RouteTypes       []string `json:"route_types,omitempty"`
}

// generateRouteOutput is the generate_route tool's JSON response body.
type generateRouteOutput struct {
	Polyline         string              `json:"polyline"`
	DistanceKm       float64             `json:"distance_km"`
	Shape            string              `json:"shape"`
	ElevationGainM   float64             `json:"elevation_gain_m"`
	ElevationLossM   float64             `json:"elevation_loss_m"`
	ElevationProfile []elevationPointOut `json:"elevation_profile,omitempty"`
}

type elevationPointOut struct {
	DistanceKm float64  `json:"distance_km"`
	Elevation  *float64 `json:"elevation_m"`
}

// GenerateRouteTool returns a tool definition for generating outdoor
// running/hiking routes.
func GenerateRouteTool() mcp.Tool {
	return mcp.NewTool("generate_route",
		mcp.WithDescription("Generate a loop or out-and-back outdoor route near a start point, targeting a distance and optionally an elevation gain"),
		mcp.WithNumber("latitude",
			mcp.Required(),
			mcp.Description("Starting point latitude"),
		),
		mcp.WithNumber("longitude",
			mcp.Required(),
			mcp.Description("Starting point longitude"),
		),
		mcp.WithNumber("distance_km",
			mcp.Required(),
			mcp.Description("Target route distance in kilometers"),
		),
		mcp.WithString("shape",
			mcp.Description("Route shape: \"loop\" (default) or \"out_and_back\""),
		),
		mcp.WithNumber("elevation_target_m",
			mcp.Description("Target cumulative elevation gain in meters; omit for a flat-biased route"),
		),
		mcp.WithBoolean("prefer_trails",
			mcp.Description("Bias waypoints toward nearby OSM trail relations (default true)"),
		),
		mcp.WithArray("route_types",
			mcp.Description("OSM route relation types to bias toward (hiking, foot, running, bicycle, mtb); defaults to hiking and foot"),
		),
	)
}

// HandleGenerateRoute implements route generation.
func HandleGenerateRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, _ := GenerateRouteResult(ctx, req)
	return result, nil
}

// GenerateRouteResult is HandleGenerateRoute plus the engine error that
// produced an error result (nil on success or a parse failure), for
// transports that map engine error kinds onto HTTP status codes.
func GenerateRouteResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "generate_route")

	var input generateRouteInput
	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		logger.Error("failed to marshal input", "error", err)
		return ErrorResponse("Invalid input format"), nil
	}
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		logger.Error("failed to parse input", "error", err)
		return ErrorResponse("Invalid input format"), nil
	}
	if input.Shape == "" {
		input.Shape = "loop"
	}
	preferTrails := true
	if input.PreferTrails != nil {
		preferTrails = *input.PreferTrails
	}

	genReq := engine.Request{
		Start:            geo.Location{Latitude: input.Latitude, Longitude: input.Longitude},
		DistanceKm:       input.DistanceKm,
		Shape:            input.Shape,
		ElevationTargetM: input.ElevationTargetM,
		PreferTrails:     preferTrails,
		RouteTypes:       input.RouteTypes,
	}

	result, err := sharedGenerationEngine().Generate(ctx, genReq)
	if err != nil {
		errResult, _ := handleEngineError(logger, "generate_route", err)
		return errResult, err
	}

	polyline := core.EncodePolylinePrecision(result.Polyline, core.DefaultPolylinePrecision)
	output := generateRouteOutput{
		Polyline:       polyline,
		DistanceKm:     math.Round(result.DistanceKm*100) / 100,
		Shape:          result.Shape,
		ElevationGainM: result.ElevationGainM,
		ElevationLossM: result.ElevationLossM,
	}
	for _, s := range result.ElevationProfile {
		output.ElevationProfile = append(output.ElevationProfile, elevationPointOut{
			DistanceKm: s.DistanceKm,
			Elevation:  s.Elevation,
		})
	}

	resultBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}

// exploreTrailsInput is the explore_trails tool's parsed request body.
type exploreTrailsInput struct {
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	RadiusKm   float64  `json:"radius_km"`
	RouteTypes []string `json:"route_types,omitempty"`
}

// ExploreTrailsTool returns a tool definition for listing named trail
// relations near a point without generating a route.
func ExploreTrailsTool() mcp.Tool {
	return mcp.NewTool("explore_trails",
		mcp.WithDescription("List named hiking/biking trail relations near a point"),
		mcp.WithNumber("latitude",
			mcp.Required(),
			mcp.Description("Query center latitude"),
		),
		mcp.WithNumber("longitude",
			mcp.Required(),
			mcp.Description("Query center longitude"),
		),
		mcp.WithNumber("radius_km",
			mcp.Required(),
			mcp.Description("Search radius in kilometers"),
		),
		mcp.WithArray("route_types",
			mcp.Description("OSM route relation types to include (hiking, foot, running, bicycle, mtb); defaults to hiking and foot"),
		),
	)
}

// HandleExploreTrails implements standalone trail exploration.
func HandleExploreTrails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, _ := ExploreTrailsResult(ctx, req)
	return result, nil
}

// ExploreTrailsResult is HandleExploreTrails plus the engine error that
// produced an error result, mirroring GenerateRouteResult.
func ExploreTrailsResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "explore_trails")

	var input exploreTrailsInput
	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		logger.Error("failed to marshal input", "error", err)
		return ErrorResponse("Invalid input format"), nil
	}
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		logger.Error("failed to parse input", "error", err)
		return ErrorResponse("Invalid input format"), nil
	}

	center := geo.Location{Latitude: input.Latitude, Longitude: input.Longitude}
	result, err := sharedGenerationEngine().Explore(ctx, center, input.RadiusKm, input.RouteTypes)
	if err != nil {
		errResult, _ := handleEngineError(logger, "explore_trails", err)
		return errResult, err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}

// handleEngineError maps an engine error to an MCP tool error result,
// attaching recovery guidance appropriate to the failing upstream.
func handleEngineError(logger *slog.Logger, toolName string, err error) (*mcp.CallToolResult, error) {
	switch e := err.(type) {
	case *engine.InvalidInput:
		logger.Error("rejected invalid input", "error", e)
		return ErrorResponse(fmt.Sprintf("%s\n\nExample request:\n%s", e.Error(), GetToolUsageExample(toolName))), nil
	case *engine.UpstreamRouterError:
		logger.Error("routing service failure", "error", e)
		return ErrorWithGuidance(NewAPIError("Router", routerStatusCode(e), e.Error(), routerGuidance(e))), nil
	case *engine.UpstreamOverpassError:
		logger.Error("overpass failure", "error", e)
		return ErrorWithGuidance(NewAPIError("Overpass", 0, e.Error(), overpassGuidance(e))), nil
	default:
		logger.Error("unexpected engine error", "error", err)
		return ErrorResponse("An unexpected error occurred while generating the route"), nil
	}
}

// routerStatusCode extracts the underlying routing.RouterError's status
// code, if any, so NewAPIError's status-based guidance can apply.
func routerStatusCode(e *engine.UpstreamRouterError) int {
	if re, ok := e.Err.(*routing.RouterError); ok {
		return re.StatusCode
	}
	return 0
}

// routerGuidance picks timeout guidance when the underlying failure
// was a context deadline, and the general message otherwise.
func routerGuidance(e *engine.UpstreamRouterError) string {
	if strings.Contains(e.Error(), "deadline exceeded") || strings.Contains(e.Error(), "timeout") {
		return GuidanceRouterTimeout
	}
	return GuidanceRouterGeneral
}

// overpassGuidance maps an attractors.OverpassError's Kind to the
// guidance message matching that failure mode.
func overpassGuidance(e *engine.UpstreamOverpassError) string {
	oe, ok := e.Err.(*attractors.OverpassError)
	if !ok {
		return GuidanceOverpassGeneral
	}
	switch oe.Kind {
	case attractors.KindRateLimit:
		return GuidanceOverpassRateLimit
	case attractors.KindTimeout:
		return GuidanceOverpassTimeout
	default:
		return GuidanceOverpassGeneral
	}
}
