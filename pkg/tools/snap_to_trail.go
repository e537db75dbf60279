package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tracemyride/routegen/pkg/core"
	"github.com/tracemyride/routegen/pkg/geo"
)

// snapRadiusM is the default search radius used when snapping a point
// to the nearest trail edge.
const snapRadiusM = 100

type snapToTrailInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type snapToTrailOutput struct {
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	ElevationM    *float64 `json:"elevation_m,omitempty"`
	DistanceFromM float64  `json:"distance_from_input_m"`
}

// SnapToTrailTool returns a tool definition for snapping a point to
// the nearest trail edge the routing service knows about.
func SnapToTrailTool() mcp.Tool {
	return mcp.NewTool("snap_to_trail",
		mcp.WithDescription("Snap a point to the nearest trail edge known to the routing service, with its elevation"),
		mcp.WithNumber("latitude",
			mcp.Required(),
			mcp.Description("Point latitude"),
		),
		mcp.WithNumber("longitude",
			mcp.Required(),
			mcp.Description("Point longitude"),
		),
	)
}

// HandleSnapToTrail implements point-to-trail snapping.
func HandleSnapToTrail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "snap_to_trail")

	var input snapToTrailInput
	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		logger.Error("failed to marshal input", "error", err)
		return ErrorResponse("Invalid input format"), nil
	}
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		logger.Error("failed to parse input", "error", err)
		return ErrorResponse("Invalid input format"), nil
	}

	if err := core.ValidateCoords(input.Latitude, input.Longitude); err != nil {
		logger.Error("invalid coordinates", "error", err)
		return ErrorResponse(err.Error()), nil
	}

	loc := geo.Location{Latitude: input.Latitude, Longitude: input.Longitude}
	_, routingClient, elevationClient := sharedClients()

	snapped, err := routingClient.SnapToTrail(ctx, loc, snapRadiusM)
	if err != nil {
		logger.Error("snap to trail failed", "error", err)
		return ErrorResponse("Unable to snap point to a trail: " + err.Error()), nil
	}
	if snapped == nil {
		logger.Info("no trail edge found near point", "latitude", input.Latitude, "longitude", input.Longitude)
		return ErrorResponse("No trail found within range of that point"), nil
	}

	output := snapToTrailOutput{
		Latitude:      snapped.Latitude,
		Longitude:     snapped.Longitude,
		DistanceFromM: geo.Haversine(loc, *snapped) * 1000,
	}

	profile, err := elevationClient.Profile(ctx, geo.Polyline{*snapped})
	if err != nil {
		logger.Warn("elevation lookup failed for snapped point", "error", err)
	} else if len(profile) > 0 {
		output.ElevationM = profile[0].Elevation
	}

	resultBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}
