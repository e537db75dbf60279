// Package tools provides the route generation MCP tools implementations.
package tools

import (
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// APIError represents an error that occurred while communicating with
// an external API service, with information to help users recover.
type APIError struct {
	Service     string // The API service name (e.g., "Router", "Overpass")
	StatusCode  int    // HTTP status code
	Message     string // Error message
	Recoverable bool   // Whether the error can be recovered from
	Guidance    string // Guidance for users on how to recover
}

// Error implements the error interface and provides a formatted error message.
func (e *APIError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s API error (%d): %s. %s", e.Service, e.StatusCode, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Service, e.StatusCode, e.Message)
}

// Common error guidance messages
const (
	// Overpass guidance
	GuidanceOverpassTimeout   = "Consider simplifying your query by reducing the search radius or adding more specific filters."
	GuidanceOverpassRateLimit = "The Overpass API is currently experiencing high load. Please try again in a minute."
	GuidanceOverpassGeneral   = "Try a smaller search radius or fewer search criteria."

	// Routing-service guidance
	GuidanceRouterTimeout = "The routing request timed out. Try a shorter distance or check your internet connection."
	GuidanceRouterGeneral = "Check that the start point is reachable on foot and try again."

	// Generic guidance
	GuidanceGeneral = "Please try again later or modify your request parameters."
)

// NewAPIError creates a new APIError with appropriate guidance based on status code.
func NewAPIError(service string, statusCode int, message, guidance string) *APIError {
	// Use provided guidance if available, otherwise infer based on status code
	if guidance == "" {
		switch statusCode {
		case http.StatusTooManyRequests:
			guidance = "Rate limit exceeded. Please try again in a few moments."
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			guidance = "The request timed out. Try reducing the search area or simplifying the query."
		case http.StatusBadRequest:
			guidance = "The request was invalid. Check your parameters and try again."
		case http.StatusInternalServerError:
			guidance = "The server encountered an error. This is likely temporary, please try again later."
		case http.StatusServiceUnavailable:
			guidance = "The service is temporarily unavailable. Please try again later."
		default:
			guidance = GuidanceGeneral
		}
	}

	return &APIError{
		Service:     service,
		StatusCode:  statusCode,
		Message:     message,
		Recoverable: statusCode != http.StatusBadRequest, // Most errors except bad requests are recoverable
		Guidance:    guidance,
	}
}

// ErrorResponse builds a plain MCP error result from a message string.
// Handlers use this for validation and parsing failures that don't carry
// the richer APIError/MCPError structure.
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ErrorWithGuidance returns a properly formatted error response with user guidance.
func ErrorWithGuidance(err *APIError) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s\n\nGuidance: %s", err.Message, err.Guidance)
	return mcp.NewToolResultError(errorText)
}

// GetToolUsageExample returns an example JSON snippet for using a specific tool
// This is helpful for providing guidance when parameter validation fails
func GetToolUsageExample(toolName string) string {
	examples := map[string]string{
		"generate_route": `{
  "latitude": 46.5197,
  "longitude": 6.6323,
  "distance_km": 10,
  "shape": "loop",
  "elevation_target_m": 300
}`,
		"explore_trails": `{
  "latitude": 46.5197,
  "longitude": 6.6323,
  "radius_km": 5,
  "route_types": ["hiking", "foot"]
}`,
		"snap_to_trail": `{
  "latitude": 46.5197,
  "longitude": 6.6323
}`,
		"polyline_decode": `{
  "polyline": "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"
}`,
		"polyline_encode": `{
  "points": [
    {"latitude": 40.7128, "longitude": -74.0060},
    {"latitude": 40.7580, "longitude": -73.9855}
  ]
}`,
	}

	if example, exists := examples[toolName]; exists {
		return example
	}

	// Generic example if not found
	return `{
  "latitude": 40.7128,
  "longitude": -74.0060
}`
}
