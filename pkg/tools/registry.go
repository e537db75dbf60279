// Package tools provides the route generation MCP tools implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracemyride/routegen/pkg/tracing"
)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger *slog.Logger
}

// NewRegistry creates a new tool registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// ToolDefinition represents a route generation MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this route generation MCP",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},
		{
			Name:        "get_capabilities",
			Description: "Get the list of available tools and their descriptions",
			Tool:        GetCapabilitiesTool(),
			Handler:     HandleGetCapabilities,
		},
		{
			Name:        "generate_route",
			Description: "Generate a loop or out-and-back outdoor route near a start point, targeting a distance and optionally an elevation gain",
			Tool:        GenerateRouteTool(),
			Handler:     HandleGenerateRoute,
		},
		{
			Name:        "explore_trails",
			Description: "List named hiking/biking trail relations near a point",
			Tool:        ExploreTrailsTool(),
			Handler:     HandleExploreTrails,
		},
		{
			Name:        "snap_to_trail",
			Description: "Snap a point to the nearest trail edge known to the routing service",
			Tool:        SnapToTrailTool(),
			Handler:     HandleSnapToTrail,
		},
		{
			Name:        "polyline_decode",
			Description: "Decode a polyline string into a series of coordinates",
			Tool:        PolylineDecodeTool(),
			Handler:     HandlePolylineDecode,
		},
		{
			Name:        "polyline_encode",
			Description: "Encode a series of coordinates into a polyline string",
			Tool:        PolylineEncodeTool(),
			Handler:     HandlePolylineEncode,
		},
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		tracedHandler := r.wrapWithTracing(def.Name, def.Handler)
		mcpServer.AddTool(def.Tool, tracedHandler)
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing
func (r *Registry) wrapWithTracing(toolName string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		durationMs := time.Since(startTime).Milliseconds()

		status := tracing.StatusSuccess
		if err != nil {
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(
			attribute.String(tracing.AttrMCPToolStatus, status),
			attribute.Int64(tracing.AttrMCPToolDuration, durationMs),
			attribute.Int(tracing.AttrMCPResultSize, resultSize),
		)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// RegisterPrompts registers all prompts with the MCP server. The
// route-generation system prompt itself is registered directly by the
// server package, which needs its prompt handler closure to reference
// the running server; this hook exists for any future prompt that
// doesn't.
func (r *Registry) RegisterPrompts(mcpServer *server.MCPServer) {
	r.logger.Debug("no standalone prompts to register")
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

type registryContextKey struct{}

// RegisterAll registers all tools and prompts with the MCP server.
func (r *Registry) RegisterAll(mcpServer *server.MCPServer) {
	registryCtx := context.WithValue(context.Background(), registryContextKey{}, r)
	mcpServer.WithContext(registryCtx, nil)

	r.RegisterTools(mcpServer)
	r.RegisterPrompts(mcpServer)
}
