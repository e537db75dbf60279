// Package server provides the MCP server implementation for the route generation engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tracemyride/routegen/pkg/engine"
	"github.com/tracemyride/routegen/pkg/tools"
)

const (
	// ServerName is the name of the MCP server
	ServerName = "routegen-mcp-server"

	// ServerVersion is the version of the MCP server
	ServerVersion = "0.1.0"
)

// Server encapsulates the MCP server with the route generation tools.
type Server struct {
	srv          *mcpserver.MCPServer
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	running      bool
	mu           sync.Mutex
	once         sync.Once // Ensure we only close stopCh once
	ctxCancel    context.CancelFunc
	ctxGoroutine sync.Once // Ensure we only start one context goroutine
}

// NewServer creates a new route generation MCP server with all tools registered.
func NewServer() (*Server, error) {
	logger := slog.Default()
	logger.Info("initializing route generation MCP server",
		"name", ServerName,
		"version", ServerVersion)

	// Create MCP server with options
	srv := mcpserver.NewMCPServer(
		ServerName,
		ServerVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	// Create tool registry and register all tools and prompts
	registry := tools.NewRegistry(logger)
	registry.RegisterAll(srv)

	// Register the route-generation system prompt using the v0.28.0+ API
	routeGenPrompt := mcp.NewPrompt("route_generation_system",
		mcp.WithPromptDescription("System prompt describing how to request generated outdoor routes"),
	)

	srv.AddPrompt(routeGenPrompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return mcp.NewGetPromptResult(
			"Route Generation System Instructions",
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleAssistant,
					mcp.NewTextContent(tools.RouteGenerationSystemPrompt()),
				),
			},
		), nil
	})

	return &Server{
		srv:    srv,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Run starts the MCP server using stdin/stdout for communication.
// This method blocks until the server is stopped or an error occurs.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	// Run the server in a goroutine
	go func() {
		defer close(s.doneCh)
		err := mcpserver.ServeStdio(s.srv)
		if err != nil && err != io.EOF {
			s.logger.Error("MCP server error", "error", err)
		} else if err == io.EOF {
			s.logger.Info("stdin closed, shutting down server gracefully")
		}

		// Ensure the main Run loop is notified that the
		// server has finished processing.
		s.Shutdown()
	}()

	// Wait for stop signal
	<-s.stopCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	// Wait for server to finish before returning
	<-s.doneCh
	return nil
}

// RunWithContext starts the MCP server and allows for graceful shutdown via context.
// This method blocks until the context is canceled or an error occurs.
func (s *Server) RunWithContext(ctx context.Context) error {
	// Create a goroutine to watch the context for cancellation
	s.ctxGoroutine.Do(func() {
		// Create a derived context that we can cancel
		derived, cancel := context.WithCancel(ctx)
		s.ctxCancel = cancel

		go func() {
			select {
			case <-derived.Done():
				s.Shutdown()
			case <-s.stopCh:
				// Already being shut down
			}
		}()

		// Start parent process monitoring as a fallback for stdio transport
		// This ensures the server shuts down if the parent process exits unexpectedly
		go s.monitorParentProcess()
	})

	return s.Run()
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately.
// Using sync.Once to ensure we don't close an already closed channel.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	// Signal the server to stop using sync.Once to avoid panics
	// on double close of the channel
	s.once.Do(func() {
		close(s.stopCh)
	})

	// Cancel the context if we have one
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// WaitForShutdown blocks until the server has fully shut down.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Handler represents the HTTP server handler
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new server handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path
	method := r.Method

	// Add request ID to context
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = generateRequestID()
	}
	// Not using ctx here, so no need to create and update it
	// Directly use the reqID for logging

	// Log request
	h.logger.Info("request started",
		"request_id", reqID,
		"method", method,
		"path", path,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent())

	// Handle request
	var status int
	var err error

	switch {
	case path == "/health":
		status, err = h.handleHealth(w, r)
	case path == "/api/v1/generate":
		status, err = h.handleGenerate(w, r)
	case path == "/api/v1/explore":
		status, err = h.handleExplore(w, r)
	case path == "/api/v1/snap":
		status, err = h.handleSnap(w, r)
	default:
		http.NotFound(w, r)
		status = http.StatusNotFound
		err = nil
	}

	// Log response
	duration := time.Since(start)
	if err != nil {
		h.logger.Error("request failed",
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"duration", duration,
			"error", err)
	} else {
		h.logger.Info("request completed",
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"duration", duration)
	}
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		h.logger.Error("failed to write health response", "error", err)
		return http.StatusOK, err // Status already written, but return error for logging
	}

	return http.StatusOK, nil
}

// handleGenerate bridges a plain HTTP POST to the generate_route MCP tool,
// mirroring the shape of the surrounding API's /api/v1/generate endpoint.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) (int, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, err
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      "generate_route",
			Arguments: body,
		},
	}

	result, engineErr := tools.GenerateRouteResult(r.Context(), req)
	return writeToolResult(w, h.logger, result, engineErr)
}

// handleExplore bridges a plain HTTP POST to the explore_trails MCP tool.
func (h *Handler) handleExplore(w http.ResponseWriter, r *http.Request) (int, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, err
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      "explore_trails",
			Arguments: body,
		},
	}

	result, engineErr := tools.ExploreTrailsResult(r.Context(), req)
	return writeToolResult(w, h.logger, result, engineErr)
}

// handleSnap bridges a plain HTTP POST to the snap_to_trail MCP tool.
func (h *Handler) handleSnap(w http.ResponseWriter, r *http.Request) (int, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, err
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      "snap_to_trail",
			Arguments: body,
		},
	}

	result, err := tools.HandleSnapToTrail(r.Context(), req)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	return writeToolResult(w, h.logger, result, nil)
}

// writeToolResult renders an MCP tool result as a plain HTTP JSON
// response. The engine error behind an error result picks the status:
// upstream failures map to 502, everything else (invalid input, parse
// failures, no-result conditions) to 400. Non-fatal degradations never
// produce an error result, so they pass through as 200.
func writeToolResult(w http.ResponseWriter, logger *slog.Logger, result *mcp.CallToolResult, engineErr error) (int, error) {
	var content string
	for _, c := range result.Content {
		if t, ok := c.(mcp.TextContent); ok {
			content = t.Text
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.IsError {
		status = httpStatusForEngineError(engineErr)
	}
	w.WriteHeader(status)

	if _, err := w.Write([]byte(content)); err != nil {
		logger.Error("failed to write tool response", "error", err)
		return status, err
	}

	return status, nil
}

// httpStatusForEngineError maps an engine error kind to the HTTP status
// the JSON bridge reports for an error result.
func httpStatusForEngineError(err error) int {
	var routerErr *engine.UpstreamRouterError
	var overpassErr *engine.UpstreamOverpassError
	if errors.As(err, &routerErr) || errors.As(err, &overpassErr) {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return time.Now().Format("20060102150405.000000000")
}

// monitorParentProcess monitors the parent process and shuts down the server
// when the parent process exits. This serves as a fallback mechanism in case
// stdin EOF detection fails. The primary shutdown mechanism should be EOF on stdin.
func (s *Server) monitorParentProcess() {
	ppid := os.Getppid()
	s.logger.Debug("starting parent process monitor as fallback", "ppid", ppid)

	// Check parent process every 30 seconds (less aggressive than primary EOF detection)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			// Server is already shutting down
			return
		case <-ticker.C:
			// Check if parent process still exists
			if !isProcessRunning(ppid) {
				s.logger.Info("parent process has exited (fallback detection), shutting down server", "ppid", ppid)
				s.Shutdown()
				return
			}
		}
	}
}

// isProcessRunning checks if a process with the given PID is still running
func isProcessRunning(pid int) bool {
	// On Unix systems, sending signal 0 to a process checks if it exists
	// without actually sending a signal
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 (syscall.Signal(0)) to check if process exists
	// This is a Unix convention - signal 0 checks process existence without sending a real signal
	err = process.Signal(syscall.Signal(0))
	if err != nil {
		// Process doesn't exist or we don't have permission
		return false
	}

	return true
}
