// Package routing talks to the external road/trail routing service: it
// turns an ordered waypoint list into a routed polyline and distance,
// biased toward off-road trails.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tracemyride/routegen/pkg/core"
	"github.com/tracemyride/routegen/pkg/geo"
	"github.com/tracemyride/routegen/pkg/osm"
)

// DefaultCosting is the routing-service costing model used for all
// generated routes: a pedestrian profile biased toward trails.
const DefaultCosting = "pedestrian"

// IntermediateSearchRadius is the per-waypoint snap radius (meters)
// handed to the router so it can attach a geometric waypoint to the
// nearest edge instead of failing when the point is off-network.
const IntermediateSearchRadius = 500

// requestTimeout is the routing-service call timeout.
const requestTimeout = 30 * time.Second

// locateTimeout is the timeout for the auxiliary /locate probe.
const locateTimeout = 10 * time.Second

// TrailCostingOptions strongly prefers off-road paths (low road-use
// weight), admits hard alpine hiking grade, and keeps sidewalk
// presence from reclassifying roads as trails.
var TrailCostingOptions = map[string]any{
	"pedestrian": map[string]any{
		"use_roads":             0.1,
		"max_hiking_difficulty": 3,
		"sidewalk_factor":       1.5,
	},
}

// RouterError reports a non-200 or network failure from the routing
// service. The engine maps it to "upstream router unavailable".
type RouterError struct {
	StatusCode int
	Message    string
}

func (e *RouterError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("router error: %s", e.Message)
	}
	return fmt.Sprintf("router error %d: %s", e.StatusCode, e.Message)
}

type locationReq struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius int     `json:"radius"`
	Type   string  `json:"type,omitempty"`
}

type routeRequest struct {
	Locations         []locationReq  `json:"locations"`
	Costing           string         `json:"costing"`
	CostingOptions    map[string]any `json:"costing_options"`
	DirectionsOptions struct {
		Units string `json:"units"`
	} `json:"directions_options"`
}

type routeResponse struct {
	Trip struct {
		Legs []struct {
			Summary struct {
				Length float64 `json:"length"`
			} `json:"summary"`
			Shape string `json:"shape"`
		} `json:"legs"`
	} `json:"trip"`
}

// cacheEntry is what the LRU route cache stores per waypoint plan.
type cacheEntry struct {
	Polyline   geo.Polyline
	DistanceKm float64
}

// Client is the routing-service client. Routes are cached by waypoint
// plan + costing; the fan generator re-requests identical plans when
// its refinement converges early.
type Client struct {
	baseURL string
	logger  *slog.Logger

	cacheOnce sync.Once
	cache     *lru.Cache[string, *cacheEntry]
}

// NewClient creates a routing-service client against the shared router
// base URL.
func NewClient() *Client {
	return &Client{baseURL: osm.RouterBaseURL, logger: slog.Default()}
}

// SetLogger sets the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

func (c *Client) initCache() {
	c.cacheOnce.Do(func() {
		cache, err := lru.New[string, *cacheEntry](256)
		if err != nil {
			c.logger.Error("failed to initialize route cache", "error", err)
			return
		}
		c.cache = cache
	})
}

func cacheKey(waypoints geo.Polyline, costing string) string {
	var b strings.Builder
	b.WriteString(costing)
	for _, p := range waypoints {
		fmt.Fprintf(&b, "|%.6f,%.6f", p.Latitude, p.Longitude)
	}
	return b.String()
}

// Route requests a route through waypoints (first and last are hard
// stops, interior points are flagged pass-through) and returns the
// concatenated decoded polyline and total distance in kilometers. The
// duplicated junction vertex between consecutive legs is dropped.
func (c *Client) Route(ctx context.Context, waypoints geo.Polyline, costing string) (geo.Polyline, float64, error) {
	if len(waypoints) < 2 {
		return nil, 0, &RouterError{Message: "at least two waypoints are required"}
	}
	if costing == "" {
		costing = DefaultCosting
	}

	c.initCache()
	key := cacheKey(waypoints, costing)
	if c.cache != nil {
		if entry, ok := c.cache.Get(key); ok {
			return entry.Polyline, entry.DistanceKm, nil
		}
	}

	locations := make([]locationReq, len(waypoints))
	for i, wp := range waypoints {
		loc := locationReq{Lat: wp.Latitude, Lon: wp.Longitude, Radius: IntermediateSearchRadius}
		if i > 0 && i < len(waypoints)-1 {
			loc.Type = "through"
		}
		locations[i] = loc
	}

	body := routeRequest{
		Locations:      locations,
		Costing:        costing,
		CostingOptions: TrailCostingOptions,
	}
	body.DirectionsOptions.Units = "kilometers"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling route request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := core.WithRetryFactory(ctx, func() (*http.Request, error) {
		return newJSONRequest(ctx, http.MethodPost, c.baseURL+"/route", payload)
	}, osm.GetClient(ctx), core.DefaultRetryOptions)
	if err != nil {
		routerErr := &RouterError{Message: err.Error()}
		var mcpErr *core.MCPError
		if errors.As(err, &mcpErr) {
			routerErr.StatusCode = mcpErr.StatusCode
		}
		return nil, 0, routerErr
	}
	defer resp.Body.Close()

	var parsed routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, &RouterError{Message: fmt.Sprintf("decoding response: %v", err)}
	}

	var totalKm float64
	var polyline geo.Polyline
	for _, leg := range parsed.Trip.Legs {
		totalKm += leg.Summary.Length

		decoded, err := core.DecodePolylinePrecision(leg.Shape, core.RouterPolylinePrecision)
		if err != nil {
			return nil, 0, &RouterError{Message: fmt.Sprintf("decoding leg shape: %v", err)}
		}
		if len(polyline) > 0 && len(decoded) > 0 {
			decoded = decoded[1:] // drop duplicated junction vertex
		}
		polyline = append(polyline, decoded...)
	}

	if c.cache != nil {
		c.cache.Add(key, &cacheEntry{Polyline: polyline, DistanceKm: totalKm})
	}

	return polyline, totalKm, nil
}

// SnapToTrail uses the routing service's /locate endpoint to find the
// nearest trail/path/track edge near a point. It returns nil (not an
// error) if no such edge is found within radiusM — callers treat this
// as "no better point available", not a failure.
func (c *Client) SnapToTrail(ctx context.Context, loc geo.Location, radiusM int) (*geo.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, locateTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"locations": []map[string]any{{"lat": loc.Latitude, "lon": loc.Longitude, "radius": radiusM}},
		"costing":   DefaultCosting,
		"verbose":   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling locate request: %w", err)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+"/locate", payload)
	if err != nil {
		return nil, nil
	}

	resp, err := osm.MonitoredDoRequest(ctx, req, "locate")
	if err != nil {
		return nil, nil //nolint:nilerr // best-effort probe, never fails the caller
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var results []struct {
		Edges []struct {
			CorrelatedLat *float64 `json:"correlated_lat"`
			CorrelatedLon *float64 `json:"correlated_lon"`
			Edge          struct {
				Classification struct {
					Use string `json:"use"`
				} `json:"classification"`
			} `json:"edge"`
		} `json:"edges"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, nil
	}

	preferredUses := map[string]bool{"path": true, "footway": true, "track": true, "trail": true}
	for _, r := range results {
		for _, e := range r.Edges {
			if !preferredUses[e.Edge.Classification.Use] {
				continue
			}
			if e.CorrelatedLat != nil && e.CorrelatedLon != nil {
				return &geo.Location{Latitude: *e.CorrelatedLat, Longitude: *e.CorrelatedLon}, nil
			}
		}
	}
	return nil, nil
}

func newJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
