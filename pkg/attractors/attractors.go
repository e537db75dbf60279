// Package attractors fetches OSM route relations from an Overpass-style
// endpoint, assembles their member ways into line geometries, and
// samples points along them as trail attractors that bias waypoint
// placement toward known trails.
package attractors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tracemyride/routegen/pkg/core"
	"github.com/tracemyride/routegen/pkg/geo"
	"github.com/tracemyride/routegen/pkg/osm"
)

// allowedRouteTypes is the route-tag allow-list; anything else is
// dropped from the query.
var allowedRouteTypes = map[string]bool{
	"hiking": true, "foot": true, "running": true, "bicycle": true, "mtb": true,
}

// defaultRouteTypes is used when the caller-supplied list has nothing
// left after filtering against the allow-list.
var defaultRouteTypes = []string{"hiking", "foot"}

// DefaultSampleIntervalKm is the spacing between sampled attractor
// points along an assembled trail geometry.
const DefaultSampleIntervalKm = 0.2

// requestTimeout is the Overpass call timeout.
const requestTimeout = 60 * time.Second

// exploreCacheTTL bounds how long an assembled relation set is reused.
// Trail relations change rarely; caching keeps repeat generation
// requests around the same start point off the rate-limited Overpass
// endpoint.
const exploreCacheTTL = 10 * time.Minute

// OverpassError reports a failure from the Overpass endpoint: timeout,
// rate limit, or a generic non-200. The engine treats it as non-fatal
// for generation (empty attractor bag) and fatal for a pure explore.
type OverpassError struct {
	Kind    Kind
	Message string
}

// Kind distinguishes Overpass failure modes for callers that need to
// react differently (e.g. retry after a rate limit, not after a parse
// error).
type Kind int

const (
	// KindGeneric covers any non-200, non-rate-limit response.
	KindGeneric Kind = iota
	// KindTimeout is a client-side timeout or a network cancellation.
	KindTimeout
	// KindRateLimit is an HTTP 429 response.
	KindRateLimit
)

func (e *OverpassError) Error() string { return e.Message }

// Relation is an assembled OSM route relation: its tags plus the
// merged line geometry (one or more polylines — a route relation's
// member ways don't always connect into a single line).
type Relation struct {
	OSMID      int64          `json:"osm_id"`
	Name       string         `json:"name,omitempty"`
	Ref        string         `json:"ref,omitempty"`
	RouteType  string         `json:"route_type"`
	Network    string         `json:"network,omitempty"`
	DistanceKm float64        `json:"distance_km"`
	Lines      []geo.Polyline `json:"lines"`
}

// ExploreResult is the response shape for a standalone trail-relation
// query: the assembled relations plus the query parameters used.
type ExploreResult struct {
	Routes        []Relation `json:"routes"`
	QueryCenter   geo.Location
	QueryRadiusKm float64
}

type overpassResponse struct {
	Elements []osm.OverpassElement `json:"elements"`
}

// Client queries the OSM Overpass endpoint.
type Client struct {
	baseURL string
	logger  *slog.Logger
	cache   *osm.TTLCache[string, ExploreResult]
}

// NewClient creates an Overpass client against the shared Overpass
// base URL.
func NewClient() *Client {
	return &Client{
		baseURL: osm.OverpassBaseURL,
		logger:  slog.Default(),
		cache:   osm.NewTTLCache[string, ExploreResult](exploreCacheTTL),
	}
}

// SetLogger sets the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

func sanitizeRouteTypes(types []string) []string {
	filtered := make([]string, 0, len(types))
	for _, t := range types {
		if allowedRouteTypes[t] {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return defaultRouteTypes
	}
	return filtered
}

// Explore queries Overpass for route relations within radiusKm of
// center matching types (filtered against the allow-list), and
// assembles each relation's member ways into line geometry.
func (c *Client) Explore(ctx context.Context, center geo.Location, radiusKm float64, types []string) (ExploreResult, error) {
	routeTypes := sanitizeRouteTypes(types)
	radiusM := int(radiusKm * 1000)
	query := core.BuildRouteRelationQuery(center.Latitude, center.Longitude, radiusM, strings.Join(routeTypes, "|"))

	if c.cache != nil {
		if cached, ok := c.cache.Get(query); ok {
			return cached, nil
		}
	}

	elements, err := c.run(ctx, query)
	if err != nil {
		return ExploreResult{}, err
	}

	nodes, ways, relations := indexElements(elements)

	routes := make([]Relation, 0, len(relations))
	for _, rel := range relations {
		if r, ok := assembleRelation(rel, ways, nodes); ok {
			routes = append(routes, r)
		}
	}

	result := ExploreResult{Routes: routes, QueryCenter: center, QueryRadiusKm: radiusKm}
	if c.cache != nil {
		c.cache.Set(query, result)
	}
	return result, nil
}

// Attractors is the convenience form of Explore used by the waypoint
// generator: it flattens every assembled relation's geometry into a
// bag of sampled GeoPoints (duplicates allowed — density matters more
// than identity).
func (c *Client) Attractors(ctx context.Context, center geo.Location, radiusKm float64, types []string) ([]geo.Location, error) {
	result, err := c.Explore(ctx, center, radiusKm, types)
	if err != nil {
		return nil, err
	}

	var attractors []geo.Location
	for _, route := range result.Routes {
		for _, line := range route.Lines {
			attractors = append(attractors, samplePoints(line, DefaultSampleIntervalKm)...)
		}
	}
	return attractors, nil
}

func (c *Client) run(ctx context.Context, query string) ([]osm.OverpassElement, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &OverpassError{Kind: KindGeneric, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := osm.MonitoredDoRequest(ctx, req, "explore")
	if err != nil {
		if ctx.Err() != nil {
			return nil, &OverpassError{Kind: KindTimeout, Message: "Overpass API timeout"}
		}
		return nil, &OverpassError{Kind: KindGeneric, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &OverpassError{Kind: KindRateLimit, Message: "Overpass API rate limit exceeded"}
	case resp.StatusCode != http.StatusOK:
		return nil, &OverpassError{Kind: KindGeneric, Message: fmt.Sprintf("Overpass API error %d", resp.StatusCode)}
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &OverpassError{Kind: KindGeneric, Message: fmt.Sprintf("decoding Overpass response: %v", err)}
	}
	return parsed.Elements, nil
}

// indexElements splits a flat Overpass element list into node, way,
// and relation tables.
func indexElements(elements []osm.OverpassElement) (nodes map[int64]osm.OverpassElement, ways map[int64]osm.OverpassElement, relations []osm.OverpassElement) {
	nodes = make(map[int64]osm.OverpassElement)
	ways = make(map[int64]osm.OverpassElement)
	for _, el := range elements {
		switch el.Type {
		case "node":
			nodes[int64(el.ID)] = el
		case "way":
			ways[int64(el.ID)] = el
		case "relation":
			relations = append(relations, el)
		}
	}
	return nodes, ways, relations
}

// wayGeometry resolves a way's node ID list into coordinates via the
// node table.
func wayGeometry(way osm.OverpassElement, nodes map[int64]osm.OverpassElement) geo.Polyline {
	coords := make(geo.Polyline, 0, len(way.Nodes))
	for _, id := range way.Nodes {
		if n, ok := nodes[id]; ok {
			coords = append(coords, geo.Location{Latitude: n.Lat, Longitude: n.Lon})
		}
	}
	return coords
}

// assembleRelation builds a Relation from an Overpass relation
// element, merging its member ways into one or more lines.
func assembleRelation(rel osm.OverpassElement, ways map[int64]osm.OverpassElement, nodes map[int64]osm.OverpassElement) (Relation, bool) {
	var memberLines []geo.Polyline
	for _, m := range rel.Members {
		if m.Type != "way" {
			continue
		}
		way, ok := ways[m.Ref]
		if !ok {
			continue
		}
		coords := wayGeometry(way, nodes)
		if len(coords) < 2 {
			continue
		}
		memberLines = append(memberLines, coords)
	}
	if len(memberLines) == 0 {
		return Relation{}, false
	}

	lines := mergeLines(memberLines)

	var distKm float64
	for _, line := range lines {
		distKm += geo.PolylineLength(line)
	}

	return Relation{
		OSMID:      int64(rel.ID),
		Name:       rel.Tags["name"],
		Ref:        rel.Tags["ref"],
		RouteType:  orDefault(rel.Tags["route"], "unknown"),
		Network:    rel.Tags["network"],
		DistanceKm: distKm,
		Lines:      lines,
	}, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// mergeLines greedily concatenates way geometries into as few lines as
// possible: if the tail of the current line equals the head of the
// next sequence, append it; if it equals the reversed head, append it
// reversed; otherwise start a new line.
func mergeLines(lines []geo.Polyline) []geo.Polyline {
	merged := []geo.Polyline{append(geo.Polyline{}, lines[0]...)}

	for _, line := range lines[1:] {
		last := &merged[len(merged)-1]
		tail := (*last)[len(*last)-1]
		head := line[0]
		revHead := line[len(line)-1]

		switch {
		case tail == head:
			*last = append(*last, line[1:]...)
		case tail == revHead:
			*last = append(*last, reversed(line)[1:]...)
		default:
			merged = append(merged, append(geo.Polyline{}, line...))
		}
	}
	return merged
}

func reversed(line geo.Polyline) geo.Polyline {
	out := make(geo.Polyline, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

// samplePoints walks line and emits a point every intervalKm of
// accumulated great-circle length, always starting with the first
// vertex.
func samplePoints(line geo.Polyline, intervalKm float64) []geo.Location {
	if len(line) < 2 {
		return nil
	}

	points := []geo.Location{line[0]}
	accum := 0.0
	for i := 1; i < len(line); i++ {
		accum += geo.Haversine(line[i-1], line[i])
		if accum >= intervalKm {
			points = append(points, line[i])
			accum = 0
		}
	}
	return points
}
