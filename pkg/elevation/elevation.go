// Package elevation builds elevation profiles for polylines by
// batch-querying a DEM point-elevation service and deriving cumulative
// distance, gain, and loss.
package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracemyride/routegen/pkg/cache"
	"github.com/tracemyride/routegen/pkg/geo"
	"github.com/tracemyride/routegen/pkg/osm"
	"github.com/tracemyride/routegen/pkg/tracing"
)

// MaxProfilePoints bounds the number of vertices a profile samples,
// keeping the DEM request volume and the returned payload bounded.
const MaxProfilePoints = 200

// BatchSize is the maximum number of coordinates per DEM request.
const BatchSize = 100

// requestTimeout is the per-batch DEM call timeout.
const requestTimeout = 15 * time.Second

// Sample is a single point on an elevation profile: cumulative
// great-circle distance from the profile start (km), the point itself,
// and its elevation in meters, or nil if the DEM had no coverage.
type Sample struct {
	DistanceKm float64      `json:"distance_km"`
	Elevation  *float64     `json:"elevation"`
	Point      geo.Location `json:"point"`
}

// Profile is an ordered sequence of Samples with monotonically
// non-decreasing cumulative distance, first distance 0.
type Profile []Sample

// demResponse mirrors `{results:[{elevation: float|null}]}`.
type demResponse struct {
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// Client queries the DEM elevation service.
type Client struct {
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a DEM client against the shared DEM base URL.
func NewClient() *Client {
	return &Client{baseURL: osm.DemBaseURL, logger: slog.Default()}
}

// SetLogger sets the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// downsample strides the polyline down to at most MaxProfilePoints
// vertices, always keeping the final vertex.
func downsample(polyline geo.Polyline, maxPoints int) geo.Polyline {
	if len(polyline) <= maxPoints {
		return polyline
	}
	step := float64(len(polyline)) / float64(maxPoints)
	out := make(geo.Polyline, 0, maxPoints)
	for i := 0; i < maxPoints-1; i++ {
		out = append(out, polyline[int(float64(i)*step)])
	}
	out = append(out, polyline[len(polyline)-1])
	return out
}

// Profile downsamples polyline to at most MaxProfilePoints vertices,
// batch-queries the DEM service in chunks of at most BatchSize points,
// and assembles a Profile with cumulative distance and elevation (or
// null on a failed batch). DEM batches are fetched concurrently and
// reassembled in input order.
func (c *Client) Profile(ctx context.Context, polyline geo.Polyline) (Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "elevation.Profile")
	defer span.End()

	sampled := downsample(polyline, MaxProfilePoints)
	if len(sampled) == 0 {
		return Profile{}, nil
	}

	elevations := c.BatchElevations(ctx, sampled)

	profile := make(Profile, len(sampled))
	cumulative := 0.0
	for i, pt := range sampled {
		if i > 0 {
			cumulative += geo.Haversine(sampled[i-1], pt)
		}
		profile[i] = Sample{
			DistanceKm: round3(cumulative),
			Elevation:  elevations[i],
			Point:      pt,
		}
	}
	return profile, nil
}

// BatchElevations fetches elevations for points in chunks of
// BatchSize, issued concurrently and reassembled by input index. A
// failed batch (network error or non-200) leaves its slots nil rather
// than failing the whole call — used both by Profile and directly by
// the bearing scout's single-shot candidate query.
func (c *Client) BatchElevations(ctx context.Context, points geo.Polyline) []*float64 {
	results := make([]*float64, len(points))

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(points); start += BatchSize {
		start := start
		end := start + BatchSize
		if end > len(points) {
			end = len(points)
		}
		g.Go(func() error {
			batch := points[start:end]
			elevs, err := c.fetchBatch(gctx, batch)
			if err != nil {
				c.logger.Warn("dem batch failed", "error", err, "start", start, "count", len(batch))
				return nil // non-fatal: leave this batch's slots nil
			}
			for i, e := range elevs {
				results[start+i] = e
			}
			return nil
		})
	}
	_ = g.Wait() // BatchElevations never fails the caller; failures are per-slot nils

	return results
}

func (c *Client) fetchBatch(ctx context.Context, batch geo.Polyline) ([]*float64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	locs := make([]string, len(batch))
	for i, p := range batch {
		locs[i] = fmt.Sprintf("%f,%f", p.Latitude, p.Longitude)
	}

	url := fmt.Sprintf("%s/v1/srtm30m?locations=%s", c.baseURL, strings.Join(locs, "|"))

	// DEM values are static; batches repeat across fan iterations over
	// the same terrain, so a cache hit skips the upstream call entirely.
	if cached, ok := cache.GetGlobalCache().Get(url); ok {
		if elevs, ok := cached.([]*float64); ok && len(elevs) == len(batch) {
			return elevs, nil
		}
	}

	req, err := osm.NewRequestWithUserAgent(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := osm.MonitoredDoRequest(ctx, req, "profile")
	if err != nil {
		return nil, fmt.Errorf("dem request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dem returned status %d", resp.StatusCode)
	}

	var parsed demResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding dem response: %w", err)
	}

	out := make([]*float64, len(batch))
	for i := range batch {
		if i < len(parsed.Results) {
			out[i] = parsed.Results[i].Elevation
		}
	}
	cache.GetGlobalCache().Set(url, out)
	return out, nil
}

// GainLoss sums positive and absolute-negative adjacent-sample
// elevation deltas. Pairs where either endpoint is unknown do not
// contribute. Values are rounded to one decimal.
func GainLoss(profile Profile) (gainM, lossM float64) {
	for i := 1; i < len(profile); i++ {
		prev, curr := profile[i-1].Elevation, profile[i].Elevation
		if prev == nil || curr == nil {
			continue
		}
		diff := *curr - *prev
		if diff > 0 {
			gainM += diff
		} else {
			lossM += -diff
		}
	}
	return round1(gainM), round1(lossM)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
