// Package scout evaluates compass bearings around a start point on
// elevation and trail-density signals to pick the direction the
// waypoint fan should be oriented toward.
package scout

import (
	"context"
	"math"
	"math/rand"

	"github.com/tracemyride/routegen/pkg/elevation"
	"github.com/tracemyride/routegen/pkg/geo"
)

// NScout is the number of evenly spaced bearings sampled (every 30°).
const NScout = 12

// halfAngleDeg is the cone half-angle used by the trail-density score.
const halfAngleDeg = 15.0

// trailRadiusFactor widens the distance cutoff for counting attractors
// beyond the bare scout radius.
const trailRadiusFactor = 1.5

// ElevationQuerier is the subset of *elevation.Client the scout needs,
// so the scout loop is testable with a fake.
type ElevationQuerier interface {
	BatchElevations(ctx context.Context, points geo.Polyline) []*float64
}

var _ ElevationQuerier = (*elevation.Client)(nil)

// UphillBearing samples NScout evenly spaced bearings at radiusKm from
// center, scores each on elevation and trail density, and returns the
// best-scoring bearing in degrees. When every candidate's elevation is
// unknown and attractors is empty, it returns a uniformly random
// bearing drawn from rng.
func UphillBearing(ctx context.Context, center geo.Location, radiusKm float64, attractorBag []geo.Location, elev ElevationQuerier, rng *rand.Rand) float64 {
	bearings := make([]float64, NScout)
	candidates := make(geo.Polyline, NScout)
	for i := 0; i < NScout; i++ {
		b := float64(i) * (360.0 / NScout)
		bearings[i] = b
		candidates[i] = geo.Destination(center, b, radiusKm)
	}

	elevations := elev.BatchElevations(ctx, candidates)
	elevScores := normalizeElevations(elevations)

	var trailScores []float64
	if len(attractorBag) > 0 {
		trailScores = trailDensityScores(center, bearings, attractorBag, radiusKm)
	}

	bestIdx := 0
	bestScore := -1.0
	for i := range bearings {
		score := elevScores[i]
		if trailScores != nil {
			score = 0.6*elevScores[i] + 0.4*trailScores[i]
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if allNull(elevations) && len(attractorBag) == 0 {
		return rng.Float64() * 360.0
	}
	return bearings[bestIdx]
}

// TrailBearing bins attractors into NScout angular sectors by bearing
// from center and returns the center bearing of the heaviest sector,
// or nil if attractors is empty. Used when no elevation target is set
// and trails alone should orient the fan.
func TrailBearing(center geo.Location, attractorBag []geo.Location) *float64 {
	if len(attractorBag) == 0 {
		return nil
	}

	sectorWidth := 360.0 / NScout
	counts := make([]int, NScout)
	for _, a := range attractorBag {
		b := geo.InitialBearing(center, a)
		sector := int(b/sectorWidth) % NScout
		counts[sector]++
	}

	heaviest := 0
	for i, c := range counts {
		if c > counts[heaviest] {
			heaviest = i
		}
	}

	bearing := float64(heaviest)*sectorWidth + sectorWidth/2
	return &bearing
}

func normalizeElevations(elevations []*float64) []float64 {
	min, max := math.Inf(1), math.Inf(-1)
	for _, e := range elevations {
		if e == nil {
			continue
		}
		if *e < min {
			min = *e
		}
		if *e > max {
			max = *e
		}
	}

	scores := make([]float64, len(elevations))
	if math.IsInf(min, 1) || max <= min {
		return scores // no known elevations, or a degenerate (flat) range: all zero
	}
	for i, e := range elevations {
		if e == nil {
			continue
		}
		scores[i] = (*e - min) / (max - min)
	}
	return scores
}

func trailDensityScores(center geo.Location, bearings []float64, attractorBag []geo.Location, scoutRadiusKm float64) []float64 {
	maxDist := trailRadiusFactor * scoutRadiusKm
	scores := make([]float64, len(bearings))
	for i, b := range bearings {
		count := 0
		for _, a := range attractorBag {
			if geo.Haversine(center, a) > maxDist {
				continue
			}
			if angularDiff(geo.InitialBearing(center, a), b) <= halfAngleDeg {
				count++
			}
		}
		score := float64(count) / 10.0
		if score > 1.0 {
			score = 1.0
		}
		scores[i] = score
	}
	return scores
}

// angularDiff returns the smallest absolute angular distance between
// two bearings in degrees, handling wraparound at 0/360.
func angularDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360.0)
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}

func allNull(elevations []*float64) bool {
	for _, e := range elevations {
		if e != nil {
			return false
		}
	}
	return true
}
