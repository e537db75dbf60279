package spur

import (
	"testing"

	"github.com/tracemyride/routegen/pkg/geo"
)

// eastLine returns a polyline of n vertices starting at start,
// stepping stepM meters due east each vertex.
func eastLine(start geo.Location, n int, stepM float64) geo.Polyline {
	line := make(geo.Polyline, n)
	line[0] = start
	for i := 1; i < n; i++ {
		line[i] = geo.Destination(line[i-1], 90, stepM/1000.0)
	}
	return line
}

func reverseLine(line geo.Polyline) geo.Polyline {
	out := make(geo.Polyline, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

func buildSpurScenario() geo.Polyline {
	origin := geo.Location{Latitude: 0, Longitude: 0}
	out := eastLine(origin, 20, 20)           // 20 vertices east at 20m steps
	back := reverseLine(out)                  // walk back to origin along the same line
	more := eastLine(out[len(out)-1], 20, 20) // continue east past the original spur tip

	var poly geo.Polyline
	poly = append(poly, out...)
	poly = append(poly, back[1:]...)
	poly = append(poly, more[1:]...)
	return poly
}

func TestRemoveUnchangedBelowMinVertices(t *testing.T) {
	short := geo.Polyline{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 1}}
	got := Remove(short)
	if len(got) != len(short) {
		t.Fatalf("expected short polylines to pass through unchanged")
	}
}

func TestRemoveCutsSpur(t *testing.T) {
	poly := buildSpurScenario()
	cleaned := Remove(poly)

	// Monotone east: longitude should be non-decreasing across the cleaned line.
	for i := 1; i < len(cleaned); i++ {
		if cleaned[i].Longitude < cleaned[i-1].Longitude-1e-9 {
			t.Fatalf("cleaned polyline backtracks at vertex %d: %v -> %v", i, cleaned[i-1], cleaned[i])
		}
	}

	if geo.PolylineLength(cleaned) >= geo.PolylineLength(poly) {
		t.Errorf("cleaned length %v should be shorter than input length %v", geo.PolylineLength(cleaned), geo.PolylineLength(poly))
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	poly := buildSpurScenario()
	once := Remove(poly)
	twice := Remove(once)

	if len(once) != len(twice) {
		t.Fatalf("Remove is not idempotent: len(once)=%d len(twice)=%d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("Remove is not idempotent at vertex %d: %v != %v", i, once[i], twice[i])
		}
	}
}

func TestRemoveIsDistanceMonotone(t *testing.T) {
	poly := buildSpurScenario()
	cleaned := Remove(poly)
	if geo.PolylineLength(cleaned) > geo.PolylineLength(poly)+1e-9 {
		t.Errorf("cleaned length %v must not exceed input length %v", geo.PolylineLength(cleaned), geo.PolylineLength(poly))
	}
}
