package scout

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/tracemyride/routegen/pkg/geo"
)

type fakeElevation struct {
	values []*float64
}

func (f *fakeElevation) BatchElevations(ctx context.Context, points geo.Polyline) []*float64 {
	return f.values
}

func ptr(v float64) *float64 { return &v }

func TestUphillBearingPicksHighestElevation(t *testing.T) {
	center := geo.Location{Latitude: 46.5, Longitude: 8.5}
	values := make([]*float64, NScout)
	for i := range values {
		values[i] = ptr(100)
	}
	// bearing index 0 is due north (0deg); make it clearly highest.
	values[0] = ptr(1000)

	bearing := UphillBearing(context.Background(), center, 2.0, nil, &fakeElevation{values: values}, rand.New(rand.NewSource(1)))
	if bearing != 0 {
		t.Errorf("bearing = %v, want 0 (north)", bearing)
	}
}

func TestUphillBearingRandomWhenNoSignal(t *testing.T) {
	center := geo.Location{Latitude: 0, Longitude: 0}
	values := make([]*float64, NScout) // all nil
	rng := rand.New(rand.NewSource(42))

	bearing := UphillBearing(context.Background(), center, 2.0, nil, &fakeElevation{values: values}, rng)
	if bearing < 0 || bearing >= 360 {
		t.Errorf("bearing = %v, want in [0,360)", bearing)
	}
}

func TestUphillBearingCombinesElevationAndTrails(t *testing.T) {
	center := geo.Location{Latitude: 0, Longitude: 0}
	values := make([]*float64, NScout)
	for i := range values {
		values[i] = ptr(100) // flat elevation -> elev_score all 0
	}

	// Place attractors clustered due east (bearing 90), within 1.5x scout radius.
	scoutRadius := 1.0
	east := geo.Destination(center, 90, 0.5)
	attractors := make([]geo.Location, 0)
	for i := 0; i < 5; i++ {
		attractors = append(attractors, east)
	}

	bearing := UphillBearing(context.Background(), center, scoutRadius, attractors, &fakeElevation{values: values}, rand.New(rand.NewSource(1)))
	if math.Abs(bearing-90) > 1e-6 {
		t.Errorf("bearing = %v, want 90 (trail-dense direction)", bearing)
	}
}

func TestTrailBearingNilWhenEmpty(t *testing.T) {
	if got := TrailBearing(geo.Location{}, nil); got != nil {
		t.Errorf("expected nil, got %v", *got)
	}
}

func TestTrailBearingHeaviestSector(t *testing.T) {
	center := geo.Location{Latitude: 0, Longitude: 0}
	south := geo.Destination(center, 180, 1.0)
	attractors := []geo.Location{south, south, south}

	got := TrailBearing(center, attractors)
	if got == nil {
		t.Fatal("expected a bearing")
	}
	if math.Abs(*got-180) > 20 {
		t.Errorf("bearing = %v, want near 180", *got)
	}
}

func TestAngularDiffWraparound(t *testing.T) {
	if d := angularDiff(350, 10); math.Abs(d-20) > 1e-9 {
		t.Errorf("angularDiff(350,10) = %v, want 20", d)
	}
	if d := angularDiff(10, 350); math.Abs(d-20) > 1e-9 {
		t.Errorf("angularDiff(10,350) = %v, want 20", d)
	}
}
