package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Zurich to Bern is roughly 95 km as the crow flies.
	zurich := Location{Latitude: 47.3769, Longitude: 8.5417}
	bern := Location{Latitude: 46.9480, Longitude: 7.4474}

	got := Haversine(zurich, bern)
	if got < 93 || got > 97 {
		t.Errorf("Haversine(zurich, bern) = %v km, want ~95", got)
	}
}

func TestHaversineZero(t *testing.T) {
	p := Location{Latitude: 46.5, Longitude: 8.5}
	if d := Haversine(p, p); d != 0 {
		t.Errorf("Haversine(p, p) = %v, want 0", d)
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	start := Location{Latitude: 46.5, Longitude: 8.5}
	for _, bearing := range []float64{0, 45, 90, 180, 270, 359} {
		dest := Destination(start, bearing, 5.0)
		if d := Haversine(start, dest); math.Abs(d-5.0) > 0.01 {
			t.Errorf("bearing %v: Haversine(start, Destination(start, %v, 5)) = %v, want 5", bearing, bearing, d)
		}
	}
}

func TestDestinationNorthIncreasesLatitude(t *testing.T) {
	start := Location{Latitude: 0, Longitude: 0}
	dest := Destination(start, 0, 10)
	if dest.Latitude <= start.Latitude {
		t.Errorf("heading north should increase latitude, got %v", dest.Latitude)
	}
	if math.Abs(dest.Longitude-start.Longitude) > 1e-9 {
		t.Errorf("heading north from the equator should not change longitude, got %v", dest.Longitude)
	}
}

func TestInitialBearingCardinals(t *testing.T) {
	origin := Location{Latitude: 0, Longitude: 0}
	cases := []struct {
		to      Location
		bearing float64
	}{
		{Location{Latitude: 1, Longitude: 0}, 0},
		{Location{Latitude: 0, Longitude: 1}, 90},
		{Location{Latitude: -1, Longitude: 0}, 180},
		{Location{Latitude: 0, Longitude: -1}, 270},
	}
	for _, c := range cases {
		got := InitialBearing(origin, c.to)
		if math.Abs(got-c.bearing) > 0.01 {
			t.Errorf("InitialBearing(origin, %v) = %v, want %v", c.to, got, c.bearing)
		}
	}
}

func TestInitialBearingNormalized(t *testing.T) {
	a := Location{Latitude: 10, Longitude: 10}
	b := Location{Latitude: 5, Longitude: 5}
	got := InitialBearing(a, b)
	if got < 0 || got >= 360 {
		t.Errorf("InitialBearing = %v, want in [0, 360)", got)
	}
}

func TestPolylineLengthReversalInvariant(t *testing.T) {
	pl := Polyline{
		{Latitude: 46.5, Longitude: 8.5},
		{Latitude: 46.51, Longitude: 8.52},
		{Latitude: 46.53, Longitude: 8.51},
		{Latitude: 46.55, Longitude: 8.55},
	}
	rev := make(Polyline, len(pl))
	for i, p := range pl {
		rev[len(pl)-1-i] = p
	}

	forward := PolylineLength(pl)
	backward := PolylineLength(rev)
	if math.Abs(forward-backward) > 1e-9 {
		t.Errorf("PolylineLength changed under reversal: %v vs %v", forward, backward)
	}
}

func TestPolylineLengthDegenerate(t *testing.T) {
	if l := PolylineLength(Polyline{}); l != 0 {
		t.Errorf("empty polyline length = %v, want 0", l)
	}
	if l := PolylineLength(Polyline{{Latitude: 1, Longitude: 1}}); l != 0 {
		t.Errorf("single-point polyline length = %v, want 0", l)
	}
}

func TestBoundingBoxExtend(t *testing.T) {
	bb := NewBoundingBox()
	bb.ExtendWithPoint(46.5, 8.5)
	bb.ExtendWithPoint(47.0, 8.0)

	if bb.MinLat != 46.5 || bb.MaxLat != 47.0 {
		t.Errorf("latitude bounds = [%v, %v], want [46.5, 47.0]", bb.MinLat, bb.MaxLat)
	}
	if bb.MinLon != 8.0 || bb.MaxLon != 8.5 {
		t.Errorf("longitude bounds = [%v, %v], want [8.0, 8.5]", bb.MinLon, bb.MaxLon)
	}
}
