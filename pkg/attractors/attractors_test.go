package attractors

import (
	"testing"

	"github.com/tracemyride/routegen/pkg/geo"
	"github.com/tracemyride/routegen/pkg/osm"
)

func TestSanitizeRouteTypesDropsUnknown(t *testing.T) {
	got := sanitizeRouteTypes([]string{"hiking", "skateboarding", "mtb"})
	want := []string{"hiking", "mtb"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sanitizeRouteTypes = %v, want %v", got, want)
	}
}

func TestSanitizeRouteTypesDefaultsWhenEmpty(t *testing.T) {
	got := sanitizeRouteTypes([]string{"skateboarding"})
	if len(got) != 2 || got[0] != "hiking" || got[1] != "foot" {
		t.Errorf("sanitizeRouteTypes = %v, want [hiking foot]", got)
	}
}

func TestMergeLinesHeadToTail(t *testing.T) {
	a := geo.Polyline{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 0}}
	b := geo.Polyline{{Latitude: 1, Longitude: 0}, {Latitude: 2, Longitude: 0}}
	merged := mergeLines([]geo.Polyline{a, b})
	if len(merged) != 1 || len(merged[0]) != 3 {
		t.Fatalf("expected one merged line of 3 points, got %v", merged)
	}
}

func TestMergeLinesReversedHead(t *testing.T) {
	a := geo.Polyline{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 0}}
	b := geo.Polyline{{Latitude: 2, Longitude: 0}, {Latitude: 1, Longitude: 0}}
	merged := mergeLines([]geo.Polyline{a, b})
	if len(merged) != 1 || len(merged[0]) != 3 {
		t.Fatalf("expected one merged line of 3 points via reversed head, got %v", merged)
	}
}

func TestMergeLinesDisjoint(t *testing.T) {
	a := geo.Polyline{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 0}}
	b := geo.Polyline{{Latitude: 10, Longitude: 10}, {Latitude: 11, Longitude: 10}}
	merged := mergeLines([]geo.Polyline{a, b})
	if len(merged) != 2 {
		t.Fatalf("expected two disjoint lines, got %d", len(merged))
	}
}

func TestSamplePointsStartsWithFirstVertex(t *testing.T) {
	line := geo.Polyline{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.01},
		{Latitude: 0, Longitude: 0.02},
	}
	points := samplePoints(line, 0.2)
	if len(points) == 0 || points[0] != line[0] {
		t.Fatalf("expected the sample set to start with the line's first vertex")
	}
}

func TestAssembleRelationResolvesWayGeometry(t *testing.T) {
	nodes := map[int64]osm.OverpassElement{
		1: {ID: 1, Type: "node", Lat: 0, Lon: 0},
		2: {ID: 2, Type: "node", Lat: 0, Lon: 0.01},
	}
	ways := map[int64]osm.OverpassElement{
		10: {ID: 10, Type: "way", Nodes: []int64{1, 2}},
	}
	rel := osm.OverpassElement{
		ID:   100,
		Type: "relation",
		Tags: map[string]string{"route": "hiking", "name": "Test Trail"},
		Members: []struct {
			Type string `json:"type"`
			Ref  int64  `json:"ref"`
			Role string `json:"role"`
		}{{Type: "way", Ref: 10}},
	}

	got, ok := assembleRelation(rel, ways, nodes)
	if !ok {
		t.Fatal("expected assembleRelation to succeed")
	}
	if got.Name != "Test Trail" || got.RouteType != "hiking" {
		t.Errorf("unexpected relation: %+v", got)
	}
	if len(got.Lines) != 1 || len(got.Lines[0]) != 2 {
		t.Fatalf("expected one line of 2 points, got %+v", got.Lines)
	}
}

func TestOverpassErrorKinds(t *testing.T) {
	err := &OverpassError{Kind: KindRateLimit, Message: "rate limited"}
	if err.Error() != "rate limited" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Kind != KindRateLimit {
		t.Errorf("Kind = %v, want KindRateLimit", err.Kind)
	}
}
