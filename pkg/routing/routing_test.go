package routing

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tracemyride/routegen/pkg/geo"
)

func TestCacheKeyDiffersByCosting(t *testing.T) {
	wps := geo.Polyline{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 4}}
	a := cacheKey(wps, "pedestrian")
	b := cacheKey(wps, "bicycle")
	if a == b {
		t.Errorf("cacheKey should differ by costing: %q == %q", a, b)
	}
}

func TestCacheKeyDiffersByWaypoints(t *testing.T) {
	a := cacheKey(geo.Polyline{{Latitude: 1, Longitude: 2}}, "pedestrian")
	b := cacheKey(geo.Polyline{{Latitude: 1, Longitude: 3}}, "pedestrian")
	if a == b {
		t.Errorf("cacheKey should differ by waypoints: %q == %q", a, b)
	}
}

func TestRouteRejectsFewerThanTwoWaypoints(t *testing.T) {
	c := NewClient()
	_, _, err := c.Route(context.Background(), geo.Polyline{{Latitude: 0, Longitude: 0}}, DefaultCosting)
	if err == nil {
		t.Fatal("expected an error for a single-waypoint plan")
	}
	if _, ok := err.(*RouterError); !ok {
		t.Errorf("expected *RouterError, got %T", err)
	}
}

func TestRouteThreadsUpstreamStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, logger: slog.Default()}
	wps := geo.Polyline{{Latitude: 46.5, Longitude: 8.5}, {Latitude: 46.51, Longitude: 8.51}}

	_, _, err := c.Route(context.Background(), wps, DefaultCosting)
	if err == nil {
		t.Fatal("expected an error from a 503 upstream")
	}
	routerErr, ok := err.(*RouterError)
	if !ok {
		t.Fatalf("expected *RouterError, got %T", err)
	}
	if routerErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want %d", routerErr.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouterErrorMessage(t *testing.T) {
	e := &RouterError{StatusCode: 503, Message: "unavailable"}
	if e.Error() != "router error 503: unavailable" {
		t.Errorf("Error() = %q", e.Error())
	}

	e2 := &RouterError{Message: "boom"}
	if e2.Error() != "router error: boom" {
		t.Errorf("Error() = %q", e2.Error())
	}
}
