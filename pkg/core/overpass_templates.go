package core

import "fmt"

// RouteRelationTimeout is the in-query Overpass timeout (seconds)
// embedded in the query text itself, distinct from the HTTP client's
// own request deadline.
const RouteRelationTimeout = 30

// BuildRouteRelationQuery renders the Overpass QL used by the
// trail-attractor sampler: route relations within radiusM of
// (lat, lng) whose route tag matches one of typeFilter (already
// pipe-joined, e.g. "hiking|foot").
func BuildRouteRelationQuery(lat, lng float64, radiusM int, typeFilter string) string {
	return fmt.Sprintf(
		"[out:json][timeout:%d];\n(\n  relation[type=route][route~\"^(%s)$\"](around:%d,%f,%f);\n);\nout body;\n>;\nout skel qt;\n",
		RouteRelationTimeout, typeFilter, radiusM, lat, lng,
	)
}
