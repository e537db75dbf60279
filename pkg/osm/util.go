package osm

const (
	// Upstream API endpoints
	OverpassBaseURL = "https://overpass-api.de/api/interpreter"
	RouterBaseURL   = "https://valhalla1.openstreetmap.de"
	DemBaseURL      = "https://elevation-api.example.org"

	// User agent for API requests
	UserAgent = "routegen-mcp-server/0.1.0"
)
