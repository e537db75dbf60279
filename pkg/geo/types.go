// Package geo provides common geographic types and calculations.
// It centralizes location-based data structures and algorithms to ensure
// consistency across the codebase.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean radius of Earth according to WGS-84 in meters.
const EarthRadius = 6371000.0

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// Location represents a geographic coordinate (latitude and longitude)
// with standardized JSON field names.
//
// Example:
//
//	loc := geo.Location{Latitude: 37.7749, Longitude: -122.4194}
//	dist := geo.HaversineDistance(loc.Latitude, loc.Longitude, 34.0522, -118.2437)
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point is an alias for Location used where the caller's domain speaks of
// a bare geographic point rather than an address-resolution result.
type Point = Location

// Polyline is an ordered sequence of points, length >= 2, connected by
// great-circle segments.
type Polyline []Point

// Address represents a structured address
type Address struct {
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Formatted   string `json:"formatted,omitempty"`
}

// BoundingBox represents a geographic bounding box with southwest and northeast corners
type BoundingBox struct {
	MinLat float64 // Southern edge (minimum latitude)
	MinLon float64 // Western edge (minimum longitude)
	MaxLat float64 // Northern edge (maximum latitude)
	MaxLon float64 // Eastern edge (maximum longitude)
}

// NewBoundingBox creates a new empty bounding box
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLat: 90.0, // Start with inverted min/max so any point extends correctly
		MinLon: 180.0,
		MaxLat: -90.0,
		MaxLon: -180.0,
	}
}

// ExtendWithPoint extends the bounding box to include the specified point
func (bb *BoundingBox) ExtendWithPoint(lat, lon float64) {
	if lat < bb.MinLat {
		bb.MinLat = lat
	}
	if lat > bb.MaxLat {
		bb.MaxLat = lat
	}
	if lon < bb.MinLon {
		bb.MinLon = lon
	}
	if lon > bb.MaxLon {
		bb.MaxLon = lon
	}
}

// Buffer adds a buffer around the bounding box in meters
// This is a rough approximation as it converts meters to degrees using
// a simple factor that's reasonably accurate near the equator.
func (bb *BoundingBox) Buffer(bufferMeters float64) {
	bufferDegrees := bufferMeters / 111000
	bb.MinLat -= bufferDegrees
	bb.MaxLat += bufferDegrees
	bb.MinLon -= bufferDegrees
	bb.MaxLon += bufferDegrees

	if bb.MinLat < -90 {
		bb.MinLat = -90
	}
	if bb.MaxLat > 90 {
		bb.MaxLat = 90
	}
	if bb.MinLon < -180 {
		bb.MinLon = -180
	}
	if bb.MaxLon > 180 {
		bb.MaxLon = 180
	}
}

// String returns a string representation of the bounding box for use in Overpass queries
func (bb *BoundingBox) String() string {
	return fmt.Sprintf("(%f,%f,%f,%f)", bb.MinLat, bb.MinLon, bb.MaxLat, bb.MaxLon)
}

// HaversineDistance calculates the great-circle distance between two points
// on the Earth's surface given their latitude and longitude in degrees.
// The result is returned in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadius * c
}

// Haversine returns the great-circle distance between two points in
// kilometers, on EARTH_RADIUS = 6371 km.
func Haversine(a, b Point) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude) / 1000.0
}

// Destination computes the forward geodesic: the point reached by
// travelling distanceKm from a along bearingDeg, on a spherical earth model.
func Destination(a Point, bearingDeg, distanceKm float64) Point {
	latR := a.Latitude * math.Pi / 180.0
	lonR := a.Longitude * math.Pi / 180.0
	bearing := bearingDeg * math.Pi / 180.0
	d := distanceKm / EarthRadiusKm

	lat2 := math.Asin(
		math.Sin(latR)*math.Cos(d) + math.Cos(latR)*math.Sin(d)*math.Cos(bearing),
	)
	lon2 := lonR + math.Atan2(
		math.Sin(bearing)*math.Sin(d)*math.Cos(latR),
		math.Cos(d)-math.Sin(latR)*math.Sin(lat2),
	)

	return Point{
		Latitude:  lat2 * 180.0 / math.Pi,
		Longitude: lon2 * 180.0 / math.Pi,
	}
}

// InitialBearing returns the forward azimuth from a to b in degrees,
// normalized to [0, 360).
func InitialBearing(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	dlon := (b.Longitude - a.Longitude) * math.Pi / 180.0

	x := math.Sin(dlon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)

	deg := math.Atan2(x, y) * 180.0 / math.Pi
	return math.Mod(deg+360.0, 360.0)
}

// PolylineLength sums haversine distance over consecutive points, in km.
func PolylineLength(pl Polyline) float64 {
	total := 0.0
	for i := 0; i+1 < len(pl); i++ {
		total += Haversine(pl[i], pl[i+1])
	}
	return total
}
