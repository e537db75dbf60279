package core

import (
	"errors"
	"math"

	"github.com/tracemyride/routegen/pkg/geo"
)

// DefaultPolylinePrecision is the precision used by the polyline_encode and
// polyline_decode MCP tools and by most third-party polyline libraries.
const DefaultPolylinePrecision = 5

// RouterPolylinePrecision is the precision the routing service encodes its
// leg shapes at (polyline6, 1e-6 degrees), not the common default of 1e-5.
const RouterPolylinePrecision = 6

// EncodePolyline encodes a slice of geo.Location points into a polyline
// string at the default precision (polyline5). This implements Google's
// Polyline Algorithm Format.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
func EncodePolyline(points []geo.Location) string {
	return EncodePolylinePrecision(points, DefaultPolylinePrecision)
}

// DecodePolyline decodes a polyline string into a slice of geo.Location
// points at the default precision (polyline5).
func DecodePolyline(polyline string) ([]geo.Location, error) {
	return DecodePolylinePrecision(polyline, DefaultPolylinePrecision)
}

// EncodePolylinePrecision encodes points using `precision` decimal places
// (e.g. 5 for polyline5, 6 for the router's polyline6 shapes).
func EncodePolylinePrecision(points []geo.Location, precision int) string {
	if len(points) == 0 {
		return ""
	}

	factor := math.Pow(10, float64(precision))
	result := make([]byte, 0, len(points)*12)

	prevLat := 0
	prevLon := 0

	for _, point := range points {
		lat := int(math.Round(point.Latitude * factor))
		lon := int(math.Round(point.Longitude * factor))

		result = append(result, encodeSigned(lat-prevLat)...)
		result = append(result, encodeSigned(lon-prevLon)...)

		prevLat = lat
		prevLon = lon
	}

	return string(result)
}

// DecodePolylinePrecision decodes a polyline string encoded at `precision`
// decimal places.
func DecodePolylinePrecision(polyline string, precision int) ([]geo.Location, error) {
	if len(polyline) == 0 {
		return []geo.Location{}, nil
	}

	factor := math.Pow(10, float64(precision))

	count := len(polyline) / 8
	if count <= 0 {
		count = 1
	}

	points := make([]geo.Location, 0, count)

	index := 0
	prevLat := 0
	prevLon := 0
	strLen := len(polyline)

	for index < strLen {
		lat, newIndex, err := decodeValue(polyline, index, prevLat)
		if err != nil {
			return nil, err
		}
		index = newIndex
		prevLat = lat

		if index >= strLen {
			return nil, errors.New("invalid polyline: unexpected end of string")
		}
		lon, newIndex, err := decodeValue(polyline, index, prevLon)
		if err != nil {
			return nil, err
		}
		index = newIndex
		prevLon = lon

		points = append(points, geo.Location{
			Latitude:  float64(lat) / factor,
			Longitude: float64(lon) / factor,
		})
	}

	return points, nil
}

// decodeValue decodes a single value from a polyline string.
func decodeValue(polyline string, index, prev int) (int, int, error) {
	strLen := len(polyline)
	result := 0
	shift := 0

	for {
		if index >= strLen {
			return 0, 0, errors.New("invalid polyline: unexpected end of string")
		}
		b := int(polyline[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	delta := (result >> 1) ^ (-(result & 1))
	value := prev + delta

	return value, index, nil
}

// encodeSigned encodes a signed value using the Google Polyline Algorithm.
func encodeSigned(value int) []byte {
	s := value << 1
	if value < 0 {
		s = ^s
	}

	var buf []byte
	for s >= 0x20 {
		buf = append(buf, byte((0x20|(s&0x1f))+63))
		s >>= 5
	}
	buf = append(buf, byte(s+63))
	return buf
}
