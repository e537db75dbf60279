// Package spur detects and excises out-and-back detours ("spurs") that
// a router inserts when a pass-through waypoint forces it to leave a
// trail and immediately double back along the same edge.
package spur

import "github.com/tracemyride/routegen/pkg/geo"

// thresholdKm is the distance below which two vertices are considered
// the same point for spur-detection purposes.
const thresholdKm = 30.0 / 1000.0

// minSpur is the minimum vertex span considered a spur rather than
// ordinary path noise.
const minSpur = 6

// minVerticesToScan is the shortest polyline the scanner bothers with;
// below this a spur can't meaningfully exist.
const minVerticesToScan = 20

// Remove scans polyline for vertices that return within thresholdKm of
// an earlier vertex at least minSpur steps back, and splices out the
// loop-back segment. It rescans from the beginning after every cut
// (not from the cut point): a cut shifts every later index, and the
// earliest, smallest loop-back must win before overlapping ones are
// considered. O(n²) worst case; route polylines are short enough.
func Remove(polyline geo.Polyline) geo.Polyline {
	if len(polyline) < minVerticesToScan {
		return polyline
	}

	result := append(geo.Polyline{}, polyline...)

	changed := true
	for changed {
		changed = false
		maxSpur := len(result) / 3

		i := 0
		for i < len(result)-minSpur {
			j := findSpurEnd(result, i, maxSpur)
			if j < 0 {
				i++
				continue
			}
			result = append(append(geo.Polyline{}, result[:i+1]...), result[j:]...)
			changed = true
			break // restart the scan from the beginning
		}
	}

	return result
}

// findSpurEnd searches j in [i+minSpur, min(i+maxSpur, len(result)))
// for the first vertex within thresholdKm of result[i].
func findSpurEnd(result geo.Polyline, i, maxSpur int) int {
	end := i + maxSpur
	if end > len(result) {
		end = len(result)
	}
	for j := i + minSpur; j < end; j++ {
		if geo.Haversine(result[i], result[j]) < thresholdKm {
			return j
		}
	}
	return -1
}
