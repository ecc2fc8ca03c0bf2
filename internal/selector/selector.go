// Package selector decides which geofences are actively monitored when the
// platform can only watch a limited number of regions at once.
package selector

import (
	"sort"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geo"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

// HardCap is the platform limit on simultaneously monitored regions.
const HardCap = 20

// Result is the outcome of a selection pass.
type Result struct {
	// Selected is the ordered subset to monitor, most important first.
	Selected []geofence.Geofence
	// Excluded is how many enabled geofences did not fit.
	Excluded int
}

// Capacity returns the number of regions that may be monitored under s.
// A non-positive configured maximum means the platform cap.
func Capacity(s geofence.Settings) int {
	if s.MaxMonitoredRegions <= 0 || s.MaxMonitoredRegions > HardCap {
		return HardCap
	}
	return s.MaxMonitoredRegions
}

// Select filters to enabled geofences, orders them by priority (descending)
// then by distance from location (ascending), and keeps the first capacity.
// With a nil location the distance tie-break is skipped and input order is kept
// among equal priorities.
func Select(fences []geofence.Geofence, location *geofence.Coordinate, capacity int) Result {
	type ranked struct {
		g    geofence.Geofence
		dist float64
	}

	candidates := make([]ranked, 0, len(fences))
	for _, g := range fences {
		if !g.Enabled {
			continue
		}
		r := ranked{g: g}
		if location != nil {
			r.dist = geo.Distance(*location, g.Center)
		}
		candidates = append(candidates, r)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].g.Priority != candidates[j].g.Priority {
			return candidates[i].g.Priority > candidates[j].g.Priority
		}
		if location == nil {
			return false
		}
		return candidates[i].dist < candidates[j].dist
	})

	if capacity < 0 {
		capacity = 0
	}
	n := len(candidates)
	if n > capacity {
		n = capacity
	}

	res := Result{
		Selected: make([]geofence.Geofence, n),
		Excluded: len(candidates) - n,
	}
	for i := 0; i < n; i++ {
		res.Selected[i] = candidates[i].g
	}
	return res
}
