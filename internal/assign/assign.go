// Package assign maps an unordered set of detected vehicles onto the
// fixed row/column grid of named spots.
package assign

import (
	"sort"

	"github.com/hvaleng/garasje/internal/domain"
)

// VehiclesToSpots places detected vehicles on the 2N-spot grid.
//
// Vehicles are partitioned by their front/back position tag and each
// partition is sorted by center x descending: the camera faces the row,
// so the rightmost vehicle stands nearest to row 1. The i-th back
// vehicle lands on spot (i+1)A, the i-th front vehicle on (i+1)B.
//
// The output always has exactly 2*rows entries in canonical order.
// Vehicles beyond rows per partition are dropped: the layout is fixed
// and has no overflow spot.
func VehiclesToSpots(vehicles []domain.Vehicle, rows int) []domain.DetectedSpot {
	var front, back []domain.Vehicle
	for _, v := range vehicles {
		switch v.Position {
		case domain.PositionFront:
			front = append(front, v)
		case domain.PositionBack:
			back = append(back, v)
		}
	}

	// Stable keeps input order for equal x, so the result is
	// deterministic for a fixed detection order.
	sort.SliceStable(front, func(i, j int) bool { return front[i].Center[0] > front[j].Center[0] })
	sort.SliceStable(back, func(i, j int) bool { return back[i].Center[0] > back[j].Center[0] })

	out := make([]domain.DetectedSpot, 0, 2*rows)
	for i := 0; i < rows; i++ {
		out = append(out, placed(domain.NewSpotID(i+1, domain.ColumnA), back, i))
		out = append(out, placed(domain.NewSpotID(i+1, domain.ColumnB), front, i))
	}

	return out
}

func placed(spot domain.SpotID, rank []domain.Vehicle, i int) domain.DetectedSpot {
	if i >= len(rank) {
		return domain.DetectedSpot{SpotNumber: spot}
	}

	v := rank[i]
	return domain.DetectedSpot{SpotNumber: spot, Occupied: true, Vehicle: &v}
}

// ToBoundaries adapts detected spots into boundary records for the
// reconciliation engine and the UI overlay. Spots without a vehicle get
// a zeroed bounding box.
func ToBoundaries(spots []domain.DetectedSpot) []domain.SpotBoundary {
	out := make([]domain.SpotBoundary, 0, len(spots))
	for _, s := range spots {
		b := domain.SpotBoundary{
			SpotNumber: s.SpotNumber,
			Occupied:   s.Occupied,
			Vehicle:    s.Vehicle,
		}
		if s.Vehicle != nil {
			b.BoundingBox = s.Vehicle.BoundingBox
		}
		out = append(out, b)
	}
	return out
}
