// Package geometry pairs OCR plate detections with detected vehicles
// using nearest-centroid matching.
package geometry

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/hvaleng/garasje/internal/domain"
)

// BoxCenter computes the center of a plate bounding box. The box holds
// either 4 numbers (x1,y1,x2,y2) or 8 (four corner points); with 8
// numbers, elements 0,1 and 4,5 are opposite corners.
func BoxCenter(box []float64) (r2.Vec, bool) {
	switch {
	case len(box) >= 8:
		return r2.Scale(0.5, r2.Add(
			r2.Vec{X: box[0], Y: box[1]},
			r2.Vec{X: box[4], Y: box[5]},
		)), true
	case len(box) >= 4:
		return r2.Scale(0.5, r2.Add(
			r2.Vec{X: box[0], Y: box[1]},
			r2.Vec{X: box[2], Y: box[3]},
		)), true
	default:
		return r2.Vec{}, false
	}
}

// MatchPlatesToVehicles assigns each plate's text to the vehicle whose
// center is nearest to the plate's box center (squared Euclidean
// distance, first vehicle wins ties). Vehicles keep their identity and
// order; only LicensePlate is filled in. When two plates pick the same
// vehicle the last one wins. Plates without geometry are handed out in
// order to the first vehicles still missing a plate.
func MatchPlatesToVehicles(plates []domain.PlateDetection, vehicles []domain.Vehicle) []domain.Vehicle {
	out := make([]domain.Vehicle, len(vehicles))
	copy(out, vehicles)

	if len(plates) == 0 || len(out) == 0 {
		return out
	}

	var blind []domain.PlateDetection

	for _, plate := range plates {
		center, ok := BoxCenter(plate.BoundingBox)
		if !ok {
			blind = append(blind, plate)
			continue
		}

		best := -1
		bestDist := 0.0
		for i, v := range out {
			d := sqDist(center, r2.Vec{X: v.Center[0], Y: v.Center[1]})
			if best == -1 || d < bestDist {
				best = i
				bestDist = d
			}
		}

		out[best].LicensePlate = plate.Text
	}

	// OCR responses without geometry carry no position signal, so the
	// remaining plates fill plate-less vehicles in detection order.
	for _, plate := range blind {
		for i := range out {
			if out[i].LicensePlate == "" {
				out[i].LicensePlate = plate.Text
				break
			}
		}
	}

	return out
}

func sqDist(a, b r2.Vec) float64 {
	d := r2.Sub(a, b)
	return r2.Dot(d, d)
}
