package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvaleng/garasje/internal/domain"
)

func vehicleAt(x, y float64) domain.Vehicle {
	return domain.Vehicle{Type: "car", Center: [2]float64{x, y}}
}

func TestBoxCenter(t *testing.T) {
	testCases := []struct {
		name  string
		box   []float64
		wantX float64
		wantY float64
		ok    bool
	}{
		{name: "two corners", box: []float64{0, 0, 10, 20}, wantX: 5, wantY: 10, ok: true},
		{name: "four corners uses elements 0,1,4,5", box: []float64{0, 0, 10, 0, 10, 20, 0, 20}, wantX: 5, wantY: 10, ok: true},
		{name: "too short", box: []float64{1, 2}, ok: false},
		{name: "nil", box: nil, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := BoxCenter(tc.box)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.InDelta(t, tc.wantX, c.X, 1e-9)
				assert.InDelta(t, tc.wantY, c.Y, 1e-9)
			}
		})
	}
}

func TestMatchPlatesToVehicles_NearestCentroid(t *testing.T) {
	vehicles := []domain.Vehicle{
		vehicleAt(100, 50),
		vehicleAt(500, 50),
	}
	plates := []domain.PlateDetection{
		{Text: "AB12345", BoundingBox: []float64{480, 40, 520, 60}},
		{Text: "CD67890", BoundingBox: []float64{90, 40, 110, 60}},
	}

	got := MatchPlatesToVehicles(plates, vehicles)

	require.Len(t, got, 2)
	assert.Equal(t, "CD67890", got[0].LicensePlate)
	assert.Equal(t, "AB12345", got[1].LicensePlate)
}

func TestMatchPlatesToVehicles_PreservesOrderAndInput(t *testing.T) {
	vehicles := []domain.Vehicle{vehicleAt(1, 1), vehicleAt(2, 2)}
	plates := []domain.PlateDetection{{Text: "XX11111", BoundingBox: []float64{0, 0, 2, 2}}}

	got := MatchPlatesToVehicles(plates, vehicles)

	// Input slice is untouched.
	assert.Empty(t, vehicles[0].LicensePlate)
	assert.Equal(t, [2]float64{1, 1}, got[0].Center)
	assert.Equal(t, [2]float64{2, 2}, got[1].Center)
}

func TestMatchPlatesToVehicles_TieFirstVehicleWins(t *testing.T) {
	// Both vehicles are equidistant from the plate center.
	vehicles := []domain.Vehicle{vehicleAt(0, 10), vehicleAt(0, -10)}
	plates := []domain.PlateDetection{{Text: "EQ00000", BoundingBox: []float64{-1, -1, 1, 1}}}

	got := MatchPlatesToVehicles(plates, vehicles)

	assert.Equal(t, "EQ00000", got[0].LicensePlate)
	assert.Empty(t, got[1].LicensePlate)
}

func TestMatchPlatesToVehicles_LastWriteWins(t *testing.T) {
	vehicles := []domain.Vehicle{vehicleAt(0, 0), vehicleAt(1000, 1000)}
	plates := []domain.PlateDetection{
		{Text: "FIRST11", BoundingBox: []float64{-2, -2, 2, 2}},
		{Text: "SECOND2", BoundingBox: []float64{-1, -1, 1, 1}},
	}

	got := MatchPlatesToVehicles(plates, vehicles)

	// Both plates are nearest to vehicle 0; the later plate overwrites.
	assert.Equal(t, "SECOND2", got[0].LicensePlate)
	assert.Empty(t, got[1].LicensePlate)
}

func TestMatchPlatesToVehicles_EmptyInputs(t *testing.T) {
	vehicles := []domain.Vehicle{vehicleAt(1, 1)}

	got := MatchPlatesToVehicles(nil, vehicles)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].LicensePlate)

	assert.Empty(t, MatchPlatesToVehicles([]domain.PlateDetection{{Text: "AA11111"}}, nil))
}

func TestMatchPlatesToVehicles_PlatesWithoutGeometry(t *testing.T) {
	vehicles := []domain.Vehicle{
		vehicleAt(0, 0),
		vehicleAt(10, 0),
		vehicleAt(20, 0),
	}
	vehicles[0].LicensePlate = "KNOWN77"

	plates := []domain.PlateDetection{
		{Text: "BLIND01"},
		{Text: "BLIND02"},
	}

	got := MatchPlatesToVehicles(plates, vehicles)

	// Geometry-free plates fill the plate-less vehicles in order.
	assert.Equal(t, "KNOWN77", got[0].LicensePlate)
	assert.Equal(t, "BLIND01", got[1].LicensePlate)
	assert.Equal(t, "BLIND02", got[2].LicensePlate)
}

func TestMatchPlatesToVehicles_Deterministic(t *testing.T) {
	vehicles := []domain.Vehicle{vehicleAt(3, 4), vehicleAt(8, 1)}
	plates := []domain.PlateDetection{{Text: "DT55555", BoundingBox: []float64{2, 3, 4, 5}}}

	first := MatchPlatesToVehicles(plates, vehicles)
	second := MatchPlatesToVehicles(plates, vehicles)

	assert.Equal(t, first, second)
}
