package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvaleng/garasje/internal/domain"
)

func vehicle(pos domain.Position, x float64, plate string) domain.Vehicle {
	return domain.Vehicle{
		Type:         "car",
		Position:     pos,
		Center:       [2]float64{x, 0},
		BoundingBox:  [4]float64{x - 50, 0, x + 50, 100},
		LicensePlate: plate,
	}
}

func TestVehiclesToSpots_EmptyInput(t *testing.T) {
	for _, rows := range []int{1, 5, 8} {
		got := VehiclesToSpots(nil, rows)

		require.Len(t, got, 2*rows)
		for i, spot := range got {
			assert.Equal(t, domain.SpotOrder(rows)[i], spot.SpotNumber)
			assert.False(t, spot.Occupied)
			assert.Nil(t, spot.Vehicle)
		}
	}
}

func TestVehiclesToSpots_CanonicalOrder(t *testing.T) {
	got := VehiclesToSpots(nil, 3)

	var ids []domain.SpotID
	for _, s := range got {
		ids = append(ids, s.SpotNumber)
	}
	assert.Equal(t, []domain.SpotID{"1A", "1B", "2A", "2B", "3A", "3B"}, ids)
}

func TestVehiclesToSpots_RightmostFirst(t *testing.T) {
	vehicles := []domain.Vehicle{
		vehicle(domain.PositionBack, 100, "LEFT000"),
		vehicle(domain.PositionBack, 500, "RIGHT00"),
		vehicle(domain.PositionFront, 300, "FRONT00"),
	}

	got := VehiclesToSpots(vehicles, 5)

	require.Len(t, got, 10)
	// 1A gets the rightmost back vehicle, 2A the next one.
	require.NotNil(t, got[0].Vehicle)
	assert.Equal(t, "RIGHT00", got[0].Vehicle.LicensePlate)
	require.NotNil(t, got[2].Vehicle)
	assert.Equal(t, "LEFT000", got[2].Vehicle.LicensePlate)
	// 1B gets the only front vehicle.
	require.NotNil(t, got[1].Vehicle)
	assert.Equal(t, "FRONT00", got[1].Vehicle.LicensePlate)
	// Everything else stays vacant.
	for _, s := range got[3:] {
		assert.False(t, s.Occupied)
	}
}

func TestVehiclesToSpots_OverflowDropped(t *testing.T) {
	var vehicles []domain.Vehicle
	for i := 0; i < 4; i++ {
		vehicles = append(vehicles, vehicle(domain.PositionBack, float64(100*i), ""))
	}

	got := VehiclesToSpots(vehicles, 2)

	// Fixed layout: output length is 2N no matter how many vehicles.
	require.Len(t, got, 4)
	assert.True(t, got[0].Occupied)  // 1A
	assert.True(t, got[2].Occupied)  // 2A
	assert.False(t, got[1].Occupied) // 1B
	assert.False(t, got[3].Occupied) // 2B
}

func TestVehiclesToSpots_UnknownPositionIgnored(t *testing.T) {
	got := VehiclesToSpots([]domain.Vehicle{{Position: "side", Center: [2]float64{10, 0}}}, 2)

	for _, s := range got {
		assert.False(t, s.Occupied)
	}
}

func TestToBoundaries(t *testing.T) {
	v := vehicle(domain.PositionBack, 200, "AB12345")
	spots := []domain.DetectedSpot{
		{SpotNumber: "1A", Occupied: true, Vehicle: &v},
		{SpotNumber: "1B"},
	}

	got := ToBoundaries(spots)

	require.Len(t, got, 2)
	assert.Equal(t, domain.SpotID("1A"), got[0].SpotNumber)
	assert.True(t, got[0].Occupied)
	assert.Equal(t, v.BoundingBox, got[0].BoundingBox)
	assert.False(t, got[1].Occupied)
	assert.Equal(t, [4]float64{0, 0, 0, 0}, got[1].BoundingBox)
	assert.Nil(t, got[1].Vehicle)
}
