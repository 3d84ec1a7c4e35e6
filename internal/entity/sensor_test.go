package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tesbridge/internal/coordinator"
)

func TestVehicleSensor(t *testing.T) {
	api := &fakeAPI{data: map[string]interface{}{
		"charge_state": map[string]interface{}{"battery_level": float64(71)},
	}}
	v := newTestVehicle(api, map[string]interface{}{"state": "online"})
	s := NewVehicleSensor(v, "charge_state_battery_level")

	// 首次刷新前不可用
	assert.False(t, s.Available())
	assert.Nil(t, s.State())

	require.NoError(t, v.Coordinator.Refresh(context.Background()))
	assert.True(t, s.Available())
	assert.Equal(t, float64(71), s.State())

	s.AvailableFn = func(v interface{}) bool {
		n, ok := v.(float64)
		return ok && n > 80
	}
	assert.False(t, s.Available())
}

func TestNewVehicleSensors(t *testing.T) {
	sensors := NewVehicleSensors(newTestVehicle(&fakeAPI{}, nil))
	assert.Len(t, sensors, len(VehicleSensorKeys))
}

func TestNewEnergySensors(t *testing.T) {
	live := coordinator.NewEnergyLive(fakeSite{}, coordinator.Options{})
	live.Write(
		coordinator.KV{Key: "solar_power", Value: float64(3000)},
		coordinator.KV{Key: "grid_power", Value: nil},
		coordinator.KV{Key: coordinator.KeyWallConnectors, Value: map[string]interface{}{
			"w1": map[string]interface{}{"wall_connector_state": float64(2)},
		}},
	)
	info := coordinator.NewEnergyInfo(fakeSite{}, map[string]interface{}{"version": "23.44.0"}, coordinator.Options{})

	sensors := NewEnergySensors(&Energy{ID: 99, LiveCoordinator: live, InfoCoordinator: info})
	require.Len(t, sensors, 2+len(WallConnectorSensorKeys)+1)

	byID := map[string]Sensor{}
	for _, s := range sensors {
		byID[s.UniqueID()] = s
	}

	assert.Equal(t, float64(3000), byID["99-solar_power"].State())
	assert.False(t, byID["99-grid_power"].Available())
	assert.Equal(t, float64(2), byID["99-w1-wall_connector_state"].State())
	assert.Equal(t, VariantWallConnector, byID["99-w1-wall_connector_state"].Variant())
	assert.Equal(t, "23.44.0", byID["99-version"].State())
}
