package entity

import (
	"github.com/langchou/tesbridge/internal/coordinator"
)

// VehicleSensorKeys 车辆传感器对应的缓存键
var VehicleSensorKeys = []string{
	"charge_state_charging_state",
	"charge_state_battery_level",
	"charge_state_usable_battery_level",
	"charge_state_charge_energy_added",
	"charge_state_charger_power",
	"charge_state_charger_voltage",
	"charge_state_charger_actual_current",
	"charge_state_charge_rate",
	"charge_state_conn_charge_cable",
	"charge_state_fast_charger_type",
	"charge_state_battery_range",
	"charge_state_est_battery_range",
	"charge_state_ideal_battery_range",
	"charge_state_minutes_to_full_charge",
	"drive_state_speed",
	"drive_state_power",
	"drive_state_shift_state",
	"drive_state_active_route_minutes_to_arrival",
	"drive_state_active_route_miles_to_arrival",
	"vehicle_state_odometer",
	"vehicle_state_tpms_pressure_fl",
	"vehicle_state_tpms_pressure_fr",
	"vehicle_state_tpms_pressure_rl",
	"vehicle_state_tpms_pressure_rr",
	"climate_state_inside_temp",
	"climate_state_outside_temp",
	"climate_state_driver_temp_setting",
	"climate_state_passenger_temp_setting",
}

// EnergyLiveSensorKeys 站点实时状态传感器
var EnergyLiveSensorKeys = []string{
	"solar_power",
	"energy_left",
	"total_pack_energy",
	"percentage_charged",
	"battery_power",
	"load_power",
	"grid_power",
	"grid_services_power",
	"generator_power",
	"island_status",
}

// WallConnectorSensorKeys 壁挂充电器传感器，vin 为当前连接的车辆
var WallConnectorSensorKeys = []string{
	"wall_connector_state",
	"wall_connector_fault_state",
	"wall_connector_power",
	"vin",
}

// EnergyInfoSensorKeys 站点信息传感器
var EnergyInfoSensorKeys = []string{
	"vpp_backup_reserve_percent",
	"version",
}

// Sensor 只读传感器
type Sensor interface {
	Entity
	State() interface{}
}

// VehicleSensor 车辆原始值传感器
type VehicleSensor struct {
	*VehicleEntity
	// 为空时使用值非 nil 判断
	AvailableFn func(v interface{}) bool
}

// NewVehicleSensor 创建车辆传感器
func NewVehicleSensor(v *Vehicle, key string) *VehicleSensor {
	return &VehicleSensor{VehicleEntity: NewVehicleEntity(v, key)}
}

// Available 未成功刷新过时不可用
func (s *VehicleSensor) Available() bool {
	if !s.coordinator.UpdatedOnce() || !s.coordinator.LastUpdateSuccess() {
		return false
	}
	if s.AvailableFn != nil {
		return s.AvailableFn(s.Value())
	}
	return s.Value() != nil
}

// State 传感器值，不可用时为 nil
func (s *VehicleSensor) State() interface{} {
	if !s.Available() {
		return nil
	}
	return s.Value()
}

// EnergyLiveSensor 站点实时状态传感器
type EnergyLiveSensor struct {
	*EnergyLiveEntity
}

func (s *EnergyLiveSensor) State() interface{} {
	return s.Value()
}

// EnergyInfoSensor 站点信息传感器
type EnergyInfoSensor struct {
	*EnergyInfoEntity
}

func (s *EnergyInfoSensor) State() interface{} {
	return s.Value()
}

// WallConnectorSensor 壁挂充电器传感器
type WallConnectorSensor struct {
	*WallConnectorEntity
}

func (s *WallConnectorSensor) State() interface{} {
	return s.Value()
}

// NewVehicleSensors 为车辆创建全部传感器
func NewVehicleSensors(v *Vehicle) []Sensor {
	sensors := make([]Sensor, 0, len(VehicleSensorKeys))
	for _, key := range VehicleSensorKeys {
		sensors = append(sensors, NewVehicleSensor(v, key))
	}
	return sensors
}

// NewEnergySensors 为能源站点创建传感器
// 实时与信息传感器只为缓存中已有的键创建，每个壁挂充电器各一组
func NewEnergySensors(e *Energy) []Sensor {
	var sensors []Sensor

	for _, key := range EnergyLiveSensorKeys {
		if e.LiveCoordinator.Has(key) {
			sensors = append(sensors, &EnergyLiveSensor{NewEnergyLiveEntity(e, key)})
		}
	}

	wallConnectors, _ := e.LiveCoordinator.Read(coordinator.KeyWallConnectors, nil).(map[string]interface{})
	for din := range wallConnectors {
		for _, key := range WallConnectorSensorKeys {
			sensors = append(sensors, &WallConnectorSensor{NewWallConnectorEntity(e, din, key)})
		}
	}

	for _, key := range EnergyInfoSensorKeys {
		if e.InfoCoordinator.Has(key) {
			sensors = append(sensors, &EnergyInfoSensor{NewEnergyInfoEntity(e, key)})
		}
	}

	return sensors
}
