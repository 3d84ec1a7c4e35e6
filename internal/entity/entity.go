package entity

import (
	"context"
	"strconv"
	"strings"

	"github.com/langchou/tesbridge/internal/coordinator"
)

// Variant 实体类别
type Variant string

const (
	VariantVehicle       Variant = "vehicle"
	VariantEnergyLive    Variant = "energy_live"
	VariantEnergyInfo    Variant = "energy_info"
	VariantWallConnector Variant = "wall_connector"
)

// ConfigurationURL 设备的管理页面
const ConfigurationURL = "https://teslemetry.com/console"

// models 车型代码
var models = map[string]string{
	"S": "Model S",
	"3": "Model 3",
	"X": "Model X",
	"Y": "Model Y",
}

// DeviceInfo 实体所属设备
type DeviceInfo struct {
	Identifier       string `json:"identifier"`
	Manufacturer     string `json:"manufacturer"`
	Name             string `json:"name"`
	Model            string `json:"model,omitempty"`
	SWVersion        string `json:"sw_version,omitempty"`
	HWVersion        string `json:"hw_version,omitempty"`
	SerialNumber     string `json:"serial_number,omitempty"`
	ViaDevice        string `json:"via_device,omitempty"`
	ConfigurationURL string `json:"configuration_url"`
}

// Entity 所有实体共享的能力
type Entity interface {
	UniqueID() string
	Key() string
	Variant() Variant
	Device() DeviceInfo
	Coordinator() *coordinator.Coordinator
	Available() bool
}

// VehicleAPI 车辆实体需要的远程操作
type VehicleAPI interface {
	VIN() string
	WakeUp(ctx context.Context) (string, error)
	WindowControl(ctx context.Context, command string) error
	ChargePortDoorOpen(ctx context.Context) error
	ChargePortDoorClose(ctx context.Context) error
	ActuateTrunk(ctx context.Context, whichTrunk string) error
}

// Vehicle 单辆车的数据集合
type Vehicle struct {
	API         VehicleAPI
	Coordinator *coordinator.Coordinator
	VIN         string
	WakeLock    *WakeLock
	Wake        WakeConfig
}

// Energy 单个能源站点的数据集合
type Energy struct {
	ID              int64
	LiveCoordinator *coordinator.Coordinator
	InfoCoordinator *coordinator.Coordinator
}

// Base 绑定到协调器某个键的缓存访问
type Base struct {
	coordinator *coordinator.Coordinator
	key         string
	uniqueID    string
	variant     Variant
	device      DeviceInfo
}

func newBase(c *coordinator.Coordinator, key, uniqueID string, variant Variant, device DeviceInfo) Base {
	return Base{
		coordinator: c,
		key:         key,
		uniqueID:    uniqueID,
		variant:     variant,
		device:      device,
	}
}

func (b *Base) UniqueID() string {
	return b.uniqueID
}

func (b *Base) Key() string {
	return b.key
}

func (b *Base) Variant() Variant {
	return b.variant
}

func (b *Base) Device() DeviceInfo {
	return b.device
}

func (b *Base) Coordinator() *coordinator.Coordinator {
	return b.coordinator
}

// Has 缓存中是否存在实体的键
func (b *Base) Has() bool {
	return b.coordinator.Has(b.key)
}

// HasKey 缓存中是否存在指定键
func (b *Base) HasKey(key string) bool {
	return b.coordinator.Has(key)
}

// Get 读取实体的值
func (b *Base) Get(def interface{}) interface{} {
	return b.coordinator.Read(b.key, def)
}

// GetKey 读取指定键
func (b *Base) GetKey(key string, def interface{}) interface{} {
	return b.coordinator.Read(key, def)
}

// Exactly 实体的值是否等于 value，见 Coordinator.Exactly
func (b *Base) Exactly(value interface{}) (match, known bool) {
	return b.coordinator.Exactly(b.key, value)
}

// Set 乐观写入
func (b *Base) Set(kv ...coordinator.KV) {
	b.coordinator.Write(kv...)
}

// Value 实体的当前值
func (b *Base) Value() interface{} {
	return b.Get(nil)
}

// Available 最近一次刷新成功且值不为空
func (b *Base) Available() bool {
	return b.coordinator.LastUpdateSuccess() && b.Value() != nil
}

// VehicleEntity 车辆实体
type VehicleEntity struct {
	Base
	vehicle *Vehicle
}

// NewVehicleEntity 创建车辆实体
func NewVehicleEntity(v *Vehicle, key string) *VehicleEntity {
	return &VehicleEntity{
		Base:    newBase(v.Coordinator, key, v.VIN+"-"+key, VariantVehicle, vehicleDevice(v)),
		vehicle: v,
	}
}

// Vehicle 所属车辆
func (e *VehicleEntity) Vehicle() *Vehicle {
	return e.vehicle
}

func vehicleDevice(v *Vehicle) DeviceInfo {
	c := v.Coordinator

	name := stringValue(c.Read("vehicle_state_vehicle_name", nil))
	if name == "" {
		name = stringValue(c.Read("display_name", nil))
	}
	if name == "" {
		name = v.VIN
	}

	model := stringValue(c.Read("vehicle_config_car_type", nil))
	if m, ok := models[model]; ok {
		model = m
	}

	sw := stringValue(c.Read("vehicle_state_car_version", nil))
	if i := strings.IndexByte(sw, ' '); i >= 0 {
		sw = sw[:i]
	}

	return DeviceInfo{
		Identifier:       v.VIN,
		Manufacturer:     "Tesla",
		Name:             name,
		Model:            model,
		SWVersion:        sw,
		HWVersion:        stringValue(c.Read("vehicle_config_driver_assist", nil)),
		SerialNumber:     v.VIN,
		ConfigurationURL: ConfigurationURL,
	}
}

// EnergyLiveEntity 能源站点实时状态实体
type EnergyLiveEntity struct {
	Base
}

// NewEnergyLiveEntity 创建能源站点实时状态实体
func NewEnergyLiveEntity(e *Energy, key string) *EnergyLiveEntity {
	return &EnergyLiveEntity{
		Base: newBase(e.LiveCoordinator, key, siteID(e)+"-"+key, VariantEnergyLive, siteDevice(e, e.LiveCoordinator)),
	}
}

// EnergyInfoEntity 能源站点信息实体
type EnergyInfoEntity struct {
	Base
}

// NewEnergyInfoEntity 创建能源站点信息实体
func NewEnergyInfoEntity(e *Energy, key string) *EnergyInfoEntity {
	return &EnergyInfoEntity{
		Base: newBase(e.InfoCoordinator, key, siteID(e)+"-"+key, VariantEnergyInfo, siteDevice(e, e.InfoCoordinator)),
	}
}

func siteID(e *Energy) string {
	return strconv.FormatInt(e.ID, 10)
}

func siteDevice(e *Energy, c *coordinator.Coordinator) DeviceInfo {
	name := stringValue(c.Read("site_name", nil))
	if name == "" {
		name = "Energy Site"
	}
	return DeviceInfo{
		Identifier:       siteID(e),
		Manufacturer:     "Tesla",
		Name:             name,
		ConfigurationURL: ConfigurationURL,
	}
}

// WallConnectorEntity 壁挂充电器实体，值位于 wall_connectors[din][key]
type WallConnectorEntity struct {
	Base
	din string
}

// NewWallConnectorEntity 创建壁挂充电器实体
func NewWallConnectorEntity(e *Energy, din, key string) *WallConnectorEntity {
	serial := din
	if i := strings.LastIndexByte(din, '-'); i >= 0 {
		serial = din[i+1:]
	}

	return &WallConnectorEntity{
		Base: newBase(e.LiveCoordinator, key, siteID(e)+"-"+din+"-"+key, VariantWallConnector, DeviceInfo{
			Identifier:       din,
			Manufacturer:     "Tesla",
			Name:             "Wall Connector",
			SerialNumber:     serial,
			ViaDevice:        siteID(e),
			ConfigurationURL: ConfigurationURL,
		}),
		din: din,
	}
}

// DIN 充电器标识
func (e *WallConnectorEntity) DIN() string {
	return e.din
}

// Value 当前充电器上的值
func (e *WallConnectorEntity) Value() interface{} {
	all, _ := e.coordinator.Read(coordinator.KeyWallConnectors, nil).(map[string]interface{})
	wc, _ := all[e.din].(map[string]interface{})
	return wc[e.key]
}

// Has 充电器数据中是否存在该键
func (e *WallConnectorEntity) Has() bool {
	all, _ := e.coordinator.Read(coordinator.KeyWallConnectors, nil).(map[string]interface{})
	wc, _ := all[e.din].(map[string]interface{})
	_, ok := wc[e.key]
	return ok
}

// Available 最近一次刷新成功且值不为空
func (e *WallConnectorEntity) Available() bool {
	return e.coordinator.LastUpdateSuccess() && e.Value() != nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
