package teslemetry

import (
	"encoding/json"
	"strconv"
)

// 车辆在线状态
const (
	StateOnline  = "online"
	StateAsleep  = "asleep"
	StateOffline = "offline"
)

// vehicle_data 请求的端点
const (
	EndpointChargeState   = "charge_state"
	EndpointClimateState  = "climate_state"
	EndpointDriveState    = "drive_state"
	EndpointLocationData  = "location_data"
	EndpointVehicleState  = "vehicle_state"
	EndpointVehicleConfig = "vehicle_config"
)

// DefaultEndpoints 轮询时请求的全部端点
var DefaultEndpoints = []string{
	EndpointChargeState,
	EndpointClimateState,
	EndpointDriveState,
	EndpointLocationData,
	EndpointVehicleState,
	EndpointVehicleConfig,
}

// Metadata /api/metadata 返回的账户信息
type Metadata struct {
	UID    string   `json:"uid"`
	Region string   `json:"region"`
	Scopes []string `json:"scopes"`
}

// Product 产品列表中的一项，车辆或能源站点
type Product struct {
	// 原始数据，作为协调器的初始缓存
	Raw map[string]interface{} `json:"-"`

	VIN          string `json:"vin,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	State        string `json:"state,omitempty"`
	EnergySiteID int64  `json:"energy_site_id,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
}

// IsVehicle 是否为车辆
func (p Product) IsVehicle() bool {
	return p.VIN != ""
}

// IsEnergySite 是否为能源站点
func (p Product) IsEnergySite() bool {
	return p.EnergySiteID != 0
}

func newProduct(raw map[string]interface{}) Product {
	p := Product{Raw: raw}
	p.VIN, _ = raw["vin"].(string)
	p.DisplayName, _ = raw["display_name"].(string)
	p.State, _ = raw["state"].(string)
	p.SiteName, _ = raw["site_name"].(string)

	// energy_site_id 可能是数字也可能是字符串
	switch id := raw["energy_site_id"].(type) {
	case float64:
		p.EnergySiteID = int64(id)
	case string:
		p.EnergySiteID, _ = strconv.ParseInt(id, 10, 64)
	case json.Number:
		p.EnergySiteID, _ = id.Int64()
	}

	return p
}

// CommandResult 车辆命令的返回
type CommandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

// MilesToKm 英里转公里
func MilesToKm(miles float64) float64 {
	return miles * 1.60934
}
