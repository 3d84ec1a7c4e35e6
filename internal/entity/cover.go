package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/langchou/tesbridge/internal/coordinator"
)

// 车窗与后备箱的开关状态
const (
	CoverClosed = 0
	CoverOpen   = 1
)

// ErrNotSupported 该遮盖不支持此操作
var ErrNotSupported = errors.New("operation not supported")

var windowKeys = []string{
	"vehicle_state_fd_window",
	"vehicle_state_fp_window",
	"vehicle_state_rd_window",
	"vehicle_state_rp_window",
}

// Cover 可开合的车辆部件
type Cover interface {
	Entity
	// Closed 未知时 known 为 false
	Closed() (closed, known bool)
	CanClose() bool
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewCovers 为车辆创建全部遮盖实体
func NewCovers(v *Vehicle) []Cover {
	return []Cover{
		NewWindowCover(v),
		NewChargePortCover(v),
		NewFrontTrunkCover(v),
		NewRearTrunkCover(v),
	}
}

// run 唤醒后执行命令
func (e *VehicleEntity) run(ctx context.Context, command func(context.Context) error) error {
	if err := e.WakeUpIfAsleep(ctx); err != nil {
		return err
	}
	if err := command(ctx); err != nil {
		return fmt.Errorf("%s: %w", e.key, err)
	}
	return nil
}

// coverState 把缓存中的 0/1 转为开关状态
func coverState(v interface{}) (closed, known bool) {
	switch n := v.(type) {
	case float64:
		return n == CoverClosed, true
	case int:
		return n == CoverClosed, true
	}
	return false, false
}

// WindowCover 四个车窗，打开为通风
type WindowCover struct {
	*VehicleEntity
}

// NewWindowCover 创建车窗遮盖
func NewWindowCover(v *Vehicle) *WindowCover {
	return &WindowCover{NewVehicleEntity(v, "windows")}
}

// Available 最近一次刷新成功且四个车窗状态均已知
func (c *WindowCover) Available() bool {
	if !c.coordinator.LastUpdateSuccess() {
		return false
	}
	for _, k := range windowKeys {
		if c.GetKey(k, nil) == nil {
			return false
		}
	}
	return true
}

// Closed 四个车窗全部关闭时为关闭，任一车窗状态未知视为打开
func (c *WindowCover) Closed() (closed, known bool) {
	for _, k := range windowKeys {
		if wc, _ := coverState(c.GetKey(k, nil)); !wc {
			return false, true
		}
	}
	return true, true
}

func (c *WindowCover) CanClose() bool {
	return true
}

func (c *WindowCover) Open(ctx context.Context) error {
	if err := c.run(ctx, func(ctx context.Context) error {
		return c.vehicle.API.WindowControl(ctx, "vent")
	}); err != nil {
		return err
	}
	c.Set(windowState(CoverOpen)...)
	return nil
}

func (c *WindowCover) Close(ctx context.Context) error {
	if err := c.run(ctx, func(ctx context.Context) error {
		return c.vehicle.API.WindowControl(ctx, "close")
	}); err != nil {
		return err
	}
	c.Set(windowState(CoverClosed)...)
	return nil
}

func windowState(state int) []coordinator.KV {
	kv := make([]coordinator.KV, 0, len(windowKeys))
	for _, k := range windowKeys {
		kv = append(kv, coordinator.KV{Key: k, Value: state})
	}
	return kv
}

// ChargePortCover 充电口
type ChargePortCover struct {
	*VehicleEntity
}

// NewChargePortCover 创建充电口遮盖
func NewChargePortCover(v *Vehicle) *ChargePortCover {
	return &ChargePortCover{NewVehicleEntity(v, "charge_state_charge_port_door_open")}
}

func (c *ChargePortCover) Closed() (closed, known bool) {
	open, ok := c.Value().(bool)
	if !ok {
		return false, false
	}
	return !open, true
}

func (c *ChargePortCover) CanClose() bool {
	return true
}

func (c *ChargePortCover) Open(ctx context.Context) error {
	if err := c.run(ctx, c.vehicle.API.ChargePortDoorOpen); err != nil {
		return err
	}
	c.Set(coordinator.KV{Key: c.key, Value: true})
	return nil
}

func (c *ChargePortCover) Close(ctx context.Context) error {
	if err := c.run(ctx, c.vehicle.API.ChargePortDoorClose); err != nil {
		return err
	}
	c.Set(coordinator.KV{Key: c.key, Value: false})
	return nil
}

// FrontTrunkCover 前备箱，只能打开
type FrontTrunkCover struct {
	*VehicleEntity
}

// NewFrontTrunkCover 创建前备箱遮盖
func NewFrontTrunkCover(v *Vehicle) *FrontTrunkCover {
	return &FrontTrunkCover{NewVehicleEntity(v, "vehicle_state_ft")}
}

func (c *FrontTrunkCover) Closed() (closed, known bool) {
	return coverState(c.Value())
}

func (c *FrontTrunkCover) CanClose() bool {
	return false
}

func (c *FrontTrunkCover) Open(ctx context.Context) error {
	if err := c.run(ctx, func(ctx context.Context) error {
		return c.vehicle.API.ActuateTrunk(ctx, "front")
	}); err != nil {
		return err
	}
	c.Set(coordinator.KV{Key: c.key, Value: CoverOpen})
	return nil
}

func (c *FrontTrunkCover) Close(ctx context.Context) error {
	return ErrNotSupported
}

// RearTrunkCover 后备箱，同一个命令切换开关
type RearTrunkCover struct {
	*VehicleEntity
}

// NewRearTrunkCover 创建后备箱遮盖
func NewRearTrunkCover(v *Vehicle) *RearTrunkCover {
	return &RearTrunkCover{NewVehicleEntity(v, "vehicle_state_rt")}
}

func (c *RearTrunkCover) Closed() (closed, known bool) {
	return coverState(c.Value())
}

func (c *RearTrunkCover) CanClose() bool {
	return true
}

// Open 仅在已知关闭时发送命令
func (c *RearTrunkCover) Open(ctx context.Context) error {
	if closed, known := c.Closed(); !known || !closed {
		return nil
	}
	if err := c.run(ctx, c.actuate); err != nil {
		return err
	}
	c.Set(coordinator.KV{Key: c.key, Value: CoverOpen})
	return nil
}

// Close 仅在已知打开时发送命令
func (c *RearTrunkCover) Close(ctx context.Context) error {
	if closed, known := c.Closed(); !known || closed {
		return nil
	}
	if err := c.run(ctx, c.actuate); err != nil {
		return err
	}
	c.Set(coordinator.KV{Key: c.key, Value: CoverClosed})
	return nil
}

func (c *RearTrunkCover) actuate(ctx context.Context) error {
	return c.vehicle.API.ActuateTrunk(ctx, "rear")
}
