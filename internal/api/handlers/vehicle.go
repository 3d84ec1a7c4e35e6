package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/entity"
)

// vehicleView 车辆概要
type vehicleView struct {
	VIN        string            `json:"vin"`
	Device     entity.DeviceInfo `json:"device"`
	State      interface{}       `json:"state"`
	Interval   string            `json:"update_interval"`
	SleepMode  string            `json:"sleep_mode,omitempty"`
	LastActive string            `json:"last_active,omitempty"`
}

func newVehicleView(v *entity.Vehicle) vehicleView {
	e := entity.NewVehicleEntity(v, "state")
	view := vehicleView{
		VIN:      v.VIN,
		Device:   e.Device(),
		State:    e.Value(),
		Interval: v.Coordinator.UpdateInterval().String(),
	}
	if p := v.Coordinator.SleepPolicy(); p != nil {
		view.SleepMode = p.Mode()
		view.LastActive = p.LastActive().Format(time.RFC3339)
	}
	return view
}

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles := h.entry.Vehicles()
	views := make([]vehicleView, 0, len(vehicles))
	for _, v := range vehicles {
		views = append(views, newVehicleView(v))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// GetVehicle 获取车辆详情
func (h *Handler) GetVehicle(c *gin.Context) {
	v, err := h.entry.Vehicle(c.Param("vin"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newVehicleView(v)})
}

// WakeVehicle 唤醒车辆
// POST /api/vehicles/:vin/wake
func (h *Handler) WakeVehicle(c *gin.Context) {
	v, err := h.entry.Vehicle(c.Param("vin"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := entity.NewVehicleEntity(v, "state").WakeUpIfAsleep(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Vehicle woken via API", zap.String("vin", v.VIN))
	c.JSON(http.StatusOK, gin.H{"data": newVehicleView(v)})
}

// ListCovers 获取车辆遮盖状态
func (h *Handler) ListCovers(c *gin.Context) {
	vin := c.Param("vin")
	if _, err := h.entry.Vehicle(vin); err != nil {
		h.writeError(c, err)
		return
	}

	covers := h.entry.Covers(vin)
	views := make([]entityView, 0, len(covers))
	for _, cv := range covers {
		views = append(views, newEntityView(cv))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// ActuateCover 打开或关闭遮盖
// POST /api/vehicles/:vin/covers/:key/:action
func (h *Handler) ActuateCover(c *gin.Context) {
	vin := c.Param("vin")
	cover, err := h.entry.Cover(vin + "-" + c.Param("key"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	switch c.Param("action") {
	case "open":
		err = cover.Open(ctx)
	case "close":
		err = cover.Close(ctx)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Cover actuated via API",
		zap.String("vin", vin),
		zap.String("cover", cover.Key()),
		zap.String("action", c.Param("action")),
	)
	c.JSON(http.StatusOK, gin.H{"data": newEntityView(cover)})
}

// ListEntities 获取全部实体
func (h *Handler) ListEntities(c *gin.Context) {
	entities := h.entry.Entities()
	views := make([]entityView, 0, len(entities))
	for _, e := range entities {
		views = append(views, newEntityView(e))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// entityView 实体状态
type entityView struct {
	UniqueID  string            `json:"unique_id"`
	Key       string            `json:"key"`
	Variant   entity.Variant    `json:"variant"`
	Device    entity.DeviceInfo `json:"device"`
	Available bool              `json:"available"`
	State     interface{}       `json:"state,omitempty"`
	Closed    *bool             `json:"closed,omitempty"`
	CanClose  *bool             `json:"can_close,omitempty"`
}

func newEntityView(e entity.Entity) entityView {
	view := entityView{
		UniqueID:  e.UniqueID(),
		Key:       e.Key(),
		Variant:   e.Variant(),
		Device:    e.Device(),
		Available: e.Available(),
	}

	switch x := e.(type) {
	case entity.Sensor:
		view.State = x.State()
	case entity.Cover:
		if closed, known := x.Closed(); known {
			view.Closed = &closed
		}
		canClose := x.CanClose()
		view.CanClose = &canClose
	}
	return view
}
