package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
)

// VehicleFetcher 车辆数据接口
type VehicleFetcher interface {
	VIN() string
	VehicleData(ctx context.Context, endpoints ...string) (map[string]interface{}, error)
}

// NewVehicle 创建车辆协调器，初始缓存为产品列表中的车辆数据
func NewVehicle(api VehicleFetcher, product map[string]interface{}, opts Options) *Coordinator {
	cfg := opts.Sleep
	if cfg == (SleepConfig{}) {
		cfg = DefaultSleepConfig()
	}
	if opts.Interval > 0 {
		cfg.ActiveInterval = opts.Interval
	}
	opts.Interval = cfg.ActiveInterval

	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = teslemetry.DefaultEndpoints
	}

	fetch := func(ctx context.Context) (map[string]interface{}, error) {
		return api.VehicleData(ctx, endpoints...)
	}

	c := newCoordinator(KindVehicle, api.VIN(), Flatten(product), opts, fetch, Flatten)

	if IsPre2021(api.VIN()) {
		c.policy = NewSleepPolicy(cfg, c.clock)
		c.logger.Info("Vehicle will be allowed to sleep", zap.String("vin", api.VIN()))
	}

	return c
}
