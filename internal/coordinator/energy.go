package coordinator

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// KeyWallConnectors 实时状态中按 din 索引的壁挂充电器
const KeyWallConnectors = "wall_connectors"

// EnergyFetcher 能源站点接口
type EnergyFetcher interface {
	ID() int64
	LiveStatus(ctx context.Context) (map[string]interface{}, error)
	SiteInfo(ctx context.Context) (map[string]interface{}, error)
}

// NewEnergyLive 创建能源站点实时状态协调器
func NewEnergyLive(api EnergyFetcher, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	id := strconv.FormatInt(api.ID(), 10)

	initial := map[string]interface{}{
		KeyWallConnectors: map[string]interface{}{},
	}

	var c *Coordinator
	process := func(raw map[string]interface{}) map[string]interface{} {
		data := Flatten(raw)
		data[KeyWallConnectors] = keyWallConnectors(raw[KeyWallConnectors], c.logger)
		return data
	}

	c = newCoordinator(KindEnergyLive, id, initial, opts, api.LiveStatus, process)
	return c
}

// NewEnergyInfo 创建能源站点信息协调器，初始缓存为产品列表中的站点数据
func NewEnergyInfo(api EnergyFetcher, product map[string]interface{}, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	id := strconv.FormatInt(api.ID(), 10)

	return newCoordinator(KindEnergyInfo, id, Flatten(product), opts, api.SiteInfo, Flatten)
}

// keyWallConnectors 把壁挂充电器列表转换为以 din 为键的 map
// 列表缺失时返回空 map
func keyWallConnectors(v interface{}, logger *zap.Logger) map[string]interface{} {
	out := map[string]interface{}{}

	list, _ := v.([]interface{})
	for _, item := range list {
		wc, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		din, ok := wc["din"].(string)
		if !ok || din == "" {
			logger.Debug("Skipping wall connector without din")
			continue
		}
		out[din] = wc
	}
	return out
}
