package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
	"github.com/langchou/tesbridge/internal/coordinator"
	"github.com/langchou/tesbridge/internal/entity"
	"github.com/langchou/tesbridge/internal/state"
)

// 错误定义
var (
	ErrReauthRequired = errors.New("re-authentication required")
	ErrNotReady       = errors.New("integration not ready")
	ErrNotFound       = errors.New("not found")
)

// Options 入口参数
type Options struct {
	Logger             *zap.Logger
	VehicleInterval    time.Duration
	Sleep              coordinator.SleepConfig
	EnergyLiveInterval time.Duration
	EnergyInfoInterval time.Duration
	Wake               entity.WakeConfig
	// SetupWithRetry 的初始退避，默认 5s
	RetryDelay time.Duration
	// 入口状态变化回调，在状态机锁内同步执行，不能回调 Entry
	OnStateChange func(from, to string)
}

// CoordinatorStatus 协调器状态
type CoordinatorStatus struct {
	Kind              coordinator.Kind `json:"kind"`
	ID                string           `json:"id"`
	UpdatedOnce       bool             `json:"updated_once"`
	LastUpdateSuccess bool             `json:"last_update_success"`
	LastError         string           `json:"last_error,omitempty"`
	LastRefresh       time.Time        `json:"last_refresh"`
	UpdateInterval    string           `json:"update_interval"`
	Running           bool             `json:"running"`
}

// Status 入口状态
type Status struct {
	state.Status
	Coordinators []CoordinatorStatus `json:"coordinators"`
}

// Entry 一个账户的集成上下文，持有客户端、协调器与实体
type Entry struct {
	client  *teslemetry.Client
	logger  *zap.Logger
	opts    Options
	machine *state.Machine

	setupMu sync.Mutex

	mu          sync.RWMutex
	products    []teslemetry.Product
	vehicles    []*entity.Vehicle
	energySites []*entity.Energy
	covers      []entity.Cover
	sensors     []entity.Sensor
	listeners   []func(coordinator.Update)
	loopCancel  context.CancelFunc
}

// NewEntry 创建集成入口
func NewEntry(client *teslemetry.Client, opts Options) *Entry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	e := &Entry{
		client: client,
		logger: opts.Logger.Named("entry"),
		opts:   opts,
	}
	e.machine = state.NewMachine(func(from, to string) {
		e.logger.Info("Entry state changed", zap.String("from", from), zap.String("to", to))
		if opts.OnStateChange != nil {
			opts.OnStateChange(from, to)
		}
	})
	return e
}

// Subscribe 订阅所有协调器的缓存变化，重新加载后依然有效
// 需要在 Setup 之前调用
func (e *Entry) Subscribe(fn func(coordinator.Update)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Setup 列出产品，创建协调器，并行完成首次刷新后启动轮询
func (e *Entry) Setup(ctx context.Context) error {
	e.setupMu.Lock()
	defer e.setupMu.Unlock()

	e.stopLoops()

	products, err := e.client.Products(ctx)
	if err != nil {
		return e.setupFailed(err)
	}

	vehicles, sites := e.build(products)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range coordinatorsOf(vehicles, sites) {
		c := c
		g.Go(func() error {
			return c.Refresh(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return e.setupFailed(err)
	}

	var covers []entity.Cover
	var sensors []entity.Sensor
	for _, v := range vehicles {
		covers = append(covers, entity.NewCovers(v)...)
		sensors = append(sensors, entity.NewVehicleSensors(v)...)
	}
	for _, s := range sites {
		sensors = append(sensors, entity.NewEnergySensors(s)...)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.products = products
	e.vehicles = vehicles
	e.energySites = sites
	e.covers = covers
	e.sensors = sensors
	e.loopCancel = cancel
	e.mu.Unlock()

	for _, c := range coordinatorsOf(vehicles, sites) {
		c.OnAuthFailed(func(err *coordinator.AuthFailedError) {
			// 回调位于协调器循环内，停止循环需要在其它 goroutine 中进行
			go e.authFailed(err)
		})
		c.Start(loopCtx)
	}

	if err := e.machine.Trigger(state.EventLoad, ""); err != nil {
		return err
	}

	e.logger.Info("Entry loaded",
		zap.Int("vehicles", len(vehicles)),
		zap.Int("energy_sites", len(sites)),
		zap.Int("entities", len(covers)+len(sensors)),
	)
	return nil
}

// SetupWithRetry 反复尝试 Setup，直到成功、需要重新认证或 ctx 结束
func (e *Entry) SetupWithRetry(ctx context.Context, attempts uint) error {
	delay := e.opts.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return retry.Do(
		func() error {
			return e.Setup(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(5*time.Minute),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrReauthRequired)
		}),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn("Setup failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (e *Entry) setupFailed(err error) error {
	var authErr *coordinator.AuthFailedError
	if errors.As(err, &authErr) || coordinator.Classify(coordinator.KindVehicle, err).Kind == coordinator.OutcomeAuthInvalid {
		_ = e.machine.Trigger(state.EventAuthFailed, err.Error())
		e.logger.Error("Setup rejected, re-authentication required", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	_ = e.machine.Trigger(state.EventSetupFailed, err.Error())
	e.logger.Warn("Setup failed", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrNotReady, err)
}

// build 为每个产品创建协调器
func (e *Entry) build(products []teslemetry.Product) ([]*entity.Vehicle, []*entity.Energy) {
	e.mu.RLock()
	listeners := append([]func(coordinator.Update){}, e.listeners...)
	e.mu.RUnlock()

	subscribe := func(c *coordinator.Coordinator) *coordinator.Coordinator {
		for _, fn := range listeners {
			c.Subscribe(fn)
		}
		return c
	}

	wake := e.opts.Wake
	if wake == (entity.WakeConfig{}) {
		wake = entity.DefaultWakeConfig()
	}

	var vehicles []*entity.Vehicle
	var sites []*entity.Energy

	for _, p := range products {
		switch {
		case p.IsVehicle():
			api := e.client.Vehicle(p.VIN)
			c := coordinator.NewVehicle(api, p.Raw, coordinator.Options{
				Logger:   e.opts.Logger,
				Interval: e.opts.VehicleInterval,
				Sleep:    e.opts.Sleep,
			})
			vehicles = append(vehicles, &entity.Vehicle{
				API:         api,
				Coordinator: subscribe(c),
				VIN:         p.VIN,
				WakeLock:    entity.NewWakeLock(),
				Wake:        wake,
			})

		case p.IsEnergySite():
			api := e.client.EnergySite(p.EnergySiteID)
			live := coordinator.NewEnergyLive(api, coordinator.Options{
				Logger:   e.opts.Logger,
				Interval: e.opts.EnergyLiveInterval,
			})
			info := coordinator.NewEnergyInfo(api, p.Raw, coordinator.Options{
				Logger:   e.opts.Logger,
				Interval: e.opts.EnergyInfoInterval,
			})
			sites = append(sites, &entity.Energy{
				ID:              p.EnergySiteID,
				LiveCoordinator: subscribe(live),
				InfoCoordinator: subscribe(info),
			})

		default:
			e.logger.Debug("Skipping unknown product", zap.Any("product", p.Raw))
		}
	}

	return vehicles, sites
}

func coordinatorsOf(vehicles []*entity.Vehicle, sites []*entity.Energy) []*coordinator.Coordinator {
	var out []*coordinator.Coordinator
	for _, v := range vehicles {
		out = append(out, v.Coordinator)
	}
	for _, s := range sites {
		out = append(out, s.LiveCoordinator, s.InfoCoordinator)
	}
	return out
}

// authFailed 任一协调器认证失败时停止全部轮询
func (e *Entry) authFailed(err *coordinator.AuthFailedError) {
	e.logger.Error("Authentication failed, stopping all polling", zap.Error(err))
	e.stopLoops()
	if tErr := e.machine.Trigger(state.EventAuthFailed, err.Error()); tErr != nil {
		e.logger.Warn("Ignoring auth failure", zap.Error(tErr))
	}
}

// Reauth 校验新 token，替换后重新加载
func (e *Entry) Reauth(ctx context.Context, accessToken string) error {
	meta, err := e.client.ValidateToken(ctx, accessToken)
	if err != nil {
		if coordinator.Classify(coordinator.KindVehicle, err).Kind == coordinator.OutcomeAuthInvalid {
			return fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return fmt.Errorf("validate token: %w", err)
	}

	e.logger.Info("Token accepted", zap.String("uid", meta.UID), zap.Strings("scopes", meta.Scopes))
	e.client.SetToken(accessToken)
	return e.Setup(ctx)
}

// Unload 停止所有轮询
func (e *Entry) Unload() {
	e.setupMu.Lock()
	defer e.setupMu.Unlock()

	e.stopLoops()
	if err := e.machine.Trigger(state.EventUnload, ""); err != nil {
		e.logger.Warn("Unload", zap.Error(err))
	}
}

func (e *Entry) stopLoops() {
	e.mu.RLock()
	coordinators := coordinatorsOf(e.vehicles, e.energySites)
	cancel := e.loopCancel
	e.mu.RUnlock()

	for _, c := range coordinators {
		c.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// State 入口当前状态
func (e *Entry) State() string {
	return e.machine.Current()
}

// Status 入口与各协调器状态
func (e *Entry) Status() Status {
	e.mu.RLock()
	coordinators := coordinatorsOf(e.vehicles, e.energySites)
	e.mu.RUnlock()

	st := Status{Status: e.machine.Status()}
	for _, c := range coordinators {
		cs := CoordinatorStatus{
			Kind:              c.Kind(),
			ID:                c.ID(),
			UpdatedOnce:       c.UpdatedOnce(),
			LastUpdateSuccess: c.LastUpdateSuccess(),
			LastRefresh:       c.LastRefresh(),
			UpdateInterval:    c.UpdateInterval().String(),
			Running:           c.Running(),
		}
		if err := c.LastError(); err != nil {
			cs.LastError = err.Error()
		}
		st.Coordinators = append(st.Coordinators, cs)
	}
	return st
}

// Products 最近一次加载的产品列表
func (e *Entry) Products() []teslemetry.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.products
}

// Vehicles 所有车辆
func (e *Entry) Vehicles() []*entity.Vehicle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vehicles
}

// Vehicle 按 VIN 查找车辆
func (e *Entry) Vehicle(vin string) (*entity.Vehicle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, v := range e.vehicles {
		if v.VIN == vin {
			return v, nil
		}
	}
	return nil, fmt.Errorf("vehicle %s: %w", vin, ErrNotFound)
}

// EnergySites 所有能源站点
func (e *Entry) EnergySites() []*entity.Energy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.energySites
}

// EnergySite 按 ID 查找站点
func (e *Entry) EnergySite(id int64) (*entity.Energy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.energySites {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("energy site %d: %w", id, ErrNotFound)
}

// Coordinator 按类型与 ID 查找协调器
func (e *Entry) Coordinator(kind coordinator.Kind, id string) (*coordinator.Coordinator, error) {
	switch kind {
	case coordinator.KindVehicle:
		v, err := e.Vehicle(id)
		if err != nil {
			return nil, err
		}
		return v.Coordinator, nil
	case coordinator.KindEnergyLive, coordinator.KindEnergyInfo:
		siteID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("energy site %s: %w", id, ErrNotFound)
		}
		s, err := e.EnergySite(siteID)
		if err != nil {
			return nil, err
		}
		if kind == coordinator.KindEnergyLive {
			return s.LiveCoordinator, nil
		}
		return s.InfoCoordinator, nil
	}
	return nil, fmt.Errorf("coordinator kind %s: %w", kind, ErrNotFound)
}

// Covers 某辆车的遮盖实体
func (e *Entry) Covers(vin string) []entity.Cover {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []entity.Cover
	for _, c := range e.covers {
		if c.Device().Identifier == vin {
			out = append(out, c)
		}
	}
	return out
}

// Cover 按唯一 ID 查找遮盖
func (e *Entry) Cover(uniqueID string) (entity.Cover, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.covers {
		if c.UniqueID() == uniqueID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("cover %s: %w", uniqueID, ErrNotFound)
}

// Entities 所有实体，按唯一 ID 排序
func (e *Entry) Entities() []entity.Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]entity.Entity, 0, len(e.covers)+len(e.sensors))
	for _, c := range e.covers {
		out = append(out, c)
	}
	for _, s := range e.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UniqueID() < out[j].UniqueID()
	})
	return out
}

// Sensors 所有传感器
func (e *Entry) Sensors() []entity.Sensor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sensors
}
