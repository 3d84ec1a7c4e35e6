package coordinator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const topicUpdate = "update"

// KV 一次写入的键值对
type KV struct {
	Key   string
	Value interface{}
}

// Update 缓存变化通知
type Update struct {
	Kind Kind
	ID   string
	// 变化后的缓存快照
	Data map[string]interface{}
	// 由 Write 写入的键，刷新时为空
	Keys    []string
	Success bool
	Err     error
	Time    time.Time
}

// Options 协调器参数
type Options struct {
	Logger *zap.Logger
	Clock  clock.Clock
	// 基础轮询间隔，车辆为活跃间隔
	Interval time.Duration
	// 仅车辆使用
	Sleep     SleepConfig
	Endpoints []string
}

type fetchFunc func(ctx context.Context) (map[string]interface{}, error)

type processFunc func(raw map[string]interface{}) map[string]interface{}

// Coordinator 单个资源的定时刷新与共享缓存
type Coordinator struct {
	kind    Kind
	id      string
	logger  *zap.Logger
	clock   clock.Clock
	fetch   fetchFunc
	process processFunc

	// 仅 2021 年前的车辆非空
	policy         *SleepPolicy
	activeInterval time.Duration

	mu          sync.RWMutex
	data        map[string]interface{}
	interval    time.Duration
	updatedOnce bool
	lastSuccess bool
	lastErr     error
	lastRefresh time.Time

	group singleflight.Group
	bus   EventBus.Bus
	// 保证缓存修改与通知顺序一致
	pubMu sync.Mutex

	authMu       sync.Mutex
	onAuthFailed func(*AuthFailedError)
	authFired    bool

	loopMu  sync.Mutex
	stopCh  chan struct{}
	running bool
	wg      sync.WaitGroup
}

func newCoordinator(kind Kind, id string, initial map[string]interface{}, opts Options, fetch fetchFunc, process processFunc) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	if initial == nil {
		initial = map[string]interface{}{}
	}

	c := &Coordinator{
		kind:           kind,
		id:             id,
		logger:         logger.Named(string(kind)).With(zap.String("id", id)),
		clock:          clk,
		fetch:          fetch,
		process:        process,
		activeInterval: opts.Interval,
		data:           initial,
		interval:       opts.Interval,
		lastSuccess:    true,
		bus:            EventBus.New(),
	}
	UpdateIntervalSeconds.WithLabelValues(string(kind), id).Set(opts.Interval.Seconds())
	return c
}

// Kind 资源类型
func (c *Coordinator) Kind() Kind {
	return c.kind
}

// ID 资源标识，车辆为 VIN，能源站点为站点 ID
func (c *Coordinator) ID() string {
	return c.id
}

// Refresh 执行一次拉取
// 已有拉取进行中时，调用方共享该次结果，不会发起新的请求。
// 拉取本身不受调用方取消影响，ctx 结束只让当前调用方提前返回。
func (c *Coordinator) Refresh(ctx context.Context) error {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		return nil, c.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("Refresh joined in-flight fetch")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) refresh(ctx context.Context) error {
	start := c.clock.Now()
	raw, err := c.fetch(ctx)
	RefreshDuration.WithLabelValues(string(c.kind)).Observe(c.clock.Since(start).Seconds())

	outcome := Classify(c.kind, err)
	RefreshTotal.WithLabelValues(string(c.kind), c.id, outcome.Kind.String()).Inc()

	switch outcome.Kind {
	case OutcomeOK:
		c.applySuccess(c.process(raw))
		return nil

	case OutcomeTransient:
		c.applyTransient(outcome.Reason)
		return nil

	case OutcomeAuthInvalid:
		authErr := &AuthFailedError{Kind: c.kind, ID: c.id, Err: err}
		c.logger.Error("Authentication rejected", zap.Error(err))
		c.applyFailure(authErr)
		c.fireAuthFailed(authErr)
		return authErr
	}

	failErr := &UpdateFailedError{Kind: c.kind, ID: c.id, Message: outcome.Message, Err: err}
	c.logger.Warn("Update failed", zap.String("message", outcome.Message), zap.Error(err))
	c.applyFailure(failErr)
	return failErr
}

func (c *Coordinator) applySuccess(data map[string]interface{}) {
	c.mutate(nil, nil, func() {
		c.data = data
		c.updatedOnce = true
		c.lastSuccess = true
		c.lastErr = nil
		c.lastRefresh = c.clock.Now()

		if c.policy != nil {
			if interval, ok := c.policy.Evaluate(ActivityFromData(data)); ok {
				if interval != c.interval {
					c.logger.Debug("Polling interval changed",
						zap.Duration("interval", interval),
						zap.String("mode", c.policy.Mode()),
					)
				}
				c.interval = interval
			}
		}
		UpdateIntervalSeconds.WithLabelValues(string(c.kind), c.id).Set(c.interval.Seconds())
	})
}

// applyTransient 资源暂时不可达，写入状态标记并回到活跃间隔
func (c *Coordinator) applyTransient(reason string) {
	c.logger.Debug("Resource unavailable", zap.String("reason", reason))

	c.mutate(nil, nil, func() {
		c.data["state"] = reason
		c.interval = c.activeInterval
		c.lastSuccess = true
		c.lastErr = nil
		c.lastRefresh = c.clock.Now()

		if c.policy != nil {
			c.policy.Reset()
		}
		UpdateIntervalSeconds.WithLabelValues(string(c.kind), c.id).Set(c.activeInterval.Seconds())
	})
}

func (c *Coordinator) applyFailure(err error) {
	c.mutate(nil, err, func() {
		c.lastSuccess = false
		c.lastErr = err
		c.lastRefresh = c.clock.Now()
	})
}

// OnAuthFailed 注册认证失败回调，每个协调器只触发一次
// 回调在刷新所在的 goroutine 中执行，不能同步调用 Stop
func (c *Coordinator) OnAuthFailed(fn func(*AuthFailedError)) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.onAuthFailed = fn
	c.authFired = false
}

func (c *Coordinator) fireAuthFailed(err *AuthFailedError) {
	c.authMu.Lock()
	fn := c.onAuthFailed
	fired := c.authFired
	c.authFired = true
	c.authMu.Unlock()

	if fn != nil && !fired {
		fn(err)
	}
}

// Read 读取缓存值，不存在时返回 def
func (c *Coordinator) Read(key string, def interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

// Has 缓存中是否存在该键
func (c *Coordinator) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok
}

// Exactly 判断缓存值是否等于 value
// value 为 nil 时判断键存在且值为 null；否则值缺失或为 null 时 known 为 false
func (c *Coordinator) Exactly(key string, value interface{}) (match, known bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current, ok := c.data[key]
	if value == nil {
		return ok && current == nil, true
	}
	if current == nil {
		return false, false
	}
	return reflect.DeepEqual(current, value), true
}

// Write 写入键值并同步通知所有订阅者
func (c *Coordinator) Write(kv ...KV) {
	if len(kv) == 0 {
		return
	}

	keys := make([]string, 0, len(kv))
	for _, p := range kv {
		keys = append(keys, p.Key)
	}

	c.mutate(keys, nil, func() {
		for _, p := range kv {
			c.data[p.Key] = p.Value
		}
	})
}

// Snapshot 返回缓存的浅拷贝
func (c *Coordinator) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() map[string]interface{} {
	out := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// UpdatedOnce 是否已成功刷新过
func (c *Coordinator) UpdatedOnce() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedOnce
}

// UpdateInterval 当前轮询间隔
func (c *Coordinator) UpdateInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// LastUpdateSuccess 最近一次刷新是否成功
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastError 最近一次刷新的错误
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastRefresh 最近一次刷新完成的时间
func (c *Coordinator) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// LastActive 最近一次观察到车辆活动的时间，不使用休眠策略时为零值
func (c *Coordinator) LastActive() time.Time {
	if c.policy == nil {
		return time.Time{}
	}
	return c.policy.LastActive()
}

// SleepPolicy 休眠策略，未启用时为 nil
func (c *Coordinator) SleepPolicy() *SleepPolicy {
	return c.policy
}

// Subscribe 订阅缓存变化
// 回调同步执行，不能在回调中调用 Write 或 Subscribe
func (c *Coordinator) Subscribe(fn func(Update)) {
	if err := c.bus.Subscribe(topicUpdate, fn); err != nil {
		c.logger.Error("Failed to subscribe", zap.Error(err))
	}
}

// mutate 在写锁内执行 fn 并取快照，随后通知订阅者
// 通知完成前不会开始下一次修改，订阅者收到的快照顺序与修改顺序一致
func (c *Coordinator) mutate(keys []string, err error, fn func()) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	fn()
	u := Update{
		Kind:    c.kind,
		ID:      c.id,
		Data:    c.snapshotLocked(),
		Keys:    keys,
		Success: c.lastSuccess,
		Err:     err,
		Time:    c.clock.Now(),
	}
	c.mu.Unlock()

	c.bus.Publish(topicUpdate, u)
}

// Start 启动定时刷新
// 首次刷新由调用方完成，循环在一个间隔之后开始
func (c *Coordinator) Start(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.running {
		return
	}
	c.stopCh = make(chan struct{})
	c.running = true

	c.wg.Add(1)
	go c.loop(ctx, c.stopCh)
	c.logger.Info("Polling started", zap.Duration("interval", c.UpdateInterval()))
}

// Stop 停止定时刷新并等待循环退出
func (c *Coordinator) Stop() {
	c.loopMu.Lock()
	if !c.running {
		c.loopMu.Unlock()
		c.wg.Wait()
		return
	}
	c.running = false
	close(c.stopCh)
	c.loopMu.Unlock()

	c.wg.Wait()
	c.logger.Info("Polling stopped")
}

// Running 循环是否在运行
func (c *Coordinator) Running() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.running
}

func (c *Coordinator) loop(ctx context.Context, stopCh chan struct{}) {
	defer c.wg.Done()

	// 每次刷新完成后才重新计时，定时器触发不会重叠
	timer := c.clock.Timer(c.UpdateInterval())
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			c.halt(stopCh)
			return
		case <-timer.C:
			err := c.Refresh(ctx)

			var authErr *AuthFailedError
			if errors.As(err, &authErr) {
				c.logger.Warn("Polling halted until re-authentication")
				c.halt(stopCh)
				return
			}

			timer.Reset(c.UpdateInterval())
		}
	}
}

// halt 循环自行退出时清理运行标记
func (c *Coordinator) halt(stopCh chan struct{}) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.running && c.stopCh == stopCh {
		c.running = false
		close(c.stopCh)
	}
}
