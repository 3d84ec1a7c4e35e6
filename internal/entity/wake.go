package entity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v3"
	"golang.org/x/sync/semaphore"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
	"github.com/langchou/tesbridge/internal/coordinator"
)

// ErrWakeTimeout 超出等待预算仍未唤醒
var ErrWakeTimeout = errors.New("could not wake up vehicle")

var errStillAsleep = errors.New("vehicle still asleep")

// WakeError 唤醒请求本身失败
type WakeError struct {
	Err error
}

func (e *WakeError) Error() string {
	return fmt.Sprintf("wake up vehicle: %v", e.Err)
}

func (e *WakeError) Unwrap() error {
	return e.Err
}

// WakeConfig 唤醒重试参数
// 第 n 次重试前等待 Step*n，累计等待达到 Budget 后放弃
type WakeConfig struct {
	Step   time.Duration
	Budget time.Duration
}

// DefaultWakeConfig 5s 递增，累计 30s
func DefaultWakeConfig() WakeConfig {
	return WakeConfig{
		Step:   5 * time.Second,
		Budget: 30 * time.Second,
	}
}

// Attempts 预算内的唤醒次数
func (c WakeConfig) Attempts() uint {
	if c.Step <= 0 {
		return 1
	}
	var n uint
	var waited time.Duration
	for waited < c.Budget {
		n++
		waited += time.Duration(n) * c.Step
	}
	return n + 1
}

func (c WakeConfig) delay(n uint, _ error, _ *retry.Config) time.Duration {
	return time.Duration(n+1) * c.Step
}

// WakeLock 每辆车一个，串行化唤醒流程
type WakeLock struct {
	sem *semaphore.Weighted
}

// NewWakeLock 创建唤醒锁
func NewWakeLock() *WakeLock {
	return &WakeLock{sem: semaphore.NewWeighted(1)}
}

// Acquire 获取锁，ctx 取消时返回错误
func (l *WakeLock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release 释放锁
func (l *WakeLock) Release() {
	l.sem.Release(1)
}

// WakeUpIfAsleep 车辆不在线时唤醒，并把每次返回的状态写入缓存
// 同一辆车的并发调用排队等待，拿到锁后重新检查缓存
func (e *VehicleEntity) WakeUpIfAsleep(ctx context.Context) error {
	v := e.vehicle
	if err := v.WakeLock.Acquire(ctx); err != nil {
		return err
	}
	defer v.WakeLock.Release()

	if e.online() {
		return nil
	}

	cfg := v.Wake
	if cfg == (WakeConfig{}) {
		cfg = DefaultWakeConfig()
	}

	err := retry.Do(
		func() error {
			state, err := v.API.WakeUp(ctx)
			if err != nil {
				return &WakeError{Err: err}
			}
			e.Set(coordinator.KV{Key: "state", Value: state})
			if state != teslemetry.StateOnline {
				return errStillAsleep
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts()),
		retry.DelayType(cfg.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errStillAsleep)
		}),
	)

	if errors.Is(err, errStillAsleep) {
		return ErrWakeTimeout
	}
	return err
}

func (e *VehicleEntity) online() bool {
	match, _ := e.coordinator.Exactly("state", teslemetry.StateOnline)
	return match
}
