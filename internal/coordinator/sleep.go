package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"
)

// 休眠策略模式
const (
	ModeActive     = "active"
	ModeSleepArmed = "sleep_armed"
)

// 休眠策略事件
const (
	EventActivity   = "activity"
	EventEnterSleep = "enter_sleep"
	EventEndSleep   = "end_sleep"
)

// SleepConfig 休眠策略参数
type SleepConfig struct {
	ActiveInterval time.Duration
	SleepInterval  time.Duration
	// 空闲超过该时长后放宽轮询间隔
	SleepAfter time.Duration
	// 空闲超过该时长后重新计时
	RearmAfter time.Duration
}

// DefaultSleepConfig 默认参数
func DefaultSleepConfig() SleepConfig {
	return SleepConfig{
		ActiveInterval: 30 * time.Second,
		SleepInterval:  15 * time.Minute,
		SleepAfter:     15 * time.Minute,
		RearmAfter:     20 * time.Minute,
	}
}

// Activity 一次轮询中观察到的活动信号
type Activity struct {
	Charging    bool
	UserPresent bool
	SentryMode  bool
}

// Active 是否存在任一活动信号
func (a Activity) Active() bool {
	return a.Charging || a.UserPresent || a.SentryMode
}

// ActivityFromData 从展开后的车辆数据中读取活动信号
func ActivityFromData(data map[string]interface{}) Activity {
	state, _ := data["charge_state_charging_state"].(string)
	present, _ := data["vehicle_state_is_user_present"].(bool)
	sentry, _ := data["vehicle_state_sentry_mode"].(bool)
	return Activity{
		Charging:    state == "Charging",
		UserPresent: present,
		SentryMode:  sentry,
	}
}

// IsPre2021 根据 VIN 第 10 位（车型年份）判断是否为 2021 年前的车辆
// 这些车辆无法自行管理休眠，需要降低轮询频率
func IsPre2021(vin string) bool {
	return len(vin) >= 10 && vin[9] <= 'L'
}

// SleepPolicy 决定车辆的下一个轮询间隔
type SleepPolicy struct {
	mu         sync.Mutex
	cfg        SleepConfig
	clock      clock.Clock
	fsm        *fsm.FSM
	lastActive time.Time
}

// NewSleepPolicy 创建休眠策略，lastActive 从当前时间开始
func NewSleepPolicy(cfg SleepConfig, clk clock.Clock) *SleepPolicy {
	if clk == nil {
		clk = clock.New()
	}

	p := &SleepPolicy{
		cfg:        cfg,
		clock:      clk,
		lastActive: clk.Now(),
	}

	p.fsm = fsm.NewFSM(
		ModeActive,
		fsm.Events{
			{Name: EventActivity, Src: []string{ModeActive, ModeSleepArmed}, Dst: ModeActive},
			{Name: EventEnterSleep, Src: []string{ModeActive, ModeSleepArmed}, Dst: ModeSleepArmed},
			{Name: EventEndSleep, Src: []string{ModeActive, ModeSleepArmed}, Dst: ModeSleepArmed},
		},
		fsm.Callbacks{},
	)

	return p
}

// Evaluate 根据活动信号计算新的轮询间隔
// sleep_armed 模式下间隔保持放宽，直到出现活动信号；active 模式下未到阈值时
// set 为 false，表示保持当前间隔不变
func (p *SleepPolicy) Evaluate(a Activity) (interval time.Duration, set bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()

	if a.Active() {
		p.lastActive = now
		p.fire(EventActivity)
		return p.cfg.ActiveInterval, true
	}

	elapsed := now.Sub(p.lastActive)
	switch {
	case elapsed > p.cfg.RearmAfter:
		// 休眠窗口结束，重新计时，让车辆可以再次入睡
		p.lastActive = now
		p.fire(EventEndSleep)
		return p.cfg.SleepInterval, true
	case elapsed > p.cfg.SleepAfter:
		p.fire(EventEnterSleep)
		return p.cfg.SleepInterval, true
	}

	if p.fsm.Current() == ModeSleepArmed {
		return p.cfg.SleepInterval, true
	}
	return 0, false
}

// Reset 车辆离线时回到 active 模式，不修改 lastActive
func (p *SleepPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fire(EventActivity)
}

// Mode 当前模式
func (p *SleepPolicy) Mode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fsm.Current()
}

// LastActive 最近一次观察到活动的时间
func (p *SleepPolicy) LastActive() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

func (p *SleepPolicy) fire(event string) {
	// 模式未变化时 fsm 返回 NoTransitionError，忽略即可
	if err := p.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			panic("sleep policy: " + err.Error())
		}
	}
}
