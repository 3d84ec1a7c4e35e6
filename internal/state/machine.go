package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 集成入口状态常量
const (
	StateNotLoaded      = "not_loaded"
	StateLoaded         = "loaded"
	StateSetupRetry     = "setup_retry"
	StateReauthRequired = "reauth_required"
	StateUnloaded       = "unloaded"
)

// 事件常量
const (
	EventLoad        = "load"
	EventSetupFailed = "setup_failed"
	EventAuthFailed  = "auth_failed"
	EventUnload      = "unload"
)

// Status 入口状态快照
type Status struct {
	State  string    `json:"state"`
	Since  time.Time `json:"since"`
	Reason string    `json:"reason,omitempty"`
}

// Machine 集成入口的生命周期状态机
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	since         time.Time
	reason        string
	onStateChange func(from, to string)
}

// NewMachine 创建状态机，初始为 not_loaded
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{
		onStateChange: onStateChange,
		since:         time.Now(),
	}

	m.fsm = fsm.NewFSM(
		StateNotLoaded,
		fsm.Events{
			{Name: EventLoad, Src: []string{StateNotLoaded, StateLoaded, StateSetupRetry, StateReauthRequired, StateUnloaded}, Dst: StateLoaded},
			{Name: EventSetupFailed, Src: []string{StateNotLoaded, StateLoaded, StateSetupRetry, StateReauthRequired, StateUnloaded}, Dst: StateSetupRetry},
			// 卸载后不再接受认证失败
			{Name: EventAuthFailed, Src: []string{StateNotLoaded, StateLoaded, StateSetupRetry, StateReauthRequired}, Dst: StateReauthRequired},
			{Name: EventUnload, Src: []string{StateNotLoaded, StateLoaded, StateSetupRetry, StateReauthRequired, StateUnloaded}, Dst: StateUnloaded},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 当前状态
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Status 当前状态及原因
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:  m.fsm.Current(),
		Since:  m.since,
		Reason: m.reason,
	}
}

// Trigger 触发事件，reason 记录进入新状态的原因
// 目标状态与当前相同时不报错
func (m *Machine) Trigger(event, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.fsm.Current()
	if err := m.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return fmt.Errorf("trigger event %s: %w", event, err)
		}
	}

	if m.fsm.Current() != before {
		m.since = time.Now()
	}
	m.reason = reason
	return nil
}

// Can 检查是否可以触发事件
func (m *Machine) Can(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
