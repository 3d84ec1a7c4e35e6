package coordinator

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy() (*SleepPolicy, *clock.Mock) {
	clk := clock.NewMock()
	return NewSleepPolicy(DefaultSleepConfig(), clk), clk
}

func TestSleepPolicyEnterSleep(t *testing.T) {
	p, clk := newTestPolicy()
	start := p.LastActive()

	clk.Add(16 * time.Minute)
	interval, set := p.Evaluate(Activity{})

	assert.True(t, set)
	assert.Equal(t, 15*time.Minute, interval)
	assert.Equal(t, start, p.LastActive())
	assert.Equal(t, ModeSleepArmed, p.Mode())
}

func TestSleepPolicyEndSleep(t *testing.T) {
	p, clk := newTestPolicy()

	clk.Add(21 * time.Minute)
	interval, set := p.Evaluate(Activity{})

	assert.True(t, set)
	assert.Equal(t, 15*time.Minute, interval)
	assert.Equal(t, clk.Now(), p.LastActive())
	assert.Equal(t, ModeSleepArmed, p.Mode())
}

func TestSleepPolicyNoChangeWhileIdle(t *testing.T) {
	p, clk := newTestPolicy()

	clk.Add(15 * time.Minute)
	_, set := p.Evaluate(Activity{})
	assert.False(t, set)
	assert.Equal(t, ModeActive, p.Mode())
}

func TestSleepPolicyActivity(t *testing.T) {
	tests := []struct {
		name string
		act  Activity
	}{
		{"charging", Activity{Charging: true}},
		{"user present", Activity{UserPresent: true}},
		{"sentry", Activity{SentryMode: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, clk := newTestPolicy()

			clk.Add(16 * time.Minute)
			p.Evaluate(Activity{})
			assert.Equal(t, ModeSleepArmed, p.Mode())

			clk.Add(time.Minute)
			interval, set := p.Evaluate(tt.act)
			assert.True(t, set)
			assert.Equal(t, 30*time.Second, interval)
			assert.Equal(t, clk.Now(), p.LastActive())
			assert.Equal(t, ModeActive, p.Mode())
		})
	}
}

func TestSleepPolicyStaysWideUntilActivity(t *testing.T) {
	p, clk := newTestPolicy()

	clk.Add(16 * time.Minute)
	interval, _ := p.Evaluate(Activity{})
	assert.Equal(t, 15*time.Minute, interval)

	// 超过重新计时阈值，间隔保持放宽
	clk.Add(15 * time.Minute)
	interval, set := p.Evaluate(Activity{})
	assert.True(t, set)
	assert.Equal(t, 15*time.Minute, interval)

	// 重新计时后仍未到阈值，sleep_armed 模式不会收窄间隔
	clk.Add(15 * time.Minute)
	interval, set = p.Evaluate(Activity{})
	assert.True(t, set)
	assert.Equal(t, 15*time.Minute, interval)
	assert.Equal(t, ModeSleepArmed, p.Mode())
}

func TestSleepPolicyResetReleasesArmedMode(t *testing.T) {
	p, clk := newTestPolicy()
	clk.Add(21 * time.Minute)
	p.Evaluate(Activity{})
	require.Equal(t, ModeSleepArmed, p.Mode())

	// 离线后回到 active，未到阈值的空闲周期保持当前间隔
	p.Reset()
	clk.Add(time.Minute)
	_, set := p.Evaluate(Activity{})
	assert.False(t, set)
	assert.Equal(t, ModeActive, p.Mode())
}

func TestSleepPolicyReset(t *testing.T) {
	p, clk := newTestPolicy()
	clk.Add(16 * time.Minute)
	p.Evaluate(Activity{})
	last := p.LastActive()

	p.Reset()
	assert.Equal(t, ModeActive, p.Mode())
	assert.Equal(t, last, p.LastActive())
}

func TestActivityFromData(t *testing.T) {
	act := ActivityFromData(map[string]interface{}{
		"charge_state_charging_state":   "Charging",
		"vehicle_state_is_user_present": false,
		"vehicle_state_sentry_mode":     true,
	})
	assert.Equal(t, Activity{Charging: true, SentryMode: true}, act)

	assert.False(t, ActivityFromData(map[string]interface{}{
		"charge_state_charging_state": "Stopped",
	}).Active())
}

func TestIsPre2021(t *testing.T) {
	assert.True(t, IsPre2021("5YJSA1E26HF123456"))
	assert.True(t, IsPre2021("5YJ3E1EA0LF000001"))
	assert.False(t, IsPre2021("LRW3E7FA5MC123456"))
	assert.False(t, IsPre2021("short"))
}
