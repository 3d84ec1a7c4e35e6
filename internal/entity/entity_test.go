package entity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
	"github.com/langchou/tesbridge/internal/coordinator"
)

const testVIN = "LRW3E7FA5MC123456"

type fakeAPI struct {
	mu sync.Mutex

	// 第 n 次唤醒起返回 online，0 表示一直休眠
	onlineAfter int
	wakes       int
	wakeErr     error
	delay       time.Duration

	commands []string
	cmdErr   error
	data     map[string]interface{}
	fetchErr error
}

func (f *fakeAPI) VIN() string { return testVIN }

func (f *fakeAPI) VehicleData(ctx context.Context, endpoints ...string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.fetchErr
}

func (f *fakeAPI) WakeUp(ctx context.Context) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakes++
	if f.wakeErr != nil {
		return "", f.wakeErr
	}
	if f.onlineAfter > 0 && f.wakes >= f.onlineAfter {
		return teslemetry.StateOnline, nil
	}
	return teslemetry.StateAsleep, nil
}

func (f *fakeAPI) wakeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wakes
}

func (f *fakeAPI) record(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.cmdErr
}

func (f *fakeAPI) WindowControl(ctx context.Context, command string) error {
	return f.record("window_" + command)
}

func (f *fakeAPI) ChargePortDoorOpen(ctx context.Context) error {
	return f.record("charge_port_open")
}

func (f *fakeAPI) ChargePortDoorClose(ctx context.Context) error {
	return f.record("charge_port_close")
}

func (f *fakeAPI) ActuateTrunk(ctx context.Context, which string) error {
	return f.record("trunk_" + which)
}

func newTestVehicle(api *fakeAPI, initial map[string]interface{}) *Vehicle {
	return &Vehicle{
		API:         api,
		Coordinator: coordinator.NewVehicle(api, initial, coordinator.Options{}),
		VIN:         testVIN,
		WakeLock:    NewWakeLock(),
		Wake:        WakeConfig{Step: time.Millisecond, Budget: 6 * time.Millisecond},
	}
}

func TestBaseFacade(t *testing.T) {
	v := newTestVehicle(&fakeAPI{}, map[string]interface{}{
		"state":        "online",
		"display_name": "Red",
		"vehicle_state": map[string]interface{}{
			"locked":      true,
			"car_version": "2024.2.7 abc",
		},
		"vehicle_config": map[string]interface{}{
			"car_type": "Y",
		},
		"drive_state": map[string]interface{}{"shift_state": nil},
	})

	e := NewVehicleEntity(v, "vehicle_state_locked")
	assert.Equal(t, testVIN+"-vehicle_state_locked", e.UniqueID())
	assert.Equal(t, VariantVehicle, e.Variant())
	assert.True(t, e.Has())
	assert.True(t, e.HasKey("state"))
	assert.False(t, e.HasKey("nope"))
	assert.Equal(t, true, e.Get(nil))
	assert.Equal(t, "x", e.GetKey("nope", "x"))
	assert.True(t, e.Available())

	match, known := e.Exactly(true)
	assert.True(t, match)
	assert.True(t, known)

	e.Set(coordinator.KV{Key: "vehicle_state_locked", Value: false})
	assert.Equal(t, false, v.Coordinator.Read("vehicle_state_locked", nil))

	device := e.Device()
	assert.Equal(t, "Red", device.Name)
	assert.Equal(t, "Model Y", device.Model)
	assert.Equal(t, "2024.2.7", device.SWVersion)
	assert.Equal(t, testVIN, device.SerialNumber)

	shift := NewVehicleEntity(v, "drive_state_shift_state")
	assert.False(t, shift.Available())
	_, known = shift.Exactly("P")
	assert.False(t, known)
}

func TestEnergyEntities(t *testing.T) {
	energy := &Energy{
		ID:              99,
		LiveCoordinator: coordinator.NewEnergyLive(fakeSite{}, coordinator.Options{}),
		InfoCoordinator: coordinator.NewEnergyInfo(fakeSite{}, map[string]interface{}{"site_name": "Home"}, coordinator.Options{}),
	}
	energy.LiveCoordinator.Write(coordinator.KV{
		Key: coordinator.KeyWallConnectors,
		Value: map[string]interface{}{
			"abc-123-XYZ": map[string]interface{}{"wall_connector_power": float64(7000), "vin": nil},
		},
	})

	info := NewEnergyInfoEntity(energy, "site_name")
	assert.Equal(t, "99-site_name", info.UniqueID())
	assert.Equal(t, "Home", info.Device().Name)
	assert.Equal(t, "Energy Site", NewEnergyLiveEntity(energy, "solar_power").Device().Name)

	wc := NewWallConnectorEntity(energy, "abc-123-XYZ", "wall_connector_power")
	assert.Equal(t, "99-abc-123-XYZ-wall_connector_power", wc.UniqueID())
	assert.Equal(t, "XYZ", wc.Device().SerialNumber)
	assert.Equal(t, "99", wc.Device().ViaDevice)
	assert.Equal(t, float64(7000), wc.Value())
	assert.True(t, wc.Available())

	vin := NewWallConnectorEntity(energy, "abc-123-XYZ", "vin")
	assert.True(t, vin.Has())
	assert.False(t, vin.Available())

	missing := NewWallConnectorEntity(energy, "other", "wall_connector_power")
	assert.Nil(t, missing.Value())
	assert.False(t, missing.Has())
}

type fakeSite struct{}

func (fakeSite) ID() int64 { return 99 }

func (fakeSite) LiveStatus(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (fakeSite) SiteInfo(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func TestWakeConfigAttempts(t *testing.T) {
	assert.Equal(t, uint(4), DefaultWakeConfig().Attempts())
	assert.Equal(t, uint(4), WakeConfig{Step: time.Millisecond, Budget: 6 * time.Millisecond}.Attempts())
	assert.Equal(t, uint(1), WakeConfig{}.Attempts())
}

func TestWakeTimeout(t *testing.T) {
	api := &fakeAPI{}
	v := newTestVehicle(api, map[string]interface{}{"state": "asleep"})
	v.Wake = WakeConfig{Step: 10 * time.Millisecond, Budget: 60 * time.Millisecond}
	e := NewVehicleEntity(v, "state")

	start := time.Now()
	err := e.WakeUpIfAsleep(context.Background())

	assert.ErrorIs(t, err, ErrWakeTimeout)
	assert.Equal(t, 4, api.wakeCount())
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, teslemetry.StateAsleep, v.Coordinator.Read("state", nil))

	// 锁已释放
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, v.WakeLock.Acquire(ctx))
	v.WakeLock.Release()
}

func TestWakeSucceeds(t *testing.T) {
	api := &fakeAPI{onlineAfter: 2}
	v := newTestVehicle(api, map[string]interface{}{"state": "asleep"})
	e := NewVehicleEntity(v, "state")

	require.NoError(t, e.WakeUpIfAsleep(context.Background()))
	assert.Equal(t, 2, api.wakeCount())
	assert.Equal(t, teslemetry.StateOnline, v.Coordinator.Read("state", nil))
}

func TestWakeTransportError(t *testing.T) {
	api := &fakeAPI{wakeErr: errors.New("connection reset")}
	v := newTestVehicle(api, map[string]interface{}{"state": "asleep"})
	e := NewVehicleEntity(v, "state")

	err := e.WakeUpIfAsleep(context.Background())

	var wakeErr *WakeError
	require.True(t, errors.As(err, &wakeErr))
	assert.EqualError(t, wakeErr.Err, "connection reset")
	assert.Equal(t, 1, api.wakeCount())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, v.WakeLock.Acquire(ctx))
	v.WakeLock.Release()
}

func TestWakeAlreadyOnline(t *testing.T) {
	api := &fakeAPI{}
	v := newTestVehicle(api, map[string]interface{}{"state": "online"})

	require.NoError(t, NewVehicleEntity(v, "state").WakeUpIfAsleep(context.Background()))
	assert.Equal(t, 0, api.wakeCount())
}

func TestWakeSerialized(t *testing.T) {
	api := &fakeAPI{onlineAfter: 1, delay: 5 * time.Millisecond}
	v := newTestVehicle(api, map[string]interface{}{"state": "asleep"})
	v.Wake = WakeConfig{Step: 5 * time.Millisecond, Budget: time.Second}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = NewVehicleEntity(v, "state").WakeUpIfAsleep(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	// 后到的调用拿到锁时车辆已在线，不再发送唤醒
	assert.Equal(t, 1, api.wakeCount())
}

func TestWakeContextCanceled(t *testing.T) {
	api := &fakeAPI{}
	v := newTestVehicle(api, map[string]interface{}{"state": "asleep"})

	require.NoError(t, v.WakeLock.Acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := NewVehicleEntity(v, "state").WakeUpIfAsleep(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, api.wakeCount())
	v.WakeLock.Release()
}
