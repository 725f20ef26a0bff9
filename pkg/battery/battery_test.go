package battery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/firmware"
	"github.com/charlie0129/acpibatt/pkg/gate"
)

func bifObject(design, full uint64) firmware.Object {
	i := firmware.Integer
	s := firmware.String
	return firmware.Package(
		i(uint64(UnitAmps)), i(design), i(full), i(1), i(11100), i(480), i(150), i(1), i(1),
		s("5B10W13930"), s("0a1f"), s("LiP"), s("SMP"),
	)
}

func bstObject(state, rate, capacity, voltage uint64) firmware.Object {
	i := firmware.Integer
	return firmware.Package(i(state), i(rate), i(capacity), i(voltage))
}

func newTestPort() *firmware.Mock {
	return firmware.NewMock("BAT0", map[string]firmware.Object{
		firmware.MethodStatus:       firmware.Integer(0x1F),
		firmware.MethodBasicInfo:    bifObject(5000, 4800),
		firmware.MethodBatteryState: bstObject(uint64(StatusDischarging), 500, 3000, 11800),
	})
}

func testConfig() config.Battery {
	return config.Battery{
		EstimateCycleCountDivisor: 6,
		FirstPollDelay:            10 * time.Millisecond,
		StandardPollInterval:      200 * time.Millisecond,
		QuickPollInterval:         50 * time.Millisecond,
	}
}

type recorder struct {
	mu     sync.Mutex
	errors []ErrorEvent
	states int
}

func (r *recorder) onError(e ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
}

func (r *recorder) onState(State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states++
}

func (r *recorder) has(kind ErrorKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

type siblingsFunc func(string) bool

func (f siblingsFunc) AnyOtherDischarging(except string) bool { return f(except) }

func startBattery(t *testing.T, port firmware.Port, cfg config.Battery, opts ...func(*Options)) (*Battery, *recorder) {
	t.Helper()

	rec := &recorder{}
	o := Options{
		Slot:    "BAT0",
		Port:    port,
		Config:  cfg,
		OnState: rec.onState,
		OnError: rec.onError,
	}
	for _, f := range opts {
		f(&o)
	}

	b, err := New(o)
	require.NoError(t, err)
	t.Cleanup(b.Stop)

	require.NoError(t, b.Start(context.Background()))
	return b, rec
}

func waitCondition(t *testing.T, b *Battery, c Condition) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.State().Condition == c
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNewRequiresPort(t *testing.T) {
	_, err := New(Options{Slot: "BAT0"})
	require.ErrorIs(t, err, ErrNoPort)
}

func TestBatteryFirstPoll(t *testing.T) {
	port := newTestPort()
	b, _ := startBattery(t, port, testConfig())

	waitCondition(t, b, ConditionDischarging)

	st := b.State()
	require.True(t, st.Present)
	require.True(t, b.Present())
	require.True(t, b.Discharging())
	require.Equal(t, uint32(360), st.TimeRemaining)
	require.Equal(t, uint32(33), st.CycleCount)
	require.Equal(t, "BAT0-0a1f", st.BatterySerialNumber)
	require.Equal(t, uint32(0x1F), b.LastStatus())
}

func TestBatteryIgnoresPollsBeforeFirstTimer(t *testing.T) {
	port := newTestPort()
	cfg := testConfig()
	cfg.FirstPollDelay = time.Hour
	b, _ := startBattery(t, port, cfg)

	require.Equal(t, ConditionUnpolled, b.State().Condition)

	ctx := context.Background()
	require.NoError(t, b.Poll(ctx))
	require.NoError(t, b.HandleInserted(ctx))
	require.NoError(t, b.HandleWake(ctx))
	require.NoError(t, b.HandleNotification(ctx))

	require.Equal(t, ConditionUnpolled, b.State().Condition)
	require.Zero(t, port.Calls(firmware.MethodStatus))
}

func TestBatteryReadFailureKeepsState(t *testing.T) {
	port := newTestPort()
	b, rec := startBattery(t, port, testConfig())
	waitCondition(t, b, ConditionDischarging)

	ctx := context.Background()
	port.Fail(firmware.MethodBatteryState, errors.New("bus error"))
	require.NoError(t, b.Poll(ctx))

	prev := b.State()
	require.NoError(t, b.Poll(ctx))
	require.Equal(t, prev, b.State())
	require.True(t, rec.has(ErrorReadFailed))

	port.Set(firmware.MethodBatteryState, bstObject(uint64(StatusCharging), 900, 3000, 12100))
	require.NoError(t, b.Poll(ctx))
	require.Equal(t, ConditionCharging, b.State().Condition)
	require.Equal(t, ErrorReadFailed, b.State().LatestErrorType)
}

type slowPort struct {
	*firmware.Mock
}

func (p slowPort) EvaluateObject(ctx context.Context, method string) (firmware.Object, error) {
	if method == firmware.MethodBatteryState {
		<-ctx.Done()
		return firmware.Object{}, ctx.Err()
	}
	return p.Mock.EvaluateObject(ctx, method)
}

func TestBatteryOverallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.PollTimeout = 20 * time.Millisecond
	b, rec := startBattery(t, slowPort{newTestPort()}, cfg)

	require.Eventually(t, func() bool {
		return rec.has(ErrorOverallTimeout)
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, ConditionUnpolled, b.State().Condition)
}

func TestBatteryRemoved(t *testing.T) {
	port := newTestPort()
	b, _ := startBattery(t, port, testConfig())
	waitCondition(t, b, ConditionDischarging)

	port.SetInteger(firmware.MethodStatus, 0)
	require.NoError(t, b.HandleRemoved(context.Background()))

	st := b.State()
	require.Equal(t, ConditionAbsent, st.Condition)
	require.False(t, st.Present)
	require.Zero(t, st.CurrentCapacity)
	require.Zero(t, b.LastStatus())
}

func TestBatteryNotification(t *testing.T) {
	port := newTestPort()
	b, _ := startBattery(t, port, testConfig())
	waitCondition(t, b, ConditionDischarging)
	ctx := context.Background()

	port.SetInteger(firmware.MethodStatus, 0)
	require.NoError(t, b.HandleNotification(ctx))
	require.Equal(t, ConditionAbsent, b.State().Condition)
	require.Zero(t, b.LastStatus())

	port.SetInteger(firmware.MethodStatus, 0x1F)
	require.NoError(t, b.HandleNotification(ctx))
	require.Equal(t, ConditionDischarging, b.State().Condition)

	before := port.Calls(firmware.MethodBatteryState)
	require.NoError(t, b.HandleNotification(ctx))
	require.Greater(t, port.Calls(firmware.MethodBatteryState), before)

	port.Fail(firmware.MethodStatus, errors.New("bus error"))
	require.Error(t, b.HandleNotification(ctx))
	require.Equal(t, ConditionDischarging, b.State().Condition)
}

func TestBatteryNotificationRacesPolls(t *testing.T) {
	port := newTestPort()
	b, _ := startBattery(t, port, testConfig())
	waitCondition(t, b, ConditionDischarging)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, b.HandleNotification(ctx))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, b.Poll(ctx))
			}
		}()
	}
	for j := 0; j < 20; j++ {
		if j%2 == 0 {
			port.SetInteger(firmware.MethodStatus, 0)
		} else {
			port.SetInteger(firmware.MethodStatus, 0x1F)
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	port.SetInteger(firmware.MethodStatus, 0x1F)
	require.NoError(t, b.HandleNotification(ctx))
	require.Equal(t, ConditionDischarging, b.State().Condition)
	require.Equal(t, uint32(0x1F), b.LastStatus())
}

func TestBatteryFormatSelection(t *testing.T) {
	t.Run("extended unsupported", func(t *testing.T) {
		port := newTestPort()
		cfg := testConfig()
		cfg.UseExtendedInformation = true
		b, rec := startBattery(t, port, cfg)

		require.True(t, rec.has(ErrorFormatUnsupported))
		waitCondition(t, b, ConditionDischarging)
		require.Zero(t, port.Calls(firmware.MethodExtendedInfo))
		require.NotZero(t, port.Calls(firmware.MethodBasicInfo))
	})

	t.Run("extended and extra", func(t *testing.T) {
		i := firmware.Integer
		s := firmware.String
		port := newTestPort()
		port.Set(firmware.MethodExtendedInfo, firmware.Package(
			i(1), i(uint64(UnitAmps)), i(5000), i(4800), i(1), i(11100), i(480), i(150), i(211),
			i(50000), i(0), i(0), i(0), i(0), i(1), i(1),
			s("5B10W13930"), s("0a1f"), s("LiP"), s("SMP"),
		))
		port.Set(firmware.MethodExtraInfo, firmware.Package(
			i(0), i(0), i(0), i(0), i(2981), i(11800), i(0xFFFFFE0C), i(0xFFFFFE0C),
			i(62), i(60), i(3000), i(360), i(360), i(0xFFFF), i(45<<9 | 3<<5 | 14), firmware.Buffer([]byte{1, 2}),
		))

		cfg := testConfig()
		cfg.UseExtendedInformation = true
		cfg.UseExtraInformation = true
		b, rec := startBattery(t, port, cfg)
		waitCondition(t, b, ConditionDischarging)

		require.False(t, rec.has(ErrorFormatUnsupported))
		require.Zero(t, port.Calls(firmware.MethodBasicInfo))

		st := b.State()
		require.Equal(t, uint32(211), st.CycleCount)
		require.Equal(t, 2500, st.Temperature)
		require.Equal(t, uint32(62), st.RelativeStateOfCharge)
		require.Equal(t, "2025-03-14", st.ManufactureDateString)
		require.NotNil(t, st.Extra)
		require.Equal(t, int32(-500), st.Extra.Current)
	})
}

func TestBatteryCadence(t *testing.T) {
	port := newTestPort()
	cfg := testConfig()
	b, _ := startBattery(t, port, cfg)
	waitCondition(t, b, ConditionDischarging)

	ctx := context.Background()
	require.NoError(t, b.SetPollingInterval(ctx, 300*time.Millisecond))
	require.Equal(t, cfg.QuickPollInterval, b.Cadence(), "on battery power")

	require.NoError(t, b.NotifyConnectedState(ctx, true))
	require.True(t, b.State().ExternalConnected)
	require.Equal(t, 300*time.Millisecond, b.Cadence(), "on AC")

	port.Set(firmware.MethodBatteryState, bstObject(uint64(StatusDischarging), 500, 100, 11000))
	require.NoError(t, b.Poll(ctx))
	require.True(t, b.State().QuickPoll)
	require.Equal(t, cfg.QuickPollInterval, b.Cadence(), "near empty on AC")

	port.Set(firmware.MethodBatteryState, bstObject(uint64(StatusCharging), 500, 1000, 11000))
	require.NoError(t, b.Poll(ctx))
	require.False(t, b.State().QuickPoll)
	require.Equal(t, 300*time.Millisecond, b.Cadence(), "recovered")

	require.Error(t, b.SetPollingInterval(ctx, 0))
}

func TestBatteryPollingOverride(t *testing.T) {
	port := newTestPort()
	cfg := testConfig()
	cfg.PollingOverridden = true
	cfg.PollingPeriod = 250 * time.Millisecond
	b, _ := startBattery(t, port, cfg)
	waitCondition(t, b, ConditionDischarging)

	ctx := context.Background()
	require.NoError(t, b.SetPollingInterval(ctx, 20*time.Millisecond))
	require.NoError(t, b.Poll(ctx))
	require.Equal(t, 250*time.Millisecond, b.Cadence())
}

func TestBatteryChargedWithDischargingSibling(t *testing.T) {
	port := newTestPort()
	port.Set(firmware.MethodBatteryState, bstObject(0, 0, 4800, 12600))

	var asked string
	var mu sync.Mutex
	b, _ := startBattery(t, port, testConfig(), func(o *Options) {
		o.Siblings = siblingsFunc(func(except string) bool {
			mu.Lock()
			defer mu.Unlock()
			asked = except
			return true
		})
	})
	waitCondition(t, b, ConditionCharged)

	st := b.State()
	require.True(t, st.FullyCharged)
	require.False(t, st.ExternalChargeCapable)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "BAT0", asked)
}

func TestBatteryStop(t *testing.T) {
	port := newTestPort()
	b, _ := startBattery(t, port, testConfig())
	waitCondition(t, b, ConditionDischarging)

	b.Stop()
	require.ErrorIs(t, b.Poll(context.Background()), gate.ErrClosed)

	calls := port.Calls(firmware.MethodStatus)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, calls, port.Calls(firmware.MethodStatus))
}

func TestBatteryArmsExactInterval(t *testing.T) {
	port := newTestPort()
	cfg := testConfig()
	b, _ := startBattery(t, port, cfg)
	waitCondition(t, b, ConditionDischarging)

	ctx := context.Background()
	require.NoError(t, b.NotifyConnectedState(ctx, true))

	for _, d := range []time.Duration{1500 * time.Millisecond, 2900 * time.Millisecond, 30 * time.Second} {
		require.NoError(t, b.SetPollingInterval(ctx, d))
		require.NoError(t, b.Poll(ctx))
		require.Equal(t, d, b.Cadence())
		require.Equal(t, d, b.timers.armed(), "timer armed for %s", d)
	}
}
