package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/godbus/dbus"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	adapter   atomic.Int32
	batteries atomic.Int32
	err       error
}

func (n *countingNotifier) HandleAdapterNotification(context.Context) error {
	n.adapter.Add(1)
	return n.err
}

func (n *countingNotifier) HandleAllNotifications(context.Context) error {
	n.batteries.Add(1)
	return n.err
}

func TestUPowerTarget(t *testing.T) {
	tests := []struct {
		path               dbus.ObjectPath
		adapter, batteries bool
	}{
		{"/org/freedesktop/UPower", true, false},
		{"/org/freedesktop/UPower/devices/line_power_AC", true, false},
		{"/org/freedesktop/UPower/devices/battery_BAT0", false, true},
		{"/org/freedesktop/UPower/devices/mouse_dev_00", false, false},
		{"/org/freedesktop/login1", false, false},
	}
	for _, tt := range tests {
		adapter, batteries := upowerTarget(tt.path)
		require.Equal(t, tt.adapter, adapter, tt.path)
		require.Equal(t, tt.batteries, batteries, tt.path)
	}
}

func TestDispatchUPower(t *testing.T) {
	n := &countingNotifier{}
	ctx := context.Background()

	dispatchUPower(ctx, "/org/freedesktop/UPower/devices/line_power_AC", n)
	dispatchUPower(ctx, "/org/freedesktop/UPower/devices/battery_BAT1", n)
	dispatchUPower(ctx, "/org/freedesktop/UPower/devices/keyboard_0", n)
	require.EqualValues(t, 1, n.adapter.Load())
	require.EqualValues(t, 1, n.batteries.Load())

	n.err = errors.New("gate closed")
	dispatchUPower(ctx, "/org/freedesktop/UPower", n)
	require.EqualValues(t, 2, n.adapter.Load())
}

func TestWatchAdapter(t *testing.T) {
	n := &countingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		watchAdapter(ctx, 5*time.Millisecond, n)
	}()

	require.Eventually(t, func() bool {
		return n.adapter.Load() >= 3
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	require.Zero(t, n.batteries.Load())
}

func TestWatchAdapterDisabled(t *testing.T) {
	n := &countingNotifier{}
	watchAdapter(context.Background(), 0, n)
	require.Zero(t, n.adapter.Load())
}
