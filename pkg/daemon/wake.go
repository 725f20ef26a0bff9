package daemon

import (
	"context"
	"time"

	"github.com/godbus/dbus"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	clockCheckInterval = 5 * time.Second
	// clockJumpThreshold is how far the wall clock may run ahead of the
	// monotonic clock between two checks before it counts as a wake.
	clockJumpThreshold = 10 * time.Second

	logindMatch = "type='signal',interface='org.freedesktop.login1.Manager',member='PrepareForSleep'"
	logindSleep = "org.freedesktop.login1.Manager.PrepareForSleep"
)

// watchLogind calls fn with true before the system sleeps and false after
// it wakes. It returns an error only if the subscription fails; otherwise
// it blocks until ctx is done.
func watchLogind(ctx context.Context, fn func(sleeping bool)) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to connect to system bus")
	}

	call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, logindMatch)
	if call.Err != nil {
		return pkgerrors.Wrap(call.Err, "failed to add PrepareForSleep match")
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	defer conn.RemoveSignal(c)

	logrus.Info("listening for system sleep notifications from logind")

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-c:
			if !ok {
				return nil
			}
			if sig.Name != logindSleep || len(sig.Body) == 0 {
				continue
			}
			sleeping, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			logrus.WithField("sleeping", sleeping).Debug("received PrepareForSleep")
			fn(sleeping)
		}
	}
}

// clockJumpDetector notices sleep by comparing wall clock progress against
// the monotonic clock, which stops while the system is suspended.
type clockJumpDetector struct {
	threshold time.Duration
	lastWall  time.Time
	lastMono  time.Time
}

// observe records a reading. wall must carry no monotonic reading.
func (d *clockJumpDetector) observe(wall, mono time.Time) (slept time.Duration, woke bool) {
	if !d.lastWall.IsZero() {
		slept = wall.Sub(d.lastWall) - mono.Sub(d.lastMono)
	}
	d.lastWall, d.lastMono = wall, mono
	return slept, slept > d.threshold
}

func watchClock(ctx context.Context, interval, threshold time.Duration, onWake func()) {
	d := &clockJumpDetector{threshold: threshold}
	now := time.Now()
	d.observe(now.Round(0), now)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if slept, woke := d.observe(now.Round(0), now); woke {
				logrus.WithField("slept", slept.Round(time.Second)).Info("system woke from sleep")
				onWake()
			}
		}
	}
}
