package daemon

import (
	"context"
	"strings"
	"time"

	"github.com/godbus/dbus"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	upowerPath        = "/org/freedesktop/UPower"
	upowerDevicesPath = upowerPath + "/devices/"
	upowerMatch       = "type='signal',sender='org.freedesktop.UPower',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'"
	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// notifier receives firmware notifications. *manager.Manager implements it.
type notifier interface {
	HandleAdapterNotification(ctx context.Context) error
	HandleAllNotifications(ctx context.Context) error
}

// watchAdapter re-reads the AC adapter every interval until ctx is done.
// The coordinator only fans out when the value actually changed.
func watchAdapter(ctx context.Context, interval time.Duration, n notifier) {
	if interval <= 0 {
		logrus.Debug("periodic AC adapter check disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.HandleAdapterNotification(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Warn("failed to re-read AC adapter")
			}
		}
	}
}

// upowerTarget tells which notification a UPower PropertiesChanged signal
// on path stands for.
func upowerTarget(path dbus.ObjectPath) (adapter, batteries bool) {
	p := string(path)
	switch {
	case p == upowerPath:
		return true, false
	case strings.HasPrefix(p, upowerDevicesPath+"line_power"):
		return true, false
	case strings.HasPrefix(p, upowerDevicesPath+"battery"):
		return false, true
	default:
		return false, false
	}
}

// watchUPower turns UPower property changes into adapter and battery
// notifications. It returns an error only if the subscription fails;
// otherwise it blocks until ctx is done.
func watchUPower(ctx context.Context, n notifier) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to connect to system bus")
	}

	call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, upowerMatch)
	if call.Err != nil {
		return pkgerrors.Wrap(call.Err, "failed to add UPower match")
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	defer conn.RemoveSignal(c)

	logrus.Info("listening for power supply notifications from UPower")

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-c:
			if !ok {
				return nil
			}
			if sig.Name != propertiesChanged {
				continue
			}
			dispatchUPower(ctx, sig.Path, n)
		}
	}
}

func dispatchUPower(ctx context.Context, path dbus.ObjectPath, n notifier) {
	adapter, batteries := upowerTarget(path)
	log := logrus.WithField("path", path)
	if adapter {
		log.Debug("UPower reports a line power change")
		if err := n.HandleAdapterNotification(ctx); err != nil {
			log.WithError(err).Warn("failed to handle adapter notification")
		}
	}
	if batteries {
		log.Debug("UPower reports a battery change")
		if err := n.HandleAllNotifications(ctx); err != nil {
			log.WithError(err).Warn("failed to handle battery notification")
		}
	}
}
