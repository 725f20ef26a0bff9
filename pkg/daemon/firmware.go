package daemon

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/firmware"
	"github.com/charlie0129/acpibatt/pkg/manager"
)

// devices is the set of firmware devices the daemon monitors.
type devices struct {
	adapter firmware.Port
	slots   []manager.Slot
	close   func()
}

func openDevices(conf config.Config) (*devices, error) {
	backend := conf.Firmware()
	logrus.WithField("firmware", backend).Info("opening firmware devices")

	switch backend {
	case config.FirmwareHost:
		return openHostDevices(firmware.NewHostAdapter())
	case config.FirmwareSMC:
		adapter, closeFn, err := openSMCAdapter()
		if err != nil {
			return nil, err
		}
		d, err := openHostDevices(adapter)
		if err != nil {
			closeFn()
			return nil, err
		}
		d.close = closeFn
		return d, nil
	case config.FirmwareFixture:
		return openFixtureDevices(conf.FixturePath())
	default:
		return nil, pkgerrors.Errorf("unknown firmware backend %q", backend)
	}
}

func openHostDevices(adapter firmware.Port) (*devices, error) {
	n, err := firmware.HostBatteryCount()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to enumerate host batteries")
	}

	d := &devices{adapter: adapter, close: func() {}}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("BAT%d", i)
		d.slots = append(d.slots, manager.Slot{
			Name: name,
			Port: firmware.NewHostBattery(i),
		})
	}
	logrus.WithField("batteries", n).Info("found host batteries")
	return d, nil
}

func openFixtureDevices(path string) (*devices, error) {
	if path == "" {
		return nil, pkgerrors.New("fixture firmware selected but fixturePath is empty")
	}
	f, err := firmware.LoadFixture(path)
	if err != nil {
		return nil, err
	}

	d := &devices{adapter: f.Adapter, close: func() {}}
	for _, b := range f.Batteries {
		d.slots = append(d.slots, manager.Slot{
			Name: b.Name(),
			Port: b,
		})
	}
	return d, nil
}
