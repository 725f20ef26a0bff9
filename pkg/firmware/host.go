package firmware

import (
	"context"
	"math"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// getBatteries is replaced in tests.
var getBatteries = battery.GetAll

const hostStatusPresent = 0x1F

var (
	_ Port = &HostBattery{}
	_ Port = &HostAdapter{}
)

// HostBattery exposes a battery reported by the operating system as a
// firmware device. It synthesizes energy based _STA, _BIF and _BST records.
type HostBattery struct {
	index int
}

// NewHostBattery returns the port for the index-th OS battery.
func NewHostBattery(index int) *HostBattery {
	return &HostBattery{index: index}
}

// HostBatteryCount is the number of batteries the operating system reports.
func HostBatteryCount() (int, error) {
	bats, err := getBatteries()
	if err != nil && len(bats) == 0 {
		return 0, pkgerrors.Wrap(err, "failed to list batteries")
	}
	return len(bats), nil
}

func (h *HostBattery) lookup() (*battery.Battery, error) {
	bats, err := getBatteries()
	if err != nil && len(bats) == 0 {
		return nil, pkgerrors.Wrap(err, "failed to list batteries")
	}
	if h.index >= len(bats) {
		return nil, nil
	}
	return bats[h.index], nil
}

func (h *HostBattery) EvaluateInteger(ctx context.Context, method string) (uint32, error) {
	v, err := h.EvaluateObject(ctx, method)
	if err != nil {
		return 0, err
	}
	if v.Kind != KindInteger {
		return 0, pkgerrors.Wrapf(ErrWrongType, "%s is a %s", method, v.Kind)
	}
	return uint32(v.Integer), nil
}

func (h *HostBattery) EvaluateObject(ctx context.Context, method string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	logrus.WithFields(logrus.Fields{
		"index":  h.index,
		"method": method,
	}).Trace("evaluating host battery method")

	bat, err := h.lookup()
	if err != nil {
		return Object{}, err
	}

	switch method {
	case MethodStatus:
		if bat == nil {
			return Integer(0), nil
		}
		return Integer(hostStatusPresent), nil
	case MethodBasicInfo:
		if bat == nil {
			return Object{}, pkgerrors.Errorf("battery %d is not present", h.index)
		}
		return Package(
			Integer(0), // energy units
			Integer(round(bat.Design)),
			Integer(round(bat.Full)),
			Integer(1),
			Integer(round(bat.DesignVoltage*1000)),
			Integer(0),
			Integer(0),
			Integer(1),
			Integer(1),
			String(""),
			String(""),
			String(""),
			String(""),
		), nil
	case MethodBatteryState:
		if bat == nil {
			return Object{}, pkgerrors.Errorf("battery %d is not present", h.index)
		}
		var state uint64
		switch bat.State {
		case battery.Discharging:
			state = 1
		case battery.Charging:
			state = 2
		case battery.Empty:
			state = 1 | 4
		}
		return Package(
			Integer(state),
			Integer(round(math.Abs(bat.ChargeRate))),
			Integer(round(bat.Current)),
			Integer(round(bat.Voltage*1000)),
		), nil
	default:
		return Object{}, pkgerrors.Wrapf(ErrMethodNotFound, "%s on host battery %d", method, h.index)
	}
}

func (h *HostBattery) ValidateObject(_ context.Context, method string) bool {
	switch method {
	case MethodStatus, MethodBasicInfo, MethodBatteryState:
		return true
	default:
		return false
	}
}

// HostAdapter derives _PSR from the OS battery list: the adapter counts as
// connected while no battery is discharging.
type HostAdapter struct{}

func NewHostAdapter() *HostAdapter {
	return &HostAdapter{}
}

func (a *HostAdapter) EvaluateInteger(ctx context.Context, method string) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if method != MethodPowerSource {
		return 0, pkgerrors.Wrapf(ErrMethodNotFound, "%s on host adapter", method)
	}

	bats, err := getBatteries()
	if err != nil && len(bats) == 0 {
		return 0, pkgerrors.Wrap(err, "failed to list batteries")
	}
	for _, bat := range bats {
		if bat != nil && bat.State == battery.Discharging {
			return 0, nil
		}
	}
	return 1, nil
}

func (a *HostAdapter) EvaluateObject(ctx context.Context, method string) (Object, error) {
	v, err := a.EvaluateInteger(ctx, method)
	if err != nil {
		return Object{}, err
	}
	return Integer(uint64(v)), nil
}

func (a *HostAdapter) ValidateObject(_ context.Context, method string) bool {
	return method == MethodPowerSource
}

func round(f float64) uint64 {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	return uint64(math.Round(f))
}
