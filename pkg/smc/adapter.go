//go:build darwin

package smc

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/acpibatt/pkg/firmware"
)

var _ firmware.Port = &AdapterPort{}

// AdapterPort answers _PSR from the SMC AC power key.
type AdapterPort struct {
	smc *AppleSMC
}

func NewAdapterPort(c *AppleSMC) *AdapterPort {
	return &AdapterPort{smc: c}
}

func (p *AdapterPort) EvaluateInteger(ctx context.Context, method string) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if method != firmware.MethodPowerSource {
		return 0, pkgerrors.Wrapf(firmware.ErrMethodNotFound, "%s on smc adapter", method)
	}

	plugged, err := p.smc.IsPluggedIn()
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read %s", ACPowerKey)
	}
	if plugged {
		return 1, nil
	}
	return 0, nil
}

func (p *AdapterPort) EvaluateObject(ctx context.Context, method string) (firmware.Object, error) {
	v, err := p.EvaluateInteger(ctx, method)
	if err != nil {
		return firmware.Object{}, err
	}
	return firmware.Integer(uint64(v)), nil
}

func (p *AdapterPort) ValidateObject(_ context.Context, method string) bool {
	return method == firmware.MethodPowerSource
}
