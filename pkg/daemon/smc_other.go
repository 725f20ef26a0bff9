//go:build !darwin

package daemon

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/acpibatt/pkg/firmware"
)

func openSMCAdapter() (firmware.Port, func(), error) {
	return nil, nil, pkgerrors.New("smc firmware is only available on macOS")
}
