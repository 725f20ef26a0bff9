//go:build darwin

package daemon

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/firmware"
	"github.com/charlie0129/acpibatt/pkg/smc"
)

func openSMCAdapter() (firmware.Port, func(), error) {
	conn := smc.New()
	if err := conn.Open(); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "failed to open smc")
	}

	closeFn := func() {
		logrus.Info("closing smc connection")
		if err := conn.Close(); err != nil {
			logrus.Errorf("failed to close smc connection: %v", err)
		}
	}
	return smc.NewAdapterPort(conn), closeFn, nil
}
