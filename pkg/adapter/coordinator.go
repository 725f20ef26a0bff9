// Package adapter tracks the AC adapter and tells every battery when it
// is plugged in or out.
package adapter

import (
	"context"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/firmware"
	"github.com/charlie0129/acpibatt/pkg/gate"
	"github.com/charlie0129/acpibatt/pkg/power"
)

// Member is a battery that wants to hear about adapter changes.
type Member interface {
	Slot() string
	NotifyConnectedState(ctx context.Context, connected bool) error
}

// Visitor walks every registered battery exactly once.
type Visitor[M Member] interface {
	Visit(fn func(M))
}

// Coordinator owns the cached adapter state. All reads of the firmware and
// all fan-outs run on its gate, so batteries hear about changes in order.
type Coordinator[M Member] struct {
	port      firmware.Port
	batteries Visitor[M]
	root      power.Root
	gate      *gate.Gate

	connected atomic.Bool
	queried   atomic.Bool
}

func New[M Member](port firmware.Port, batteries Visitor[M], root power.Root) *Coordinator[M] {
	if root == nil {
		root = power.LogRoot{}
	}
	return &Coordinator[M]{
		port:      port,
		batteries: batteries,
		root:      root,
		gate:      gate.New("adapter"),
	}
}

// Start reads the initial adapter state. A failed read leaves the adapter
// reported as disconnected until the next notification.
func (c *Coordinator[M]) Start(ctx context.Context) error {
	return c.gate.Run(ctx, func() {
		connected, err := c.query(ctx)
		if err != nil {
			logrus.WithError(err).Warn("failed to read initial AC adapter state, assuming disconnected")
			return
		}
		c.connected.Store(connected)
		c.queried.Store(true)
		logrus.WithField("connected", connected).Info("AC adapter state")
	})
}

func (c *Coordinator[M]) Stop() {
	c.gate.Close()
}

// Connected returns the cached adapter state.
func (c *Coordinator[M]) Connected() bool {
	return c.connected.Load()
}

// HandleNotification is called when firmware signals an adapter change.
// The firmware is re-read and, if the value changed, every battery and
// the power root are told.
func (c *Coordinator[M]) HandleNotification(ctx context.Context) error {
	return c.gate.Run(ctx, func() {
		c.refresh(ctx)
	})
}

// Sync re-reads the adapter and then tells m the current state. It is
// used when a battery joins the registry.
func (c *Coordinator[M]) Sync(ctx context.Context, m M) error {
	var err error
	runErr := c.gate.Run(ctx, func() {
		c.refresh(ctx)
		err = m.NotifyConnectedState(ctx, c.connected.Load())
	})
	if runErr != nil {
		return runErr
	}
	return err
}

// refresh runs on the gate.
func (c *Coordinator[M]) refresh(ctx context.Context) {
	connected, err := c.query(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to read AC adapter state, keeping cached value")
		return
	}

	if c.queried.Load() && connected == c.connected.Load() {
		logrus.WithField("connected", connected).Trace("AC adapter state unchanged")
		return
	}
	c.connected.Store(connected)
	c.queried.Store(true)

	logrus.WithField("connected", connected).Info("AC adapter state changed")

	c.batteries.Visit(func(m M) {
		if err := m.NotifyConnectedState(ctx, connected); err != nil {
			logrus.WithError(err).WithField("slot", m.Slot()).Error("failed to notify battery of adapter change")
		}
	})

	c.root.AdapterChanged(connected)
}

func (c *Coordinator[M]) query(ctx context.Context) (bool, error) {
	v, err := c.port.EvaluateInteger(ctx, firmware.MethodPowerSource)
	if err != nil {
		return false, pkgerrors.Wrapf(err, "evaluate %s", firmware.MethodPowerSource)
	}
	return v != 0, nil
}
