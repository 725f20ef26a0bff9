// Package manager owns the battery slots of the system. It creates and
// tears down battery instances, dispatches firmware notifications to them
// and keeps the registry and the adapter coordinator in sync.
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/adapter"
	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/firmware"
	"github.com/charlie0129/acpibatt/pkg/gate"
	"github.com/charlie0129/acpibatt/pkg/power"
	"github.com/charlie0129/acpibatt/pkg/registry"
)

var (
	// ErrInvalidInterval is returned for a polling interval that is not
	// positive.
	ErrInvalidInterval = errors.New("polling interval must be positive")
	// ErrNoSuchSlot is returned for an unknown slot name.
	ErrNoSuchSlot = errors.New("no such battery slot")
)

// Slot is a physical battery position and the firmware device behind it.
type Slot struct {
	Name   string
	Device string
	Port   firmware.Port
}

type Options struct {
	Config  config.Config
	Adapter firmware.Port
	Slots   []Slot
	Root    power.Root

	OnState func(battery.State)
	OnError func(battery.ErrorEvent)
}

// Manager exclusively owns zero or one battery per slot. Slot attach and
// detach run on its gate.
type Manager struct {
	cfg     config.Config
	slots   map[string]Slot
	order   []string
	onState func(battery.State)
	onError func(battery.ErrorEvent)

	gate      *gate.Gate
	registry  *registry.Registry[*battery.Battery]
	adapter   *adapter.Coordinator[*battery.Battery]
	cfgMu     sync.RWMutex
	batteries map[string]*battery.Battery
}

func New(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, pkgerrors.New("manager needs a config")
	}
	if opts.Adapter == nil {
		return nil, pkgerrors.New("manager needs an adapter port")
	}

	m := &Manager{
		cfg:       opts.Config,
		slots:     make(map[string]Slot, len(opts.Slots)),
		onState:   opts.OnState,
		onError:   opts.OnError,
		gate:      gate.New("manager"),
		registry:  registry.New[*battery.Battery](),
		batteries: make(map[string]*battery.Battery),
	}
	for _, s := range opts.Slots {
		if s.Port == nil {
			m.gate.Close()
			return nil, pkgerrors.Wrapf(battery.ErrNoPort, "slot %s", s.Name)
		}
		if _, ok := m.slots[s.Name]; ok {
			m.gate.Close()
			return nil, pkgerrors.Errorf("duplicate slot %s", s.Name)
		}
		m.slots[s.Name] = s
		m.order = append(m.order, s.Name)
	}
	m.adapter = adapter.New[*battery.Battery](opts.Adapter, m.registry, opts.Root)

	return m, nil
}

// Start reads the adapter and attaches every slot.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.adapter.Start(ctx); err != nil {
		return pkgerrors.Wrap(err, "failed to start adapter coordinator")
	}
	for _, name := range m.order {
		if err := m.Publish(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Stop detaches every slot and stops the coordinator.
func (m *Manager) Stop() {
	err := m.gate.Run(context.Background(), func() {
		for _, name := range m.order {
			m.terminate(name)
		}
	})
	if err != nil {
		logrus.WithError(err).Debug("manager already stopped")
	}
	m.adapter.Stop()
	m.gate.Close()
}

// Publish creates and starts the battery of a slot and adds it to the
// registry. Publishing an attached slot is a no-op.
func (m *Manager) Publish(ctx context.Context, name string) error {
	s, ok := m.slots[name]
	if !ok {
		return pkgerrors.Wrap(ErrNoSuchSlot, name)
	}

	var b *battery.Battery
	var err error
	runErr := m.gate.Run(ctx, func() {
		if _, ok := m.batteries[name]; ok {
			return
		}
		b, err = m.attach(ctx, s)
	})
	if runErr != nil {
		return runErr
	}
	if err != nil || b == nil {
		return err
	}

	// Outside the manager gate: the coordinator talks to the battery gate.
	if err := m.adapter.Sync(ctx, b); err != nil {
		logrus.WithError(err).WithField("slot", name).Warn("failed to sync adapter state")
	}
	return nil
}

// attach runs on the manager gate.
func (m *Manager) attach(ctx context.Context, s Slot) (*battery.Battery, error) {
	override := m.readOverride(ctx, s)

	m.cfgMu.RLock()
	cfg := config.NewBattery(m.cfg, override)
	m.cfgMu.RUnlock()

	device := s.Device
	if device == "" {
		device = s.Name
	}
	b, err := battery.New(battery.Options{
		Slot:        s.Name,
		Device:      device,
		Port:        s.Port,
		Config:      cfg,
		Siblings:    m.registry,
		ACConnected: m.adapter.Connected(),
		OnState:     m.onState,
		OnError:     m.onError,
	})
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		b.Stop()
		return nil, pkgerrors.Wrapf(err, "failed to start battery %s", s.Name)
	}

	m.batteries[s.Name] = b
	m.registry.Add(b)
	logrus.WithField("slot", s.Name).Info("battery published")
	return b, nil
}

func (m *Manager) readOverride(ctx context.Context, s Slot) map[string]any {
	if !s.Port.ValidateObject(ctx, firmware.MethodOverrides) {
		return nil
	}
	obj, err := s.Port.EvaluateObject(ctx, firmware.MethodOverrides)
	if err != nil {
		logrus.WithError(err).WithField("slot", s.Name).Warn("failed to read firmware config override")
		return nil
	}
	table, ok := config.TranslateOverride(obj)
	if !ok {
		logrus.WithField("slot", s.Name).Warn("firmware config override is not a key/value table")
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"slot": s.Name,
		"keys": len(table),
	}).Info("applying firmware config override")
	return table
}

// Terminate stops the battery of a slot and removes it from the registry.
func (m *Manager) Terminate(ctx context.Context, name string) error {
	if _, ok := m.slots[name]; !ok {
		return pkgerrors.Wrap(ErrNoSuchSlot, name)
	}
	return m.gate.Run(ctx, func() {
		m.terminate(name)
	})
}

func (m *Manager) terminate(name string) {
	b, ok := m.batteries[name]
	if !ok {
		return
	}
	delete(m.batteries, name)
	m.registry.Remove(name)
	b.Stop()
	logrus.WithField("slot", name).Info("battery terminated")
}

// Reload applies a new configuration. Every attached slot is restarted so
// the new options take effect.
func (m *Manager) Reload(ctx context.Context, cfg config.Config) error {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()

	attached := m.attached()
	for _, name := range attached {
		if err := m.Terminate(ctx, name); err != nil {
			return err
		}
		if err := m.Publish(ctx, name); err != nil {
			return err
		}
	}
	logrus.WithField("slots", attached).Info("configuration reloaded")
	return nil
}

func (m *Manager) attached() []string {
	var names []string
	_ = m.gate.Run(context.Background(), func() {
		for _, name := range m.order {
			if _, ok := m.batteries[name]; ok {
				names = append(names, name)
			}
		}
	})
	return names
}

func (m *Manager) battery(name string) (*battery.Battery, error) {
	b, ok := m.registry.Get(name)
	if !ok {
		return nil, pkgerrors.Wrap(ErrNoSuchSlot, name)
	}
	return b, nil
}

// HandleNotification handles a firmware notification on a battery device.
func (m *Manager) HandleNotification(ctx context.Context, name string) error {
	b, err := m.battery(name)
	if err != nil {
		return err
	}
	return b.HandleNotification(ctx)
}

// HandleAllNotifications treats a notification as having arrived on every
// attached battery device.
func (m *Manager) HandleAllNotifications(ctx context.Context) error {
	var errs []error
	m.registry.Visit(func(b *battery.Battery) {
		if err := b.HandleNotification(ctx); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "notify %s", b.Slot()))
		}
	})
	return errors.Join(errs...)
}

// HandleAdapterNotification handles a firmware notification on the AC
// adapter device.
func (m *Manager) HandleAdapterNotification(ctx context.Context) error {
	return m.adapter.HandleNotification(ctx)
}

// SystemSleepWake is called around system sleep. Batteries are polled
// right after waking.
func (m *Manager) SystemSleepWake(ctx context.Context, waking bool) error {
	if !waking {
		logrus.Debug("system going to sleep")
		return nil
	}
	var errs []error
	m.registry.Visit(func(b *battery.Battery) {
		if err := b.HandleWake(ctx); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "wake %s", b.Slot()))
		}
	})
	return errors.Join(errs...)
}

// SetPollingInterval changes the standard polling interval of every
// battery, and of batteries published later.
func (m *Manager) SetPollingInterval(ctx context.Context, ms int) error {
	if ms <= 0 {
		return pkgerrors.Wrapf(ErrInvalidInterval, "%d ms", ms)
	}
	d := time.Duration(ms) * time.Millisecond

	m.cfgMu.RLock()
	m.cfg.SetStandardPollInterval(d)
	m.cfgMu.RUnlock()

	var errs []error
	m.registry.Visit(func(b *battery.Battery) {
		if err := b.SetPollingInterval(ctx, d); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "set interval on %s", b.Slot()))
		}
	})
	return errors.Join(errs...)
}

// PollAll runs an out-of-band poll of every battery.
func (m *Manager) PollAll(ctx context.Context) error {
	var errs []error
	m.registry.Visit(func(b *battery.Battery) {
		if err := b.Poll(ctx); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "poll %s", b.Slot()))
		}
	})
	return errors.Join(errs...)
}

// Connected returns the cached AC adapter state.
func (m *Manager) Connected() bool {
	return m.adapter.Connected()
}

// States returns the published state of every attached battery, sorted by
// slot.
func (m *Manager) States() []battery.State {
	members := m.registry.Members()
	states := make([]battery.State, 0, len(members))
	for _, b := range members {
		states = append(states, b.State())
	}
	return states
}

// State returns the published state of one slot.
func (m *Manager) State(name string) (battery.State, error) {
	b, err := m.battery(name)
	if err != nil {
		return battery.State{}, err
	}
	return b.State(), nil
}
