// Package battery polls one battery slot, normalizes what the firmware
// reports and publishes the result as a canonical State.
package battery

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/firmware"
	"github.com/charlie0129/acpibatt/pkg/gate"
)

// Siblings answers questions about the other batteries of the system.
type Siblings interface {
	AnyOtherDischarging(except string) bool
}

type noSiblings struct{}

func (noSiblings) AnyOtherDischarging(string) bool { return false }

// Options configures a Battery.
type Options struct {
	// Slot identifies the battery within the system.
	Slot string
	// Device is the firmware device name, used to build serial strings.
	Device string

	Port   firmware.Port
	Config config.Battery

	Siblings    Siblings
	ACConnected bool

	// OnState and OnError are called from the battery's gate.
	OnState func(State)
	OnError func(ErrorEvent)
}

// ErrNoPort is returned by New when no firmware port is given.
var ErrNoPort = errors.New("battery has no firmware port")

const (
	pathNew      = "new"
	pathExisting = "existing"
)

// Battery is one monitored battery slot. Its exported methods are safe for
// concurrent use. Everything that touches smoothed state runs on the
// battery's gate.
type Battery struct {
	slot     string
	device   string
	port     firmware.Port
	cfg      config.Battery
	siblings Siblings
	onState  func(State)
	onError  func(ErrorEvent)

	gate   *gate.Gate
	timers *timerSlot
	norm   *Normalizer

	// Owned by the gate.
	phase        phase
	smooth       SmoothedState
	initialPolls int
	standard     time.Duration
	acConnected  bool
	quickPoll    bool
	useExtended  bool
	useExtra     bool
	latestError  ErrorKind
	last         State

	state   atomic.Pointer[State]
	sta     atomic.Uint32
	cadence atomic.Int64
}

// New creates a stopped battery.
func New(opts Options) (*Battery, error) {
	if opts.Port == nil {
		return nil, pkgerrors.Wrapf(ErrNoPort, "slot %s", opts.Slot)
	}
	if opts.Siblings == nil {
		opts.Siblings = noSiblings{}
	}
	if opts.Device == "" {
		opts.Device = opts.Slot
	}

	g := gate.New("battery/" + opts.Slot)
	b := &Battery{
		slot:        opts.Slot,
		device:      opts.Device,
		port:        opts.Port,
		cfg:         opts.Config,
		siblings:    opts.Siblings,
		onState:     opts.OnState,
		onError:     opts.OnError,
		gate:        g,
		timers:      newTimerSlot(opts.Slot, g),
		norm:        NewNormalizer(opts.Slot, opts.Config),
		standard:    opts.Config.StandardPollInterval,
		acConnected: opts.ACConnected,
	}
	if b.standard <= 0 {
		b.standard = 30 * time.Second
	}
	if b.cfg.QuickPollInterval <= 0 {
		b.cfg.QuickPollInterval = config.QuickPollInterval
	}

	b.last = AbsentState(b.slot, b.device, b.acConnected)
	b.state.Store(&b.last)

	return b, nil
}

func (b *Battery) Slot() string {
	return b.slot
}

func (b *Battery) Device() string {
	return b.device
}

func (b *Battery) logger() *logrus.Entry {
	return logrus.WithField("battery", b.slot)
}

// Start selects the record formats to use and arms the startup timers.
// Polls requested before the first poll timer fires are ignored.
func (b *Battery) Start(ctx context.Context) error {
	return b.gate.Run(ctx, func() {
		b.smooth = SmoothedState{
			FastPollCount:     InitialFastPolls,
			ExternalConnected: b.acConnected,
		}
		b.initialPolls = InitialFastPolls
		b.quickPoll = false
		b.latestError = ""

		b.selectFormats(ctx)

		b.logger().WithFields(b.cfg.LogrusFields()).WithFields(logrus.Fields{
			"extended": b.useExtended,
			"extra":    b.useExtra,
		}).Info("battery started")

		b.publish(UnpolledState(b.slot, b.device, b.acConnected))

		b.phase = phaseStartupDelay
		b.timers.arm(b.cfg.StartupDelay, b.startupDelayExpired)
	})
}

func (b *Battery) selectFormats(ctx context.Context) {
	b.useExtended = false
	b.useExtra = false

	if b.cfg.UseExtendedInformation {
		if b.port.ValidateObject(ctx, firmware.MethodExtendedInfo) {
			b.useExtended = true
		} else {
			b.emit(b.norm.event(ErrorFormatUnsupported, "%s not implemented, using %s", firmware.MethodExtendedInfo, firmware.MethodBasicInfo))
		}
	}
	if b.cfg.UseExtraInformation {
		if b.port.ValidateObject(ctx, firmware.MethodExtraInfo) {
			b.useExtra = true
		} else {
			b.emit(b.norm.event(ErrorFormatUnsupported, "%s not implemented", firmware.MethodExtraInfo))
		}
	}
}

func (b *Battery) startupDelayExpired() {
	b.phase = phaseFirstPollPending
	b.timers.arm(b.cfg.FirstPollDelay, b.pollTimerExpired)
}

func (b *Battery) pollTimerExpired() {
	b.phase = phaseSteady
	if b.initialPolls > 0 {
		b.initialPolls--
		b.poll(pathNew)
		return
	}
	b.poll(pathExisting)
}

// Stop cancels pending polls and stops the gate. A stopped battery cannot
// be restarted.
func (b *Battery) Stop() {
	b.timers.cancel()
	b.gate.Close()
	b.logger().Info("battery stopped")
}

// Poll runs an out-of-band poll, replacing any pending timer.
func (b *Battery) Poll(ctx context.Context) error {
	return b.gate.Run(ctx, func() { b.poll(pathExisting) })
}

// HandleInserted is called when the slot reports a battery was inserted.
func (b *Battery) HandleInserted(ctx context.Context) error {
	return b.gate.Run(ctx, func() {
		b.logger().Info("battery inserted")
		b.poll(pathNew)
	})
}

// HandleRemoved is called when the slot reports its battery was removed.
func (b *Battery) HandleRemoved(ctx context.Context) error {
	return b.gate.Run(ctx, func() {
		b.logger().Info("battery removed")
		b.poll(pathNew)
	})
}

// HandleAlarm is called on a firmware alarm or data changed notification.
func (b *Battery) HandleAlarm(ctx context.Context) error {
	return b.gate.Run(ctx, func() { b.poll(pathExisting) })
}

// HandleNotification handles a firmware notification on the battery
// device. _STA is re-read on the gate: a change of the present bit is an
// insertion or a removal, anything else is an alarm.
func (b *Battery) HandleNotification(ctx context.Context) error {
	var err error
	runErr := b.gate.Run(ctx, func() {
		if b.phase != phaseSteady {
			b.logger().WithField("phase", b.phase).Trace("notification before first poll timer, ignoring")
			return
		}

		rctx := context.Background()
		if b.cfg.PollTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, b.cfg.PollTimeout)
			defer cancel()
		}

		sta, evalErr := b.port.EvaluateInteger(rctx, firmware.MethodStatus)
		if evalErr != nil {
			err = pkgerrors.Wrapf(evalErr, "evaluate %s", firmware.MethodStatus)
			return
		}
		prev := b.sta.Swap(sta)

		switch {
		case (prev^sta)&firmware.StatusPresent == 0:
			b.logger().Debug("battery alarm")
			b.poll(pathExisting)
		case sta&firmware.StatusPresent != 0:
			b.logger().Info("battery inserted")
			b.poll(pathNew)
		default:
			b.logger().Info("battery removed")
			b.poll(pathNew)
		}
	})
	if runErr != nil {
		return runErr
	}
	return err
}

// HandleWake is called after the system resumes from sleep.
func (b *Battery) HandleWake(ctx context.Context) error {
	return b.gate.Run(ctx, func() {
		b.logger().Debug("system woke")
		b.poll(pathNew)
	})
}

// NotifyConnectedState tells the battery whether external power is
// connected. A present battery is polled right away so the new cadence and
// charge state take effect.
func (b *Battery) NotifyConnectedState(ctx context.Context, connected bool) error {
	return b.gate.Run(ctx, func() {
		if b.smooth.ExternalConnected == connected && b.acConnected == connected {
			return
		}
		b.logger().WithField("connected", connected).Debug("external power changed")
		b.smooth.ExternalConnected = connected
		b.acConnected = connected

		if b.sta.Load()&firmware.StatusPresent != 0 {
			b.poll(pathExisting)
			return
		}
		st := b.last
		st.ExternalConnected = connected
		b.publish(st)
	})
}

// SetPollingInterval changes the standard cadence. It has no effect while
// a polling override is configured.
func (b *Battery) SetPollingInterval(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return pkgerrors.Errorf("invalid polling interval %s", d)
	}
	return b.gate.Run(ctx, func() {
		if b.cfg.PollingOverridden {
			b.logger().WithField("interval", d).Info("polling override configured, ignoring new interval")
			return
		}
		b.standard = d
		b.smooth.FastPollCount = 0
		b.logger().WithField("interval", d).Info("standard polling interval changed")
		if b.phase == phaseSteady {
			b.rearm()
		}
	})
}

// State returns a copy of the last published state.
func (b *Battery) State() State {
	return *b.state.Load()
}

// LastStatus returns the last _STA value read.
func (b *Battery) LastStatus() uint32 {
	return b.sta.Load()
}

func (b *Battery) Present() bool {
	return b.state.Load().Present
}

func (b *Battery) Discharging() bool {
	return b.state.Load().Discharging()
}

// Cadence returns the delay the pending poll timer was armed with.
func (b *Battery) Cadence() time.Duration {
	return time.Duration(b.cadence.Load())
}

// poll runs on the gate.
func (b *Battery) poll(path string) {
	log := b.logger().WithField("path", path)
	if b.phase != phaseSteady {
		log.WithField("phase", b.phase).Trace("poll requested before first poll timer, ignoring")
		return
	}

	ctx := context.Background()
	if b.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.PollTimeout)
		defer cancel()
	}

	st, events, err := b.read(ctx)
	for _, e := range events {
		b.emit(e)
	}
	if err != nil {
		b.fail(err)
		b.rearm()
		return
	}

	b.smooth.ReadErrors = 0
	b.quickPoll = st.QuickPoll
	st.LatestErrorType = b.latestError
	b.publish(st)
	log.Trace("poll complete")

	b.rearm()
}

// read performs one full poll. The returned state is only published when
// err is nil.
func (b *Battery) read(ctx context.Context) (State, []ErrorEvent, error) {
	sta, err := b.port.EvaluateInteger(ctx, firmware.MethodStatus)
	if err != nil {
		return State{}, nil, pkgerrors.Wrapf(err, "evaluate %s", firmware.MethodStatus)
	}
	b.sta.Store(sta)

	if sta&firmware.StatusPresent == 0 {
		b.smooth = SmoothedState{
			FastPollCount:     b.smooth.FastPollCount,
			ExternalConnected: b.acConnected,
		}
		b.quickPoll = false
		return AbsentState(b.slot, b.device, b.acConnected), nil, nil
	}

	var events []ErrorEvent
	r := &Readings{}

	infoMethod := firmware.MethodBasicInfo
	if b.useExtended {
		infoMethod = firmware.MethodExtendedInfo
	}
	rec, err := b.readRecord(ctx, infoMethod)
	if err != nil {
		return State{}, nil, err
	}
	events = append(events, b.norm.ApplyInfo(r, rec.(InfoRecord))...)

	if b.useExtra {
		rec, err := b.readRecord(ctx, firmware.MethodExtraInfo)
		if err != nil {
			return State{}, events, err
		}
		b.norm.ApplyExtra(r, rec.(ExtraInfo))
	}

	rec, err = b.readRecord(ctx, firmware.MethodBatteryState)
	if err != nil {
		return State{}, events, err
	}
	events = append(events, b.norm.ApplyStatus(r, rec.(Status))...)

	st, classified := Classify(b.slot, b.device, r, &b.smooth, b.cfg, Environment{
		ACConnected:       b.acConnected,
		OthersDischarging: b.siblings.AnyOtherDischarging(b.slot),
		Interval:          b.Cadence(),
	})
	events = append(events, classified...)
	if len(events) > 0 {
		b.latestError = events[len(events)-1].Kind
	}

	return st, events, nil
}

func (b *Battery) readRecord(ctx context.Context, method string) (Record, error) {
	obj, err := b.port.EvaluateObject(ctx, method)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "evaluate %s", method)
	}
	rec, err := DecodeRecord(method, obj)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (b *Battery) fail(err error) {
	b.smooth.ReadErrors++

	kind := ErrorReadFailed
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorOverallTimeout
	}
	b.latestError = kind

	e := b.norm.event(kind, "%v", err)
	b.logger().WithError(err).WithField("consecutive", b.smooth.ReadErrors).Error(string(kind))
	b.emit(e)
}

// rearm picks the next cadence and arms the poll timer.
func (b *Battery) rearm() {
	var every time.Duration
	switch {
	case b.cfg.PollingOverridden:
		every = b.cfg.PollingPeriod
	default:
		fast := b.smooth.FastPollCount > 0
		if fast {
			b.smooth.FastPollCount--
		}
		every = b.standard
		if fast || !b.acConnected || b.quickPoll {
			every = b.cfg.QuickPollInterval
		}
	}

	b.cadence.Store(int64(every))
	b.timers.arm(every, b.pollTimerExpired)
}

func (b *Battery) publish(st State) {
	b.last = st
	b.state.Store(&st)
	if b.onState != nil {
		b.onState(st)
	}
}

func (b *Battery) emit(e ErrorEvent) {
	if b.onError != nil {
		b.onError(e)
	}
}
