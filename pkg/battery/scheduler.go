package battery

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/gate"
)

// phase is where a battery is in its startup sequence.
type phase int

const (
	phaseStopped phase = iota
	phaseStartupDelay
	phaseFirstPollPending
	phaseSteady
)

func (p phase) String() string {
	switch p {
	case phaseStopped:
		return "stopped"
	case phaseStartupDelay:
		return "startup-delay"
	case phaseFirstPollPending:
		return "first-poll-pending"
	case phaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// InitialFastPolls is how many polls after start run at the quick cadence
// regardless of battery state.
const InitialFastPolls = 5

// timerSlot holds the single pending timer of a battery. Arming replaces
// whatever was pending. Expired callbacks are delivered through the gate
// and dropped if a newer timer has been armed since.
type timerSlot struct {
	name string
	g    *gate.Gate

	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	gen   uint64
}

func newTimerSlot(name string, g *gate.Gate) *timerSlot {
	return &timerSlot{name: name, g: g}
}

// arm schedules fn to run on the gate after d.
func (t *timerSlot) arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.delay = d

	t.timer = time.AfterFunc(d, func() {
		err := t.g.Post(func() {
			if !t.current(gen) {
				logrus.WithField("battery", t.name).Trace("dropping superseded timer")
				return
			}
			fn()
		})
		if err != nil {
			logrus.WithField("battery", t.name).WithError(err).Trace("timer fired after close")
		}
	})
}

func (t *timerSlot) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen
}

// cancel drops any pending timer.
func (t *timerSlot) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.delay = 0
	t.gen++
}

// armed returns the delay of the pending timer, or zero if none is pending.
func (t *timerSlot) armed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return 0
	}
	return t.delay
}
