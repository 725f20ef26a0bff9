package daemon

import (
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrNoSchedule is returned by Skip when no refresh is scheduled.
var ErrNoSchedule = errors.New("no active schedule to skip")

// idleWait is how long the loop sleeps when nothing is scheduled.
const idleWait = time.Hour * 10000

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs a task on a cron schedule. It drives the periodic forced
// refresh of every battery.
type Scheduler struct {
	OnError func(err error) // called on task error
	Task    TaskFunc

	parser cron.Parser

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	controlCh chan controlMsg
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule changed or cleared
	ctrlSkip                           // next run skipped
)

type controlMsg struct {
	kind     controlKind
	schedule cron.Schedule
}

func NewScheduler(task TaskFunc, onError func(error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnError:   onError,
		Task:      task,
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh: make(chan controlMsg, 4),
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Schedule replaces the schedule. An empty expression clears it.
func (s *Scheduler) Schedule(cronExpr string) error {
	var sh cron.Schedule
	if cronExpr != "" {
		var err error
		sh, err = s.parser.Parse(cronExpr)
		if err != nil {
			return pkgerrors.Wrapf(err, "invalid refresh schedule %q", cronExpr)
		}
	}

	s.mu.Lock()
	s.schedule = sh
	s.nextRun = time.Time{}
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	}
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(controlMsg{kind: ctrlRecalculate, schedule: sh})
	}
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return ErrNoSchedule
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(controlMsg{kind: ctrlSkip})
	}
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextRun, s.running
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("refresh scheduler stopped")
	}()

	logrus.Debug("refresh scheduler started")

	for {
		_, nextRun := s.snapshot()
		wait := idleWait
		if !nextRun.IsZero() {
			wait = max(time.Until(nextRun), 0)
		}
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
			if nextRun.IsZero() {
				continue
			}
			logrus.WithField("at", nextRun.Format(time.DateTime)).Debug("running scheduled refresh")
			s.advanceNextRun()
			if err := s.Task(); err != nil {
				s.sendError(pkgerrors.Wrap(err, "scheduled refresh failed"))
			}
		case <-s.stopCh:
			timer.Stop()
			return
		case msg := <-s.controlCh:
			timer.Stop()
			logrus.WithField("kind", msg.kind).Debug("received control msg")
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(time.Now())
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}

func (s *Scheduler) trySendControl(msg controlMsg) {
	select {
	case s.controlCh <- msg:
	default:
	}
}
