// Package power forwards adapter changes to the system power subsystem.
package power

import (
	"github.com/sirupsen/logrus"
)

// Root is the system power root. It is told whenever the AC adapter state
// changes.
type Root interface {
	AdapterChanged(connected bool)
}

// RootFunc adapts a function to Root.
type RootFunc func(connected bool)

func (f RootFunc) AdapterChanged(connected bool) { f(connected) }

// LogRoot only logs adapter changes.
type LogRoot struct{}

func (LogRoot) AdapterChanged(connected bool) {
	logrus.WithField("connected", connected).Info("AC adapter state changed")
}

type tee []Root

func (t tee) AdapterChanged(connected bool) {
	for _, r := range t {
		r.AdapterChanged(connected)
	}
}

// Tee notifies every non-nil root in order.
func Tee(roots ...Root) Root {
	var t tee
	for _, r := range roots {
		if r != nil {
			t = append(t, r)
		}
	}
	return t
}
