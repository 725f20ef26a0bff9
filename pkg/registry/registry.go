// Package registry tracks the batteries currently published to the system.
package registry

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Member is a battery handle kept in the registry.
type Member interface {
	Slot() string
	Discharging() bool
}

// Registry is a set of members keyed by slot. Lookups never enter a
// member's gate: Discharging must answer from published state.
type Registry[M Member] struct {
	mu      sync.RWMutex
	members map[string]M
}

func New[M Member]() *Registry[M] {
	return &Registry[M]{members: make(map[string]M)}
}

// Add inserts m. It returns false if the slot is already taken.
func (r *Registry[M]) Add(m M) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[m.Slot()]; ok {
		return false
	}
	r.members[m.Slot()] = m
	logrus.WithField("slot", m.Slot()).Debug("registry member added")
	return true
}

// Remove deletes the member in slot and returns it.
func (r *Registry[M]) Remove(slot string) (M, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[slot]
	if ok {
		delete(r.members, slot)
		logrus.WithField("slot", slot).Debug("registry member removed")
	}
	return m, ok
}

func (r *Registry[M]) Get(slot string) (M, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[slot]
	return m, ok
}

func (r *Registry[M]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a snapshot sorted by slot.
func (r *Registry[M]) Members() []M {
	r.mu.RLock()
	ms := make([]M, 0, len(r.members))
	for _, m := range r.members {
		ms = append(ms, m)
	}
	r.mu.RUnlock()

	sort.Slice(ms, func(i, j int) bool {
		return ms[i].Slot() < ms[j].Slot()
	})
	return ms
}

// Visit calls fn once for every member, one at a time. The registry lock
// is not held while fn runs, so fn may add or remove members; those
// changes are not seen by the ongoing visit.
func (r *Registry[M]) Visit(fn func(M)) {
	for _, m := range r.Members() {
		fn(m)
	}
}

// AnyOtherDischarging reports whether any member other than except is a
// present battery that is currently discharging.
func (r *Registry[M]) AnyOtherDischarging(except string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for slot, m := range r.members {
		if slot == except {
			continue
		}
		if m.Discharging() {
			return true
		}
	}
	return false
}
