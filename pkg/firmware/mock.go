package firmware

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ Port = &Mock{}

// Mock is an in-memory device. It backs tests and the fixture port.
type Mock struct {
	name string

	mu      sync.Mutex
	methods map[string]Object
	fails   map[string]error
	calls   map[string]int
}

// NewMock returns a device with the given method results prefilled.
func NewMock(name string, prefill map[string]Object) *Mock {
	m := &Mock{
		name:    name,
		methods: make(map[string]Object),
		fails:   make(map[string]error),
		calls:   make(map[string]int),
	}
	for k, v := range prefill {
		m.methods[k] = v
	}
	return m
}

// Name is the device name.
func (m *Mock) Name() string {
	return m.name
}

// Set replaces the result of a method.
func (m *Mock) Set(method string, v Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods[method] = v
	delete(m.fails, method)
}

// SetInteger is a shorthand for Set(method, Integer(v)).
func (m *Mock) SetInteger(method string, v uint64) {
	m.Set(method, Integer(v))
}

// Remove makes a method unavailable.
func (m *Mock) Remove(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.methods, method)
}

// Fail makes every following evaluation of method return err.
func (m *Mock) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[method] = err
}

// Calls is how many times method has been evaluated.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Mock) EvaluateInteger(ctx context.Context, method string) (uint32, error) {
	v, err := m.EvaluateObject(ctx, method)
	if err != nil {
		return 0, err
	}
	if v.Kind != KindInteger {
		return 0, pkgerrors.Wrapf(ErrWrongType, "%s on %s is a %s", method, m.name, v.Kind)
	}
	return uint32(v.Integer), nil
}

func (m *Mock) EvaluateObject(ctx context.Context, method string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[method]++

	logrus.WithFields(logrus.Fields{
		"device": m.name,
		"method": method,
	}).Trace("evaluating firmware method")

	if err, ok := m.fails[method]; ok {
		return Object{}, err
	}
	v, ok := m.methods[method]
	if !ok {
		return Object{}, pkgerrors.Wrapf(ErrMethodNotFound, "%s on %s", method, m.name)
	}
	return v, nil
}

func (m *Mock) ValidateObject(_ context.Context, method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.methods[method]
	return ok
}
