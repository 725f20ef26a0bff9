package power

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/godbus/dbus"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/battery"
)

func TestTee(t *testing.T) {
	var got []bool
	r := Tee(
		RootFunc(func(c bool) { got = append(got, c) }),
		nil,
		LogRoot{},
		RootFunc(func(c bool) { got = append(got, !c) }),
	)

	r.AdapterChanged(true)
	require.Equal(t, []bool{true, false}, got)
}

type fakeSource struct {
	connected bool
	states    []battery.State
}

func (f fakeSource) Connected() bool         { return f.connected }
func (f fakeSource) States() []battery.State { return f.states }

func TestService(t *testing.T) {
	s := &Service{src: fakeSource{
		connected: true,
		states: []battery.State{
			battery.AbsentState("BAT0", "BAT0", true),
			battery.UnpolledState("BAT1", "BAT1", true),
		},
	}}

	connected, dErr := s.IsACConnected()
	require.Nil(t, dErr)
	require.True(t, connected)

	all, dErr := s.Batteries()
	require.Nil(t, dErr)
	var states []battery.State
	require.NoError(t, json.Unmarshal([]byte(all), &states))
	require.Len(t, states, 2)

	one, dErr := s.Battery("BAT1")
	require.Nil(t, dErr)
	require.Contains(t, one, `"condition":"unpolled"`)

	_, dErr = s.Battery("BAT7")
	require.NotNil(t, dErr)
	require.Equal(t, DBusName+".Battery", dErr.Name)
}

type fakeBus struct {
	reply     dbus.RequestNameReply
	failAt    int
	exports   int
	released  int
	requested int
	emitted   []interface{}
}

func (b *fakeBus) RequestName(string, dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	b.requested++
	return b.reply, nil
}

func (b *fakeBus) ReleaseName(string) (dbus.ReleaseNameReply, error) {
	b.released++
	return dbus.ReleaseNameReplyReleased, nil
}

func (b *fakeBus) Export(interface{}, dbus.ObjectPath, string) error {
	b.exports++
	if b.exports == b.failAt {
		return errors.New("export refused")
	}
	return nil
}

func (b *fakeBus) Emit(_ dbus.ObjectPath, _ string, values ...interface{}) error {
	b.emitted = append(b.emitted, values...)
	return nil
}

func TestDBusRootReleasesNameOnExportFailure(t *testing.T) {
	for _, failAt := range []int{1, 2} {
		bus := &fakeBus{reply: dbus.RequestNameReplyPrimaryOwner, failAt: failAt}
		_, err := newDBusRoot(bus, fakeSource{})
		require.Error(t, err, "export %d failing", failAt)
		require.Equal(t, 1, bus.released, "export %d failing", failAt)
	}

	taken := &fakeBus{reply: dbus.RequestNameReplyExists}
	_, err := newDBusRoot(taken, fakeSource{})
	require.Error(t, err)
	require.Zero(t, taken.released)
	require.Zero(t, taken.exports)
}

func TestDBusRoot(t *testing.T) {
	bus := &fakeBus{reply: dbus.RequestNameReplyPrimaryOwner}
	r, err := newDBusRoot(bus, fakeSource{})
	require.NoError(t, err)
	require.Equal(t, 2, bus.exports)

	r.AdapterChanged(true)
	require.Equal(t, []interface{}{true}, bus.emitted)

	require.NoError(t, r.Close())
	require.Equal(t, 1, bus.released)
}
