package power

import (
	"encoding/json"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/battery"
)

const (
	DBusName = "org.acpibatt.Power"
	DBusPath = "/org/acpibatt/Power"

	// AdapterSignal carries a single boolean, the new AC state.
	AdapterSignal = DBusName + ".AdapterChanged"
)

// Source is what the exported service answers queries from.
type Source interface {
	Connected() bool
	States() []battery.State
}

// busConn is the part of *dbus.Conn the root uses.
type busConn interface {
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// DBusRoot emits adapter changes as signals on the system bus and exports
// a small query service.
type DBusRoot struct {
	conn busConn
}

// NewDBusRoot claims DBusName on the system bus.
func NewDBusRoot(src Source) (*DBusRoot, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}
	return newDBusRoot(conn, src)
}

func newDBusRoot(conn busConn, src Source) (*DBusRoot, error) {
	reply, err := conn.RequestName(DBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to request %s", DBusName)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, pkgerrors.Errorf("%s already taken", DBusName)
	}

	s := &Service{src: src}
	if err := conn.Export(s, DBusPath, DBusName); err != nil {
		releaseName(conn)
		return nil, pkgerrors.Wrap(err, "failed to export service")
	}
	if err := conn.Export(genIntrospectable(s), DBusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		releaseName(conn)
		return nil, pkgerrors.Wrap(err, "failed to export introspection")
	}

	logrus.WithField("name", DBusName).Info("dbus service started")

	return &DBusRoot{conn: conn}, nil
}

func releaseName(conn busConn) {
	if _, err := conn.ReleaseName(DBusName); err != nil {
		logrus.WithError(err).Warn("failed to release dbus name")
	}
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    DBusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (r *DBusRoot) AdapterChanged(connected bool) {
	if err := r.conn.Emit(dbus.ObjectPath(DBusPath), AdapterSignal, connected); err != nil {
		logrus.WithError(err).Error("failed to emit adapter signal")
	}
}

// Close releases the bus name.
func (r *DBusRoot) Close() error {
	_, err := r.conn.ReleaseName(DBusName)
	return err
}

// Service is exported on the bus.
type Service struct {
	src Source
}

// IsACConnected returns the cached AC adapter state.
func (s *Service) IsACConnected() (bool, *dbus.Error) {
	return s.src.Connected(), nil
}

// Batteries returns the state of every battery slot as JSON.
func (s *Service) Batteries() (string, *dbus.Error) {
	b, err := json.Marshal(s.src.States())
	if err != nil {
		return "", makeDbusError(".Batteries", err)
	}
	return string(b), nil
}

// Battery returns the state of one slot as JSON.
func (s *Service) Battery(slot string) (string, *dbus.Error) {
	for _, st := range s.src.States() {
		if st.Slot != slot {
			continue
		}
		b, err := json.Marshal(st)
		if err != nil {
			return "", makeDbusError(".Battery", err)
		}
		return string(b), nil
	}
	return "", makeDbusError(".Battery", pkgerrors.Errorf("no battery in slot %s", slot))
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: DBusName + name,
		Body: []interface{}{err.Error()},
	}
}
