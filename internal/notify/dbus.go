package notify

import (
	"github.com/godbus/dbus/v5"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"
)

type dbusNotifier struct {
	obj dbus.BusObject
}

// New returns a Notifier on the session bus, or a no-op one when D-Bus is
// unavailable.
func New() Notifier {
	conn, err := dbus.SessionBus()
	if err != nil {
		return stubNotifier{}
	}
	return &dbusNotifier{obj: conn.Object(dbusNotifyDest, dbusNotifyPath)}
}

func (n *dbusNotifier) Notify(notif Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(notif.Urgency)),
		"desktop-entry": dbus.MakeVariant("playlog"),
	}

	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := n.obj.Call(
		dbusNotifyInterface+".Notify",
		0,
		"playlog",
		notif.ReplacesID,
		notif.Icon,
		notif.Title,
		notif.Body,
		[]string{},
		hints,
		notif.Timeout,
	)
	if call.Err != nil {
		return 0, call.Err
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (n *dbusNotifier) Close(id uint32) error {
	return n.obj.Call(dbusNotifyInterface+".CloseNotification", 0, id).Err
}

type stubNotifier struct{}

func (stubNotifier) Notify(Notification) (uint32, error) { return 0, nil }
func (stubNotifier) Close(uint32) error                  { return nil }

// Available reports whether n delivers notifications.
func Available(n Notifier) bool {
	_, stub := n.(stubNotifier)
	return !stub
}
