//go:build linux

package notify

import (
	"github.com/godbus/dbus/v5"
	zlog "github.com/rs/zerolog/log"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"
)

// dbusNotifier sends notifications via D-Bus.
type dbusNotifier struct {
	appName string
	conn    *dbus.Conn
	obj     dbus.BusObject
	actions chan ActionEvent
}

// New creates a Notifier that sends desktop notifications via D-Bus.
// Returns a no-op notifier if D-Bus is unavailable.
func New(appName string) (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		zlog.Warn().Err(err).Msg("notify: session bus unavailable, notifications disabled")
		return &stubNotifier{}, nil //nolint:nilerr // graceful fallback when D-Bus unavailable
	}

	n := &dbusNotifier{
		appName: appName,
		conn:    conn,
		obj:     conn.Object(dbusNotifyDest, dbusNotifyPath),
		actions: make(chan ActionEvent, 16),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusNotifyPath),
		dbus.WithMatchInterface(dbusNotifyInterface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		zlog.Warn().Err(err).Msg("notify: cannot watch notification actions")
		return n, nil
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	go n.forwardActions(signals)

	return n, nil
}

// forwardActions converts ActionInvoked signals to ActionEvents.
func (n *dbusNotifier) forwardActions(signals <-chan *dbus.Signal) {
	for sig := range signals {
		if sig.Name != dbusNotifyInterface+".ActionInvoked" || len(sig.Body) < 2 {
			continue
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			continue
		}
		key, ok := sig.Body[1].(string)
		if !ok {
			continue
		}
		select {
		case n.actions <- ActionEvent{ID: id, Key: key}:
		default:
			zlog.Debug().Msgf("notify: action dropped: id=%d key=%s", id, key)
		}
	}
}

// Notify sends a notification via D-Bus.
func (n *dbusNotifier) Notify(notif Notification) (uint32, error) {
	// Build hints map
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(notif.Urgency)),
		"desktop-entry": dbus.MakeVariant(n.appName),
	}
	if notif.Category != "" {
		hints["category"] = dbus.MakeVariant(notif.Category)
	}
	if notif.Resident {
		hints["resident"] = dbus.MakeVariant(true)
	}

	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := n.obj.Call(
		dbusNotifyInterface+".Notify",
		0,
		n.appName,
		notif.ReplacesID,
		notif.Icon,
		notif.Title,
		notif.Body,
		flattenActions(notif.Actions),
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

// Close closes a notification by ID.
func (n *dbusNotifier) Close(id uint32) error {
	call := n.obj.Call(dbusNotifyInterface+".CloseNotification", 0, id)
	return call.Err
}

// Actions reports invoked notification actions.
func (n *dbusNotifier) Actions() <-chan ActionEvent {
	return n.actions
}
