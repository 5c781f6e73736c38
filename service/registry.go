package service

import (
	"log/slog"
	"sync"

	"tvbridge/models"
)

// DeviceListener observes active-device transitions. DeviceChanged
// receives the new device, or nil when the slot was cleared.
//
// DeviceChanged runs synchronously while the registry lock is held —
// that is what keeps notification rounds from interleaving. A listener
// must therefore never call back into the registry (Get/Set/Clear/
// AddListener/RemoveListener) from inside DeviceChanged; doing so
// deadlocks. Hand off to a goroutine or channel instead.
type DeviceListener interface {
	DeviceChanged(device *models.DeviceInfo)
}

// SessionRegistry is the single source of truth for which device is
// active. It holds at most one device, notifies listeners synchronously
// on every transition, and is safe for concurrent use from workers
// racing with foreground actions. The registry performs no bridge I/O;
// callers confirm reachability before Set.
type SessionRegistry struct {
	mu        sync.Mutex
	current   *models.DeviceInfo
	listeners []DeviceListener
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// Set replaces the active device and notifies every listener with the
// new value, in registration order. Replacing device A with device B
// fires exactly one round; observers never see an intermediate empty
// state. The whole set+notify sequence runs under the registry lock so
// concurrent Set calls produce serialized, non-interleaved rounds;
// listeners must not call back into the registry (see DeviceListener).
func (r *SessionRegistry) Set(device models.DeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := device
	r.current = &d
	slog.Info("active device set", "serial", d.Serial, "model", d.Model)
	r.notifyLocked(&d)
}

// Get returns the active device, or nil when none is selected. The
// returned value is a copy; mutating it does not touch the registry.
func (r *SessionRegistry) Get() *models.DeviceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	d := *r.current
	return &d
}

// Clear empties the slot and notifies listeners with nil. Clearing an
// already empty registry still fires one round.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = nil
	slog.Info("active device cleared")
	r.notifyLocked(nil)
}

// AddListener registers a listener. Adding the same listener twice is
// a no-op; order of first registration is preserved for notification.
func (r *SessionRegistry) AddListener(l DeviceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners {
		if existing == l {
			return
		}
	}
	r.listeners = append(r.listeners, l)
}

// RemoveListener unregisters a listener by identity. Removing a
// listener that was never added is a no-op.
func (r *SessionRegistry) RemoveListener(l DeviceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// notifyLocked runs one notification round. A panicking listener is
// logged and skipped so it can never block the rest of the round or
// crash the caller. Callers hold r.mu.
func (r *SessionRegistry) notifyLocked(device *models.DeviceInfo) {
	for _, l := range r.listeners {
		notifyOne(l, device)
	}
}

func notifyOne(l DeviceListener, device *models.DeviceInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("device listener panicked", "panic", rec)
		}
	}()
	l.DeviceChanged(device)
}
