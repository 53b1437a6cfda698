// Package event provides the publish/subscribe primitive used by every
// stateful streamfx component to announce lifecycle and state transitions.
//
// Components hold an Emitter by composition rather than embedding, and
// delegate On/Off/Emit to it. Dispatch is synchronous and in registration
// order; a misbehaving handler is isolated from both the emitter and the
// remaining handlers.
package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives the arguments passed to Emit.
type Handler func(args ...interface{})

// Subscription identifies a registered handler so it can be removed later.
// Function values are not comparable in Go, so Off takes the Subscription
// returned by On/Once instead of the handler itself.
type Subscription uint64

// Well-known event names emitted by streamfx components.
const (
	Initialized        = "initialized"
	ProcessingStart    = "processing:start"
	ProcessingComplete = "processing:complete"
	ConfigUpdated      = "config:updated"
	StatsUpdated       = "stats:updated"
	Destroyed          = "destroyed"
	Error              = "error"
)

type registration struct {
	id      Subscription
	handler Handler
	once    bool
}

// Emitter is a synchronous event channel.
//
// Emit invokes all handlers for a name on the calling goroutine, in
// registration order. A handler that panics is recovered and logged; it never
// prevents the remaining handlers from running, nor does it propagate to the
// Emit caller. Re-entrant Emit from within a handler is allowed.
//
// All methods are safe for concurrent use; the registry is mutex-guarded but
// handlers run outside the lock so re-entrant registration does not deadlock.
type Emitter struct {
	mu       sync.Mutex
	handlers map[string][]registration
	nextID   Subscription
}

// NewEmitter creates an empty event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string][]registration),
		nextID:   1,
	}
}

// On registers a handler for the named event and returns its subscription.
func (e *Emitter) On(name string, handler Handler) Subscription {
	return e.register(name, handler, false)
}

// Once registers a handler that removes itself after its first invocation.
func (e *Emitter) Once(name string, handler Handler) Subscription {
	return e.register(name, handler, true)
}

func (e *Emitter) register(name string, handler Handler, once bool) Subscription {
	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Emitter.register",
			"event":    name,
		}).Warn("Ignoring nil handler registration")
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.handlers[name] = append(e.handlers[name], registration{id: id, handler: handler, once: once})

	logrus.WithFields(logrus.Fields{
		"function":      "Emitter.register",
		"event":         name,
		"subscription":  id,
		"once":          once,
		"handler_count": len(e.handlers[name]),
	}).Debug("Event handler registered")

	return id
}

// Off removes the handler identified by sub from the named event.
// A zero subscription removes all handlers for the name.
func (e *Emitter) Off(name string, sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub == 0 {
		delete(e.handlers, name)
		logrus.WithFields(logrus.Fields{
			"function": "Emitter.Off",
			"event":    name,
		}).Debug("All handlers removed for event")
		return
	}

	regs := e.handlers[name]
	for i, reg := range regs {
		if reg.id == sub {
			e.handlers[name] = append(regs[:i:i], regs[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"function":     "Emitter.Off",
				"event":        name,
				"subscription": sub,
			}).Debug("Event handler removed")
			return
		}
	}
}

// Emit synchronously invokes every handler registered for name, in
// registration order, and reports whether any handler existed.
func (e *Emitter) Emit(name string, args ...interface{}) bool {
	e.mu.Lock()
	regs := e.handlers[name]
	if len(regs) == 0 {
		e.mu.Unlock()
		return false
	}

	// Snapshot under the lock, dispatch outside it. Once-handlers are
	// unregistered before dispatch so a re-entrant Emit cannot run them twice.
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)

	remaining := regs[:0]
	for _, reg := range regs {
		if !reg.once {
			remaining = append(remaining, reg)
		}
	}
	if len(remaining) == 0 {
		delete(e.handlers, name)
	} else {
		e.handlers[name] = remaining
	}
	e.mu.Unlock()

	for _, reg := range snapshot {
		e.dispatch(name, reg, args)
	}

	return true
}

// dispatch runs one handler with panic isolation.
func (e *Emitter) dispatch(name string, reg registration, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function":     "Emitter.dispatch",
				"event":        name,
				"subscription": reg.id,
				"panic":        r,
			}).Error("Event handler panicked; isolated from remaining handlers")
		}
	}()
	reg.handler(args...)
}

// RemoveAllListeners clears every handler for name, or every handler for
// every event when name is empty.
func (e *Emitter) RemoveAllListeners(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		e.handlers = make(map[string][]registration)
		logrus.WithFields(logrus.Fields{
			"function": "Emitter.RemoveAllListeners",
		}).Debug("All event registries cleared")
		return
	}
	delete(e.handlers, name)
}

// ListenerCount returns the number of handlers registered for name.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}
