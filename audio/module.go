package audio

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// Kind identifies an audio module variant. The set is closed; new variants
// are added through Register rather than string-keyed branching.
type Kind int

const (
	// KindNoiseSuppression is the spectral-subtraction noise suppressor.
	KindNoiseSuppression Kind = iota
	// KindAGC is the automatic gain control module.
	KindAGC
	// KindVoiceFocus is the voice-band enhancement module.
	KindVoiceFocus
)

// String returns the module's configuration key.
func (k Kind) String() string {
	switch k {
	case KindNoiseSuppression:
		return config.KeyNoiseSuppression
	case KindAGC:
		return config.KeyAGC
	case KindVoiceFocus:
		return config.KeyVoiceFocus
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ChainOrder is the fixed wiring order of the audio chain. Only enabled
// modules are instantiated, but those that are always connect in this order.
var ChainOrder = []Kind{KindNoiseSuppression, KindAGC, KindVoiceFocus}

// Stats is an immutable snapshot of a component's operating parameters and
// metrics. Implementations return a fresh copy on every call, never a live
// reference.
type Stats map[string]interface{}

// Clone returns an independent copy of the snapshot.
func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Module is the unit-of-work contract every audio enhancement module
// implements.
//
// Lifecycle: a module is created when its feature flag is enabled, must be
// initialized before processing, and is destroyed when the feature is
// disabled or the owning pipeline is destroyed. Process transforms one
// buffer's sample values without changing its shape and must be callable at
// the real-time callback cadence. UpdateConfig takes effect on the next
// Process call and never requires re-initialization.
type Module interface {
	// Kind returns the module variant.
	Kind() Kind

	// Name returns the module's configuration key.
	Name() string

	// Initialize allocates processing resources. Failure leaves the module
	// unusable and uninitialized; retrying is safe.
	Initialize() error

	// Process transforms one buffer of samples, returning a buffer of the
	// same sample count, rate, and channel layout.
	Process(buf *media.AudioBuffer) (*media.AudioBuffer, error)

	// UpdateConfig shallow-merges new parameters into the live config.
	UpdateConfig(cfg config.Config) error

	// Stats returns a snapshot copy of current parameters and metrics.
	Stats() Stats

	// Destroy releases resources. Idempotent.
	Destroy() error

	// Events returns the module's event channel.
	Events() *event.Emitter

	// Connect wires this module's output to next. Connecting a destroyed or
	// uninitialized module is rejected by implementations.
	Connect(next Module) error

	// Disconnect severs the link to the next module.
	Disconnect()

	// Next returns the currently connected downstream module, or nil.
	Next() Module
}

// Factory constructs a module from its sub-config (the tree under the
// module's key in the audio namespace).
type Factory func(cfg config.Config) Module

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Factory)
)

// Register installs the factory for a module kind. Built-in kinds register
// themselves at package init; callers may override or extend the table before
// constructing pipelines.
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"kind":     kind.String(),
	}).Debug("Audio module factory registered")
}

// New constructs a module of the given kind from cfg.
func New(kind Kind, cfg config.Config) (Module, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for module %s", ErrInvalidInput, kind)
	}
	return factory(cfg), nil
}

func init() {
	Register(KindNoiseSuppression, func(cfg config.Config) Module { return NewNoiseSuppressor(cfg) })
	Register(KindAGC, func(cfg config.Config) Module { return NewAGC(cfg) })
	Register(KindVoiceFocus, func(cfg config.Config) Module { return NewVoiceFocus(cfg) })
}

// baseModule carries the state shared by every module implementation: the
// event channel (held by composition), the live config, and lifecycle flags.
type baseModule struct {
	kind        Kind
	emitter     *event.Emitter
	mu          sync.RWMutex
	cfg         config.Config
	initialized bool
	destroyed   bool
	next        Module
}

func newBaseModule(kind Kind, cfg config.Config) baseModule {
	return baseModule{
		kind:    kind,
		emitter: event.NewEmitter(),
		cfg:     cfg.Clone(),
	}
}

func (b *baseModule) Kind() Kind { return b.kind }

func (b *baseModule) Name() string { return b.kind.String() }

func (b *baseModule) Events() *event.Emitter { return b.emitter }

func (b *baseModule) Next() Module {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.next
}

func (b *baseModule) Connect(next Module) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return fmt.Errorf("%w: cannot connect %s", ErrDestroyed, b.kind)
	}
	if !b.initialized {
		return fmt.Errorf("%w: cannot connect %s", ErrNotInitialized, b.kind)
	}
	b.next = next
	return nil
}

func (b *baseModule) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = nil
}

// checkProcessable validates the per-call preconditions shared by every
// module's Process implementation.
func (b *baseModule) checkProcessable(buf *media.AudioBuffer) error {
	if b.destroyed {
		return fmt.Errorf("%w: %s", ErrDestroyed, b.kind)
	}
	if !b.initialized {
		return fmt.Errorf("%w: %s", ErrNotInitialized, b.kind)
	}
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidInput)
	}
	return nil
}

// emitError reports a failure on the module's error event.
func (b *baseModule) emitError(err error) {
	b.emitter.Emit(event.Error, err.Error())
}

// markDestroyed flips the destroyed flag, returning false when the module was
// already destroyed. Callers emit the destroyed event exactly once.
func (b *baseModule) markDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return false
	}
	b.destroyed = true
	b.initialized = false
	b.next = nil
	return true
}

// processChain runs buf through the chain starting at head, following the
// Connect links. The walk enforces at-most-one concurrent Process per module
// because a single loop goroutine drives each chain.
func processChain(head Module, buf *media.AudioBuffer) (*media.AudioBuffer, error) {
	current := buf
	for m := head; m != nil; m = m.Next() {
		out, err := m.Process(current)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name(), err)
		}
		current = out
	}
	return current, nil
}
