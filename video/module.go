package video

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// Kind identifies a video module variant. The set is closed; new variants are
// added through Register rather than string-keyed branching.
type Kind int

const (
	// KindLowLight is the adaptive low-light compensation module.
	KindLowLight Kind = iota
	// KindColorCorrection is the brightness/contrast/saturation/gamma module.
	KindColorCorrection
	// KindBackgroundBlur is the frame blur module.
	KindBackgroundBlur
)

// String returns the module's configuration key.
func (k Kind) String() string {
	switch k {
	case KindLowLight:
		return config.KeyLowLight
	case KindColorCorrection:
		return config.KeyColorCorrection
	case KindBackgroundBlur:
		return config.KeyBackgroundBlur
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// InvokeOrder is the fixed per-frame invocation order. Low-light compensation
// runs before color correction so corrections see the brightened frame, and
// blur always runs last.
var InvokeOrder = []Kind{KindLowLight, KindColorCorrection, KindBackgroundBlur}

// Stats is an immutable snapshot of a component's operating parameters and
// metrics. Implementations return a fresh copy on every call.
type Stats map[string]interface{}

// Clone returns an independent copy of the snapshot.
func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Module is the unit-of-work contract every video enhancement module
// implements. Process transforms one frame's pixel values without changing
// its dimensions; the pipeline invokes enabled modules sequentially, so no
// module holds a reference to another.
type Module interface {
	// Kind returns the module variant.
	Kind() Kind

	// Name returns the module's configuration key.
	Name() string

	// Initialize allocates processing resources. Failure leaves the module
	// unusable and uninitialized; retrying is safe.
	Initialize() error

	// Process transforms one frame, returning a frame of the same dimensions.
	Process(frame *media.VideoFrame) (*media.VideoFrame, error)

	// UpdateConfig shallow-merges new parameters into the live config.
	UpdateConfig(cfg config.Config) error

	// Stats returns a snapshot copy of current parameters and metrics.
	Stats() Stats

	// Destroy releases resources. Idempotent.
	Destroy() error

	// Events returns the module's event channel.
	Events() *event.Emitter
}

// Factory constructs a module from its sub-config (the tree under the
// module's key in the video namespace).
type Factory func(cfg config.Config) Module

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Factory)
)

// Register installs the factory for a module kind. Built-in kinds register
// themselves at package init.
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"kind":     kind.String(),
	}).Debug("Video module factory registered")
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
	Register(KindLowLight, func(cfg config.Config) Module { return NewLowLight(cfg) })
	Register(KindColorCorrection, func(cfg config.Config) Module { return NewColorCorrection(cfg) })
	Register(KindBackgroundBlur, func(cfg config.Config) Module { return NewBackgroundBlur(cfg) })
}

// baseModule carries the state shared by every module implementation.
type baseModule struct {
	kind        Kind
	emitter     *event.Emitter
	mu          sync.RWMutex
	cfg         config.Config
	initialized bool
	destroyed   bool
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

// checkProcessable validates the per-call preconditions shared by every
// module's Process implementation.
func (b *baseModule) checkProcessable(frame *media.VideoFrame) error {
	if b.destroyed {
		return fmt.Errorf("%w: %s", ErrDestroyed, b.kind)
	}
	if !b.initialized {
		return fmt.Errorf("%w: %s", ErrNotInitialized, b.kind)
	}
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidInput)
	}
	if err := frame.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
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
	return true
}

// clampByte bounds a float channel value to the valid byte range.
func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// luma returns the perceptual luminance of an RGB triple in [0, 255].
func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}
