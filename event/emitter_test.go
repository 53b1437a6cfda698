package event

import (
	"testing"
)

func TestEmitter_OnAndEmit(t *testing.T) {
	e := NewEmitter()

	var got []int
	e.On("test", func(args ...interface{}) {
		got = append(got, 1)
	})
	e.On("test", func(args ...interface{}) {
		got = append(got, 2)
	})

	if !e.Emit("test") {
		t.Error("Emit() = false, want true when handlers exist")
	}

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("handlers ran as %v, want [1 2] (registration order)", got)
	}
}

func TestEmitter_EmitNoHandlers(t *testing.T) {
	e := NewEmitter()
	if e.Emit("missing") {
		t.Error("Emit() = true, want false when no handlers exist")
	}
}

func TestEmitter_EmitArgs(t *testing.T) {
	e := NewEmitter()

	var got interface{}
	e.On("test", func(args ...interface{}) {
		if len(args) == 1 {
			got = args[0]
		}
	})

	e.Emit("test", "payload")
	if got != "payload" {
		t.Errorf("handler received %v, want payload", got)
	}
}

func TestEmitter_Once(t *testing.T) {
	e := NewEmitter()

	count := 0
	e.Once("test", func(args ...interface{}) {
		count++
	})

	e.Emit("test")
	e.Emit("test")

	if count != 1 {
		t.Errorf("once handler ran %d times, want 1", count)
	}
	if e.ListenerCount("test") != 0 {
		t.Errorf("ListenerCount() = %d after once fired, want 0", e.ListenerCount("test"))
	}
}

func TestEmitter_Off(t *testing.T) {
	e := NewEmitter()

	count := 0
	sub := e.On("test", func(args ...interface{}) {
		count++
	})
	e.On("test", func(args ...interface{}) {
		count += 10
	})

	e.Off("test", sub)
	e.Emit("test")

	if count != 10 {
		t.Errorf("count = %d after removing one handler, want 10", count)
	}
}

func TestEmitter_OffAll(t *testing.T) {
	e := NewEmitter()

	count := 0
	e.On("test", func(args ...interface{}) { count++ })
	e.On("test", func(args ...interface{}) { count++ })

	e.Off("test", 0)
	e.Emit("test")

	if count != 0 {
		t.Errorf("count = %d after Off(name, 0), want 0", count)
	}
}

func TestEmitter_PanicIsolation(t *testing.T) {
	e := NewEmitter()

	ran := false
	e.On("test", func(args ...interface{}) {
		panic("handler failure")
	})
	e.On("test", func(args ...interface{}) {
		ran = true
	})

	// Must not panic the caller and must still run the second handler.
	if !e.Emit("test") {
		t.Error("Emit() = false, want true")
	}
	if !ran {
		t.Error("second handler did not run after first panicked")
	}
}

func TestEmitter_ReentrantEmit(t *testing.T) {
	e := NewEmitter()

	inner := 0
	e.On("inner", func(args ...interface{}) { inner++ })
	e.On("outer", func(args ...interface{}) {
		e.Emit("inner")
	})

	e.Emit("outer")
	if inner != 1 {
		t.Errorf("re-entrant emit ran inner %d times, want 1", inner)
	}
}

func TestEmitter_RemoveAllListeners(t *testing.T) {
	e := NewEmitter()
	e.On("a", func(args ...interface{}) {})
	e.On("b", func(args ...interface{}) {})

	e.RemoveAllListeners("a")
	if e.ListenerCount("a") != 0 {
		t.Error("handlers for a survived RemoveAllListeners(a)")
	}
	if e.ListenerCount("b") != 1 {
		t.Error("handlers for b removed by RemoveAllListeners(a)")
	}

	e.RemoveAllListeners("")
	if e.ListenerCount("b") != 0 {
		t.Error("handlers for b survived RemoveAllListeners(\"\")")
	}
}

func TestEmitter_NilHandler(t *testing.T) {
	e := NewEmitter()
	sub := e.On("test", nil)
	if sub != 0 {
		t.Errorf("On(nil) = %d, want 0", sub)
	}
	if e.Emit("test") {
		t.Error("Emit() = true after nil registration, want false")
	}
}
