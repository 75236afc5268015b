package bridge

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// Type IDs of arena slots.
const (
	TypeEngine uint32 = iota + 1
	TypeMessage
	TypeMultiValue
	TypeString
	TypeTable
	TypeFunction
	TypeThread
	TypeUserData
	TypeBuffer
	TypeOther
)

// arena holds every boundary object of every engine instance.
var arena = newArena()

func newArena() *resource.UnifiedTable {
	t := resource.NewTable()
	t.Subscribe(liveBytes{})
	return t
}

// slot is the arena payload for an engine-native value.
type slot struct {
	engine *Engine
	value  lua.LValue
}

// engineRef is the arena payload for an engine handle. The root handle has a
// nil state and follows whatever thread is currently executing; callback
// context handles pin the calling thread.
type engineRef struct {
	engine *Engine
	state  *lua.LState
}

func (r *engineRef) thread() *lua.LState {
	if r.state != nil {
		return r.state
	}
	return r.engine.current()
}

// liveBytes keeps each engine's count of bytes pinned by live string and
// buffer handles.
type liveBytes struct{}

func (liveBytes) OnResourceEvent(e resource.Event) {
	s, ok := e.Value.(*slot)
	if !ok || s.engine == nil {
		return
	}
	n := int64(payloadSize(s.value))
	if n == 0 {
		return
	}
	switch e.Type {
	case resource.EventCreated:
		s.engine.live.Add(n)
	case resource.EventDropped, resource.EventTaken:
		s.engine.live.Add(-n)
	}
}

func payloadSize(v lua.LValue) int {
	switch v := v.(type) {
	case lua.LString:
		return len(v)
	case *lua.LUserData:
		if b, ok := v.Value.(*buffer); ok {
			return len(b.data)
		}
	}
	return 0
}

// typeForKind maps a value kind to its slot type.
func typeForKind(k Kind) uint32 {
	switch k {
	case KindString:
		return TypeString
	case KindTable:
		return TypeTable
	case KindFunction:
		return TypeFunction
	case KindThread:
		return TypeThread
	case KindUserData:
		return TypeUserData
	case KindBuffer:
		return TypeBuffer
	case KindOther:
		return TypeOther
	}
	return 0
}

var typeNames = map[uint32]string{
	TypeEngine:     "engine",
	TypeMessage:    "message",
	TypeMultiValue: "multivalue",
	TypeString:     "string",
	TypeTable:      "table",
	TypeFunction:   "function",
	TypeThread:     "thread",
	TypeUserData:   "userdata",
	TypeBuffer:     "buffer",
	TypeOther:      "other",
}

// insert boxes v into a fresh handle owned by e.
func insert(e *Engine, typeID uint32, v lua.LValue) resource.Handle {
	return arena.Insert(typeID, &slot{engine: e, value: v})
}

// lookup resolves a value handle of the given type.
func lookup(h resource.Handle, typeID uint32) (*slot, error) {
	name := typeNames[typeID]
	if h == 0 {
		return nil, errors.NilHandle(errors.PhaseBoundary, name)
	}
	v, ok := arena.GetTyped(h, typeID)
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseBoundary, name, uint64(h))
	}
	s := v.(*slot)
	if s.engine.closed.Load() {
		return nil, errors.Closed(errors.PhaseBoundary, "engine")
	}
	return s, nil
}

// lookupAny resolves a value handle of any engine-value type.
func lookupAny(h resource.Handle) (*slot, error) {
	if h == 0 {
		return nil, errors.NilHandle(errors.PhaseBoundary, "value")
	}
	v, ok := arena.Get(h)
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseBoundary, "value", uint64(h))
	}
	s, ok := v.(*slot)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseBoundary, nil, "value", "boundary object")
	}
	if s.engine.closed.Load() {
		return nil, errors.Closed(errors.PhaseBoundary, "engine")
	}
	return s, nil
}

// lookupEngine resolves an engine or callback-context handle.
func lookupEngine(h resource.Handle) (*engineRef, error) {
	if h == 0 {
		return nil, errors.NilHandle(errors.PhaseBoundary, "engine")
	}
	v, ok := arena.GetTyped(h, TypeEngine)
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseBoundary, "engine", uint64(h))
	}
	ref := v.(*engineRef)
	if ref.engine.closed.Load() {
		return nil, errors.Closed(errors.PhaseLifecycle, "engine")
	}
	return ref, nil
}

// sameEngine rejects a slot owned by another instance.
func sameEngine(e *Engine, s *slot, what string) error {
	if s.engine != e {
		return errors.CrossInstance(errors.PhaseBoundary, what)
	}
	return nil
}

// Free releases any value handle. Zero and stale handles are ignored.
func Free(h resource.Handle) {
	if h == 0 {
		return
	}
	if v, ok := arena.Get(h); ok {
		if _, isSlot := v.(*slot); isSlot {
			arena.Remove(h)
		}
	}
}

// LiveHandles reports how many arena slots are currently owned by the engine.
func LiveHandles(engine resource.Handle) int {
	ref, err := lookupEngine(engine)
	if err != nil {
		return 0
	}
	n := 0
	arena.Each(func(_ resource.Handle, _ uint32, v any) bool {
		if s, ok := v.(*slot); ok && s.engine == ref.engine {
			n++
		}
		return true
	})
	return n
}
