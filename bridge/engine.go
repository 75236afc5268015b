package bridge

import (
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"weak"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

var engineIDs atomic.Uint64

// Engine is one embedded engine instance. It is driven by a single
// goroutine at a time; calls into it may nest through callbacks.
type Engine struct {
	id     uint64
	handle resource.Handle
	main   *lua.LState
	libs   StdLib
	closed atomic.Bool

	// depth counts nested boundary executions; charges and a tripped
	// checkpoint are reset when it returns to zero.
	depth     int
	cp        *checkpoint
	interrupt Interrupt

	limit      uint64
	transient  int64
	reachable  int64
	baseline   int64
	measuredAt uint64
	// forcedFrame is the frame size that last forced a measurement.
	forcedFrame int64
	sample      []metrics.Sample
	live        atomic.Int64

	globals *lua.LTable
	sandbox *lua.LTable
	named   *lua.LTable
	// stringMeta is the string metatable replaced while sandboxed.
	stringMeta lua.LValue

	coCreate *lua.LFunction
	coResume *lua.LFunction

	vectorMT *lua.LTable
	bufferMT *lua.LTable

	yields map[*lua.LState][]lua.LValue

	// resumptions holds coroutines resumed by the host, running or parked
	// by the interrupt hook. helpers are idle parent states for them.
	resumptions map[*lua.LState]*resumption
	helpers     []*lua.LState

	// mu guards state touched from collector cleanups.
	mu       sync.Mutex
	errored  map[weak.Pointer[lua.LState]]struct{}
	dynamics map[*dynamicData]struct{}
}

// Create constructs an engine instance with the given standard libraries
// and returns its root handle.
func Create(libs StdLib) Result[resource.Handle] {
	return guard("create", func() (resource.Handle, error) {
		e, err := newEngine(libs)
		if err != nil {
			return 0, err
		}
		Logger().Debug("engine created",
			zap.Uint64("engine", e.id),
			zap.Stringer("stdlib", libs),
		)
		return e.handle, nil
	})
}

func newEngine(libs StdLib) (*Engine, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	e := &Engine{
		id:          engineIDs.Add(1),
		main:        L,
		libs:        libs,
		yields:      make(map[*lua.LState][]lua.LValue),
		resumptions: make(map[*lua.LState]*resumption),
		errored:     make(map[weak.Pointer[lua.LState]]struct{}),
		dynamics:    make(map[*dynamicData]struct{}),
	}
	e.cp = &checkpoint{engine: e}
	L.SetContext(e.cp)

	if err := e.openLibs(L); err != nil {
		L.Close()
		return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindRuntime, err, "open standard libraries")
	}
	e.globals = L.Env
	e.named = L.NewTable()
	e.baseline = e.measure()
	e.handle = arena.Insert(TypeEngine, &engineRef{engine: e})
	return e, nil
}

// Destroy closes the instance behind h and invalidates every handle
// obtained from it. Pending userdata destructors run once. Zero, stale
// and callback-context handles are ignored.
func Destroy(h resource.Handle) {
	ref, err := lookupEngine(h)
	if err != nil || ref.state != nil {
		return
	}
	e := ref.engine
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.abortParked()
	fired := e.fireDestructors()
	n := arena.RemoveWhere(func(_ uint32, v any) bool {
		switch v := v.(type) {
		case *slot:
			return v.engine == e
		case *engineRef:
			return v.engine == e
		}
		return false
	})
	e.main.Close()
	Logger().Debug("engine destroyed",
		zap.Uint64("engine", e.id),
		zap.Int("handles", n),
		zap.Int("destructors", fired),
	)
}

// current returns the thread that is executing right now.
func (e *Engine) current() *lua.LState {
	if th := e.main.G.CurrentThread; th != nil {
		return th
	}
	return e.main
}

// enter marks the start of a boundary execution and returns the state to
// run it on.
func (e *Engine) enter() *lua.LState {
	e.depth++
	return e.current()
}

func (e *Engine) exit() {
	e.depth--
	if e.depth == 0 {
		e.cp.reset()
		if e.limit != 0 {
			// Data dropped by the execution no longer counts.
			_ = e.checkMemory(e.overLimit(0))
		}
		e.transient = 0
	}
}

// contextHandle allocates a transient handle pinning L.
func (e *Engine) contextHandle(L *lua.LState) resource.Handle {
	return arena.Insert(TypeEngine, &engineRef{engine: e, state: L})
}

// pcall calls fn with args on L in protected mode and returns every result.
func (e *Engine) pcall(L *lua.LState, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(fn)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return nil, errors.Runtime(errors.PhaseCall, luaErrorMessage(err))
	}
	n := L.GetTop() - top
	out := make([]lua.LValue, n)
	for i := range n {
		out[i] = L.Get(top + 1 + i)
	}
	L.SetTop(top)
	return out, nil
}

// protect runs fn as an engine function so that errors raised by
// metamethods unwind into an error instead of past the boundary.
func (e *Engine) protect(fn func(L *lua.LState) int) ([]lua.LValue, error) {
	L := e.enter()
	defer e.exit()
	return e.pcall(L, L.NewFunction(fn))
}

// luaErrorMessage extracts the script-visible message from an engine error.
func luaErrorMessage(err error) string {
	if ae, ok := err.(*lua.ApiError); ok {
		if s := ae.Object.String(); s != "" {
			return s
		}
	}
	return err.Error()
}

// Globals returns a handle to the global environment seen by scripts.
func Globals(h resource.Handle) Result[resource.Handle] {
	return guard("globals", func() (resource.Handle, error) {
		ref, err := lookupEngine(h)
		if err != nil {
			return 0, err
		}
		return insert(ref.engine, TypeTable, ref.engine.main.Env), nil
	})
}

// SetGlobals replaces the global environment used by chunks loaded later.
func SetGlobals(h resource.Handle, table resource.Handle) Result[struct{}] {
	return guardVoid("set_globals", func() error {
		ref, err := lookupEngine(h)
		if err != nil {
			return err
		}
		s, err := lookup(table, TypeTable)
		if err != nil {
			return err
		}
		if err := sameEngine(ref.engine, s, "table"); err != nil {
			return err
		}
		t := s.value.(*lua.LTable)
		e := ref.engine
		e.main.Env = t
		if e.sandbox == nil {
			e.globals = t
			e.main.G.Global = t
		}
		return nil
	})
}

// NamedRegistryValue reads a host-private value stored under name.
func NamedRegistryValue(h resource.Handle, name string) Result[Value] {
	return guard("named_registry_value", func() (Value, error) {
		ref, err := lookupEngine(h)
		if err != nil {
			return Value{}, err
		}
		return FromOwned(ref.engine, ref.engine.named.RawGetString(name)), nil
	})
}

// SetNamedRegistryValue stores v under name, consuming v. A nil value
// removes the entry.
func SetNamedRegistryValue(h resource.Handle, name string, v Value) Result[struct{}] {
	return guardVoid("set_named_registry_value", func() error {
		ref, err := lookupEngine(h)
		if err != nil {
			return err
		}
		lv, err := ToOwned(ref.engine, v)
		if err != nil {
			return err
		}
		ref.engine.named.RawSetString(name, lv)
		return nil
	})
}

// CurrentThread returns the thread a context handle runs on. For the root
// handle this is whichever thread is executing, or the main thread.
func CurrentThread(ctx resource.Handle) Result[resource.Handle] {
	return guard("current_thread", func() (resource.Handle, error) {
		ref, err := lookupEngine(ctx)
		if err != nil {
			return 0, err
		}
		return insert(ref.engine, TypeThread, ref.thread()), nil
	})
}

// MainThread returns the instance's main thread.
func MainThread(h resource.Handle) Result[resource.Handle] {
	return guard("main_thread", func() (resource.Handle, error) {
		ref, err := lookupEngine(h)
		if err != nil {
			return 0, err
		}
		return insert(ref.engine, TypeThread, ref.engine.main), nil
	})
}

// RootHandle returns the root handle of the instance a context handle
// belongs to.
func RootHandle(ctx resource.Handle) Result[resource.Handle] {
	return guard("root_handle", func() (resource.Handle, error) {
		ref, err := lookupEngine(ctx)
		if err != nil {
			return 0, err
		}
		return ref.engine.handle, nil
	})
}

// EngineID returns the process-unique id of the instance behind h, or 0.
func EngineID(h resource.Handle) uint64 {
	ref, err := lookupEngine(h)
	if err != nil {
		return 0
	}
	return ref.engine.id
}

// engineOf resolves h to its engine.
func engineOf(h resource.Handle) (*Engine, error) {
	ref, err := lookupEngine(h)
	if err != nil {
		return nil, err
	}
	return ref.engine, nil
}
