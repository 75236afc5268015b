package vm

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// Lua is one engine instance. Close must be called to release it; objects
// obtained from the instance become unusable afterwards.
type Lua struct {
	handle resource.Handle
	closed atomic.Bool

	mu       sync.Mutex
	data     map[uint64]any
	nextData atomic.Uint64
}

// New creates an instance with the given standard libraries.
func New(libs bridge.StdLib) (*Lua, error) {
	h, err := bridge.Create(libs).Unwrap()
	if err != nil {
		return nil, err
	}
	return &Lua{handle: h, data: make(map[uint64]any)}, nil
}

// Handle returns the root bridge handle of the instance.
func (l *Lua) Handle() resource.Handle { return l.handle }

// Close destroys the instance. Pending userdata destructors run before it
// returns.
func (l *Lua) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	bridge.Destroy(l.handle)
	return nil
}

func (l *Lua) live() error {
	if l.closed.Load() {
		return errors.Closed(errors.PhaseLifecycle, "lua instance")
	}
	return nil
}

// SetMemoryLimit caps the memory the instance may account for. Zero
// removes the cap.
func (l *Lua) SetMemoryLimit(limit uint64) error {
	_, err := bridge.SetMemoryLimit(l.handle, limit).Unwrap()
	return err
}

// MemoryLimit returns the current cap, 0 when unlimited.
func (l *Lua) MemoryLimit() uint64 { return bridge.MemoryLimit(l.handle) }

// UsedMemory returns the bytes currently accounted to the instance.
func (l *Lua) UsedMemory() uint64 { return bridge.UsedMemory(l.handle) }

// Sandbox toggles sandbox mode.
func (l *Lua) Sandbox(enabled bool) error {
	_, err := bridge.Sandbox(l.handle, enabled).Unwrap()
	return err
}

// Globals returns the global table seen by scripts.
func (l *Lua) Globals() (*Table, error) {
	h, err := bridge.Globals(l.handle).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newTable(h), nil
}

// SetGlobals replaces the global table used by chunks loaded afterwards.
func (l *Lua) SetGlobals(t *Table) error {
	h, err := t.borrow()
	if err != nil {
		return err
	}
	_, err = bridge.SetGlobals(l.handle, h).Unwrap()
	return err
}

// SetGlobal assigns a global variable.
func (l *Lua) SetGlobal(name string, v Value) error {
	g, err := l.Globals()
	if err != nil {
		return err
	}
	defer g.Close()
	return g.Set(GoString(name), v)
}

// GetGlobal reads a global variable.
func (l *Lua) GetGlobal(name string) (Value, error) {
	g, err := l.Globals()
	if err != nil {
		return nil, err
	}
	defer g.Close()
	return g.Get(GoString(name))
}

// InterruptFunc is called periodically while scripts run. Returning an
// error aborts the running script with that message.
type InterruptFunc func(l *Lua) (bridge.VmState, error)

// SetInterrupt installs fn as the instance's interrupt hook.
func (l *Lua) SetInterrupt(fn InterruptFunc) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseLifecycle, "interrupt function is nil")
	}
	hook := bridge.InterruptFunc(func(req *bridge.InterruptRequest) {
		state, err := fn(l)
		if err != nil {
			req.Error = bridge.NewString(err.Error())
			return
		}
		req.State = state
	})
	_, err := bridge.SetInterrupt(l.handle, hook).Unwrap()
	return err
}

// RemoveInterrupt uninstalls the interrupt hook.
func (l *Lua) RemoveInterrupt() error {
	_, err := bridge.RemoveInterrupt(l.handle).Unwrap()
	return err
}

// CreateString allocates an engine string.
func (l *Lua) CreateString(s string) (*String, error) {
	return l.CreateStringBytes([]byte(s))
}

// CreateStringBytes allocates an engine string from raw bytes.
func (l *Lua) CreateStringBytes(b []byte) (*String, error) {
	h, err := bridge.CreateEngineString(l.handle, b).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newString(h), nil
}

// CreateTable allocates an empty table.
func (l *Lua) CreateTable() (*Table, error) {
	return l.CreateTableWithCapacity(0, 0)
}

// CreateTableWithCapacity allocates an empty table with size hints.
func (l *Lua) CreateTableWithCapacity(narr, nrec int) (*Table, error) {
	h, err := bridge.CreateTable(l.handle, narr, nrec).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newTable(h), nil
}

// CreateBuffer allocates a buffer holding a copy of data.
func (l *Lua) CreateBuffer(data []byte) (*Buffer, error) {
	h, err := bridge.CreateBuffer(l.handle, data).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newBuffer(h), nil
}

// ChunkOptions describes source code to compile.
type ChunkOptions struct {
	Name string
	Code string
	// Env, if set, becomes the chunk's global environment.
	Env *Table
}

// LoadChunk compiles a chunk into a function without running it.
func (l *Lua) LoadChunk(opts ChunkOptions) (*Function, error) {
	req := bridge.ChunkOptions{Name: opts.Name, Code: []byte(opts.Code)}
	if opts.Env != nil {
		h, err := opts.Env.borrow()
		if err != nil {
			return nil, err
		}
		req.Env = h
	}
	h, err := bridge.LoadChunk(l.handle, req).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newFunction(h), nil
}

// DoString compiles and runs code, returning its results.
func (l *Lua) DoString(name, code string, args ...Value) ([]Value, error) {
	fn, err := l.LoadChunk(ChunkOptions{Name: name, Code: code})
	if err != nil {
		return nil, err
	}
	defer fn.Close()
	return fn.Call(args...)
}

// MainThread returns the instance's main thread.
func (l *Lua) MainThread() (*Thread, error) {
	h, err := bridge.MainThread(l.handle).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newThread(h), nil
}

// CreateThread creates a coroutine running fn.
func (l *Lua) CreateThread(fn *Function) (*Thread, error) {
	h, err := fn.borrow()
	if err != nil {
		return nil, err
	}
	th, err := bridge.CreateThread(h).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newThread(th), nil
}

// NamedRegistryValue reads a host-private value stored under name.
func (l *Lua) NamedRegistryValue(name string) (Value, error) {
	v, err := bridge.NamedRegistryValue(l.handle, name).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.fromBridge(v), nil
}

// SetNamedRegistryValue stores v under name. Nil removes the entry.
func (l *Lua) SetNamedRegistryValue(name string, v Value) error {
	bv, err := l.toBridge(v)
	if err != nil {
		return err
	}
	_, err = bridge.SetNamedRegistryValue(l.handle, name, bv).Unwrap()
	return err
}
