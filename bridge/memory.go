package bridge

import (
	"runtime/metrics"
	"unsafe"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

const outOfMemory = "not enough memory"

// Sampling cadence, in executed instructions, while a limit is set. Every
// frameInterval instructions the running frame's locals are sized; every
// allocInterval instructions the process allocation counter decides
// whether the reachable data must be measured again.
const (
	frameInterval = 16
	allocInterval = 256
)

// Estimated sizes of engine objects, in bytes.
const (
	stringOverhead   = 16
	tableOverhead    = 56
	slotSize         = 32
	functionOverhead = 40
	upvalueSize      = 16
	userdataOverhead = 48
	threadOverhead   = 256

	// Strings at least this long are counted once however often they are
	// referenced.
	sharedStringLen = 64
)

const heapAllocsMetric = "/gc/heap/allocs:bytes"

// SetMemoryLimit caps the bytes an instance may account for. Zero removes
// the cap.
func SetMemoryLimit(h resource.Handle, limit uint64) Result[struct{}] {
	return guardVoid("set_memory_limit", func() error {
		e, err := engineOf(h)
		if err != nil {
			return err
		}
		e.limit = limit
		if limit != 0 {
			// Start from a fresh measurement of what the instance holds.
			_ = e.checkMemory(true)
		}
		Logger().Debug("memory limit set",
			zap.Uint64("engine", e.id),
			zap.Uint64("limit", limit),
			zap.Uint64("used", e.usedMemory()),
		)
		return nil
	})
}

// MemoryLimit returns the instance's cap, or 0 when unlimited.
func MemoryLimit(h resource.Handle) uint64 {
	e, err := engineOf(h)
	if err != nil {
		return 0
	}
	return e.limit
}

// UsedMemory returns the bytes currently accounted to the instance: the
// payloads pinned by live string and buffer handles plus allocations made
// by the running execution.
func UsedMemory(h resource.Handle) uint64 {
	e, err := engineOf(h)
	if err != nil {
		return 0
	}
	return e.usedMemory()
}

func (e *Engine) usedMemory() uint64 {
	n := e.live.Load() + e.transient + e.reachable
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// overLimit reports whether accounting n more bytes would exceed the cap.
func (e *Engine) overLimit(n int64) bool {
	if e.limit == 0 {
		return false
	}
	return e.usedMemory()+uint64(max(n, 0)) > e.limit
}

// charge accounts n bytes to the running execution, raising a script error
// when the cap is exceeded.
func (e *Engine) charge(L *lua.LState, n int) {
	if n <= 0 {
		return
	}
	if e.overLimit(int64(n)) {
		L.RaiseError(outOfMemory)
	}
	e.transient += int64(n)
}

// instrument wraps the builtins that can allocate large strings so their
// output is accounted.
func (e *Engine) instrument(L *lua.LState) {
	if s, ok := L.GetGlobal("string").(*lua.LTable); ok {
		e.wrapBuiltin(L, s, "rep", e.repPrecheck)
		for _, name := range []string{"format", "gsub", "char", "upper", "lower", "reverse"} {
			e.wrapBuiltin(L, s, name, nil)
		}
	}
	if t, ok := L.GetGlobal("table").(*lua.LTable); ok {
		e.wrapBuiltin(L, t, "concat", nil)
	}
}

// wrapBuiltin replaces lib[name] with a function that optionally checks its
// arguments first, runs the original and charges every string it returns.
func (e *Engine) wrapBuiltin(L *lua.LState, lib *lua.LTable, name string, pre func(L *lua.LState)) {
	orig, ok := lib.RawGetString(name).(*lua.LFunction)
	if !ok || !orig.IsG {
		return
	}
	lib.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
		if pre != nil {
			pre(L)
		}
		n := orig.GFunction(L)
		for i := 1; i <= n; i++ {
			if s, ok := L.Get(-i).(lua.LString); ok {
				e.charge(L, len(s))
			}
		}
		return n
	}))
}

// repPrecheck rejects string.rep calls whose result could not fit.
func (e *Engine) repPrecheck(L *lua.LState) {
	s := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || len(s) == 0 {
		return
	}
	if e.overLimit(int64(len(s)) * int64(n)) {
		L.RaiseError(outOfMemory)
	}
}

// heapAllocs reads the cumulative bytes allocated by the process.
func (e *Engine) heapAllocs() uint64 {
	if e.sample == nil {
		e.sample = []metrics.Sample{{Name: heapAllocsMetric}}
	}
	metrics.Read(e.sample)
	if e.sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return e.sample[0].Value.Uint64()
}

// measureStep is how many bytes the process may allocate before the
// reachable data is measured again.
func (e *Engine) measureStep() uint64 {
	return max(e.limit/16, 4096)
}

// sampleMemory runs on checkpoints while a limit is set. The running
// frame is sized cheaply; a full measurement happens when that frame alone
// would exceed the limit or when enough was allocated since the last one.
// An unchanged oversized frame forces one measurement only.
func (e *Engine) sampleMemory(ticks uint64) error {
	if ticks%frameInterval != 0 {
		return nil
	}
	frame := e.frameBytes(e.current())
	force := frame != e.forcedFrame && frame+e.live.Load()+e.transient > int64(e.limit)
	if force {
		e.forcedFrame = frame
	} else if ticks%allocInterval != 0 {
		return nil
	}
	return e.checkMemory(force)
}

// checkMemory measures the reachable data, together with extra values held
// by the host, and fails when the limit is exceeded. Without force the
// measurement is skipped while fewer than measureStep bytes were allocated
// since the previous one.
func (e *Engine) checkMemory(force bool, extra ...lua.LValue) error {
	if e.limit == 0 {
		return nil
	}
	allocs := e.heapAllocs()
	if !force && allocs-e.measuredAt < e.measureStep() {
		return nil
	}
	e.measuredAt = allocs
	e.reachable = max(e.measure(extra...)-e.baseline, 0)
	e.transient = 0
	if e.overLimit(0) {
		return errors.OutOfMemory(e.usedMemory(), e.limit)
	}
	return nil
}

// frameBytes sizes the locals of the running frame of L.
func (e *Engine) frameBytes(L *lua.LState) (n int64) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	dbg, ok := L.GetStack(0)
	if !ok {
		return 0
	}
	for i := 1; ; i++ {
		name, v := L.GetLocal(dbg, i)
		if name == "" {
			return n
		}
		switch v := v.(type) {
		case lua.LString:
			n += int64(len(v)) + stringOverhead
		case *lua.LTable:
			n += tableOverhead + int64(v.Len())*slotSize
		}
	}
}

// measure estimates the bytes reachable from the instance's roots. A walk
// that fails halfway keeps the previous estimate.
func (e *Engine) measure(extra ...lua.LValue) (n int64) {
	defer func() {
		if rcv := recover(); rcv != nil {
			Logger().Debug("memory walk aborted", zap.Uint64("engine", e.id), zap.Any("reason", rcv))
			n = e.reachable + e.baseline
		}
	}()
	m := &meter{
		seen:   make(map[any]struct{}),
		shared: make(map[*byte]struct{}),
	}
	m.add(e.main)
	m.add(e.main.Env)
	m.add(e.main.G.Global)
	m.add(e.main.G.Registry)
	m.add(e.globals)
	m.add(e.sandbox)
	m.add(e.named)
	for th := e.current(); th != nil; th = th.Parent {
		m.add(th)
	}
	for th, vals := range e.yields {
		m.add(th)
		for _, v := range vals {
			m.add(v)
		}
	}
	for th := range e.resumptions {
		m.add(th)
	}
	for _, v := range extra {
		m.add(v)
	}
	m.run()
	return m.bytes
}

// meter walks the object graph once, counting each object a single time.
type meter struct {
	seen   map[any]struct{}
	shared map[*byte]struct{}
	queue  []lua.LValue
	bytes  int64
}

func (m *meter) add(v lua.LValue) {
	switch v := v.(type) {
	case lua.LString:
		m.str(string(v))
	case *lua.LTable:
		if v != nil {
			m.push(v)
		}
	case *lua.LFunction:
		if v != nil {
			m.push(v)
		}
	case *lua.LUserData:
		if v != nil {
			m.push(v)
		}
	case *lua.LState:
		if v != nil {
			m.push(v)
		}
	}
}

func (m *meter) push(v lua.LValue) {
	if _, ok := m.seen[v]; ok {
		return
	}
	m.seen[v] = struct{}{}
	m.queue = append(m.queue, v)
}

func (m *meter) str(s string) {
	if len(s) >= sharedStringLen {
		p := unsafe.StringData(s)
		if _, ok := m.shared[p]; ok {
			return
		}
		m.shared[p] = struct{}{}
	}
	m.bytes += int64(len(s)) + stringOverhead
}

func (m *meter) run() {
	for len(m.queue) > 0 {
		v := m.queue[len(m.queue)-1]
		m.queue = m.queue[:len(m.queue)-1]
		switch v := v.(type) {
		case *lua.LTable:
			m.bytes += tableOverhead
			m.add(v.Metatable)
			v.ForEach(func(key, value lua.LValue) {
				m.bytes += slotSize
				m.add(key)
				m.add(value)
			})
		case *lua.LFunction:
			m.bytes += functionOverhead + int64(len(v.Upvalues))*upvalueSize
			m.add(v.Env)
			for _, uv := range v.Upvalues {
				if uv != nil {
					m.add(uv.Value())
				}
			}
		case *lua.LUserData:
			m.bytes += userdataOverhead
			m.add(v.Metatable)
			m.add(v.Env)
		case *lua.LState:
			m.bytes += threadOverhead
			m.add(v.Env)
			m.stack(v)
		}
	}
}

// stack adds the locals of every active frame of L.
func (m *meter) stack(L *lua.LState) {
	for level := 0; level < 256; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			return
		}
		for i := 1; ; i++ {
			name, v := L.GetLocal(dbg, i)
			if name == "" {
				break
			}
			m.add(v)
		}
	}
}
