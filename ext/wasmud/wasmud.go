// Package wasmud exposes WebAssembly modules to scripts as userdata. A
// module instance lives as long as its script value; collecting the value
// or closing the instance closes the module.
//
//	local m = wasm.instantiate(bytes)
//	print(m:call("add", 1, 2))
package wasmud

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/vm"
	"github.com/wippyai/lua-runtime/vmutils"
)

// Config tunes the wazero runtime.
type Config struct {
	// MemoryLimitPages caps linear memory per module in 64KiB pages. 0
	// keeps the wazero default.
	MemoryLimitPages uint32
}

// Runtime compiles and instantiates modules for one or more instances.
type Runtime struct {
	ctx     context.Context
	runtime wazero.Runtime
	seq     atomic.Uint64
	class   *vmutils.Class[Module]
}

// NewRuntime creates a runtime. ctx bounds every module call.
func NewRuntime(ctx context.Context, cfg *Config) *Runtime {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := &Runtime{ctx: ctx, runtime: wazero.NewRuntimeWithConfig(ctx, rc)}
	r.class = r.moduleClass()
	return r
}

// Close closes the runtime and every module it instantiated.
func (r *Runtime) Close() error {
	return r.runtime.Close(context.WithoutCancel(r.ctx))
}

// Module is an instantiated WebAssembly module.
type Module struct {
	ctx    context.Context
	mod    api.Module
	closed atomic.Bool
}

// Close closes the module. It runs when the script value is collected.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	Logger().Debug("closing module", zap.String("name", m.mod.Name()))
	return m.mod.Close(context.WithoutCancel(m.ctx))
}

// Exports lists the exported function names in sorted order.
func (m *Module) Exports() []string {
	defs := m.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes an exported function with numeric arguments.
func (m *Module) Call(name string, args ...float64) ([]float64, error) {
	if m.closed.Load() {
		return nil, errors.Closed(errors.PhaseCallback, "module")
	}
	fn := m.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseCallback, "exported function", name)
	}
	def := fn.Definition()
	params := def.ParamTypes()
	if len(args) != len(params) {
		return nil, errors.InvalidInput(errors.PhaseCallback,
			fmt.Sprintf("%s expects %d arguments, got %d", name, len(params), len(args)))
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = encode(params[i], a)
	}
	out, err := fn.Call(m.ctx, raw...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCallback, errors.KindRuntime, err, "call "+name)
	}
	results := def.ResultTypes()
	vals := make([]float64, len(out))
	for i, v := range out {
		vals[i] = decode(results[i], v)
	}
	return vals, nil
}

// Memory returns the module's exported memory, or nil.
func (m *Module) Memory() api.Memory { return m.mod.Memory() }

func (m *Module) memory() (api.Memory, error) {
	if m.closed.Load() {
		return nil, errors.Closed(errors.PhaseCallback, "module")
	}
	mem := m.mod.Memory()
	if mem == nil {
		return nil, errors.Unsupported(errors.PhaseCallback, "module exports no memory")
	}
	return mem, nil
}

// memoryRange validates a linear memory range. Offsets and lengths must fit
// the 32-bit address space and the range must lie inside the memory.
func memoryRange(mem api.Memory, off, n int64) (uint32, uint32, error) {
	size := int64(mem.Size())
	if off < 0 || off > math.MaxUint32 || off > size {
		return 0, 0, errors.OutOfBounds(errors.PhaseCallback, []string{"memory"}, int(off), int(size))
	}
	if n < 0 || n > math.MaxUint32 || n > size-off {
		return 0, 0, errors.OutOfBounds(errors.PhaseCallback, []string{"memory"}, int(off), int(size))
	}
	return uint32(off), uint32(n), nil
}

// Read copies n bytes of linear memory starting at off.
func (m *Module) Read(off, n int64) ([]byte, error) {
	mem, err := m.memory()
	if err != nil {
		return nil, err
	}
	o, l, err := memoryRange(mem, off, n)
	if err != nil {
		return nil, err
	}
	data, ok := mem.Read(o, l)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCallback, []string{"memory"}, int(off+n), int(mem.Size()))
	}
	return slices.Clone(data), nil
}

// Write copies data into linear memory at off.
func (m *Module) Write(off int64, data []byte) error {
	mem, err := m.memory()
	if err != nil {
		return err
	}
	o, _, err := memoryRange(mem, off, int64(len(data)))
	if err != nil {
		return err
	}
	if !mem.Write(o, data) {
		return errors.OutOfBounds(errors.PhaseCallback, []string{"memory"}, int(off)+len(data), int(mem.Size()))
	}
	return nil
}

func encode(t api.ValueType, v float64) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v))
	case api.ValueTypeI64:
		return api.EncodeI64(int64(v))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v))
	}
	return api.EncodeF64(v)
}

func decode(t api.ValueType, v uint64) float64 {
	switch t {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return float64(int64(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	}
	return math.Float64frombits(v)
}

// Instantiate compiles code and wraps the instance as userdata.
func (r *Runtime) Instantiate(l *vm.Lua, code []byte) (*vm.UserData, error) {
	compiled, err := r.runtime.CompileModule(r.ctx, code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile module")
	}
	name := fmt.Sprintf("module-%d", r.seq.Add(1))
	mod, err := r.runtime.InstantiateModule(r.ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindRuntime, err, "instantiate module")
	}
	Logger().Debug("instantiated module", zap.String("name", name))
	ud, err := r.class.New(l, &Module{ctx: r.ctx, mod: mod})
	if err != nil {
		mod.Close(r.ctx)
		return nil, err
	}
	return ud, nil
}

// Open installs the global wasm table into l.
func (r *Runtime) Open(l *vm.Lua) error {
	lib, err := l.CreateTable()
	if err != nil {
		return err
	}
	defer lib.Close()
	instantiate, err := l.CreateFunction(func(_ *vm.CallContext, raw []vm.Value) ([]vm.Value, error) {
		code, err := bytesArg(vmutils.Args(raw), 0)
		if err != nil {
			return nil, err
		}
		ud, err := r.Instantiate(l, code)
		if err != nil {
			return nil, err
		}
		return []vm.Value{ud}, nil
	})
	if err != nil {
		return err
	}
	defer instantiate.Close()
	if err := lib.Set(vm.GoString("instantiate"), instantiate); err != nil {
		return err
	}
	return l.SetGlobal("wasm", lib)
}

// bytesArg accepts a string or a buffer.
func bytesArg(args vmutils.Args, i int) ([]byte, error) {
	if b, err := args.Buffer(i); err == nil {
		return b.Bytes()
	}
	s, err := args.String(i)
	if err != nil {
		got := "nil"
		if v := args.Opt(i); v != nil {
			got = v.Kind().String()
		}
		return nil, vmutils.ArgError(i, "string or buffer", got)
	}
	return []byte(s), nil
}

func (r *Runtime) moduleClass() *vmutils.Class[Module] {
	return vmutils.NewClass[Module]("WasmModule").
		Method("call", func(m *Module, _ *vm.CallContext, args vmutils.Args) ([]vm.Value, error) {
			name, err := args.String(0)
			if err != nil {
				return nil, err
			}
			nums := make([]float64, 0, len(args)-1)
			for i := 1; i < len(args); i++ {
				n, err := args.Number(i)
				if err != nil {
					return nil, err
				}
				nums = append(nums, n)
			}
			out, err := m.Call(name, nums...)
			if err != nil {
				return nil, err
			}
			vals := make([]vm.Value, len(out))
			for i, v := range out {
				vals[i] = vm.Number(v)
			}
			return vals, nil
		}).
		Method("exports", func(m *Module, ctx *vm.CallContext, _ vmutils.Args) ([]vm.Value, error) {
			t, err := ctx.Lua().CreateTable()
			if err != nil {
				return nil, err
			}
			for _, name := range m.Exports() {
				if err := t.Push(vm.GoString(name)); err != nil {
					t.Close()
					return nil, err
				}
			}
			return []vm.Value{t}, nil
		}).
		Method("read", func(m *Module, ctx *vm.CallContext, args vmutils.Args) ([]vm.Value, error) {
			off, err := args.Int(0)
			if err != nil {
				return nil, err
			}
			n, err := args.Int(1)
			if err != nil {
				return nil, err
			}
			data, err := m.Read(off, n)
			if err != nil {
				return nil, err
			}
			buf, err := ctx.Lua().CreateBuffer(data)
			if err != nil {
				return nil, err
			}
			return []vm.Value{buf}, nil
		}).
		Method("write", func(m *Module, _ *vm.CallContext, args vmutils.Args) ([]vm.Value, error) {
			off, err := args.Int(0)
			if err != nil {
				return nil, err
			}
			data, err := bytesArg(args, 1)
			if err != nil {
				return nil, err
			}
			return nil, m.Write(off, data)
		}).
		Method("close", func(m *Module, _ *vm.CallContext, _ vmutils.Args) ([]vm.Value, error) {
			return nil, m.Close()
		}).
		Metamethod("__tostring", func(m *Module, _ *vm.CallContext, _ vmutils.Args) ([]vm.Value, error) {
			return []vm.Value{vm.GoString("WasmModule(" + m.mod.Name() + ")")}, nil
		})
}
