package bridge

import (
	"encoding/binary"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// MaxBufferSize bounds a single buffer.
const MaxBufferSize = 1 << 30

// buffer is a fixed-size mutable byte array.
type buffer struct {
	data []byte
}

func (e *Engine) newBuffer(L *lua.LState, data []byte) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = &buffer{data: data}
	ud.Metatable = e.bufferMT
	return ud
}

func (e *Engine) newBufferMeta(L *lua.LState) *lua.LTable {
	mt := L.NewTable()
	mt.RawSetString("__type", lua.LString("buffer"))
	mt.RawSetString("__metatable", lua.LString(lockedMetatable))
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("buffer"))
		return 1
	}))
	return mt
}

func checkBuffer(L *lua.LState, n int) *buffer {
	ud := L.CheckUserData(n)
	b, ok := ud.Value.(*buffer)
	if !ok {
		L.ArgError(n, "buffer expected")
	}
	return b
}

// inRange reports whether n bytes at offset fit in length bytes.
func inRange(offset, n, length int) bool {
	return offset >= 0 && n >= 0 && offset <= length && n <= length-offset
}

// checkRange validates an access of size bytes at offset.
func checkRange(L *lua.LState, b *buffer, offset, size int) {
	if !inRange(offset, size, len(b.data)) {
		L.RaiseError("buffer access out of bounds")
	}
}

type bufferAccess struct {
	size  int
	read  func(p []byte) lua.LValue
	write func(p []byte, v lua.LNumber)
}

var bufferNumbers = map[string]bufferAccess{
	"i8": {1,
		func(p []byte) lua.LValue { return lua.LNumber(int8(p[0])) },
		func(p []byte, v lua.LNumber) { p[0] = byte(int8(int64(v))) }},
	"u8": {1,
		func(p []byte) lua.LValue { return lua.LNumber(p[0]) },
		func(p []byte, v lua.LNumber) { p[0] = byte(uint64(int64(v))) }},
	"i16": {2,
		func(p []byte) lua.LValue { return lua.LNumber(int16(binary.LittleEndian.Uint16(p))) },
		func(p []byte, v lua.LNumber) { binary.LittleEndian.PutUint16(p, uint16(int64(v))) }},
	"u16": {2,
		func(p []byte) lua.LValue { return lua.LNumber(binary.LittleEndian.Uint16(p)) },
		func(p []byte, v lua.LNumber) { binary.LittleEndian.PutUint16(p, uint16(int64(v))) }},
	"i32": {4,
		func(p []byte) lua.LValue { return lua.LNumber(int32(binary.LittleEndian.Uint32(p))) },
		func(p []byte, v lua.LNumber) { binary.LittleEndian.PutUint32(p, uint32(int64(v))) }},
	"u32": {4,
		func(p []byte) lua.LValue { return lua.LNumber(binary.LittleEndian.Uint32(p)) },
		func(p []byte, v lua.LNumber) { binary.LittleEndian.PutUint32(p, uint32(int64(v))) }},
	"f32": {4,
		func(p []byte) lua.LValue { return lua.LNumber(math.Float32frombits(binary.LittleEndian.Uint32(p))) },
		func(p []byte, v lua.LNumber) { binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v))) }},
	"f64": {8,
		func(p []byte) lua.LValue { return lua.LNumber(math.Float64frombits(binary.LittleEndian.Uint64(p))) },
		func(p []byte, v lua.LNumber) { binary.LittleEndian.PutUint64(p, math.Float64bits(float64(v))) }},
}

func (e *Engine) newBufferLib(L *lua.LState) *lua.LTable {
	lib := L.NewTable()
	funcs := map[string]lua.LGFunction{
		"create": func(L *lua.LState) int {
			size := L.CheckInt(1)
			if size < 0 || size > MaxBufferSize {
				L.ArgError(1, "invalid size")
			}
			e.charge(L, size)
			L.Push(e.newBuffer(L, make([]byte, size)))
			return 1
		},
		"fromstring": func(L *lua.LState) int {
			s := L.CheckString(1)
			e.charge(L, len(s))
			L.Push(e.newBuffer(L, []byte(s)))
			return 1
		},
		"tostring": func(L *lua.LState) int {
			b := checkBuffer(L, 1)
			e.charge(L, len(b.data))
			L.Push(lua.LString(b.data))
			return 1
		},
		"len": func(L *lua.LState) int {
			L.Push(lua.LNumber(len(checkBuffer(L, 1).data)))
			return 1
		},
		"readstring": func(L *lua.LState) int {
			b := checkBuffer(L, 1)
			off, n := L.CheckInt(2), L.CheckInt(3)
			checkRange(L, b, off, n)
			e.charge(L, n)
			L.Push(lua.LString(b.data[off : off+n]))
			return 1
		},
		"writestring": func(L *lua.LState) int {
			b := checkBuffer(L, 1)
			off, s := L.CheckInt(2), L.CheckString(3)
			n := L.OptInt(4, len(s))
			if n < 0 || n > len(s) {
				L.ArgError(4, "count out of range")
			}
			checkRange(L, b, off, n)
			copy(b.data[off:], s[:n])
			return 0
		},
		"copy": func(L *lua.LState) int {
			dst := checkBuffer(L, 1)
			dstOff := L.CheckInt(2)
			src := checkBuffer(L, 3)
			srcOff := L.OptInt(4, 0)
			n := L.OptInt(5, len(src.data)-srcOff)
			checkRange(L, src, srcOff, n)
			checkRange(L, dst, dstOff, n)
			copy(dst.data[dstOff:dstOff+n], src.data[srcOff:srcOff+n])
			return 0
		},
		"fill": func(L *lua.LState) int {
			b := checkBuffer(L, 1)
			off := L.CheckInt(2)
			v := byte(L.CheckInt(3))
			n := L.OptInt(4, len(b.data)-off)
			checkRange(L, b, off, n)
			for i := off; i < off+n; i++ {
				b.data[i] = v
			}
			return 0
		},
	}
	for name, acc := range bufferNumbers {
		funcs["read"+name] = func(L *lua.LState) int {
			b := checkBuffer(L, 1)
			off := L.CheckInt(2)
			checkRange(L, b, off, acc.size)
			L.Push(acc.read(b.data[off:]))
			return 1
		}
		funcs["write"+name] = func(L *lua.LState) int {
			b := checkBuffer(L, 1)
			off := L.CheckInt(2)
			v := L.CheckNumber(3)
			checkRange(L, b, off, acc.size)
			acc.write(b.data[off:], v)
			return 0
		}
	}
	return L.SetFuncs(lib, funcs)
}

// CreateBuffer allocates a buffer holding a copy of data.
func CreateBuffer(h resource.Handle, data []byte) Result[resource.Handle] {
	return guard("create_buffer", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		if len(data) > MaxBufferSize {
			return 0, errors.InvalidInput(errors.PhaseBoundary, "buffer too large")
		}
		if e.overLimit(int64(len(data))) {
			return 0, errors.OutOfMemory(e.usedMemory()+uint64(len(data)), e.limit)
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		return insert(e, TypeBuffer, e.newBuffer(e.main, buf)), nil
	})
}

func bufferOf(h resource.Handle) (*buffer, error) {
	s, err := lookup(h, TypeBuffer)
	if err != nil {
		return nil, err
	}
	return s.value.(*lua.LUserData).Value.(*buffer), nil
}

// BufferLen returns the size of a buffer, or -1 for an invalid handle.
func BufferLen(h resource.Handle) int {
	b, err := bufferOf(h)
	if err != nil {
		return -1
	}
	return len(b.data)
}

// BufferReadBytes copies n bytes starting at offset.
func BufferReadBytes(h resource.Handle, offset, n int) Result[[]byte] {
	return guard("buffer_read", func() ([]byte, error) {
		b, err := bufferOf(h)
		if err != nil {
			return nil, err
		}
		if !inRange(offset, n, len(b.data)) {
			return nil, errors.OutOfBounds(errors.PhaseBoundary, []string{"buffer"}, offset, len(b.data))
		}
		out := make([]byte, n)
		copy(out, b.data[offset:])
		return out, nil
	})
}

// BufferWriteBytes copies data into the buffer at offset.
func BufferWriteBytes(h resource.Handle, offset int, data []byte) Result[struct{}] {
	return guardVoid("buffer_write", func() error {
		b, err := bufferOf(h)
		if err != nil {
			return err
		}
		if !inRange(offset, len(data), len(b.data)) {
			return errors.OutOfBounds(errors.PhaseBoundary, []string{"buffer"}, offset, len(b.data))
		}
		copy(b.data[offset:], data)
		return nil
	})
}

// BufferBytes returns a copy of the whole buffer.
func BufferBytes(h resource.Handle) Result[[]byte] {
	return guard("buffer_bytes", func() ([]byte, error) {
		b, err := bufferOf(h)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b.data...), nil
	})
}
