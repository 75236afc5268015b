package bridge

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// CreateEngineString allocates an engine string holding a copy of data.
func CreateEngineString(h resource.Handle, data []byte) Result[resource.Handle] {
	return guard("create_string", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		if e.overLimit(int64(len(data))) {
			return 0, errors.OutOfMemory(e.usedMemory()+uint64(len(data)), e.limit)
		}
		return insert(e, TypeString, lua.LString(data)), nil
	})
}

// StringBytes returns a copy of an engine string's bytes.
func StringBytes(h resource.Handle) Result[[]byte] {
	return guard("string_bytes", func() ([]byte, error) {
		s, err := lookup(h, TypeString)
		if err != nil {
			return nil, err
		}
		return []byte(s.value.(lua.LString)), nil
	})
}

// StringLen returns the byte length of an engine string, or -1.
func StringLen(h resource.Handle) int {
	s, err := lookup(h, TypeString)
	if err != nil {
		return -1
	}
	return len(s.value.(lua.LString))
}
