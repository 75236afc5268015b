package vm

import (
	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/resource"
)

// String is an engine string. Its bytes are not necessarily valid UTF-8.
type String struct{ object }

func (l *Lua) newString(h resource.Handle) *String {
	s := &String{object: object{lua: l, kind: bridge.KindString, handle: h}}
	return track(s, &s.object)
}

// Bytes returns a copy of the string's bytes.
func (s *String) Bytes() ([]byte, error) {
	h, err := s.borrow()
	if err != nil {
		return nil, err
	}
	return bridge.StringBytes(h).Unwrap()
}

// String returns the contents, or an empty string when closed.
func (s *String) String() string {
	b, err := s.Bytes()
	if err != nil {
		return ""
	}
	return string(b)
}

// Len returns the byte length, or -1 when closed.
func (s *String) Len() int {
	h, err := s.borrow()
	if err != nil {
		return -1
	}
	return bridge.StringLen(h)
}
