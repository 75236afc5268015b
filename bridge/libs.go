package bridge

import (
	"math/bits"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

func checkU32(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func pushU32(L *lua.LState, v uint32) int {
	L.Push(lua.LNumber(v))
	return 1
}

func foldU32(init uint32, op func(a, b uint32) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		acc := init
		for i := 1; i <= L.GetTop(); i++ {
			acc = op(acc, checkU32(L, i))
		}
		return pushU32(L, acc)
	}
}

// fieldArgs reads the field and width arguments of extract and replace.
func fieldArgs(L *lua.LState, n int) (int, int) {
	field := L.CheckInt(n)
	width := L.OptInt(n+1, 1)
	if field < 0 || width <= 0 || field+width > 32 {
		L.RaiseError("trying to access non-existent bits")
	}
	return field, width
}

func mask(width int) uint32 {
	return uint32((uint64(1) << width) - 1)
}

var bit32Funcs = map[string]lua.LGFunction{
	"band": foldU32(^uint32(0), func(a, b uint32) uint32 { return a & b }),
	"bor":  foldU32(0, func(a, b uint32) uint32 { return a | b }),
	"bxor": foldU32(0, func(a, b uint32) uint32 { return a ^ b }),
	"btest": func(L *lua.LState) int {
		acc := ^uint32(0)
		for i := 1; i <= L.GetTop(); i++ {
			acc &= checkU32(L, i)
		}
		L.Push(lua.LBool(acc != 0))
		return 1
	},
	"bnot": func(L *lua.LState) int {
		return pushU32(L, ^checkU32(L, 1))
	},
	"lshift": func(L *lua.LState) int {
		x, n := checkU32(L, 1), L.CheckInt(2)
		switch {
		case n <= -32 || n >= 32:
			return pushU32(L, 0)
		case n < 0:
			return pushU32(L, x>>uint(-n))
		}
		return pushU32(L, x<<uint(n))
	},
	"rshift": func(L *lua.LState) int {
		x, n := checkU32(L, 1), L.CheckInt(2)
		switch {
		case n <= -32 || n >= 32:
			return pushU32(L, 0)
		case n < 0:
			return pushU32(L, x<<uint(-n))
		}
		return pushU32(L, x>>uint(n))
	},
	"arshift": func(L *lua.LState) int {
		x, n := int32(checkU32(L, 1)), L.CheckInt(2)
		switch {
		case n >= 32:
			n = 31
		case n < 0:
			if n <= -32 {
				return pushU32(L, 0)
			}
			return pushU32(L, uint32(x)<<uint(-n))
		}
		return pushU32(L, uint32(x>>uint(n)))
	},
	"lrotate": func(L *lua.LState) int {
		return pushU32(L, bits.RotateLeft32(checkU32(L, 1), L.CheckInt(2)))
	},
	"rrotate": func(L *lua.LState) int {
		return pushU32(L, bits.RotateLeft32(checkU32(L, 1), -L.CheckInt(2)))
	},
	"extract": func(L *lua.LState) int {
		x := checkU32(L, 1)
		field, width := fieldArgs(L, 2)
		return pushU32(L, (x>>uint(field))&mask(width))
	},
	"replace": func(L *lua.LState) int {
		x, v := checkU32(L, 1), checkU32(L, 2)
		field, width := fieldArgs(L, 3)
		m := mask(width)
		return pushU32(L, (x&^(m<<uint(field)))|((v&m)<<uint(field)))
	},
	"countlz": func(L *lua.LState) int {
		return pushU32(L, uint32(bits.LeadingZeros32(checkU32(L, 1))))
	},
	"countrz": func(L *lua.LState) int {
		return pushU32(L, uint32(bits.TrailingZeros32(checkU32(L, 1))))
	},
	"byteswap": func(L *lua.LState) int {
		return pushU32(L, bits.ReverseBytes32(checkU32(L, 1)))
	},
}

const utf8CharPattern = "[\x00-\x7F\xC2-\xFD][\x80-\xBF]*"

// relativeIndex converts a possibly negative 1-based index into a 0-based
// byte offset.
func relativeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i - 1
}

func (e *Engine) openUTF8(L *lua.LState) {
	lib := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"char": func(L *lua.LState) int {
			var buf []byte
			for i := 1; i <= L.GetTop(); i++ {
				r := L.CheckInt(i)
				if r < 0 || r > utf8.MaxRune {
					L.ArgError(i, "value out of range")
				}
				buf = utf8.AppendRune(buf, rune(r))
			}
			e.charge(L, len(buf))
			L.Push(lua.LString(buf))
			return 1
		},
		"codepoint": func(L *lua.LState) int {
			s := L.CheckString(1)
			i := L.OptInt(2, 1)
			j := L.OptInt(3, i)
			start, end := relativeIndex(i, len(s)), relativeIndex(j, len(s))
			if start < 0 || end >= len(s) {
				if start > end {
					return 0
				}
				L.RaiseError("out of range")
			}
			n := 0
			for pos := start; pos <= end; {
				r, size := utf8.DecodeRuneInString(s[pos:])
				if r == utf8.RuneError && size <= 1 {
					L.RaiseError("invalid UTF-8 code")
				}
				L.Push(lua.LNumber(r))
				pos += size
				n++
			}
			return n
		},
		"len": func(L *lua.LState) int {
			s := L.CheckString(1)
			i := relativeIndex(L.OptInt(2, 1), len(s))
			j := relativeIndex(L.OptInt(3, -1), len(s))
			if i < 0 || i > len(s) {
				L.ArgError(2, "initial position out of string")
			}
			n := 0
			for pos := i; pos <= j && pos < len(s); {
				r, size := utf8.DecodeRuneInString(s[pos:])
				if r == utf8.RuneError && size <= 1 {
					L.Push(lua.LNil)
					L.Push(lua.LNumber(pos + 1))
					return 2
				}
				pos += size
				n++
			}
			L.Push(lua.LNumber(n))
			return 1
		},
		"offset": func(L *lua.LState) int {
			s := L.CheckString(1)
			n := L.CheckInt(2)
			def := 1
			if n < 0 {
				def = len(s) + 1
			}
			pos := relativeIndex(L.OptInt(3, def), len(s))
			if pos < 0 || pos > len(s) {
				L.ArgError(3, "position out of range")
			}
			cont := func(p int) bool { return p < len(s) && s[p]&0xC0 == 0x80 }
			if n == 0 {
				for pos > 0 && cont(pos) {
					pos--
				}
				L.Push(lua.LNumber(pos + 1))
				return 1
			}
			if cont(pos) {
				L.RaiseError("initial position is a continuation byte")
			}
			if n < 0 {
				for ; n < 0 && pos > 0; n++ {
					pos--
					for pos > 0 && cont(pos) {
						pos--
					}
				}
			} else {
				for n--; n > 0 && pos < len(s); n-- {
					pos++
					for cont(pos) {
						pos++
					}
				}
			}
			if n != 0 {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LNumber(pos + 1))
			return 1
		},
		"codes": func(L *lua.LState) int {
			s := L.CheckString(1)
			L.Push(L.NewFunction(func(L *lua.LState) int {
				pos := int(L.CheckNumber(2))
				if pos > 0 {
					_, size := utf8.DecodeRuneInString(s[pos-1:])
					pos += size
				} else {
					pos = 1
				}
				if pos > len(s) {
					return 0
				}
				r, size := utf8.DecodeRuneInString(s[pos-1:])
				if r == utf8.RuneError && size <= 1 {
					L.RaiseError("invalid UTF-8 code")
				}
				L.Push(lua.LNumber(pos))
				L.Push(lua.LNumber(r))
				return 2
			}))
			L.Push(lua.LString(s))
			L.Push(lua.LNumber(0))
			return 3
		},
	})
	lib.RawSetString("charpattern", lua.LString(utf8CharPattern))
	L.SetGlobal("utf8", lib)
}
