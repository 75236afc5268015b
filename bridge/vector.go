package bridge

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// vector3 is the payload of a vector value.
type vector3 [3]float32

func (e *Engine) newVector(v [3]float32) *lua.LUserData {
	return &lua.LUserData{Value: vector3(v), Metatable: e.vectorMT}
}

func checkVector(L *lua.LState, n int) vector3 {
	if ud, ok := L.Get(n).(*lua.LUserData); ok {
		if v, ok := ud.Value.(vector3); ok {
			return v
		}
	}
	L.TypeError(n, lua.LTUserData)
	return vector3{}
}

// vectorOperand accepts a vector or a number broadcast to all components.
func vectorOperand(L *lua.LState, n int) vector3 {
	if num, ok := L.Get(n).(lua.LNumber); ok {
		f := float32(num)
		return vector3{f, f, f}
	}
	return checkVector(L, n)
}

func (v vector3) apply(fn func(float32) float32) vector3 {
	return vector3{fn(v[0]), fn(v[1]), fn(v[2])}
}

func (v vector3) zip(o vector3, fn func(a, b float32) float32) vector3 {
	return vector3{fn(v[0], o[0]), fn(v[1], o[1]), fn(v[2], o[2])}
}

func (v vector3) dot(o vector3) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v vector3) magnitude() float32 {
	return float32(math.Sqrt(float64(v.dot(v))))
}

func (e *Engine) vectorBinary(fn func(a, b float32) float32) lua.LGFunction {
	return func(L *lua.LState) int {
		a, b := vectorOperand(L, 1), vectorOperand(L, 2)
		L.Push(e.newVector(a.zip(b, fn)))
		return 1
	}
}

func (e *Engine) vectorUnary(fn func(float32) float32) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(e.newVector(checkVector(L, 1).apply(fn)))
		return 1
	}
}

func f32(fn func(float64) float64) func(float32) float32 {
	return func(x float32) float32 { return float32(fn(float64(x))) }
}

func (e *Engine) newVectorMeta(L *lua.LState) *lua.LTable {
	mt := L.NewTable()
	L.SetFuncs(mt, map[string]lua.LGFunction{
		"__add": e.vectorBinary(func(a, b float32) float32 { return a + b }),
		"__sub": e.vectorBinary(func(a, b float32) float32 { return a - b }),
		"__mul": e.vectorBinary(func(a, b float32) float32 { return a * b }),
		"__div": e.vectorBinary(func(a, b float32) float32 { return a / b }),
		"__unm": e.vectorUnary(func(a float32) float32 { return -a }),
		"__eq": func(L *lua.LState) int {
			L.Push(lua.LBool(checkVector(L, 1) == checkVector(L, 2)))
			return 1
		},
		"__index": func(L *lua.LState) int {
			v := checkVector(L, 1)
			switch L.CheckString(2) {
			case "x", "X":
				L.Push(lua.LNumber(v[0]))
			case "y", "Y":
				L.Push(lua.LNumber(v[1]))
			case "z", "Z":
				L.Push(lua.LNumber(v[2]))
			default:
				L.Push(lua.LNil)
			}
			return 1
		},
		"__newindex": func(L *lua.LState) int {
			L.RaiseError("attempt to modify a vector")
			return 0
		},
		"__tostring": func(L *lua.LState) int {
			v := checkVector(L, 1)
			L.Push(lua.LString(fmt.Sprintf("%g, %g, %g", v[0], v[1], v[2])))
			return 1
		},
	})
	mt.RawSetString("__type", lua.LString("vector"))
	mt.RawSetString("__metatable", lua.LString(lockedMetatable))
	return mt
}

func (e *Engine) newVectorLib(L *lua.LState) *lua.LTable {
	lib := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"create": func(L *lua.LState) int {
			x := float32(L.CheckNumber(1))
			y := float32(L.CheckNumber(2))
			z := float32(L.OptNumber(3, 0))
			L.Push(e.newVector([3]float32{x, y, z}))
			return 1
		},
		"magnitude": func(L *lua.LState) int {
			L.Push(lua.LNumber(checkVector(L, 1).magnitude()))
			return 1
		},
		"normalize": func(L *lua.LState) int {
			v := checkVector(L, 1)
			m := v.magnitude()
			L.Push(e.newVector(v.apply(func(x float32) float32 { return x / m })))
			return 1
		},
		"dot": func(L *lua.LState) int {
			L.Push(lua.LNumber(checkVector(L, 1).dot(checkVector(L, 2))))
			return 1
		},
		"cross": func(L *lua.LState) int {
			a, b := checkVector(L, 1), checkVector(L, 2)
			L.Push(e.newVector([3]float32{
				a[1]*b[2] - a[2]*b[1],
				a[2]*b[0] - a[0]*b[2],
				a[0]*b[1] - a[1]*b[0],
			}))
			return 1
		},
		"floor": e.vectorUnary(f32(math.Floor)),
		"ceil":  e.vectorUnary(f32(math.Ceil)),
		"abs":   e.vectorUnary(f32(math.Abs)),
		"sign": e.vectorUnary(func(x float32) float32 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return 0
		}),
		"min": e.vectorBinary(func(a, b float32) float32 { return min(a, b) }),
		"max": e.vectorBinary(func(a, b float32) float32 { return max(a, b) }),
		"clamp": func(L *lua.LState) int {
			v, lo, hi := checkVector(L, 1), checkVector(L, 2), checkVector(L, 3)
			out := v.zip(lo, func(a, b float32) float32 { return max(a, b) })
			L.Push(e.newVector(out.zip(hi, func(a, b float32) float32 { return min(a, b) })))
			return 1
		},
	})
	lib.RawSetString("zero", e.newVector([3]float32{}))
	lib.RawSetString("one", e.newVector([3]float32{1, 1, 1}))
	return lib
}
