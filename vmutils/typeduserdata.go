package vmutils

import (
	"fmt"

	"github.com/wippyai/lua-runtime/vm"
)

// Method is a userdata method or metamethod. args excludes the receiver.
type Method[T any] func(self *T, ctx *vm.CallContext, args Args) ([]vm.Value, error)

// Class describes a userdata type backed by *T: its methods, computed
// fields and metamethods. The metatable is built once per instance and
// kept in the named registry.
type Class[T any] struct {
	name        string
	methods     map[string]Method[T]
	getters     map[string]func(*T) (vm.Value, error)
	setters     map[string]func(*T, vm.Value) error
	metamethods map[string]Method[T]
}

// NewClass returns an empty class whose values report name from typeof.
func NewClass[T any](name string) *Class[T] {
	return &Class[T]{
		name:        name,
		methods:     make(map[string]Method[T]),
		getters:     make(map[string]func(*T) (vm.Value, error)),
		setters:     make(map[string]func(*T, vm.Value) error),
		metamethods: make(map[string]Method[T]),
	}
}

// Name returns the type name.
func (c *Class[T]) Name() string { return c.name }

// Method adds a method callable as value:name(...).
func (c *Class[T]) Method(name string, fn Method[T]) *Class[T] {
	c.methods[name] = fn
	return c
}

// Getter adds a readable field.
func (c *Class[T]) Getter(name string, fn func(*T) (vm.Value, error)) *Class[T] {
	c.getters[name] = fn
	return c
}

// Setter adds a writable field.
func (c *Class[T]) Setter(name string, fn func(*T, vm.Value) error) *Class[T] {
	c.setters[name] = fn
	return c
}

// Metamethod adds a metamethod such as __tostring or __eq. __index and
// __newindex act as fallbacks after fields and methods.
func (c *Class[T]) Metamethod(name string, fn Method[T]) *Class[T] {
	c.metamethods[name] = fn
	return c
}

// Self extracts the receiver from the first argument.
func (c *Class[T]) Self(args Args) (*T, error) {
	v, err := args.At(0)
	if err != nil {
		return nil, err
	}
	self, ok := vm.DataAs[*T](v)
	if !ok {
		return nil, ArgError(0, c.name, kindOf(v))
	}
	return self, nil
}

// New creates a userdata value carrying data.
func (c *Class[T]) New(l *vm.Lua, data *T) (*vm.UserData, error) {
	mt, err := c.Metatable(l)
	if err != nil {
		return nil, err
	}
	defer mt.Close()
	return l.CreateUserData(data, mt)
}

func (c *Class[T]) registryKey() string { return "class:" + c.name }

// Metatable returns the class metatable for l, building it on first use.
func (c *Class[T]) Metatable(l *vm.Lua) (*vm.Table, error) {
	v, err := l.NamedRegistryValue(c.registryKey())
	if err != nil {
		return nil, err
	}
	if mt, ok := v.(*vm.Table); ok {
		return mt, nil
	}
	mt, err := c.build(l)
	if err != nil {
		return nil, err
	}
	if err := l.SetNamedRegistryValue(c.registryKey(), mt); err != nil {
		mt.Close()
		return nil, err
	}
	return mt, nil
}

func (c *Class[T]) wrap(l *vm.Lua, fn Method[T]) (*vm.Function, error) {
	return l.CreateFunction(func(ctx *vm.CallContext, args []vm.Value) ([]vm.Value, error) {
		self, err := c.Self(args)
		if err != nil {
			return nil, err
		}
		return fn(self, ctx, Args(args[1:]))
	})
}

func (c *Class[T]) build(l *vm.Lua) (*vm.Table, error) {
	mt, err := l.CreateTable()
	if err != nil {
		return nil, err
	}
	if err := c.fill(l, mt); err != nil {
		mt.Close()
		return nil, err
	}
	return mt, nil
}

func (c *Class[T]) fill(l *vm.Lua, mt *vm.Table) error {
	if err := mt.RawSet(vm.GoString("__type"), vm.GoString(c.name)); err != nil {
		return err
	}
	if err := mt.RawSet(vm.GoString("__metatable"), vm.GoString(c.name)); err != nil {
		return err
	}

	for name, fn := range c.metamethods {
		if name == "__index" || name == "__newindex" {
			continue
		}
		f, err := c.wrap(l, fn)
		if err != nil {
			return err
		}
		err = mt.RawSet(vm.GoString(name), f)
		f.Close()
		if err != nil {
			return err
		}
	}

	methods, err := l.CreateTable()
	if err != nil {
		return err
	}
	defer methods.Close()
	for name, fn := range c.methods {
		f, err := c.wrap(l, fn)
		if err != nil {
			return err
		}
		err = methods.RawSet(vm.GoString(name), f)
		f.Close()
		if err != nil {
			return err
		}
	}

	index, err := c.index(l, methods)
	if err != nil {
		return err
	}
	defer vm.CloseValue(index)
	if err := mt.RawSet(vm.GoString("__index"), index); err != nil {
		return err
	}

	if len(c.setters) == 0 && c.metamethods["__newindex"] == nil {
		return nil
	}
	newindex, err := l.CreateFunction(func(ctx *vm.CallContext, args []vm.Value) ([]vm.Value, error) {
		self, err := c.Self(args)
		if err != nil {
			return nil, err
		}
		key, err := Args(args).String(1)
		if err == nil {
			if set, ok := c.setters[key]; ok {
				value, err := Args(args).At(2)
				if err != nil {
					return nil, err
				}
				return nil, set(self, value)
			}
		}
		if fallback := c.metamethods["__newindex"]; fallback != nil {
			return fallback(self, ctx, Args(args[1:]))
		}
		return nil, fmt.Errorf("cannot assign %s.%s", c.name, key)
	})
	if err != nil {
		return err
	}
	defer newindex.Close()
	return mt.RawSet(vm.GoString("__newindex"), newindex)
}

// index returns the methods table when plain lookup suffices, otherwise a
// function consulting getters, methods and the __index fallback in order.
func (c *Class[T]) index(l *vm.Lua, methods *vm.Table) (vm.Value, error) {
	fallback := c.metamethods["__index"]
	if len(c.getters) == 0 && fallback == nil {
		return vm.CloneValue(methods)
	}
	keep, err := vm.CloneValue(methods)
	if err != nil {
		return nil, err
	}
	lookup := keep.(*vm.Table)
	return l.CreateFunction(func(ctx *vm.CallContext, args []vm.Value) ([]vm.Value, error) {
		self, err := c.Self(args)
		if err != nil {
			return nil, err
		}
		if key, err := Args(args).String(1); err == nil {
			if get, ok := c.getters[key]; ok {
				v, err := get(self)
				if err != nil {
					return nil, err
				}
				return []vm.Value{v}, nil
			}
			if _, ok := c.methods[key]; ok {
				m, err := lookup.RawGet(vm.GoString(key))
				if err != nil {
					return nil, err
				}
				return []vm.Value{m}, nil
			}
		}
		if fallback != nil {
			return fallback(self, ctx, Args(args[1:]))
		}
		return []vm.Value{vm.Nil{}}, nil
	})
}
