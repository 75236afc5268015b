package vm

import (
	"runtime"
	"sync"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// object owns one bridge handle. The handle is released by Close or, if
// the owner forgets, by a cleanup once the wrapper becomes unreachable.
type object struct {
	mu      sync.Mutex
	lua     *Lua
	kind    bridge.Kind
	handle  resource.Handle
	cleanup runtime.Cleanup
}

// track attaches the release cleanup to the wrapper that embeds o.
func track[T any](wrapper *T, o *object) *T {
	o.cleanup = runtime.AddCleanup(wrapper, bridge.Free, o.handle)
	return wrapper
}

// borrow returns the live handle. The wrapper keeps ownership.
func (o *object) borrow() (resource.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle == 0 {
		return 0, errors.Closed(errors.PhaseBoundary, o.kind.String())
	}
	return o.handle, nil
}

// owned returns a fresh handle to the same engine object for the bridge to
// consume.
func (o *object) owned() (bridge.Value, error) {
	h, err := o.borrow()
	if err != nil {
		return bridge.Value{}, err
	}
	return bridge.Clone(bridge.Value{Kind: o.kind, Handle: h}).Unwrap()
}

// Kind reports the script type of the object.
func (o *object) Kind() bridge.Kind { return o.kind }

// Lua returns the instance the object belongs to.
func (o *object) Lua() *Lua { return o.lua }

// Close releases the handle. Closing twice is a no-op.
func (o *object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle == 0 {
		return nil
	}
	o.cleanup.Stop()
	bridge.Free(o.handle)
	o.handle = 0
	return nil
}

// IsClosed reports whether Close has been called.
func (o *object) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle == 0
}

// Pointer returns the identity of the engine object, or 0 for strings and
// closed objects.
func (o *object) Pointer() uintptr {
	h, err := o.borrow()
	if err != nil {
		return 0
	}
	return bridge.ToPointer(h)
}

// Equals reports raw equality with other. Strings compare by content,
// other objects by identity.
func (o *object) Equals(other Value) bool {
	b, ok := other.(interface{ base() *object })
	if !ok {
		return false
	}
	return o.equals(b.base())
}

func (o *object) equals(other *object) bool {
	if other == nil {
		return false
	}
	a, err := o.borrow()
	if err != nil {
		return false
	}
	b, err := other.borrow()
	if err != nil {
		return false
	}
	eq, err := bridge.Equals(
		bridge.Value{Kind: o.kind, Handle: a},
		bridge.Value{Kind: other.kind, Handle: b},
	).Unwrap()
	return err == nil && eq
}
