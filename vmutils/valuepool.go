package vmutils

import (
	"fmt"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/vm"
)

// ValuePool hands out clones of one value and closes them all together.
type ValuePool struct {
	value  vm.Value
	clones []vm.Value
}

// NewValuePool takes ownership of value.
func NewValuePool(value vm.Value) *ValuePool {
	return &ValuePool{value: value}
}

// Value returns a new clone of the pooled value. The clone is owned by the
// pool.
func (p *ValuePool) Value() (vm.Value, error) {
	if p.value == nil {
		return nil, errors.Closed(errors.PhaseLifecycle, "value pool")
	}
	c, err := vm.CloneValue(p.value)
	if err != nil {
		return nil, err
	}
	p.clones = append(p.clones, c)
	return c, nil
}

// Len reports how many clones are outstanding.
func (p *ValuePool) Len() int { return len(p.clones) }

// Close releases the pooled value and every clone. Every value is closed
// even when one fails; the first failure is returned.
func (p *ValuePool) Close() error {
	var first error
	failed := 0
	for _, c := range append(p.clones, p.value) {
		if c, ok := c.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				failed++
				if first == nil {
					first = err
				}
			}
		}
	}
	p.clones, p.value = nil, nil
	if first != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindRuntime, first, fmt.Sprintf("close %d pooled values", failed))
	}
	return nil
}
