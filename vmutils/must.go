// Package vmutils holds conveniences built on the vm package: argument
// checking, typed userdata classes and value pools.
package vmutils

// Must returns v or panics with err.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// MustOk panics with err if it is not nil.
func MustOk(err error) {
	if err != nil {
		panic(err)
	}
}
