// Package resource provides the handle arena behind the engine boundary.
//
// Every object that crosses the boundary (engine instances, strings, tables,
// functions, threads, userdata, buffers, multi-value lists, error messages)
// lives in a slot of a UnifiedTable and is referenced by an opaque Handle.
//
// # Handles
//
// A Handle packs a slot index and a generation:
//
//	handle := table.Insert(typeID, value)
//	handle.Index()      // slot
//	handle.Generation() // bumped every time the slot is freed
//
// Freed slots are reused, but a handle to a previous occupant no longer
// resolves, so a stale or double-freed handle is inert instead of aliasing
// an unrelated object.
//
// # Type Safety
//
// Each slot records a type ID:
//
//	value, ok := table.GetTyped(h, TypeTable) // ok
//	value, ok := table.GetTyped(h, TypeThread) // !ok
//
// Typed provides a generic view restricted to one type ID.
//
// # Ownership
//
// Remove drops a slot and runs the value's Dropper. Take moves the value out
// without running it, which is how draining and destructive conversion hand
// ownership to the caller.
//
// # Observers
//
// Observers receive EventCreated, EventDropped and EventTaken for every
// slot transition. The engine uses this to account live boundary bytes.
package resource
