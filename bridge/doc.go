// Package bridge is the host boundary of an embedded Luau-style engine.
//
// Every engine object the host can see lives in a process-wide arena and is
// addressed by a generation-tagged resource.Handle. Handles are owned by
// exactly one side at a time: functions that consume a handle say so, and a
// consumed or freed handle becomes inert rather than dangling.
//
// # Result Envelope
//
// Fallible operations return Result[T]. On failure Err holds a boundary
// string that the receiver releases with TakeString or FreeString. Faults
// raised while an operation runs are contained and reported through the
// same channel; they never unwind into the caller.
//
// # Values
//
//	Kind        Payload                Ownership
//	──────────────────────────────────────────────
//	Nil         none                   copied
//	Bool        Bool                   copied
//	Int/Number  Int/Number             copied
//	Vector      Vector                 copied
//	String..    Handle                 moved
//
// FromOwned boxes an engine value; ToOwned consumes the handle and returns
// the engine value. MultiValue handles carry argument and result lists.
//
// # Callbacks
//
// CreateFunction wraps a Callback. Each call receives a CallbackRequest with
// a context handle pinned to the calling thread and a MultiValue of
// arguments, and answers through Values or Error. YieldWith suspends the
// calling coroutine instead.
//
// # Engine Lifecycle
//
//  1. Create opens the selected standard libraries and returns a root handle.
//  2. LoadChunk, CallFunction and ResumeThread run code under the memory
//     limit and interrupt hook.
//  3. Destroy runs pending userdata destructors and invalidates every
//     handle of the instance.
//
// An instance is driven by one goroutine at a time. Separate instances are
// independent; passing a handle of one instance to another is an error.
package bridge
