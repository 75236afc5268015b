// Package luaruntime embeds the Luau scripting language in Go programs.
//
// The runtime is layered. Each layer only talks to the one below it:
//
//	luaruntime/
//	├── bridge/          Handle based boundary over the interpreter: result
//	│                    envelopes, tagged values, callbacks, userdata, require
//	├── vm/              Typed host API: Lua, Table, Function, Thread, UserData
//	├── vmutils/         Argument checking, typed userdata classes, value pools
//	│   └── require/     Navigator that resolves modules from an fs.FS
//	├── ext/wasmud/      WebAssembly modules exposed to scripts as userdata
//	├── resource/        Handle table shared by the bridge
//	├── errors/          Structured errors with phase and kind
//	└── cmd/luau/        Command line runner and REPL
//
// # Quick Start
//
//	l, err := vm.New(bridge.StdLibAllSafe)
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//
//	out, err := l.DoString("=main", "return 1 + 2")
//	if err != nil {
//		return err
//	}
//	defer vm.CloseValues(out)
//
// # Modules
//
// require is not installed by default. Scripts loaded from a directory tree
// get it through vmutils/require:
//
//	err := require.Install(l, os.DirFS("scripts"))
//	out, err := l.DoString("/main.luau", code)
//
// Relative paths ("./util", "../shared/log") resolve against the requiring
// chunk, and "@alias/..." paths resolve through the nearest .luaurc that
// declares the alias. Loaded modules are cached per instance.
//
// # Ownership
//
// Objects returned by the runtime hold an engine reference. Close them when
// done; forgotten objects are released once the garbage collector finds
// them unreachable. The Lua instance itself must always be closed.
//
// # Errors
//
// All errors are *errors.Error values carrying the phase that failed and a
// kind. Script errors raised inside host functions or by the interrupt hook
// reach callers as ordinary errors; panics in host code are recovered and
// reported the same way.
package luaruntime
