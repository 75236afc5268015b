package main

import (
	"context"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/ext/wasmud"
	"github.com/wippyai/lua-runtime/vm"
	"github.com/wippyai/lua-runtime/vmutils/require"
)

// session is a configured instance with require, limits and extensions
// installed.
type session struct {
	ctx      context.Context
	cfg      *Config
	log      *zap.Logger
	lua      *vm.Lua
	wasm     *wasmud.Runtime
	deadline time.Time
}

func newSession(ctx context.Context, cfg *Config, log *zap.Logger, root fs.FS) (*session, error) {
	libs, err := cfg.StdLib()
	if err != nil {
		return nil, err
	}
	l, err := vm.New(libs)
	if err != nil {
		return nil, err
	}
	s := &session{ctx: ctx, cfg: cfg, log: log, lua: l}
	if err := s.setup(root); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) setup(root fs.FS) error {
	l := s.lua
	if s.cfg.MemoryLimit > 0 {
		if err := l.SetMemoryLimit(s.cfg.MemoryLimit); err != nil {
			return err
		}
	}
	if err := l.SetInterrupt(s.interrupt); err != nil {
		return err
	}
	if s.cfg.Wasm {
		s.wasm = wasmud.NewRuntime(s.ctx, nil)
		if err := s.wasm.Open(l); err != nil {
			return err
		}
	}
	if root != nil {
		err := require.Install(l, root, require.WithLogger(s.log.Named("require")))
		if err != nil {
			return err
		}
	}
	if s.cfg.Sandbox {
		return l.Sandbox(true)
	}
	return nil
}

// interrupt stops scripts once the session context is done or the run
// deadline passed.
func (s *session) interrupt(*vm.Lua) (bridge.VmState, error) {
	if err := s.ctx.Err(); err != nil {
		return bridge.VmContinue, fmt.Errorf("interrupted: %w", err)
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		return bridge.VmContinue, fmt.Errorf("script timed out after %s", s.cfg.Timeout)
	}
	return bridge.VmYield, nil
}

// arm starts the timeout clock for the next run.
func (s *session) arm() {
	if s.cfg.Timeout > 0 {
		s.deadline = time.Now().Add(s.cfg.Timeout)
	}
}

// run executes code under chunk name and returns its results.
func (s *session) run(name, code string, args ...vm.Value) ([]vm.Value, error) {
	s.arm()
	start := time.Now()
	out, err := s.lua.DoString(name, code, args...)
	s.log.Debug("chunk finished",
		zap.String("chunk", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint64("memory", s.lua.UsedMemory()),
		zap.Error(err),
	)
	return out, err
}

// eval runs a line of interactive input. Expressions are tried first so
// that "1 + 1" prints its value.
func (s *session) eval(line string) ([]vm.Value, error) {
	if fn, err := s.lua.LoadChunk(vm.ChunkOptions{Name: require.ReplChunk, Code: "return " + line}); err == nil {
		defer fn.Close()
		s.arm()
		return fn.Call()
	}
	return s.run(require.ReplChunk, line)
}

func (s *session) Close() {
	s.lua.Close()
	if s.wasm != nil {
		s.wasm.Close()
	}
}

// formatValue renders a value the way the REPL prints results.
func formatValue(v vm.Value) string {
	switch v := v.(type) {
	case nil, vm.Nil:
		return "nil"
	case vm.Bool:
		return strconv.FormatBool(bool(v))
	case vm.Int:
		return strconv.FormatInt(int64(v), 10)
	case vm.Number:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case vm.Vector:
		return v.String()
	case vm.GoString:
		return strconv.Quote(string(v))
	case *vm.String:
		return strconv.Quote(v.String())
	case *vm.Buffer:
		return fmt.Sprintf("buffer(%d)", v.Len())
	case interface{ Pointer() uintptr }:
		return fmt.Sprintf("%s: %#x", v.(vm.Value).Kind(), v.Pointer())
	}
	return v.Kind().String()
}

func formatValues(vals []vm.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, "\t")
}
