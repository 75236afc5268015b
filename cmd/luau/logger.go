package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/ext/wasmud"
)

// newLogger builds a console logger on stderr and routes the runtime
// packages to it.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	bridge.SetLogger(log.Named("bridge"))
	wasmud.SetLogger(log.Named("wasm"))
	return log, nil
}
