package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/errors"
)

var validate = validator.New()

// Config is the resolved CLI configuration. Values come from flags, then
// LUAU_* environment variables, then an optional config file.
type Config struct {
	Libs        []string      `mapstructure:"libs" validate:"dive,required"`
	MemoryLimit uint64        `mapstructure:"memory_limit"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Sandbox     bool          `mapstructure:"sandbox"`
	Wasm        bool          `mapstructure:"wasm"`
	Root        string        `mapstructure:"root"`
	LogLevel    string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

func defaultConfig() Config {
	return Config{
		Libs:     []string{"all"},
		LogLevel: "warn",
	}
}

// StdLib combines the configured library names.
func (c *Config) StdLib() (bridge.StdLib, error) {
	var libs bridge.StdLib
	for _, name := range c.Libs {
		lib, ok := bridge.ParseStdLib(strings.TrimSpace(name))
		if !ok {
			return 0, errors.Config(fmt.Sprintf("unknown library %q", name), nil)
		}
		libs |= lib
	}
	return libs, nil
}

func bindFlags(cmd *cobra.Command) {
	d := defaultConfig()
	f := cmd.PersistentFlags()
	f.String("config", "", "config file (yaml, toml or json)")
	f.StringSlice("libs", d.Libs, "standard libraries to open (all, none, or names such as string,table)")
	f.Uint64("memory-limit", 0, "memory limit in bytes, 0 for none")
	f.Duration("timeout", 0, "abort scripts running longer than this, 0 for none")
	f.Bool("sandbox", false, "run scripts in sandbox mode")
	f.Bool("wasm", false, "expose the wasm library to scripts")
	f.String("root", "", "directory require resolves against (defaults to the script's directory)")
	f.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
}

// loadConfig merges flags, environment and config file into a validated
// Config.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	d := defaultConfig()
	v.SetDefault("libs", d.Libs)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("LUAU")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"libs":         "libs",
		"memory_limit": "memory-limit",
		"timeout":      "timeout",
		"sandbox":      "sandbox",
		"wasm":         "wasm",
		"root":         "root",
		"log_level":    "log-level",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Config("bind flag "+flag, err)
			}
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Config("read "+path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Config("decode configuration", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Config("invalid configuration", err)
	}
	if _, err := cfg.StdLib(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
