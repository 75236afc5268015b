// Command luau runs Luau scripts on the runtime.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/vm"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

type app struct {
	cfg *Config
	log *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "luau",
		Short:        "Run Luau scripts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	bindFlags(root)
	root.AddCommand(a.runCommand(), a.checkCommand(), a.replCommand())
	return root
}

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file> [args...]",
		Short: "Run a script; extra arguments are passed as ...",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.run(ctx, cmd, args[0], args[1:])
		},
	}
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, file string, args []string) error {
	root, name, err := scriptRoot(a.cfg.Root, file)
	if err != nil {
		return err
	}
	fsys := os.DirFS(root)
	code, err := fs.ReadFile(fsys, strings.TrimPrefix(name, "/"))
	if err != nil {
		return err
	}

	s, err := newSession(ctx, a.cfg, a.log, fsys)
	if err != nil {
		return err
	}
	defer s.Close()

	vals := make([]vm.Value, len(args))
	for i, arg := range args {
		vals[i] = vm.GoString(arg)
	}
	out, err := s.run(name, string(code), vals...)
	if err != nil {
		return err
	}
	defer vm.CloseValues(out)
	if len(out) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), formatValues(out))
	}
	return nil
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <files...>",
		Short: "Compile scripts without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			s, err := newSession(cmd.Context(), a.cfg, a.log, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			failed := 0
			for _, file := range files {
				if err := check(s.lua, file); err != nil {
					failed++
					fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("FAIL"), file, err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("ok"), file)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to compile", failed, len(files))
			}
			return nil
		},
	}
}

func check(l *vm.Lua, file string) error {
	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	fn, err := l.LoadChunk(vm.ChunkOptions{Name: "@" + filepath.ToSlash(file), Code: string(code)})
	if err != nil {
		return err
	}
	return fn.Close()
}

func (a *app) replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := a.cfg.Root
			if root == "" {
				root = "."
			}
			s, err := newSession(cmd.Context(), a.cfg, a.log, os.DirFS(root))
			if err != nil {
				return err
			}
			defer s.Close()
			return runRepl(s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// scriptRoot returns the require root and the script's chunk name
// relative to it.
func scriptRoot(root, file string) (string, string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", "", err
	}
	if root == "" {
		root = filepath.Dir(abs)
	}
	if root, err = filepath.Abs(root); err != nil {
		return "", "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf("%s is outside root %s", file, root)
	}
	return root, "/" + rel, nil
}
