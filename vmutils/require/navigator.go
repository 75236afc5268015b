// Package require resolves require paths against an fs.FS laid out like a
// Luau project: modules are name.luau, name.lua or a directory with an
// init file, and .luaurc files declare aliases.
package require

import (
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/vm"
)

var (
	suffixes     = []string{".luau", ".lua"}
	initSuffixes = []string{"/init.luau", "/init.lua"}
)

// ReplChunk is the chunk name of interactively entered code. It resolves
// relative requires from the root of the file system.
const ReplChunk = "=repl"

// Option configures a Navigator.
type Option func(*Navigator)

// WithCachePrefix namespaces cache keys, for requirers sharing a cache
// over different file systems.
func WithCachePrefix(prefix string) Option {
	return func(n *Navigator) { n.prefix = prefix }
}

// WithEnvironment loads modules with env as their global table.
func WithEnvironment(env *vm.Table) Option {
	return func(n *Navigator) { n.env = env }
}

// WithAllow restricts which chunks may call require.
func WithAllow(fn func(chunk string) bool) Option {
	return func(n *Navigator) { n.allow = fn }
}

// WithLogger sets the logger for resolution traces.
func WithLogger(l *zap.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// Navigator walks module paths over an fs.FS. Module paths are absolute
// and slash separated; "/" is the root of the file system.
type Navigator struct {
	fsys   fs.FS
	prefix string
	env    *vm.Table
	allow  func(string) bool
	logger *zap.Logger

	module string // cursor as a module path
	real   string // file or directory the cursor resolved to
}

// New returns a navigator over fsys.
func New(fsys fs.FS, opts ...Option) *Navigator {
	n := &Navigator{fsys: fsys, logger: zap.NewNop(), module: "/", real: "/"}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Install sets l's global require to one driven by a new navigator.
func Install(l *vm.Lua, fsys fs.FS, opts ...Option) error {
	return l.InstallRequire(New(fsys, opts...))
}

func (n *Navigator) IsRequireAllowed(chunk string) bool {
	if n.allow == nil {
		return true
	}
	return n.allow(chunk)
}

func (n *Navigator) Reset(chunk string) vm.NavigationResult {
	n.logger.Debug("reset", zap.String("chunk", chunk))
	if chunk == ReplChunk {
		n.module, n.real = "/stdin", "/stdin"
		return vm.NavigationOK()
	}
	if strings.HasPrefix(chunk, "=") {
		return vm.NavigationNotFound()
	}
	return n.moveTo(modulePath(strings.TrimPrefix(chunk, "@")))
}

func (n *Navigator) JumpToAlias(target string) vm.NavigationResult {
	n.logger.Debug("jump to alias", zap.String("target", target))
	if !path.IsAbs(target) {
		return vm.NavigationNotFound()
	}
	return n.moveTo(modulePath(target))
}

func (n *Navigator) ToParent() vm.NavigationResult {
	if n.module == "/" {
		return vm.NavigationNotFound()
	}
	return n.moveTo(path.Dir(n.module))
}

func (n *Navigator) ToChild(name string) vm.NavigationResult {
	return n.moveTo(path.Join(n.module, name))
}

func (n *Navigator) HasModule() bool {
	return n.isFile(n.real)
}

func (n *Navigator) CacheKey() (string, bool) {
	return n.prefix + "@" + n.real, true
}

func (n *Navigator) HasConfig() bool {
	return n.isFile(n.configPath())
}

func (n *Navigator) Config() ([]byte, error) {
	return fs.ReadFile(n.fsys, fsPath(n.configPath()))
}

// Loader compiles the module at the cursor. The chunk is named after its
// file so that requires inside it resolve relative to it.
func (n *Navigator) Loader(l *vm.Lua) (*vm.Function, error) {
	n.logger.Debug("load module", zap.String("path", n.real))
	code, err := fs.ReadFile(n.fsys, fsPath(n.real))
	if err != nil {
		return nil, err
	}
	return l.LoadChunk(vm.ChunkOptions{Name: n.real, Code: string(code), Env: n.env})
}

// Path returns the file or directory the cursor points at.
func (n *Navigator) Path() string { return n.real }

func (n *Navigator) moveTo(module string) vm.NavigationResult {
	real, res := n.resolve(module)
	if !res.OK() {
		return res
	}
	n.module, n.real = module, real
	return res
}

// resolve maps a module path to the file implementing it, or to the
// directory when there is no init file. More than one candidate is
// ambiguous.
func (n *Navigator) resolve(module string) (string, vm.NavigationResult) {
	var found []string
	if path.Base(module) != "init" {
		for _, s := range suffixes {
			if n.isFile(module + s) {
				found = append(found, module+s)
			}
		}
	}
	if n.isDir(module) {
		if len(found) > 0 {
			return "", vm.NavigationAmbiguous()
		}
		for _, s := range initSuffixes {
			if n.isFile(strings.TrimSuffix(module, "/") + s) {
				found = append(found, strings.TrimSuffix(module, "/")+s)
			}
		}
		if len(found) == 0 {
			return module, vm.NavigationOK()
		}
	}
	switch len(found) {
	case 0:
		return "", vm.NavigationNotFound()
	case 1:
		return found[0], vm.NavigationOK()
	}
	return "", vm.NavigationAmbiguous()
}

// configPath is the .luaurc consulted for the cursor: inside the directory
// named after the module.
func (n *Navigator) configPath() string {
	dir := n.real
	for _, s := range initSuffixes {
		if strings.HasSuffix(dir, s) {
			return path.Join(strings.TrimSuffix(dir, s), ".luaurc")
		}
	}
	for _, s := range suffixes {
		if strings.HasSuffix(dir, s) {
			return path.Join(strings.TrimSuffix(dir, s), ".luaurc")
		}
	}
	return path.Join(dir, ".luaurc")
}

func (n *Navigator) isFile(p string) bool {
	info, err := fs.Stat(n.fsys, fsPath(p))
	return err == nil && !info.IsDir()
}

func (n *Navigator) isDir(p string) bool {
	info, err := fs.Stat(n.fsys, fsPath(p))
	return err == nil && info.IsDir()
}

// modulePath turns a file name into an absolute module path by cleaning it
// and dropping the source suffix.
func modulePath(file string) string {
	p := path.Clean("/" + strings.ReplaceAll(file, "\\", "/"))
	for _, s := range initSuffixes {
		if strings.HasSuffix(p, s) {
			return path.Clean(strings.TrimSuffix(p, s) + "/")
		}
	}
	for _, s := range suffixes {
		if strings.HasSuffix(p, s) {
			return strings.TrimSuffix(p, s)
		}
	}
	return p
}

// fsPath converts an absolute module path into an fs.FS name.
func fsPath(p string) string {
	p = strings.TrimPrefix(path.Clean(p), "/")
	if p == "" {
		return "."
	}
	return p
}
