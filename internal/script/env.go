// Package script provides the execution environments that dependency
// scripts are loaded into: the process-wide main environment and the private
// scope of every isolated execution context. Each Env owns one Lua state.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Method selects how a loaded script is executed.
type Method string

const (
	// MethodFetch evaluates the script in the environment's global scope.
	MethodFetch Method = "fetch"
	// MethodImport runs the script as a module and registers its return value
	// in package.loaded under ModuleName(url).
	MethodImport Method = "import"
)

func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodFetch:
		return MethodFetch, nil
	case MethodImport, "":
		return MethodImport, nil
	default:
		return "", fmt.Errorf("unknown load method %q (want fetch or import)", s)
	}
}

// Target is anything scripts can be loaded into: an Env directly, or an
// isolated context reached over its message protocol.
type Target interface {
	LoadScript(ctx context.Context, url string, method Method) error
}

// ErrNoEntry is returned by Call when the named global is not a function.
var ErrNoEntry = errors.New("script: entry function not defined")

type Env struct {
	name    string
	fetcher Fetcher

	mu     sync.Mutex
	state  *lua.LState
	loaded []string
	closed bool
}

type EnvOption func(*Env)

// WithFetcher replaces the DefaultFetcher.
func WithFetcher(f Fetcher) EnvOption {
	return func(e *Env) { e.fetcher = f }
}

func NewEnv(name string, opts ...EnvOption) *Env {
	e := &Env{
		name:    name,
		fetcher: &DefaultFetcher{},
		state:   lua.NewState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Env) Name() string { return e.name }

// LoadScript fetches url and executes it according to method. It returns only
// after the script has finished executing.
func (e *Env) LoadScript(ctx context.Context, url string, method Method) error {
	src, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	return e.Eval(ctx, url, src, method)
}

// Eval executes already retrieved source as if it had been loaded from url.
func (e *Env) Eval(ctx context.Context, url string, src []byte, method Method) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("script env %s: closed", e.name)
	}

	L := e.state
	L.SetContext(ctx)
	defer L.RemoveContext()

	fn, err := L.Load(bytes.NewReader(src), url)
	if err != nil {
		return fmt.Errorf("compile %s: %w", url, err)
	}
	L.Push(fn)

	switch method {
	case MethodFetch:
		if err := L.PCall(0, 0, nil); err != nil {
			return fmt.Errorf("evaluate %s: %w", url, err)
		}
	default:
		if err := L.PCall(0, 1, nil); err != nil {
			return fmt.Errorf("import %s: %w", url, err)
		}
		mod := L.Get(-1)
		L.Pop(1)
		if mod == lua.LNil {
			mod = lua.LTrue
		}
		loaded := L.GetField(L.GetGlobal("package"), "loaded")
		L.SetField(loaded, ModuleName(url), mod)
	}
	e.loaded = append(e.loaded, url)
	return nil
}

// Call invokes the global function name with args converted to Lua values and
// returns its first result converted back to Go.
func (e *Env) Call(ctx context.Context, name string, args ...any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("script env %s: closed", e.name)
	}
	fn := e.state.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}
	return e.call(ctx, fn, args)
}

// Lookup captures the function the global name refers to now. Later scripts
// redefining name do not change what the returned Func runs.
func (e *Env) Lookup(name string) (*Func, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("script env %s: closed", e.name)
	}
	fn, ok := e.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}
	return &Func{env: e, name: name, fn: fn}, nil
}

// caller holds e.mu.
func (e *Env) call(ctx context.Context, fn lua.LValue, args []any) (any, error) {
	L := e.state
	L.SetContext(ctx)
	defer L.RemoveContext()

	L.Push(fn)
	for _, a := range args {
		L.Push(ToLua(L, a))
	}
	if err := L.PCall(len(args), 1, nil); err != nil {
		return nil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return FromLua(ret), nil
}

// Func is a function captured from an Env by Lookup.
type Func struct {
	env  *Env
	name string
	fn   *lua.LFunction
}

func (f *Func) Name() string { return f.name }

// Call runs the captured function with the same conversions as Env.Call.
func (f *Func) Call(ctx context.Context, args ...any) (any, error) {
	e := f.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("script env %s: closed", e.name)
	}
	return e.call(ctx, f.fn, args)
}

// Loaded lists the URLs executed so far, in load order.
func (e *Env) Loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loaded...)
}

func (e *Env) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.state.Close()
}

// ModuleName derives the module key from a script URL: the last path element
// up to its first dot ("https://cdn/x/shout.min.lua" -> "shout").
func ModuleName(url string) string {
	base := path.Base(strings.SplitN(url, "?", 2)[0])
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

type (
	envKey  struct{}
	funcKey struct{}
)

// WithEnv attaches env to ctx so compile functions can reach the scope their
// dependencies were loaded into.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// FromContext returns the Env attached by WithEnv, if any.
func FromContext(ctx context.Context) (*Env, bool) {
	env, ok := ctx.Value(envKey{}).(*Env)
	return env, ok && env != nil
}

// WithFunc attaches an entry captured by Lookup. Compile functions prefer it
// over looking the entry up again by name.
func WithFunc(ctx context.Context, f *Func) context.Context {
	return context.WithValue(ctx, funcKey{}, f)
}

// FuncFromContext returns the Func attached by WithFunc, if any.
func FuncFromContext(ctx context.Context) (*Func, bool) {
	f, ok := ctx.Value(funcKey{}).(*Func)
	return f, ok && f != nil
}
