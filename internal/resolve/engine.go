// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sofastack/sofa-ark-sub003/internal/registry"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	// Engine resolves symbol requests against the registry.
	Engine struct {
		reg    *registry.Registry
		scopes []Scope
		logger *slog.Logger

		mu      sync.RWMutex
		hooks   map[HookPoint][]hook
		hookSeq int
		visible map[arkmod.Key]struct{}
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithScope appends a shared scope consulted after contract lookup.
// Scopes are consulted in the order they were added.
func WithScope(s Scope) Option {
	return func(e *Engine) {
		e.scopes = append(e.scopes, s)
	}
}

// WithLogger sets the logger used for resolution traces.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:     reg,
		logger:  slog.Default(),
		hooks:   make(map[HookPoint][]hook),
		visible: make(map[arkmod.Key]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterHook installs fn at point. Hooks run by ascending priority, ties in
// registration order. Names are unique per point.
func (e *Engine) RegisterHook(point HookPoint, name string, priority int, fn HookFunc) error {
	if err := point.Validate(); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("hook %q has no function", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range e.hooks[point] {
		if h.name == name {
			return fmt.Errorf("%w: %s at %s", ErrDuplicateHook, name, point)
		}
	}
	e.hookSeq++
	hooks := append(e.hooks[point], hook{name: name, priority: priority, seq: e.hookSeq, fn: fn})
	slices.SortFunc(hooks, func(a, b hook) int {
		if c := cmp.Compare(a.priority, b.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	e.hooks[point] = hooks
	return nil
}

// UnregisterHook removes a hook and reports whether it existed.
func (e *Engine) UnregisterHook(point HookPoint, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := len(e.hooks[point])
	e.hooks[point] = slices.DeleteFunc(e.hooks[point], func(h hook) bool { return h.name == name })
	return len(e.hooks[point]) != before
}

// Publish makes a module's exports visible to other modules.
func (e *Engine) Publish(key arkmod.Key) {
	e.mu.Lock()
	e.visible[key] = struct{}{}
	e.mu.Unlock()
	e.logger.Debug("exports published", "module", key.String())
}

// Withdraw hides a module's exports from other modules.
func (e *Engine) Withdraw(key arkmod.Key) {
	e.mu.Lock()
	delete(e.visible, key)
	e.mu.Unlock()
	e.logger.Debug("exports withdrawn", "module", key.String())
}

// Visible implements View.
func (e *Engine) Visible(key arkmod.Key) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.visible[key]
	return ok
}

// Record implements View.
func (e *Engine) Record(key arkmod.Key) (arkmod.Record, bool) {
	rec, err := e.reg.Get(key)
	return rec, err == nil
}

// Versions implements View.
func (e *Engine) Versions(name string) []arkmod.Record {
	return e.reg.ListByName(name)
}

// Resolve runs the scope chain for req. A missing symbol is reported as an
// empty Result, never as an error.
func (e *Engine) Resolve(req Request) Result {
	if err := req.Validate(); err != nil {
		e.logger.Debug("invalid resolution request", "error", err)
		return NotFound()
	}

	requester, known := e.Record(req.Requester)
	contract := requester.Contract

	if contract.Denies(req.Symbol, req.Kind) {
		return Result{Scope: ScopeDenied}
	}

	if res, ok := e.runHooks(PreResolve, req); ok {
		return res
	}

	if contract.Imports(req.Symbol, req.Kind) {
		if res := e.fromExporters(req); res.Found() {
			return res
		}
	}

	for _, s := range e.scopes {
		if ns, ok := s.Lookup(req.Symbol, req.Kind); ok {
			return Result{Namespaces: []arkmod.Namespace{ns}, Scope: ScopeBase}
		}
	}

	if known && requester.Namespace != nil && requester.Namespace.Contains(req.Symbol, req.Kind) {
		return Result{Namespaces: []arkmod.Namespace{requester.Namespace}, Scope: ScopeSelf}
	}

	if res, ok := e.runHooks(PostResolve, req); ok && res.Found() {
		return res
	}
	return NotFound()
}

// Exporters lists the published records exporting the symbol, best first.
func (e *Engine) Exporters(symbol string, kind arkmod.SymbolKind) []arkmod.Record {
	var out []arkmod.Record
	for _, rec := range e.reg.Snapshot() {
		if rec.State == arkmod.StateBroken || !e.Visible(rec.Key()) {
			continue
		}
		if rec.Contract.Exports(symbol, kind) {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, registry.ByPriority)
	return out
}

func (e *Engine) fromExporters(req Request) Result {
	var namespaces []arkmod.Namespace
	for _, rec := range e.Exporters(req.Symbol, req.Kind) {
		if rec.Key() == req.Requester || rec.Namespace == nil {
			continue
		}
		namespaces = append(namespaces, rec.Namespace)
		if req.Kind == arkmod.SymbolType {
			break
		}
	}
	if len(namespaces) == 0 {
		return NotFound()
	}
	return Result{Namespaces: namespaces, Scope: ScopeImport}
}

func (e *Engine) runHooks(point HookPoint, req Request) (Result, bool) {
	e.mu.RLock()
	hooks := slices.Clone(e.hooks[point])
	e.mu.RUnlock()

	for _, h := range hooks {
		res, handled := h.fn(req, e)
		if !handled {
			continue
		}
		res.Hook = h.name
		if res.Found() && res.Scope == ScopeNone {
			res.Scope = ScopeHook
		}
		e.logger.Debug("resolution handled by hook", "hook", h.name, "point", point, "symbol", req.Symbol)
		return res, true
	}
	return Result{}, false
}
