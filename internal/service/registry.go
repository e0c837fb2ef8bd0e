// SPDX-License-Identifier: MPL-2.0

package service

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

const (
	// CapabilityEventHandler is the capability lifecycle EventHandlers are published under.
	CapabilityEventHandler = "arkctl.event-handler"
	// CapabilityEntryRunner is the capability EntryRunners are published under.
	CapabilityEntryRunner = "arkctl.entry-runner"
)

type (
	// Provider identifies who published an instance. The zero Key denotes
	// the host itself.
	Provider struct {
		Key      arkmod.Key
		Priority int
	}

	// Ref is a handle to one published instance.
	Ref struct {
		id         uint64
		Capability string
		Instance   any
		Provider   Provider
	}

	// Filter narrows lookups; a nil Filter accepts everything.
	Filter func(Ref) bool

	// Registry holds published instances keyed by capability.
	Registry struct {
		mu     sync.RWMutex
		byCap  map[string][]Ref
		nextID uint64
		logger *slog.Logger
	}

	// Option configures a Registry.
	Option func(*Registry)
)

// WithLogger sets the logger for publish and unpublish events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byCap:  make(map[string][]Ref),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Valid reports whether the ref was returned by Publish.
func (r Ref) Valid() bool { return r.id != 0 }

// Publish registers instance under capability and returns its handle.
func (r *Registry) Publish(capability string, instance any, provider Provider) Ref {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ref := Ref{id: r.nextID, Capability: capability, Instance: instance, Provider: provider}
	refs := append(r.byCap[capability], ref)
	slices.SortStableFunc(refs, byPriority)
	r.byCap[capability] = refs

	r.logger.Debug("service published", "capability", capability, "provider", provider.Key.String(), "priority", provider.Priority)
	return ref
}

// Unpublish removes one instance and reports whether it was present.
func (r *Registry) Unpublish(ref Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs := r.byCap[ref.Capability]
	before := len(refs)
	refs = slices.DeleteFunc(refs, func(x Ref) bool { return x.id == ref.id })
	r.store(ref.Capability, refs)
	return len(refs) != before
}

// UnpublishProvider removes every instance published by key and returns how
// many were removed.
func (r *Registry) UnpublishProvider(key arkmod.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for capability, refs := range r.byCap {
		before := len(refs)
		refs = slices.DeleteFunc(refs, func(x Ref) bool { return x.Provider.Key == key })
		removed += before - len(refs)
		r.store(capability, refs)
	}
	if removed > 0 {
		r.logger.Debug("provider services unpublished", "provider", key.String(), "count", removed)
	}
	return removed
}

// LookupHighestPriority returns the best instance accepted by filter.
func (r *Registry) LookupHighestPriority(capability string, filter Filter) (Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ref := range r.byCap[capability] {
		if filter == nil || filter(ref) {
			return ref, true
		}
	}
	return Ref{}, false
}

// LookupAll returns every instance accepted by filter, by ascending priority
// then publish order.
func (r *Registry) LookupAll(capability string, filter Filter) []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Ref
	for _, ref := range r.byCap[capability] {
		if filter == nil || filter(ref) {
			out = append(out, ref)
		}
	}
	return out
}

// Capabilities lists the capability names with at least one instance.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byCap))
	for c := range r.byCap {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Highest returns the best instance of capability that is a T.
func Highest[T any](r *Registry, capability string) (T, bool) {
	ref, ok := r.LookupHighestPriority(capability, isA[T])
	if !ok {
		var zero T
		return zero, false
	}
	return ref.Instance.(T), true
}

// All returns every instance of capability that is a T, best first.
func All[T any](r *Registry, capability string) []T {
	refs := r.LookupAll(capability, isA[T])
	out := make([]T, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.Instance.(T))
	}
	return out
}

// ByProvider returns a filter accepting instances published by key.
func ByProvider(key arkmod.Key) Filter {
	return func(ref Ref) bool { return ref.Provider.Key == key }
}

func isA[T any](ref Ref) bool {
	_, ok := ref.Instance.(T)
	return ok
}

func (r *Registry) store(capability string, refs []Ref) {
	if len(refs) == 0 {
		delete(r.byCap, capability)
		return
	}
	r.byCap[capability] = refs
}

func byPriority(a, b Ref) int {
	if c := cmp.Compare(a.Provider.Priority, b.Provider.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}
