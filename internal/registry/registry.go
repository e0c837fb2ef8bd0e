// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// ErrLeased is returned when a record already has an operation in progress.
var ErrLeased = errors.New("module is leased")

type (
	// Registry stores module records.
	Registry struct {
		mu     sync.RWMutex
		groups map[string]*group
		seq    atomic.Uint64
		logger *slog.Logger
	}

	// Guard validates a state change against the current record and the other
	// versions of the same name, all observed under the name lock. A guard
	// must not call back into the Registry.
	Guard func(current arkmod.Record, siblings []arkmod.Record) error

	// Option configures a Registry.
	Option func(*Registry)

	group struct {
		mu       sync.RWMutex
		versions map[string]*entry
		// dead is set once the group is pruned from the map.
		dead bool
	}

	entry struct {
		rec    arkmod.Record
		leased bool
	}
)

// WithLogger sets the logger used for registration events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		groups: make(map[string]*group),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a record in state RESOLVED and assigns its registration
// sequence number. Any other non-empty state is rejected; later states are
// reached through SetState.
func (r *Registry) Register(rec arkmod.Record) (arkmod.Record, error) {
	if rec.State != "" && rec.State != arkmod.StateResolved {
		return arkmod.Record{}, &arkmod.IllegalStateError{Key: rec.Key(), State: rec.State, Operation: "register", Reason: "records enter as RESOLVED"}
	}
	return r.insert(rec, arkmod.StateResolved)
}

// RegisterBroken adds a placeholder for a version whose load failed, so the
// failure is observable and a later plan can remove it.
func (r *Registry) RegisterBroken(rec arkmod.Record) (arkmod.Record, error) {
	return r.insert(rec, arkmod.StateBroken)
}

func (r *Registry) insert(rec arkmod.Record, state arkmod.State) (arkmod.Record, error) {
	key := rec.Key()
	if err := key.Validate(); err != nil {
		return arkmod.Record{}, err
	}

	for {
		g := r.groupFor(key.Name, true)
		g.mu.Lock()
		if g.dead {
			// Pruned between lookup and lock; fetch the replacement.
			g.mu.Unlock()
			continue
		}
		if _, exists := g.versions[key.Version]; exists {
			g.mu.Unlock()
			return arkmod.Record{}, &arkmod.DuplicateModuleError{Key: key}
		}
		rec.State = state
		rec.Seq = r.seq.Add(1)
		g.versions[key.Version] = &entry{rec: rec}
		g.mu.Unlock()

		r.logger.Debug("module registered", "module", key.String(), "state", rec.State, "seq", rec.Seq)
		return rec, nil
	}
}

// Unregister removes a record that is not mid-transition.
func (r *Registry) Unregister(key arkmod.Key) error {
	g := r.groupFor(key.Name, false)
	if g == nil {
		return notFound(key)
	}
	if err := g.remove(key); err != nil {
		return err
	}
	r.prune(key.Name, g)

	r.logger.Debug("module unregistered", "module", key.String())
	return nil
}

// Get returns a copy of the record for key.
func (r *Registry) Get(key arkmod.Key) (arkmod.Record, error) {
	g := r.groupFor(key.Name, false)
	if g == nil {
		return arkmod.Record{}, notFound(key)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.versions[key.Version]
	if !ok {
		return arkmod.Record{}, notFound(key)
	}
	return e.rec, nil
}

// ListByName returns every version of name in ascending version order.
func (r *Registry) ListByName(name string) []arkmod.Record {
	g := r.groupFor(name, false)
	if g == nil {
		return nil
	}
	g.mu.RLock()
	out := g.records()
	g.mu.RUnlock()

	slices.SortFunc(out, func(a, b arkmod.Record) int {
		return arkmod.CompareVersions(a.Descriptor.Version, b.Descriptor.Version)
	})
	return out
}

// ListAllOrderedByPriority returns every record ordered by ascending
// priority, ties broken by registration order.
func (r *Registry) ListAllOrderedByPriority() []arkmod.Record {
	out := r.Snapshot()
	slices.SortStableFunc(out, ByPriority)
	return out
}

// Snapshot copies all records in registration order. The map lock is held
// for the duration of the copy so no group appears or disappears midway.
func (r *Registry) Snapshot() []arkmod.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []arkmod.Record
	for _, g := range r.groups {
		g.mu.RLock()
		out = append(out, g.records()...)
		g.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b arkmod.Record) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, g := range r.groups {
		g.mu.RLock()
		n += len(g.versions)
		g.mu.RUnlock()
	}
	return n
}

// Lease marks a record as mid-transition for the duration of one operation.
// The returned release func is idempotent.
func (r *Registry) Lease(key arkmod.Key) (release func(), err error) {
	g := r.groupFor(key.Name, false)
	if g == nil {
		return nil, notFound(key)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.versions[key.Version]
	if !ok {
		return nil, notFound(key)
	}
	if e.leased {
		return nil, fmt.Errorf("%w: %w", ErrLeased,
			&arkmod.IllegalStateError{Key: key, State: e.rec.State, Operation: "lease", Reason: "an operation is in progress"})
	}
	e.leased = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			e.leased = false
			g.mu.Unlock()
		})
	}, nil
}

// SetState applies a state change under the name lock once guard accepts it.
// Reaching UNINSTALLED removes the record. The updated record is returned.
func (r *Registry) SetState(key arkmod.Key, next arkmod.State, guard Guard) (arkmod.Record, error) {
	g := r.groupFor(key.Name, false)
	if g == nil {
		return arkmod.Record{}, notFound(key)
	}
	rec, prev, err := g.setState(key, next, guard)
	if err != nil {
		return arkmod.Record{}, err
	}
	if next == arkmod.StateUninstalled {
		r.prune(key.Name, g)
	}

	r.logger.Debug("module state changed", "module", key.String(), "from", prev, "to", next)
	return rec, nil
}

// OwnerOfMarker returns the record that declared an originating-location
// marker. When several records declare it, the earliest registration wins.
func (r *Registry) OwnerOfMarker(marker string) (arkmod.Record, bool) {
	for _, rec := range r.Snapshot() {
		if rec.HasMarker(marker) {
			return rec, true
		}
	}
	return arkmod.Record{}, false
}

// ByPriority orders records by ascending priority, then registration order.
func ByPriority(a, b arkmod.Record) int {
	if c := cmp.Compare(a.Priority(), b.Priority()); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func (r *Registry) groupFor(name string, create bool) *group {
	r.mu.RLock()
	g, ok := r.groups[name]
	r.mu.RUnlock()
	if ok || !create {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.groups[name]; ok {
		return g
	}
	g = &group{versions: make(map[string]*entry)}
	r.groups[name] = g
	return g
}

func (g *group) records() []arkmod.Record {
	out := make([]arkmod.Record, 0, len(g.versions))
	for _, e := range g.versions {
		out = append(out, e.rec)
	}
	return out
}

func notFound(key arkmod.Key) error {
	return fmt.Errorf("%w: %s", arkmod.ErrModuleNotFound, key)
}

func (g *group) setState(key arkmod.Key, next arkmod.State, guard Guard) (arkmod.Record, arkmod.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.versions[key.Version]
	if !ok {
		return arkmod.Record{}, "", notFound(key)
	}
	if guard != nil {
		siblings := make([]arkmod.Record, 0, len(g.versions)-1)
		for v, other := range g.versions {
			if v != key.Version {
				siblings = append(siblings, other.rec)
			}
		}
		if err := guard(e.rec, siblings); err != nil {
			return arkmod.Record{}, "", err
		}
	}

	prev := e.rec.State
	e.rec.State = next
	if next == arkmod.StateUninstalled {
		delete(g.versions, key.Version)
	}
	return e.rec, prev, nil
}

// prune drops the group for name once its last version is gone. The map lock
// is taken before the group lock, matching Snapshot.
func (r *Registry) prune(name string, g *group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.versions) != 0 || r.groups[name] != g {
		return
	}
	g.dead = true
	delete(r.groups, name)
}

func (g *group) remove(key arkmod.Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.versions[key.Version]
	if !ok {
		return notFound(key)
	}
	if e.leased {
		return &arkmod.IllegalStateError{Key: key, State: e.rec.State, Operation: "unregister", Reason: "an operation is in progress"}
	}
	delete(g.versions, key.Version)
	return nil
}
