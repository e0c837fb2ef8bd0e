// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	// MemSource serves module descriptors from memory. It satisfies the
	// loader contract of the executor and the discovery contract of the host.
	MemSource struct {
		mu       sync.Mutex
		descs    []arkmod.Descriptor
		failures map[arkmod.Key]error
		delay    time.Duration
		loads    int
	}
)

// NewMemSource returns a MemSource holding descs.
func NewMemSource(descs ...arkmod.Descriptor) *MemSource {
	s := &MemSource{failures: make(map[arkmod.Key]error)}
	for _, d := range descs {
		s.Add(d)
	}
	return s
}

// Add stores d. A zero priority becomes arkmod.DefaultPriority.
func (s *MemSource) Add(d arkmod.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Priority == 0 {
		d.Priority = arkmod.DefaultPriority
	}
	s.descs = append(s.descs, d)
}

// FailLoad makes every load of key return err. A nil err clears it.
func (s *MemSource) FailLoad(key arkmod.Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// SetDelay makes LoadDescriptor wait d, or until its context is done.
func (s *MemSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Loads returns how many times LoadDescriptor was called.
func (s *MemSource) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// LoadDescriptor returns the stored descriptor for loc.Key.
func (s *MemSource) LoadDescriptor(ctx context.Context, loc arkmod.Locator) (arkmod.Descriptor, error) {
	s.mu.Lock()
	s.loads++
	delay := s.delay
	failure := s.failures[loc.Key]
	d, found := s.lookup(loc.Key)
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return arkmod.Descriptor{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return arkmod.Descriptor{}, err
	}
	if failure != nil {
		return arkmod.Descriptor{}, failure
	}
	if !found {
		return arkmod.Descriptor{}, arkmod.ErrModuleNotFound
	}
	return d, nil
}

// MaterializeNamespace builds a namespace from d.Provides.
func (s *MemSource) MaterializeNamespace(_ context.Context, d arkmod.Descriptor) (arkmod.Namespace, error) {
	return arkmod.NewSymbolNamespace(d.Key().String(), d.Key(), d.Provides.Types, d.Provides.Resources), nil
}

// Discover returns every stored descriptor in insertion order.
func (s *MemSource) Discover(context.Context) ([]arkmod.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.descs), nil
}

func (s *MemSource) lookup(key arkmod.Key) (arkmod.Descriptor, bool) {
	for _, d := range s.descs {
		if d.Key() == key {
			return d, true
		}
	}
	return arkmod.Descriptor{}, false
}
