// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the strategies available to the experiment engine.
//
// Description:
//
//	The Registry is the single place where strategies are declared. Ids
//	are unique across families so a result path names its strategies
//	unambiguously.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]*Entry
	hooks   []RegistrationHook
}

// RegistrationHook is called after a strategy is registered.
type RegistrationHook func(e Entry)

// NewRegistry creates a new empty registry.
//
// Outputs:
//   - *Registry: The new registry. Never nil.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]*Entry)}
}

// Register adds a strategy.
//
// Inputs:
//   - e: The entry. Its descriptor must match the strategy field it sets.
//
// Outputs:
//   - error: ErrInvalidDescriptor or ErrAlreadyRegistered. Both satisfy
//     errors.Is(err, ErrConfiguration).
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Register(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, e.ID)
	}
	r.entries[e.ID] = &e

	for _, hook := range r.hooks {
		hook(e)
	}
	return nil
}

// MustRegister registers a strategy and panics on error.
//
// Description:
//
//	Convenience method for registration during initialization.
//	Should only be used during startup, not at runtime.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(fmt.Sprintf("registry: failed to register %s: %v", e.ID, err))
	}
}

// Get retrieves a strategy by id.
//
// Outputs:
//   - Entry: A copy of the registered entry.
//   - error: ErrUnknownStrategy if the id is not registered.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Get(id ID) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return *e, nil
}

// Lookup retrieves a strategy and checks that it belongs to family.
func (r *Registry) Lookup(family Family, id ID) (Entry, error) {
	e, err := r.Get(id)
	if err != nil {
		return Entry{}, err
	}
	if e.Family != family {
		return Entry{}, fmt.Errorf("%w: %s is a %s strategy, not %s", ErrUnknownStrategy, id, e.Family, family)
	}
	return e, nil
}

// List returns the descriptors of a family sorted by id. An empty family
// lists everything.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) List(family Family) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		if family == "" || e.Family == family {
			out = append(out, e.Descriptor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered strategies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// AddHook adds a registration hook. Hooks run under the registry lock and
// must not call back into it.
func (r *Registry) AddHook(hook RegistrationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}
