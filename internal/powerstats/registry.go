// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// PowerStats is the catalog of registered providers and the query facade
// over them.
//
// Registration is expected to complete before queries are served; after that
// the catalog is read-only and may be queried from multiple goroutines as
// long as the providers themselves are safe for concurrent use.
type PowerStats struct {
	logger *slog.Logger

	energy EnergyDataProvider

	// entities[i] has ID i and is owned by residencyProviders[i]
	entities           []PowerEntityInfo
	residencyProviders []StateResidencyDataProvider
	entityNames        map[string]int32
}

type Opts struct {
	logger *slog.Logger
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for PowerStats
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// New creates an empty PowerStats catalog
func New(applyOpts ...OptionFn) *PowerStats {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &PowerStats{
		logger:      opts.logger.With("service", "powerstats"),
		entityNames: map[string]int32{},
	}
}

// SetEnergyDataProvider sets the rail energy provider. Only one provider is
// active; a later call replaces the previous one and nil removes it.
func (ps *PowerStats) SetEnergyDataProvider(p EnergyDataProvider) {
	if ps.energy != nil {
		ps.logger.Info("Replacing energy data provider")
	}
	ps.energy = p
}

// AddStateResidencyDataProvider registers every entity of p under the next
// free ids. Entities of a provider are numbered in ascending name order.
//
// Entity names must be unique across all providers: if any name of p is
// already registered, nothing is registered and ErrDuplicateEntity is
// returned.
func (ps *PowerStats) AddStateResidencyDataProvider(p StateResidencyDataProvider) error {
	info := p.GetInfo()

	names := make([]string, 0, len(info))
	for name := range info {
		if _, exists := ps.entityNames[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateEntity, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := int32(len(ps.entities))
		states := make([]State, len(info[name]))
		copy(states, info[name])

		ps.entities = append(ps.entities, PowerEntityInfo{
			ID:     id,
			Name:   name,
			States: states,
		})
		ps.residencyProviders = append(ps.residencyProviders, p)
		ps.entityNames[name] = id
		ps.logger.Debug("Registered power entity", "id", id, "name", name, "states", len(states))
	}

	return nil
}

// EntityCount returns the number of registered entities
func (ps *PowerStats) EntityCount() int {
	return len(ps.entities)
}

// HasEnergyDataProvider reports whether a rail energy provider is set
func (ps *PowerStats) HasEnergyDataProvider() bool {
	return ps.energy != nil
}

// Ready returns an error until a rail provider or a power entity is registered
func (ps *PowerStats) Ready() error {
	if ps.energy == nil && len(ps.entities) == 0 {
		return errors.New("no power stats providers registered")
	}
	return nil
}
