// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

// EnergyDataProvider supplies rail metadata and cumulative rail energy
type EnergyDataProvider interface {
	// GetEnergyData returns readings for the given rails; an empty slice
	// means all rails
	GetEnergyData(railIndices []int32) ([]EnergyData, error)

	// GetRailInfo returns the metadata of all rails
	GetRailInfo() ([]RailInfo, error)
}

// StateResidencyDataProvider owns one or more power entities
type StateResidencyDataProvider interface {
	// GetInfo returns the entities owned by the provider keyed by name along
	// with their ordered list of states
	GetInfo() map[string][]State

	// GetResults adds residency data for the entities it owns to results,
	// keyed by entity name. It may fill more entities than were asked for.
	GetResults(results map[string][]StateResidencyData) error
}
