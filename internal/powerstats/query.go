// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

// Querier is the read interface of PowerStats
type Querier interface {
	GetEnergyData(railIndices []int32) ([]EnergyData, error)
	GetRailInfo() ([]RailInfo, error)
	GetPowerEntityInfo() []PowerEntityInfo
	GetPowerEntityStateResidencyData(entityIDs []int32) ([]StateResidencyResult, error)
}

var _ Querier = (*PowerStats)(nil)

// GetEnergyData returns rail energy readings. Without an energy provider
// there is nothing to report and the result is empty with no error.
func (ps *PowerStats) GetEnergyData(railIndices []int32) ([]EnergyData, error) {
	if ps.energy == nil {
		return []EnergyData{}, nil
	}
	return ps.energy.GetEnergyData(railIndices)
}

// GetRailInfo returns rail metadata, empty without an energy provider
func (ps *PowerStats) GetRailInfo() ([]RailInfo, error) {
	if ps.energy == nil {
		return []RailInfo{}, nil
	}
	return ps.energy.GetRailInfo()
}

// GetPowerEntityInfo returns a copy of all registered entities
func (ps *PowerStats) GetPowerEntityInfo() []PowerEntityInfo {
	infos := make([]PowerEntityInfo, len(ps.entities))
	for i, e := range ps.entities {
		states := make([]State, len(e.States))
		copy(states, e.States)
		infos[i] = PowerEntityInfo{ID: e.ID, Name: e.Name, States: states}
	}
	return infos
}

// GetPowerEntityStateResidencyData returns residency data for the requested
// entities, or for all entities when entityIDs is empty.
//
// Processing never stops early: invalid ids yield ErrBadValue and entities a
// provider could not report yield ErrFailedTransaction, with ErrBadValue
// taking precedence. Results are returned for every id that succeeded.
func (ps *PowerStats) GetPowerEntityStateResidencyData(entityIDs []int32) ([]StateResidencyResult, error) {
	if len(entityIDs) == 0 && len(ps.entities) != 0 {
		all := make([]int32, len(ps.entities))
		for i := range all {
			all[i] = int32(i)
		}
		return ps.GetPowerEntityStateResidencyData(all)
	}

	status := StatusOK
	results := make([]StateResidencyResult, 0, len(entityIDs))

	// providers fill data for all of their entities at once; keep it for the
	// duration of this call so each provider is asked only when needed
	residencies := map[string][]StateResidencyData{}

	for _, id := range entityIDs {
		if id < 0 || int(id) >= len(ps.entities) {
			ps.logger.Debug("Invalid power entity id", "id", id)
			status = status.Merge(StatusBadValue)
			continue
		}

		name := ps.entities[id].Name
		if _, ok := residencies[name]; !ok {
			if err := ps.residencyProviders[id].GetResults(residencies); err != nil {
				ps.logger.Debug("State residency provider failed", "entity", name, "error", err)
			}
		}

		data, ok := residencies[name]
		if !ok {
			status = status.Merge(StatusFailedTransaction)
			continue
		}
		results = append(results, StateResidencyResult{
			EntityID:           id,
			StateResidencyData: data,
		})
	}

	return results, status.Err()
}
