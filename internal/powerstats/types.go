// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

// State is a named power state of an entity
type State struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// PowerEntityInfo describes a registered power entity and the states it
// reports residency for. ID is assigned at registration and never changes.
type PowerEntityInfo struct {
	ID     int32   `json:"id"`
	Name   string  `json:"name"`
	States []State `json:"states"`
}

// StateResidencyData holds cumulative residency counters of a single state
type StateResidencyData struct {
	StateID              int32 `json:"stateId"`
	TotalTimeInStateMs   int64 `json:"totalTimeInStateMs"`
	TotalStateEntryCount int64 `json:"totalStateEntryCount"`
	LastEntryTimestampMs int64 `json:"lastEntryTimestampMs"`
}

// StateResidencyResult groups the residency data of one entity
type StateResidencyResult struct {
	EntityID           int32                `json:"entityId"`
	StateResidencyData []StateResidencyData `json:"stateResidencyData"`
}

// RailInfo describes a measured power rail
type RailInfo struct {
	Index        int32  `json:"index"`
	SubsysName   string `json:"subsysName"`
	RailName     string `json:"railName"`
	SamplingRate int32  `json:"samplingRate"`
}

// EnergyData is a cumulative energy reading of a rail in microwatt-seconds
type EnergyData struct {
	Index       int32 `json:"index"`
	TimestampMs int64 `json:"timestampMs"`
	EnergyUWs   int64 `json:"energyUWs"`
}

// MilliWattSeconds returns the reading in milliwatt-seconds
func (e EnergyData) MilliWattSeconds() float64 {
	return float64(e.EnergyUWs) / 1000.0
}
