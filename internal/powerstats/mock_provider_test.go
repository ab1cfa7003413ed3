// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

import (
	"github.com/stretchr/testify/mock"
)

// mockEnergyProvider mocks EnergyDataProvider
type mockEnergyProvider struct {
	mock.Mock
}

func (m *mockEnergyProvider) GetEnergyData(railIndices []int32) ([]EnergyData, error) {
	args := m.Called(railIndices)
	if d := args.Get(0); d != nil {
		return d.([]EnergyData), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEnergyProvider) GetRailInfo() ([]RailInfo, error) {
	args := m.Called()
	if d := args.Get(0); d != nil {
		return d.([]RailInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockResidencyProvider mocks StateResidencyDataProvider
type mockResidencyProvider struct {
	mock.Mock
}

func (m *mockResidencyProvider) GetInfo() map[string][]State {
	args := m.Called()
	return args.Get(0).(map[string][]State)
}

func (m *mockResidencyProvider) GetResults(results map[string][]StateResidencyData) error {
	args := m.Called(results)
	return args.Error(0)
}

// staticResidencyProvider reports fixed data for its entities and counts
// GetResults calls
type staticResidencyProvider struct {
	info    map[string][]State
	data    map[string][]StateResidencyData
	calls   int
	failing map[string]bool
}

func (p *staticResidencyProvider) GetInfo() map[string][]State {
	return p.info
}

func (p *staticResidencyProvider) GetResults(results map[string][]StateResidencyData) error {
	p.calls++
	for name, d := range p.data {
		if p.failing[name] {
			continue
		}
		results[name] = d
	}
	return nil
}

func twoStates() []State {
	return []State{{ID: 0, Name: "active"}, {ID: 1, Name: "sleep"}}
}

func residency(time, count, ts int64) []StateResidencyData {
	return []StateResidencyData{
		{StateID: 0, TotalTimeInStateMs: time, TotalStateEntryCount: count, LastEntryTimestampMs: ts},
		{StateID: 1, TotalTimeInStateMs: time * 2, TotalStateEntryCount: count * 2, LastEntryTimestampMs: ts * 2},
	}
}
