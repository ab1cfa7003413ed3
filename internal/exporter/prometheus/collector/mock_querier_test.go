// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

// fakeQuerier serves fixed data and counts energy reads
type fakeQuerier struct {
	rails     []powerstats.RailInfo
	energy    []powerstats.EnergyData
	energyErr error
	entities  []powerstats.PowerEntityInfo
	residency []powerstats.StateResidencyResult
	resErr    error

	energyCalls atomic.Int32
	// when set, GetEnergyData signals entered and blocks until release is closed
	entered chan struct{}
	release chan struct{}
}

var _ powerstats.Querier = (*fakeQuerier)(nil)

func (f *fakeQuerier) GetEnergyData(railIndices []int32) ([]powerstats.EnergyData, error) {
	f.energyCalls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.energy, f.energyErr
}

func (f *fakeQuerier) GetRailInfo() ([]powerstats.RailInfo, error) {
	return f.rails, nil
}

func (f *fakeQuerier) GetPowerEntityInfo() []powerstats.PowerEntityInfo {
	return f.entities
}

func (f *fakeQuerier) GetPowerEntityStateResidencyData(entityIDs []int32) ([]powerstats.StateResidencyResult, error) {
	return f.residency, f.resErr
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		rails: []powerstats.RailInfo{
			{Index: 0, SubsysName: "rapl", RailName: "package", SamplingRate: 1000},
			{Index: 1, SubsysName: "rapl", RailName: "dram", SamplingRate: 1000},
		},
		energy: []powerstats.EnergyData{
			{Index: 0, TimestampMs: 1000, EnergyUWs: 12_500_000},
			{Index: 1, TimestampMs: 1000, EnergyUWs: 3_000_000},
		},
		entities: []powerstats.PowerEntityInfo{{
			ID:   0,
			Name: "cpu0",
			States: []powerstats.State{
				{ID: 0, Name: "POLL"},
				{ID: 1, Name: "C1"},
			},
		}},
		residency: []powerstats.StateResidencyResult{{
			EntityID: 0,
			StateResidencyData: []powerstats.StateResidencyData{
				{StateID: 0, TotalTimeInStateMs: 1500, TotalStateEntryCount: 3},
				{StateID: 1, TotalTimeInStateMs: 2000, TotalStateEntryCount: 40, LastEntryTimestampMs: 5000},
			},
		}},
	}
}

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)
	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

// valueOfLabel returns the value of the label with the given name
func valueOfLabel(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

// findMetric returns the metric of mf whose labels include all of match
func findMetric(mf *dto.MetricFamily, match map[string]string) *dto.Metric {
	if mf == nil {
		return nil
	}
	for _, m := range mf.GetMetric() {
		ok := true
		for k, v := range match {
			if valueOfLabel(m, k) != v {
				ok = false
				break
			}
		}
		if ok {
			return m
		}
	}
	return nil
}
