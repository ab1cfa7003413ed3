// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/powerstats/config"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPowerStatsCollector_Describe(t *testing.T) {
	tt := []struct {
		name  string
		level config.Level
		count int
	}{
		{"all", config.MetricsLevelAll, 4},
		{"rail only", config.MetricsLevelRail, 1},
		{"residency only", config.MetricsLevelResidency, 3},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			c := NewPowerStatsCollector(newFakeQuerier(), discardLogger(), tc.level)
			ch := make(chan *prometheus.Desc, 10)
			c.Describe(ch)
			assert.Len(t, ch, tc.count)
		})
	}
}

func TestPowerStatsCollector_Collect(t *testing.T) {
	c := NewPowerStatsCollector(newFakeQuerier(), discardLogger(), config.MetricsLevelAll)
	families := gather(t, c)

	t.Run("rail energy", func(t *testing.T) {
		mf := families["powerstats_rail_energy_joules_total"]
		require.NotNil(t, mf)
		assert.Len(t, mf.GetMetric(), 2)

		pkg := findMetric(mf, map[string]string{"subsystem": "rapl", "rail": "package"})
		require.NotNil(t, pkg)
		assert.InDelta(t, 12.5, pkg.GetCounter().GetValue(), 1e-9)

		dram := findMetric(mf, map[string]string{"subsystem": "rapl", "rail": "dram"})
		require.NotNil(t, dram)
		assert.InDelta(t, 3.0, dram.GetCounter().GetValue(), 1e-9)
	})

	t.Run("state residency", func(t *testing.T) {
		seconds := families["powerstats_state_residency_seconds_total"]
		require.NotNil(t, seconds)
		c1 := findMetric(seconds, map[string]string{"entity": "cpu0", "state": "C1"})
		require.NotNil(t, c1)
		assert.InDelta(t, 2.0, c1.GetCounter().GetValue(), 1e-9)

		entries := families["powerstats_state_entries_total"]
		require.NotNil(t, entries)
		poll := findMetric(entries, map[string]string{"entity": "cpu0", "state": "POLL"})
		require.NotNil(t, poll)
		assert.Equal(t, 3.0, poll.GetCounter().GetValue())

		last := families["powerstats_state_last_entry_timestamp_seconds"]
		require.NotNil(t, last)
		c1Last := findMetric(last, map[string]string{"entity": "cpu0", "state": "C1"})
		require.NotNil(t, c1Last)
		assert.Equal(t, 5.0, c1Last.GetGauge().GetValue())
	})
}

func TestPowerStatsCollector_MetricsLevel(t *testing.T) {
	t.Run("rail only", func(t *testing.T) {
		c := NewPowerStatsCollector(newFakeQuerier(), discardLogger(), config.MetricsLevelRail)
		families := gather(t, c)
		assert.Contains(t, families, "powerstats_rail_energy_joules_total")
		assert.NotContains(t, families, "powerstats_state_residency_seconds_total")
	})

	t.Run("residency only", func(t *testing.T) {
		q := newFakeQuerier()
		c := NewPowerStatsCollector(q, discardLogger(), config.MetricsLevelResidency)
		families := gather(t, c)
		assert.NotContains(t, families, "powerstats_rail_energy_joules_total")
		assert.Contains(t, families, "powerstats_state_entries_total")
		assert.Equal(t, int32(0), q.energyCalls.Load(), "energy must not be read")
	})
}

func TestPowerStatsCollector_PartialResults(t *testing.T) {
	q := newFakeQuerier()
	q.energy = q.energy[:1]
	q.energyErr = powerstats.ErrFailedTransaction
	q.resErr = powerstats.ErrBadValue

	c := NewPowerStatsCollector(q, discardLogger(), config.MetricsLevelAll)
	families := gather(t, c)

	rails := families["powerstats_rail_energy_joules_total"]
	require.NotNil(t, rails)
	assert.Len(t, rails.GetMetric(), 1)
	assert.NotNil(t, families["powerstats_state_entries_total"])
}

func TestPowerStatsCollector_UnknownMetadata(t *testing.T) {
	q := newFakeQuerier()
	q.rails = nil
	q.entities = nil

	c := NewPowerStatsCollector(q, discardLogger(), config.MetricsLevelAll)
	families := gather(t, c)

	rails := families["powerstats_rail_energy_joules_total"]
	require.NotNil(t, rails)
	assert.NotNil(t, findMetric(rails, map[string]string{"subsystem": "unknown", "rail": "unknown-0"}))
	assert.NotNil(t, findMetric(rails, map[string]string{"subsystem": "unknown", "rail": "unknown-1"}))

	entries := families["powerstats_state_entries_total"]
	require.NotNil(t, entries)
	assert.NotNil(t, findMetric(entries, map[string]string{"entity": "unknown-0", "state": "unknown-1"}))
}

func TestPowerStatsCollector_CoalescesConcurrentScrapes(t *testing.T) {
	q := newFakeQuerier()
	q.entered = make(chan struct{}, 1)
	q.release = make(chan struct{})

	c := NewPowerStatsCollector(q, discardLogger(), config.MetricsLevelRail)

	const scrapes = 5
	counts := make([]int, scrapes)
	var wg sync.WaitGroup

	collect := func(i int) {
		defer wg.Done()
		ch := make(chan prometheus.Metric, 10)
		c.Collect(ch)
		close(ch)
		for range ch {
			counts[i]++
		}
	}

	wg.Add(1)
	go collect(0)
	<-q.entered

	wg.Add(scrapes - 1)
	for i := 1; i < scrapes; i++ {
		go collect(i)
	}
	// let the followers join the in-flight read
	time.Sleep(50 * time.Millisecond)
	close(q.release)
	wg.Wait()

	assert.Equal(t, int32(1), q.energyCalls.Load())
	for i, n := range counts {
		assert.Equal(t, 2, n, "scrape %d", i)
	}
}
