// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/powerstats/config"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	"golang.org/x/sync/singleflight"
)

const unknownLabel = "unknown"

// unknownName keeps label sets unique when metadata is missing for an id
func unknownName(id int32) string {
	return fmt.Sprintf("%s-%d", unknownLabel, id)
}

// PowerStatsCollector exports rail energy and state residency counters read
// through the PowerStats query interface
type PowerStatsCollector struct {
	stats        powerstats.Querier
	logger       *slog.Logger
	metricsLevel config.Level

	// concurrent scrapes share a single read of the providers
	readGroup singleflight.Group

	railEnergyDesc     *prom.Desc
	residencyTimeDesc  *prom.Desc
	residencyEntryDesc *prom.Desc
	lastEntryDesc      *prom.Desc
}

var _ prom.Collector = (*PowerStatsCollector)(nil)

// reading is one consistent view of all providers
type reading struct {
	rails     map[int32]powerstats.RailInfo
	energy    []powerstats.EnergyData
	entities  map[int32]powerstats.PowerEntityInfo
	residency []powerstats.StateResidencyResult
}

// NewPowerStatsCollector creates a collector over the given query interface
func NewPowerStatsCollector(stats powerstats.Querier, logger *slog.Logger, metricsLevel config.Level) *PowerStatsCollector {
	stateLabels := []string{"entity", "state"}
	return &PowerStatsCollector{
		stats:        stats,
		logger:       logger.With("collector", "powerstats"),
		metricsLevel: metricsLevel,

		railEnergyDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "rail", "energy_joules_total"),
			"Cumulative energy measured on a rail in joules",
			[]string{"subsystem", "rail"}, nil),

		residencyTimeDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "state", "residency_seconds_total"),
			"Total time a power entity spent in a state in seconds",
			stateLabels, nil),

		residencyEntryDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "state", "entries_total"),
			"Number of times a power entity entered a state",
			stateLabels, nil),

		lastEntryDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "state", "last_entry_timestamp_seconds"),
			"Timestamp of the last entry into a state, 0 when unavailable",
			stateLabels, nil),
	}
}

// Describe implements the prometheus.Collector interface
func (c *PowerStatsCollector) Describe(ch chan<- *prom.Desc) {
	if c.metricsLevel.IsRailEnabled() {
		ch <- c.railEnergyDesc
	}
	if c.metricsLevel.IsResidencyEnabled() {
		ch <- c.residencyTimeDesc
		ch <- c.residencyEntryDesc
		ch <- c.lastEntryDesc
	}
}

// Collect implements the prometheus.Collector interface
func (c *PowerStatsCollector) Collect(ch chan<- prom.Metric) {
	started := time.Now()
	defer func() {
		c.logger.Debug("Collected power stats", "duration", time.Since(started))
	}()

	v, _, shared := c.readGroup.Do("read", func() (any, error) {
		return c.read(), nil
	})
	if shared {
		c.logger.Debug("Reused in-flight provider read")
	}
	r := v.(*reading)

	if c.metricsLevel.IsRailEnabled() {
		c.collectRails(ch, r)
	}
	if c.metricsLevel.IsResidencyEnabled() {
		c.collectResidency(ch, r)
	}
}

// read queries the providers. Query errors are logged and whatever partial
// data came back is still exported.
func (c *PowerStatsCollector) read() *reading {
	r := &reading{
		rails:    map[int32]powerstats.RailInfo{},
		entities: map[int32]powerstats.PowerEntityInfo{},
	}

	if c.metricsLevel.IsRailEnabled() {
		rails, err := c.stats.GetRailInfo()
		if err != nil {
			c.logger.Warn("Failed to read rail info", "error", err)
		}
		for _, rail := range rails {
			r.rails[rail.Index] = rail
		}

		r.energy, err = c.stats.GetEnergyData(nil)
		if err != nil {
			c.logger.Warn("Failed to read energy data",
				"status", powerstats.StatusFromError(err), "error", err)
		}
	}

	if c.metricsLevel.IsResidencyEnabled() {
		for _, entity := range c.stats.GetPowerEntityInfo() {
			r.entities[entity.ID] = entity
		}

		var err error
		r.residency, err = c.stats.GetPowerEntityStateResidencyData(nil)
		if err != nil {
			c.logger.Warn("Failed to read state residency data",
				"status", powerstats.StatusFromError(err), "error", err)
		}
	}
	return r
}

func (c *PowerStatsCollector) collectRails(ch chan<- prom.Metric, r *reading) {
	for _, e := range r.energy {
		subsystem, rail := unknownLabel, unknownName(e.Index)
		if info, ok := r.rails[e.Index]; ok {
			subsystem, rail = info.SubsysName, info.RailName
		}
		ch <- prom.MustNewConstMetric(
			c.railEnergyDesc,
			prom.CounterValue,
			float64(e.EnergyUWs)/1e6,
			subsystem, rail,
		)
	}
}

func (c *PowerStatsCollector) collectResidency(ch chan<- prom.Metric, r *reading) {
	for _, result := range r.residency {
		entity, ok := r.entities[result.EntityID]
		entityName := unknownName(result.EntityID)
		if ok {
			entityName = entity.Name
		}

		for _, data := range result.StateResidencyData {
			stateName := unknownName(data.StateID)
			for _, s := range entity.States {
				if s.ID == data.StateID {
					stateName = s.Name
					break
				}
			}

			ch <- prom.MustNewConstMetric(
				c.residencyTimeDesc,
				prom.CounterValue,
				float64(data.TotalTimeInStateMs)/1000,
				entityName, stateName,
			)
			ch <- prom.MustNewConstMetric(
				c.residencyEntryDesc,
				prom.CounterValue,
				float64(data.TotalStateEntryCount),
				entityName, stateName,
			)
			ch <- prom.MustNewConstMetric(
				c.lastEntryDesc,
				prom.GaugeValue,
				float64(data.LastEntryTimestampMs)/1000,
				entityName, stateName,
			)
		}
	}
}
