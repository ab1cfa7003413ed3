// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

// RailInfoSource supplies rail and entity metadata
type RailInfoSource interface {
	GetRailInfo() ([]powerstats.RailInfo, error)
	GetPowerEntityInfo() []powerstats.PowerEntityInfo
}

type railInfo struct {
	sync.Mutex

	source     RailInfoSource
	logger     *slog.Logger
	railDesc   *prom.Desc
	entityDesc *prom.Desc
}

var _ prom.Collector = (*railInfo)(nil)

// NewRailInfoCollector exports one constant series per rail and per entity
// state so that readings can be joined with their metadata
func NewRailInfoCollector(source RailInfoSource, logger *slog.Logger) *railInfo {
	return &railInfo{
		source: source,
		logger: logger.With("collector", "rail_info"),
		railDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "rail", "info"),
			"Energy rails reported by the energy data provider",
			[]string{"index", "subsystem", "rail", "sampling_rate"},
			nil,
		),
		entityDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "entity", "state_info"),
			"Power entity states reported by the state residency providers",
			[]string{"entity_id", "entity", "state_id", "state"},
			nil,
		),
	}
}

func (r *railInfo) Describe(ch chan<- *prom.Desc) {
	ch <- r.railDesc
	ch <- r.entityDesc
}

func (r *railInfo) Collect(ch chan<- prom.Metric) {
	r.Lock()
	defer r.Unlock()

	rails, err := r.source.GetRailInfo()
	if err != nil {
		r.logger.Warn("Failed to read rail info", "error", err)
	}
	for _, rail := range rails {
		ch <- prom.MustNewConstMetric(
			r.railDesc,
			prom.GaugeValue,
			1,
			strconv.Itoa(int(rail.Index)),
			rail.SubsysName,
			rail.RailName,
			strconv.Itoa(int(rail.SamplingRate)),
		)
	}

	for _, entity := range r.source.GetPowerEntityInfo() {
		for _, state := range entity.States {
			ch <- prom.MustNewConstMetric(
				r.entityDesc,
				prom.GaugeValue,
				1,
				strconv.Itoa(int(entity.ID)),
				entity.Name,
				strconv.Itoa(int(state.ID)),
				state.Name,
			)
		}
	}
}
