// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/powerstats/internal/version"
)

const namespace = "powerstats"

// BuildInfoCollector exports powerstats_build_info, a constant 1 labelled
// with the version of the running binary
type BuildInfoCollector struct {
	metric prom.Metric
}

var _ prom.Collector = (*BuildInfoCollector)(nil)

func NewBuildInfoCollector() *BuildInfoCollector {
	info := version.Info()
	desc := prom.NewDesc(
		prom.BuildFQName(namespace, "build", "info"),
		"A metric with a constant '1' value labeled with version information",
		nil,
		prom.Labels{
			"arch":      info.GoArch,
			"branch":    info.GitBranch,
			"revision":  info.GitCommit,
			"version":   info.Version,
			"goversion": info.GoVersion,
		},
	)
	return &BuildInfoCollector{
		metric: prom.MustNewConstMetric(desc, prom.GaugeValue, 1),
	}
}

func (c *BuildInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.metric.Desc()
}

func (c *BuildInfoCollector) Collect(ch chan<- prom.Metric) {
	ch <- c.metric
}
