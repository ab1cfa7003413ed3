// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	railHeaderFormat      = "  %14s   %18s   %18s\n"
	railDataFormat        = "  %14s   %18s   %14.2f mWs\n"
	railHeaderFormatDelta = "  %14s   %18s   %18s (%14s)\n"
	railDataFormatDelta   = "  %14s   %18s   %14.2f mWs (%14.2f)\n"

	residencyHeaderFormat      = "  %14s   %14s   %16s   %15s   %17s\n"
	residencyDataFormat        = "  %14s   %14s   %13d ms   %15d   %14d ms\n"
	residencyHeaderFormatDelta = "  %14s   %14s   %16s (%14s)   %15s (%16s)   %17s (%14s)\n"
	residencyDataFormatDelta   = "  %14s   %14s   %13d ms (%14d)   %15d (%16d)   %14d ms (%14d)\n"

	railBanner         = "\n============= PowerStats rail energy ==============\n"
	railBannerEnd      = "========== End of PowerStats rail energy ==========\n"
	residencyBanner    = "\n============= PowerStats state residencies ==============\n"
	residencyBannerEnd = "========== End of PowerStats state residencies ==========\n"

	unknownName = "unknown"

	// DeltaArg selects delta mode in Dump
	DeltaArg = "delta"
)

type energySnapshot struct {
	data []EnergyData
	at   time.Time
}

type residencySnapshot struct {
	results []StateResidencyResult
	at      time.Time
}

// Reporter renders the diagnostic text dump of a Querier. In delta mode it
// keeps the previous energy and residency snapshots to print the change since
// the preceding delta dump.
type Reporter struct {
	logger *slog.Logger
	stats  Querier
	clock  clock.PassiveClock

	mu            sync.Mutex
	prevEnergy    *energySnapshot
	prevResidency *residencySnapshot
}

type ReporterOpts struct {
	logger *slog.Logger
	clock  clock.PassiveClock
}

// ReporterOptionFn sets one or more options in ReporterOpts
type ReporterOptionFn func(*ReporterOpts)

// WithReporterLogger sets the logger for the Reporter
func WithReporterLogger(logger *slog.Logger) ReporterOptionFn {
	return func(o *ReporterOpts) {
		o.logger = logger
	}
}

// WithClock sets the clock used to measure elapsed time between delta dumps
func WithClock(c clock.PassiveClock) ReporterOptionFn {
	return func(o *ReporterOpts) {
		o.clock = c
	}
}

// NewReporter creates a Reporter for the given Querier
func NewReporter(stats Querier, applyOpts ...ReporterOptionFn) *Reporter {
	opts := ReporterOpts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
	}
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Reporter{
		logger: opts.logger.With("service", "reporter"),
		stats:  stats,
		clock:  opts.clock,
	}
}

// IsDelta reports whether the dump arguments select delta mode
func IsDelta(args []string) bool {
	return len(args) == 1 && args[0] == DeltaArg
}

// Dump writes the state residency report followed by the rail energy report
// to w and syncs w if it supports it. Write failures are logged; the returned
// status is always StatusOK.
func (r *Reporter) Dump(w io.Writer, args []string) Status {
	delta := IsDelta(args)

	var sb strings.Builder
	r.DumpStateResidency(&sb, delta)
	r.DumpRailEnergy(&sb, delta)

	if _, err := io.WriteString(w, sb.String()); err != nil {
		r.logger.Warn("Failed to write dump", "error", err)
	}
	if err := syncWriter(w); err != nil {
		r.logger.Warn("Failed to sync dump output", "error", err)
	}
	return StatusOK
}

func syncWriter(w io.Writer) error {
	switch s := w.(type) {
	case interface{ Sync() error }:
		return s.Sync()
	case interface{ Flush() error }:
		return s.Flush()
	case http.Flusher:
		s.Flush()
	}
	return nil
}

// DumpRailEnergy writes the rail energy report to w. Write errors are ignored;
// Dump buffers both reports and reports them.
func (r *Reporter) DumpRailEnergy(w io.Writer, delta bool) {
	railNames := map[int32][2]string{}
	rails, err := r.stats.GetRailInfo()
	if err != nil {
		r.logger.Debug("Failed to get rail info", "error", err)
	}
	for _, rail := range rails {
		railNames[rail.Index] = [2]string{rail.SubsysName, rail.RailName}
	}
	names := func(index int32) (string, string) {
		if n, ok := railNames[index]; ok {
			return n[0], n[1]
		}
		return unknownName, unknownName
	}

	_, _ = io.WriteString(w, railBanner)

	// fetch, compare and cache swap happen under one lock
	if delta {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	energy, err := r.stats.GetEnergyData(nil)
	if err != nil {
		r.logger.Debug("Failed to get energy data", "error", err)
	}

	if !delta {
		fmt.Fprintf(w, railHeaderFormat, "Subsys", "Rail", "Cumulative Energy")
		for _, data := range energy {
			subsys, rail := names(data.Index)
			fmt.Fprintf(w, railDataFormat, subsys, rail, data.MilliWattSeconds())
		}
		_, _ = io.WriteString(w, railBannerEnd)
		return
	}

	now := r.clock.Now()
	prev := r.prevEnergy
	if prev == nil {
		prev = &energySnapshot{data: energy, at: now}
	}

	fmt.Fprintf(w, "Elapsed time: %d ms\n", now.Sub(prev.at).Milliseconds())
	fmt.Fprintf(w, railHeaderFormatDelta, "Subsys", "Rail", "Cumulative Energy", "Delta   ")

	prevEnergy := make(map[int32]int64, len(prev.data))
	for _, data := range prev.data {
		prevEnergy[data.Index] = data.EnergyUWs
	}

	for _, data := range energy {
		subsys, rail := names(data.Index)

		var deltaUWs int64
		if p, ok := prevEnergy[data.Index]; ok {
			deltaUWs = data.EnergyUWs - p
		}
		fmt.Fprintf(w, railDataFormatDelta, subsys, rail,
			data.MilliWattSeconds(), float64(deltaUWs)/1000.0)
	}

	r.prevEnergy = &energySnapshot{data: energy, at: now}
	_, _ = io.WriteString(w, railBannerEnd)
}

// DumpStateResidency writes the state residency report to w
func (r *Reporter) DumpStateResidency(w io.Writer, delta bool) {
	entityNames := map[int32]string{}
	stateNames := map[int32]map[int32]string{}
	for _, info := range r.stats.GetPowerEntityInfo() {
		entityNames[info.ID] = info.Name
		states := make(map[int32]string, len(info.States))
		for _, s := range info.States {
			states[s.ID] = s.Name
		}
		stateNames[info.ID] = states
	}
	names := func(entityID, stateID int32) (string, string) {
		entity, ok := entityNames[entityID]
		if !ok {
			entity = unknownName
		}
		state, ok := stateNames[entityID][stateID]
		if !ok {
			state = unknownName
		}
		return entity, state
	}

	_, _ = io.WriteString(w, residencyBanner)

	if delta {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	results, err := r.stats.GetPowerEntityStateResidencyData(nil)
	if err != nil {
		r.logger.Debug("Failed to get state residency data", "error", err)
	}

	if !delta {
		fmt.Fprintf(w, residencyHeaderFormat, "Entity", "State", "Total time",
			"Total entries", "Last entry tstamp")
		for _, result := range results {
			for _, sr := range result.StateResidencyData {
				entity, state := names(result.EntityID, sr.StateID)
				fmt.Fprintf(w, residencyDataFormat, entity, state,
					sr.TotalTimeInStateMs, sr.TotalStateEntryCount, sr.LastEntryTimestampMs)
			}
		}
		_, _ = io.WriteString(w, residencyBannerEnd)
		return
	}

	now := r.clock.Now()
	prev := r.prevResidency
	if prev == nil {
		prev = &residencySnapshot{results: results, at: now}
	}

	fmt.Fprintf(w, "Elapsed time: %d ms\n", now.Sub(prev.at).Milliseconds())
	fmt.Fprintf(w, residencyHeaderFormatDelta, "Entity", "State", "Total time", "Delta   ",
		"Total entries", "Delta   ", "Last entry tstamp", "Delta ")

	// entity id -> state id -> previous data
	prevResults := make(map[int32]map[int32]StateResidencyData, len(prev.results))
	for _, result := range prev.results {
		states := make(map[int32]StateResidencyData, len(result.StateResidencyData))
		for _, sr := range result.StateResidencyData {
			states[sr.StateID] = sr
		}
		prevResults[result.EntityID] = states
	}

	for _, result := range results {
		prevStates := prevResults[result.EntityID]
		for _, sr := range result.StateResidencyData {
			entity, state := names(result.EntityID, sr.StateID)

			var deltaTime, deltaCount, deltaTimestamp int64
			if p, ok := prevStates[sr.StateID]; ok {
				deltaTime = sr.TotalTimeInStateMs - p.TotalTimeInStateMs
				deltaCount = sr.TotalStateEntryCount - p.TotalStateEntryCount
				deltaTimestamp = sr.LastEntryTimestampMs - p.LastEntryTimestampMs
			}
			fmt.Fprintf(w, residencyDataFormatDelta, entity, state,
				sr.TotalTimeInStateMs, deltaTime,
				sr.TotalStateEntryCount, deltaCount,
				sr.LastEntryTimestampMs, deltaTimestamp)
		}
	}

	r.prevResidency = &residencySnapshot{results: results, at: now}
	_, _ = io.WriteString(w, residencyBannerEnd)
}
