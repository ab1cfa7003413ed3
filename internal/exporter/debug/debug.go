// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	"github.com/sustainable-computing-io/powerstats/internal/service"
)

type (
	Initializer = service.Initializer
	APIRegistry = interface {
		Register(endpoint, summary, description string, handler http.Handler) error
	}
)

// Dumper writes the diagnostic report
type Dumper interface {
	Dump(w io.Writer, args []string) powerstats.Status
}

// Exporter serves the diagnostic dump and the query interface over HTTP
type Exporter struct {
	logger   *slog.Logger
	api      APIRegistry
	reporter Dumper
	stats    powerstats.Querier
}

var _ Initializer = (*Exporter)(nil)

type Opts struct {
	logger *slog.Logger
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// NewExporter creates an Exporter registering its handlers on api at Init
func NewExporter(api APIRegistry, reporter Dumper, stats powerstats.Querier, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &Exporter{
		logger:   opts.logger.With("service", "debug"),
		api:      api,
		reporter: reporter,
		stats:    stats,
	}
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "debug"
}

func (e *Exporter) Init() error {
	endpoints := []struct {
		path, summary, description string
		handler                    http.HandlerFunc
	}{
		{"/debug/powerstats", "PowerStats dump", "Rail energy and state residency report, ?delta for changes since the last delta dump", e.dump},
		{"/api/v1/rails", "Rails", "Energy rail metadata", e.rails},
		{"/api/v1/energy", "Energy", "Rail energy readings, ?rail=<index> to filter", e.energy},
		{"/api/v1/entities", "Entities", "Power entities and their states", e.entities},
		{"/api/v1/residency", "Residency", "State residency data, ?entity=<id> to filter", e.residency},
	}
	for _, ep := range endpoints {
		if err := e.api.Register(ep.path, ep.summary, ep.description, ep.handler); err != nil {
			return fmt.Errorf("failed to register %s: %w", ep.path, err)
		}
	}
	e.logger.Info("Registered debug endpoints", "count", len(endpoints))
	return nil
}

func (e *Exporter) dump(w http.ResponseWriter, r *http.Request) {
	delta, err := deltaRequested(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var args []string
	if delta {
		args = []string{powerstats.DeltaArg}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	e.reporter.Dump(w, args)
}

// deltaRequested reports whether ?delta is present with an empty or true
// value; ?delta=false selects the cumulative dump
func deltaRequested(r *http.Request) (bool, error) {
	q := r.URL.Query()
	if !q.Has(powerstats.DeltaArg) {
		return false, nil
	}
	v := q.Get(powerstats.DeltaArg)
	if v == "" {
		return true, nil
	}
	delta, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", powerstats.DeltaArg, v, powerstats.ErrBadValue)
	}
	return delta, nil
}

func (e *Exporter) rails(w http.ResponseWriter, _ *http.Request) {
	rails, err := e.stats.GetRailInfo()
	e.respond(w, rails, err)
}

func (e *Exporter) energy(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r, "rail")
	if err != nil {
		e.respond(w, []powerstats.EnergyData{}, err)
		return
	}
	data, err := e.stats.GetEnergyData(ids)
	e.respond(w, data, err)
}

func (e *Exporter) entities(w http.ResponseWriter, _ *http.Request) {
	e.respond(w, e.stats.GetPowerEntityInfo(), nil)
}

func (e *Exporter) residency(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r, "entity")
	if err != nil {
		e.respond(w, []powerstats.StateResidencyResult{}, err)
		return
	}
	data, err := e.stats.GetPowerEntityStateResidencyData(ids)
	e.respond(w, data, err)
}

// parseIDs reads repeated or comma separated int32 values of a query parameter
func parseIDs(r *http.Request, key string) ([]int32, error) {
	var ids []int32
	for _, v := range r.URL.Query()[key] {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %q", powerstats.ErrBadValue, key, s)
			}
			ids = append(ids, int32(id))
		}
	}
	return ids, nil
}

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data"`
}

// httpCode maps a query status to the HTTP response code
func httpCode(s powerstats.Status) int {
	switch s {
	case powerstats.StatusOK:
		return http.StatusOK
	case powerstats.StatusBadValue:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// respond writes data, which may be partial, along with the status of err
func (e *Exporter) respond(w http.ResponseWriter, data any, err error) {
	status := powerstats.StatusFromError(err)
	resp := response{Status: status.String(), Data: data}
	if err != nil {
		resp.Error = err.Error()
		e.logger.Debug("Query returned an error", "status", status, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode(status))
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		e.logger.Error("Failed to encode response", "error", err)
	}
}
