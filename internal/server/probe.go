// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/sustainable-computing-io/powerstats/internal/service"
)

const probePrefix = "/probe/"

// ReadyChecker reports whether the daemon can serve data
type ReadyChecker interface {
	Ready() error
}

type probeStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type probe struct {
	api   APIService
	ready ReadyChecker
}

var (
	_ service.Service     = (*probe)(nil)
	_ service.Initializer = (*probe)(nil)
)

// NewProbe creates a service exposing liveness and readiness endpoints.
// Readiness follows ready, liveness only needs the API server to be serving.
func NewProbe(api APIService, ready ReadyChecker) *probe {
	return &probe{api: api, ready: ready}
}

func (p *probe) Name() string {
	return "probe"
}

func (p *probe) Init() error {
	return p.api.Register(probePrefix, "probe", "Health check endpoints", p.handlers())
}

func (p *probe) handlers() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+probePrefix+"readyz", func(w http.ResponseWriter, _ *http.Request) {
		if err := p.ready.Ready(); err != nil {
			writeProbe(w, http.StatusServiceUnavailable, probeStatus{Status: "not ready", Reason: err.Error()})
			return
		}
		writeProbe(w, http.StatusOK, probeStatus{Status: "ok"})
	})
	mux.HandleFunc("GET "+probePrefix+"livez", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeStatus{Status: "alive"})
	})
	return mux
}

func writeProbe(w http.ResponseWriter, code int, st probeStatus) {
	body, err := json.Marshal(st)
	if err != nil {
		http.Error(w, "failed to encode probe status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}
