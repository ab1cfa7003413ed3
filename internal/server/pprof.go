// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/sustainable-computing-io/powerstats/internal/service"
)

const pprofPrefix = "/debug/pprof/"

// named runtime profiles served next to the index
var pprofProfiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

type pp struct {
	api           APIService
	blockRate     int
	mutexFraction int
}

var (
	_ service.Service     = (*pp)(nil)
	_ service.Initializer = (*pp)(nil)
)

// PprofOptionFn configures the pprof service
type PprofOptionFn func(*pp)

// WithContentionProfiles enables block and mutex profiling at the given
// rate and fraction; both are disabled by default
func WithContentionProfiles(blockRate, mutexFraction int) PprofOptionFn {
	return func(p *pp) {
		p.blockRate = blockRate
		p.mutexFraction = mutexFraction
	}
}

// NewPprof creates a service exposing runtime profiles on the API server
func NewPprof(api APIService, opts ...PprofOptionFn) *pp {
	p := &pp{api: api}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pp) Name() string {
	return "pprof"
}

func (p *pp) Init() error {
	if p.blockRate > 0 {
		runtime.SetBlockProfileRate(p.blockRate)
	}
	if p.mutexFraction > 0 {
		runtime.SetMutexProfileFraction(p.mutexFraction)
	}
	return p.api.Register(pprofPrefix, "pprof", "Runtime profiling data", pprofHandlers())
}

func pprofHandlers() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(pprofPrefix, pprof.Index)
	mux.HandleFunc(pprofPrefix+"cmdline", pprof.Cmdline)
	mux.HandleFunc(pprofPrefix+"profile", pprof.Profile)
	mux.HandleFunc(pprofPrefix+"symbol", pprof.Symbol)
	mux.HandleFunc(pprofPrefix+"trace", pprof.Trace)
	for _, name := range pprofProfiles {
		mux.Handle(pprofPrefix+name, pprof.Handler(name))
	}
	return mux
}
