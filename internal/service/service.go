// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is implemented by every component managed by Init and Run
type Service interface {
	Name() string
}

// Initializer is a Service that must be set up before anything runs
type Initializer interface {
	Service
	Init() error
}

// Runner is a Service that runs in the background until ctx is done
type Runner interface {
	Service
	// Run is expected to block and be thread safe
	Run(ctx context.Context) error
}

// Shutdowner is a Service holding resources that must be released
type Shutdowner interface {
	Service
	Shutdown() error
}

// Names returns the names of services in order
func Names(services []Service) []string {
	names := make([]string, len(services))
	for i, s := range services {
		names[i] = s.Name()
	}
	return names
}
