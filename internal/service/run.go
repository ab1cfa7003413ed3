// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs all services that implement the Runner interface until the first
// one returns, then interrupts the rest. Runners are shut down as they are
// interrupted; services that only implement Shutdowner are shut down once
// all runners have returned.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	logger = defaultLogger(logger)
	logger.Info("Running all services", "services", Names(services))

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	var idle []Service
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			logger.Debug("service does not run in background", "service", s.Name())
			idle = append(idle, s)
			continue
		}

		g.Add(
			func() error {
				logger.Info("Running service", "service", s.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", s.Name(), "reason", err)
				}

				shutdowner, ok := s.(Shutdowner)
				if !ok {
					logger.Debug("skipping service shutting down", "service", s.Name(),
						"reason", "service does not implement Shutdowner interface")
					return
				}
				logger.Info("shutting down", "service", s.Name())
				if shutdownErr := shutdowner.Shutdown(); shutdownErr != nil {
					logger.Warn("service shutdown failed with error", "service", s.Name(), "error", shutdownErr)
				}
			},
		)
	}

	err := g.Run()
	shutdownAll(logger, idle)
	return err
}
