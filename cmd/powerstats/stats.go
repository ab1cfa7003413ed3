// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	"github.com/sustainable-computing-io/powerstats/internal/service"
)

type residencyProvider interface {
	powerstats.StateResidencyDataProvider
	Name() string
	Init() error
}

type energyProvider interface {
	powerstats.EnergyDataProvider
	Name() string
	Init() error
	Shutdown() error
}

// statsService initializes the providers and registers the ones that came
// up with PowerStats. A provider failing to initialize is skipped.
type statsService struct {
	logger    *slog.Logger
	stats     *powerstats.PowerStats
	energy    energyProvider
	residency []residencyProvider

	registeredEnergy bool
}

var (
	_ service.Initializer = (*statsService)(nil)
	_ service.Runner      = (*statsService)(nil)
	_ service.Shutdowner  = (*statsService)(nil)
)

func newStatsService(stats *powerstats.PowerStats, energy energyProvider, res []residencyProvider, logger *slog.Logger) *statsService {
	return &statsService{
		logger:    logger.With("service", "powerstats"),
		stats:     stats,
		energy:    energy,
		residency: res,
	}
}

func (s *statsService) Name() string {
	return "powerstats"
}

func (s *statsService) Init() error {
	if s.energy != nil {
		if err := s.energy.Init(); err != nil {
			s.logger.Warn("Energy data provider unavailable", "provider", s.energy.Name(), "error", err)
		} else {
			s.stats.SetEnergyDataProvider(s.energy)
			s.registeredEnergy = true
		}
	}

	for _, p := range s.residency {
		if err := p.Init(); err != nil {
			s.logger.Warn("State residency provider unavailable", "provider", p.Name(), "error", err)
			continue
		}
		if err := s.stats.AddStateResidencyDataProvider(p); err != nil {
			s.logger.Warn("Failed to register state residency provider", "provider", p.Name(), "error", err)
			continue
		}
	}

	if err := s.stats.Ready(); err != nil {
		return fmt.Errorf("no power stats provider available: %w", err)
	}

	s.logger.Info("PowerStats initialized",
		"energy", s.stats.HasEnergyDataProvider(),
		"entities", s.stats.EntityCount())
	return nil
}

func (s *statsService) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *statsService) Shutdown() error {
	return s.shutdownEnergy()
}

func (s *statsService) shutdownEnergy() error {
	if !s.registeredEnergy {
		return nil
	}
	s.registeredEnergy = false
	return s.energy.Shutdown()
}
