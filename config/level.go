// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Level selects the metric families exported to Prometheus
type Level uint32

const (
	MetricsLevelRail      Level = 1 << iota // 1
	MetricsLevelResidency                   // 2

	// MetricsLevelAll represents all metric levels combined
	MetricsLevelAll = MetricsLevelRail | MetricsLevelResidency
)

var levelNames = []struct {
	level Level
	name  string
}{
	{MetricsLevelRail, "rail"},
	{MetricsLevelResidency, "residency"},
}

func (l Level) names() []string {
	var levels []string
	for _, ln := range levelNames {
		if l&ln.level != 0 {
			levels = append(levels, ln.name)
		}
	}
	return levels
}

// String returns the string representation of the level
func (l Level) String() string {
	return strings.Join(l.names(), ",")
}

// IsRailEnabled checks if rail energy metrics are enabled
func (l Level) IsRailEnabled() bool {
	return l&MetricsLevelRail != 0
}

// IsResidencyEnabled checks if state residency metrics are enabled
func (l Level) IsResidencyEnabled() bool {
	return l&MetricsLevelResidency != 0
}

// ParseLevel parses a slice of strings into a Level
func ParseLevel(levels []string) (Level, error) {
	if len(levels) == 0 {
		return MetricsLevelAll, nil
	}

	var result Level
	for _, level := range levels {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "rail":
			result |= MetricsLevelRail
		case "residency":
			result |= MetricsLevelResidency
		default:
			return 0, fmt.Errorf("unknown metrics level: %s", level)
		}
	}

	return result, nil
}

// ValidLevels returns the list of valid metrics levels
func ValidLevels() []string {
	return []string{"rail", "residency"}
}

// MarshalYAML implements yaml.Marshaler interface
func (l Level) MarshalYAML() (interface{}, error) {
	levels := l.names()
	if len(levels) == 1 {
		return levels[0], nil
	}
	return levels, nil
}

// UnmarshalYAML implements yaml.Unmarshaler interface
func (l *Level) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		parsed, parseErr := ParseLevel([]string{single})
		if parseErr != nil {
			return parseErr
		}
		*l = parsed
		return nil
	}

	var multiple []string
	if err := unmarshal(&multiple); err == nil {
		parsed, parseErr := ParseLevel(multiple)
		if parseErr != nil {
			return parseErr
		}
		*l = parsed
		return nil
	}

	return fmt.Errorf("cannot unmarshal metrics level: must be a string or array of strings")
}
