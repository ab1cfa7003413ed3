// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"math"
	"time"
)

// Energy is an accumulated energy reading in microjoules. A microjoule is
// also a microwatt-second, the unit rails are reported in.
type Energy uint64

const (
	MicroJoule Energy = 1
	MilliJoule        = 1000 * MicroJoule
	Joule             = 1000 * MilliJoule
)

func (e Energy) MicroJoules() uint64 { return uint64(e) }

func (e Energy) MilliJoules() float64 { return float64(e) / float64(MilliJoule) }

func (e Energy) Joules() float64 { return float64(e) / float64(Joule) }

// MicroWattSeconds returns e as a signed µWs count, saturating at math.MaxInt64
func (e Energy) MicroWattSeconds() int64 {
	if e > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(e)
}

// Since returns the energy consumed between a previous counter reading and e.
// A counter lower than prev is assumed to have wrapped at max; with an
// unknown range (max <= prev) the counter is treated as reset to zero.
func (e Energy) Since(prev, max Energy) Energy {
	switch {
	case e >= prev:
		return e - prev
	case max > prev:
		return max - prev + e
	default:
		return e
	}
}

func (e Energy) String() string {
	return fmt.Sprintf("%.2fJ", e.Joules())
}

// Power is an instantaneous or average power in microwatts
type Power float64

const (
	MicroWatt Power = 1.0
	MilliWatt       = 1000 * MicroWatt
	Watt            = 1000 * MilliWatt
)

// AveragePower returns the mean power of consuming e over d; zero for a
// non-positive duration
func AveragePower(e Energy, d time.Duration) Power {
	if d <= 0 {
		return 0
	}
	return Power(float64(e) / d.Seconds())
}

func (p Power) MicroWatts() float64 { return float64(p) }

func (p Power) MilliWatts() float64 { return float64(p / MilliWatt) }

func (p Power) Watts() float64 { return float64(p / Watt) }

func (p Power) String() string {
	return fmt.Sprintf("%.2fW", p.Watts())
}
