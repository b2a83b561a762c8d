// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package diag

import "time"

// Config holds the thresholds of the path analysis. Zero fields fall
// back to the defaults.
type Config struct {
	// LatencyJump is the minimum increase of a hop's RTT average over
	// the previous responding hop that counts as a jump.
	LatencyJump time.Duration `json:"latencyJump" yaml:"latencyJump" mapstructure:"latencyJump"`
	// JitterRatio is the minimum spread to average ratio that counts
	// as high jitter.
	JitterRatio float64 `json:"jitterRatio" yaml:"jitterRatio" mapstructure:"jitterRatio"`
	// JitterFloor is the minimum absolute spread for high jitter.
	JitterFloor time.Duration `json:"jitterFloor" yaml:"jitterFloor" mapstructure:"jitterFloor"`
	// SpikeMultiplier is the minimum multiple of the path average that
	// counts as a spike.
	SpikeMultiplier float64 `json:"spikeMultiplier" yaml:"spikeMultiplier" mapstructure:"spikeMultiplier"`
	// SpikeFloor is the minimum absolute hop average for a spike.
	SpikeFloor time.Duration `json:"spikeFloor" yaml:"spikeFloor" mapstructure:"spikeFloor"`
}

const (
	defaultLatencyJump     = 80 * time.Millisecond
	defaultJitterRatio     = 1.0
	defaultJitterFloor     = 100 * time.Millisecond
	defaultSpikeMultiplier = 2.0
	defaultSpikeFloor      = 300 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.LatencyJump <= 0 {
		c.LatencyJump = defaultLatencyJump
	}
	if c.JitterRatio <= 0 {
		c.JitterRatio = defaultJitterRatio
	}
	if c.JitterFloor <= 0 {
		c.JitterFloor = defaultJitterFloor
	}
	if c.SpikeMultiplier <= 0 {
		c.SpikeMultiplier = defaultSpikeMultiplier
	}
	if c.SpikeFloor <= 0 {
		c.SpikeFloor = defaultSpikeFloor
	}
	return c
}
