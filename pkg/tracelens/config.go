// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package tracelens

import (
	"fmt"
	"time"

	"github.com/telekom/tracelens/internal/helper"
	"github.com/telekom/tracelens/internal/traceroute"
	"github.com/telekom/tracelens/pkg/diag"
)

const defaultTCPPort = 80

// Config holds everything a single trace run needs.
type Config struct {
	// Target is the hostname or IPv4 address to trace.
	Target string `yaml:"target" mapstructure:"target"`
	// Protocol selects the probe protocol.
	Protocol traceroute.Protocol `yaml:"protocol" mapstructure:"protocol"`
	// Port is the destination port. Zero selects the protocol default,
	// port 80 for TCP and the classic rotating ports for UDP.
	Port int `yaml:"port" mapstructure:"port"`
	// MaxHops is the maximum TTL to sweep up to.
	MaxHops int `yaml:"maxHops" mapstructure:"maxHops"`
	// ProbesPerHop is the number of probes sent per TTL.
	ProbesPerHop int `yaml:"probesPerHop" mapstructure:"probesPerHop"`
	// Timeout is the per probe timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MaxTimeouts aborts the sweep after this many consecutive silent
	// hops. Zero disables the abort.
	MaxTimeouts int `yaml:"maxTimeouts" mapstructure:"maxTimeouts"`
	// TCPReached selects the TCP destination-reached criterion.
	TCPReached traceroute.TCPReachedPolicy `yaml:"tcpReached" mapstructure:"tcpReached"`
	// Retry configures how failed probe sends and lookups are repeated.
	Retry helper.RetryConfig `yaml:"retry" mapstructure:"retry"`
	// EnableDNS turns on reverse DNS and origin AS lookups.
	EnableDNS bool `yaml:"enableDns" mapstructure:"enableDns"`
	// EnableGeo turns on geo location lookups.
	EnableGeo bool `yaml:"enableGeo" mapstructure:"enableGeo"`
	// UseCache persists enrichment data between runs.
	UseCache bool `yaml:"useCache" mapstructure:"useCache"`
	// CachePath overrides the default cache location.
	CachePath string `yaml:"cachePath" mapstructure:"cachePath"`
	// Workers caps how many addresses are enriched concurrently.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// LookupTimeout bounds each enrichment lookup attempt.
	LookupTimeout time.Duration `yaml:"lookupTimeout" mapstructure:"lookupTimeout"`
	// Diag holds the analysis thresholds.
	Diag diag.Config `yaml:"diag" mapstructure:"diag"`
}

// DefaultConfig returns the configuration used when nothing else is
// specified, matching the command line defaults.
func DefaultConfig() *Config {
	return &Config{
		Protocol:      traceroute.ProtocolICMP,
		MaxHops:       30,
		ProbesPerHop:  3,
		Timeout:       2 * time.Second,
		EnableDNS:     true,
		EnableGeo:     true,
		UseCache:      true,
		Workers:       8,
		LookupTimeout: 3 * time.Second,
	}
}

// Validate checks the configuration without touching the network.
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrInvalidConfig{Field: "target", Reason: "must not be empty"}
	}
	if !c.Protocol.IsValid() {
		return ErrInvalidConfig{Field: "protocol", Reason: fmt.Sprintf("%q is not one of icmp, tcp, udp", c.Protocol)}
	}
	if c.Port < 0 || c.Port > 65535 {
		return ErrInvalidConfig{Field: "port", Reason: fmt.Sprintf("%d is out of range", c.Port)}
	}
	if c.MaxHops <= 0 || c.MaxHops > 255 {
		return ErrInvalidConfig{Field: "maxHops", Reason: fmt.Sprintf("%d is not between 1 and 255", c.MaxHops)}
	}
	if c.ProbesPerHop <= 0 {
		return ErrInvalidConfig{Field: "probesPerHop", Reason: "must be greater than 0"}
	}
	if c.Timeout <= 0 {
		return ErrInvalidConfig{Field: "timeout", Reason: "must be greater than 0"}
	}
	if c.MaxTimeouts < 0 {
		return ErrInvalidConfig{Field: "maxTimeouts", Reason: "must not be negative"}
	}
	if c.TCPReached != "" && !c.TCPReached.IsValid() {
		return ErrInvalidConfig{Field: "tcpReached", Reason: fmt.Sprintf("%q is not one of any, synack", c.TCPReached)}
	}
	if c.Workers < 0 {
		return ErrInvalidConfig{Field: "workers", Reason: "must not be negative"}
	}
	if c.LookupTimeout < 0 {
		return ErrInvalidConfig{Field: "lookupTimeout", Reason: "must not be negative"}
	}
	return nil
}

// port returns the effective destination port for the protocol.
func (c *Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.Protocol == traceroute.ProtocolTCP {
		return defaultTCPPort
	}
	return 0
}
