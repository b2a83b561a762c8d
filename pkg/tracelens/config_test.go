// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package tracelens

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/telekom/tracelens/internal/helper"
	"github.com/telekom/tracelens/internal/traceroute"
	"github.com/telekom/tracelens/pkg/diag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, traceroute.ProtocolICMP, cfg.Protocol)
	assert.Equal(t, 30, cfg.MaxHops)
	assert.Equal(t, 3, cfg.ProbesPerHop)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.EnableDNS)
	assert.True(t, cfg.EnableGeo)
	assert.True(t, cfg.UseCache)

	cfg.Target = "example.com"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Target = "example.com"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(cfg *Config)
		field  string
	}{
		{name: "missing target", mutate: func(cfg *Config) { cfg.Target = "" }, field: "target"},
		{name: "unknown protocol", mutate: func(cfg *Config) { cfg.Protocol = "sctp" }, field: "protocol"},
		{name: "negative port", mutate: func(cfg *Config) { cfg.Port = -1 }, field: "port"},
		{name: "port out of range", mutate: func(cfg *Config) { cfg.Port = 70000 }, field: "port"},
		{name: "zero max hops", mutate: func(cfg *Config) { cfg.MaxHops = 0 }, field: "maxHops"},
		{name: "max hops beyond ttl", mutate: func(cfg *Config) { cfg.MaxHops = 256 }, field: "maxHops"},
		{name: "zero probes", mutate: func(cfg *Config) { cfg.ProbesPerHop = 0 }, field: "probesPerHop"},
		{name: "zero timeout", mutate: func(cfg *Config) { cfg.Timeout = 0 }, field: "timeout"},
		{name: "negative max timeouts", mutate: func(cfg *Config) { cfg.MaxTimeouts = -1 }, field: "maxTimeouts"},
		{name: "unknown tcp policy", mutate: func(cfg *Config) { cfg.TCPReached = "rst" }, field: "tcpReached"},
		{name: "negative workers", mutate: func(cfg *Config) { cfg.Workers = -1 }, field: "workers"},
		{name: "negative lookup timeout", mutate: func(cfg *Config) { cfg.LookupTimeout = -time.Second }, field: "lookupTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cerr ErrInvalidConfig
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestConfig_Port(t *testing.T) {
	tests := []struct {
		name     string
		protocol traceroute.Protocol
		port     int
		want     int
	}{
		{name: "icmp has no port", protocol: traceroute.ProtocolICMP, want: 0},
		{name: "tcp defaults to http", protocol: traceroute.ProtocolTCP, want: 80},
		{name: "tcp keeps an explicit port", protocol: traceroute.ProtocolTCP, port: 443, want: 443},
		{name: "udp defaults to the classic walk", protocol: traceroute.ProtocolUDP, want: 0},
		{name: "udp keeps an explicit port", protocol: traceroute.ProtocolUDP, port: 53, want: 53},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Protocol: tt.protocol, Port: tt.port}
			assert.Equal(t, tt.want, cfg.port())
		})
	}
}

func TestConfig_YAML(t *testing.T) {
	raw := `
target: example.com
protocol: tcp
port: 443
maxHops: 24
probesPerHop: 5
timeout: 1s
tcpReached: synack
retry:
  count: 2
  delay: 200ms
enableDns: true
enableGeo: false
useCache: true
cachePath: /var/lib/tracelens/cache.json
workers: 4
lookupTimeout: 2s
diag:
  latencyJump: 50ms
  spikeMultiplier: 3
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	want := Config{
		Target:        "example.com",
		Protocol:      traceroute.ProtocolTCP,
		Port:          443,
		MaxHops:       24,
		ProbesPerHop:  5,
		Timeout:       time.Second,
		TCPReached:    traceroute.TCPReachedSynAck,
		Retry:         helper.RetryConfig{Count: 2, Delay: 200 * time.Millisecond},
		EnableDNS:     true,
		UseCache:      true,
		CachePath:     "/var/lib/tracelens/cache.json",
		Workers:       4,
		LookupTimeout: 2 * time.Second,
		Diag:          diag.Config{LatencyJump: 50 * time.Millisecond, SpikeMultiplier: 3},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}
