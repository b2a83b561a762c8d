// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "Valid options",
			opts: Options{MaxHops: 30, ProbesPerHop: 3, Timeout: 2 * time.Second},
		},
		{
			name: "Valid with reached policy",
			opts: Options{MaxHops: 30, ProbesPerHop: 3, Timeout: time.Second, TCPReached: TCPReachedSynAck},
		},
		{
			name:    "Zero max hops",
			opts:    Options{ProbesPerHop: 3, Timeout: time.Second},
			wantErr: true,
		},
		{
			name:    "Max hops above TTL range",
			opts:    Options{MaxHops: 256, ProbesPerHop: 3, Timeout: time.Second},
			wantErr: true,
		},
		{
			name:    "Zero probes per hop",
			opts:    Options{MaxHops: 30, Timeout: time.Second},
			wantErr: true,
		},
		{
			name:    "Zero timeout",
			opts:    Options{MaxHops: 30, ProbesPerHop: 3},
			wantErr: true,
		},
		{
			name:    "Negative max timeouts",
			opts:    Options{MaxHops: 30, ProbesPerHop: 3, Timeout: time.Second, MaxTimeouts: -1},
			wantErr: true,
		},
		{
			name:    "Unknown reached policy",
			opts:    Options{MaxHops: 30, ProbesPerHop: 3, Timeout: time.Second, TCPReached: "handshake"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{
			name:   "Valid ICMP target",
			target: Target{Protocol: ProtocolICMP, IP: net.ParseIP("192.0.2.1")},
		},
		{
			name:   "Valid TCP target with port",
			target: Target{Protocol: ProtocolTCP, IP: net.ParseIP("192.0.2.1"), Port: 443},
		},
		{
			name:    "Missing IP",
			target:  Target{Protocol: ProtocolICMP},
			wantErr: true,
		},
		{
			name:    "IPv6 address",
			target:  Target{Protocol: ProtocolICMP, IP: net.ParseIP("2001:db8::1")},
			wantErr: true,
		},
		{
			name:    "Unknown protocol",
			target:  Target{Protocol: "sctp", IP: net.ParseIP("192.0.2.1")},
			wantErr: true,
		},
		{
			name:    "Port out of range",
			target:  Target{Protocol: ProtocolTCP, IP: net.ParseIP("192.0.2.1"), Port: 70000},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTarget_String(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{
			name:   "No port",
			target: Target{Protocol: ProtocolICMP, IP: net.ParseIP("100.1.1.7")},
			want:   "100.1.1.7",
		},
		{
			name:   "With port",
			target: Target{Protocol: ProtocolTCP, IP: net.ParseIP("100.1.1.7"), Port: 80},
			want:   "100.1.1.7:80",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.String(); got != tt.want {
				t.Errorf("Target.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_newHop(t *testing.T) {
	router := net.ParseIP("10.0.0.1")
	dest := net.ParseIP("192.0.2.1")

	tests := []struct {
		name         string
		probes       []ProbeResult
		wantStatus   HopStatus
		wantIP       net.IP
		wantReached  bool
		wantSent     int
		wantReceived int
		wantMin      time.Duration
		wantAvg      time.Duration
		wantMax      time.Duration
	}{
		{
			name: "All probes answered",
			probes: []ProbeResult{
				{TTL: 1, RTT: 10 * time.Millisecond, From: router, Outcome: OutcomeTimeExceeded},
				{TTL: 1, RTT: 20 * time.Millisecond, From: router, Outcome: OutcomeTimeExceeded},
				{TTL: 1, RTT: 30 * time.Millisecond, From: router, Outcome: OutcomeTimeExceeded},
			},
			wantStatus:   StatusResponded,
			wantIP:       router,
			wantSent:     3,
			wantReceived: 3,
			wantMin:      10 * time.Millisecond,
			wantAvg:      20 * time.Millisecond,
			wantMax:      30 * time.Millisecond,
		},
		{
			name: "Partial loss",
			probes: []ProbeResult{
				{TTL: 2, RTT: 40 * time.Millisecond, From: router, Outcome: OutcomeTimeExceeded},
				{TTL: 2, Outcome: OutcomeTimedOut},
				{TTL: 2, Outcome: OutcomeTimedOut},
			},
			wantStatus:   StatusTimeout,
			wantIP:       router,
			wantSent:     3,
			wantReceived: 1,
			wantMin:      40 * time.Millisecond,
			wantAvg:      40 * time.Millisecond,
			wantMax:      40 * time.Millisecond,
		},
		{
			name: "Silent hop",
			probes: []ProbeResult{
				{TTL: 3, Outcome: OutcomeTimedOut},
				{TTL: 3, Outcome: OutcomeTimedOut},
				{TTL: 3, Outcome: OutcomeTimedOut},
			},
			wantStatus:   StatusUnreachable,
			wantSent:     3,
			wantReceived: 0,
		},
		{
			name: "Destination answered",
			probes: []ProbeResult{
				{TTL: 4, RTT: 50 * time.Millisecond, From: dest, Outcome: OutcomeReached},
				{TTL: 4, RTT: 60 * time.Millisecond, From: dest, Outcome: OutcomeReached},
			},
			wantStatus:   StatusResponded,
			wantIP:       dest,
			wantReached:  true,
			wantSent:     2,
			wantReceived: 2,
			wantMin:      50 * time.Millisecond,
			wantAvg:      55 * time.Millisecond,
			wantMax:      60 * time.Millisecond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hop := newHop(5, tt.probes)

			assert.Equal(t, 5, hop.Index)
			assert.Equal(t, tt.wantStatus, hop.Status)
			assert.Equal(t, tt.wantReached, hop.Reached)
			assert.Equal(t, tt.wantSent, hop.Sent)
			assert.Equal(t, tt.wantReceived, hop.Received)
			assert.Equal(t, tt.wantMin, hop.RTTMin)
			assert.Equal(t, tt.wantAvg, hop.RTTAvg)
			assert.Equal(t, tt.wantMax, hop.RTTMax)
			if tt.wantIP == nil {
				assert.Nil(t, hop.IP)
			} else {
				assert.True(t, hop.IP.Equal(tt.wantIP), "responder should be %s, got %s", tt.wantIP, hop.IP)
			}
		})
	}
}

func TestHop_String(t *testing.T) {
	router := net.ParseIP("10.0.0.1")

	t.Run("Responding hop", func(t *testing.T) {
		hop := newHop(3, []ProbeResult{
			{TTL: 3, RTT: 12 * time.Millisecond, From: router, Outcome: OutcomeTimeExceeded},
		})
		out := hop.String()
		assert.Contains(t, out, "3")
		assert.Contains(t, out, "10.0.0.1")
		assert.NotContains(t, out, "(reached)")
	})

	t.Run("Silent hop prints asterisk", func(t *testing.T) {
		hop := newHop(4, []ProbeResult{{TTL: 4, Outcome: OutcomeTimedOut}})
		assert.Contains(t, hop.String(), "*")
	})

	t.Run("Reached hop is marked", func(t *testing.T) {
		hop := newHop(5, []ProbeResult{
			{TTL: 5, RTT: time.Millisecond, From: router, Outcome: OutcomeReached},
		})
		assert.Contains(t, hop.String(), "(reached)")
	})
}

func TestHop_MarshalJSON(t *testing.T) {
	router := net.ParseIP("10.0.0.1")
	hop := newHop(2, []ProbeResult{
		{TTL: 2, RTT: 1500 * time.Microsecond, From: router, Outcome: OutcomeTimeExceeded},
		{TTL: 2, Outcome: OutcomeTimedOut},
	})

	b, err := json.Marshal(hop)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, float64(2), got["index"])
	assert.Equal(t, "10.0.0.1", got["ip"])
	assert.Equal(t, string(StatusTimeout), got["status"])
	assert.Equal(t, "1.5ms", got["rttMin"])
	assert.Equal(t, "1.5ms", got["rttMax"])

	probes, ok := got["probes"].([]any)
	require.True(t, ok, "probes should marshal as a list")
	require.Len(t, probes, 2)
	first, ok := probes[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.5ms", first["rtt"])
	second, ok := probes[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(OutcomeTimedOut), second["outcome"])
}
