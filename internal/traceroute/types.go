// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/telekom/tracelens/internal/helper"
)

// Protocol represents the probe protocol used for the traceroute.
type Protocol string

// Protocol constants for the traceroute.
const (
	ProtocolICMP Protocol = "icmp"
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
)

func (p Protocol) String() string {
	switch p {
	case ProtocolICMP, ProtocolTCP, ProtocolUDP:
		return string(p)
	default:
		return "unknown"
	}
}

func (p Protocol) IsValid() bool {
	valid := []Protocol{ProtocolICMP, ProtocolTCP, ProtocolUDP}
	return slices.Contains(valid, p)
}

// TCPReachedPolicy decides which direct response from the target
// counts as having reached the destination on a TCP trace.
type TCPReachedPolicy string

const (
	// TCPReachedAny treats any direct response (SYN-ACK or RST) as reached.
	TCPReachedAny TCPReachedPolicy = "any"
	// TCPReachedSynAck treats only a SYN-ACK as reached.
	TCPReachedSynAck TCPReachedPolicy = "synack"
)

func (p TCPReachedPolicy) IsValid() bool {
	return p == TCPReachedAny || p == TCPReachedSynAck
}

// Options contains the optional configuration for the traceroute.
type Options struct {
	// Retry is the retry configuration for failed probe sends.
	Retry helper.RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
	// MaxHops is the maximum TTL to sweep up to.
	MaxHops int `json:"maxHops" yaml:"maxHops" mapstructure:"maxHops"`
	// ProbesPerHop is the number of concurrent probes sent per TTL.
	ProbesPerHop int `json:"probesPerHop" yaml:"probesPerHop" mapstructure:"probesPerHop"`
	// Timeout is the timeout for each probe.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// MaxTimeouts aborts the sweep after this many consecutive hops
	// without any response. Zero disables the abort.
	MaxTimeouts int `json:"maxTimeouts" yaml:"maxTimeouts" mapstructure:"maxTimeouts"`
	// TCPReached selects the TCP destination-reached criterion.
	// Defaults to [TCPReachedAny] when empty.
	TCPReached TCPReachedPolicy `json:"tcpReached" yaml:"tcpReached" mapstructure:"tcpReached"`
}

func (o *Options) Validate() error {
	if o.MaxHops <= 0 || o.MaxHops > 255 {
		return fmt.Errorf("invalid max hops: %d, must be between 1 and 255", o.MaxHops)
	}
	if o.ProbesPerHop <= 0 {
		return fmt.Errorf("invalid probes per hop: %d, must be greater than 0", o.ProbesPerHop)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %v, must be greater than 0", o.Timeout)
	}
	if o.MaxTimeouts < 0 {
		return fmt.Errorf("invalid max timeouts: %d, must not be negative", o.MaxTimeouts)
	}
	if o.TCPReached != "" && !o.TCPReached.IsValid() {
		return fmt.Errorf("invalid tcp reached policy: %q", o.TCPReached)
	}
	return nil
}

// tcpReached returns the effective TCP reached policy.
func (o *Options) tcpReached() TCPReachedPolicy {
	if o.TCPReached == "" {
		return TCPReachedAny
	}
	return o.TCPReached
}

// Target represents a resolved target for the traceroute.
type Target struct {
	// Protocol is the protocol to use for the traceroute.
	Protocol Protocol `json:"protocol" yaml:"protocol" mapstructure:"protocol"`
	// IP is the resolved IPv4 address to trace to.
	IP net.IP `json:"ip" yaml:"ip" mapstructure:"ip"`
	// Port is the destination port. For UDP it is the base port
	// the per-probe rotation starts from.
	Port int `json:"port" yaml:"port" mapstructure:"port"`
}

func (t Target) String() string {
	if t.Port != 0 {
		return net.JoinHostPort(t.IP.String(), strconv.Itoa(t.Port))
	}
	return t.IP.String()
}

func (t Target) Validate() error {
	if t.IP == nil {
		return errors.New("target ip cannot be empty")
	}
	if t.IP.To4() == nil {
		return fmt.Errorf("invalid target ip: %s, must be an IPv4 address", t.IP)
	}
	if !t.Protocol.IsValid() {
		return fmt.Errorf("invalid target protocol: %s", t.Protocol)
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("invalid target port: %d, must be between 0 and 65535", t.Port)
	}
	return nil
}

// ProbeOutcome classifies how a single probe terminated.
type ProbeOutcome string

const (
	// OutcomeTimeExceeded means a router reported the TTL as expired.
	OutcomeTimeExceeded ProbeOutcome = "time-exceeded"
	// OutcomeReached means the destination answered the probe.
	OutcomeReached ProbeOutcome = "reached"
	// OutcomeTimedOut means no reply arrived within the probe timeout.
	OutcomeTimedOut ProbeOutcome = "timeout"
	// OutcomeUnreachable means an explicit unreachable reply arrived
	// that does not count as having reached the destination.
	OutcomeUnreachable ProbeOutcome = "unreachable"
)

// ProbeResult is the outcome of a single probe.
type ProbeResult struct {
	// TTL the probe was sent with.
	TTL int `json:"ttl" yaml:"ttl"`
	// RTT is the measured round trip time. Zero when no reply arrived.
	RTT time.Duration `json:"-" yaml:"-"`
	// From is the address that answered the probe, nil on timeout.
	From net.IP `json:"from,omitempty" yaml:"from,omitempty"`
	// Outcome classifies the probe termination.
	Outcome ProbeOutcome `json:"outcome" yaml:"outcome"`
}

func (p ProbeResult) MarshalJSON() ([]byte, error) {
	type alias ProbeResult
	return json.Marshal(&struct {
		RTT string `json:"rtt"`
		alias
	}{
		RTT:   p.RTT.String(),
		alias: alias(p),
	})
}

// replied reports whether the probe got any answer.
func (p ProbeResult) replied() bool {
	return p.Outcome != OutcomeTimedOut
}

// HopStatus summarizes the probes of one hop.
type HopStatus string

const (
	// StatusResponded means every probe of the hop was answered.
	StatusResponded HopStatus = "responded"
	// StatusTimeout means the hop answered some probes but lost others.
	StatusTimeout HopStatus = "timeout"
	// StatusUnreachable means no probe of the hop was answered.
	StatusUnreachable HopStatus = "unreachable"
)

// Hop is the finalized aggregate of all probes sent at one TTL.
type Hop struct {
	// Index is the 1-based hop index, equal to the TTL of its probes.
	Index int `json:"index" yaml:"index"`
	// Probes holds the individual probe results, in completion order.
	Probes []ProbeResult `json:"probes" yaml:"probes"`
	// IP is the responding address, nil if every probe timed out.
	IP net.IP `json:"ip,omitempty" yaml:"ip,omitempty"`
	// Status summarizes the probe outcomes.
	Status HopStatus `json:"status" yaml:"status"`
	// Reached indicates the destination answered at this hop.
	Reached bool `json:"reached" yaml:"reached"`
	// Sent and Received count the probes sent and answered.
	Sent     int `json:"sent" yaml:"sent"`
	Received int `json:"received" yaml:"received"`
	// RTTMin, RTTAvg and RTTMax aggregate the answered probes.
	RTTMin time.Duration `json:"-" yaml:"-"`
	RTTAvg time.Duration `json:"-" yaml:"-"`
	RTTMax time.Duration `json:"-" yaml:"-"`
}

func (h Hop) MarshalJSON() ([]byte, error) {
	type alias Hop
	return json.Marshal(&struct {
		RTTMin string `json:"rttMin"`
		RTTAvg string `json:"rttAvg"`
		RTTMax string `json:"rttMax"`
		alias
	}{
		RTTMin: h.RTTMin.String(),
		RTTAvg: h.RTTAvg.String(),
		RTTMax: h.RTTMax.String(),
		alias:  alias(h),
	})
}

func (h Hop) String() string {
	addr := "*"
	if h.IP != nil {
		addr = h.IP.String()
	}

	reached := ""
	if h.Reached {
		reached = "  (reached)"
	}

	return fmt.Sprintf("%-2d  %-45.45s  %s%s",
		h.Index, addr, h.RTTAvg.String(), reached)
}

// newHop folds the probe results of one TTL into a finalized Hop.
func newHop(ttl int, probes []ProbeResult) Hop {
	hop := Hop{
		Index:  ttl,
		Probes: probes,
		Sent:   len(probes),
	}

	var sum time.Duration
	for _, p := range probes {
		if !p.replied() {
			continue
		}
		hop.Received++
		if hop.IP == nil {
			hop.IP = p.From
		}
		if p.Outcome == OutcomeReached {
			hop.Reached = true
		}

		sum += p.RTT
		if hop.RTTMin == 0 || p.RTT < hop.RTTMin {
			hop.RTTMin = p.RTT
		}
		if p.RTT > hop.RTTMax {
			hop.RTTMax = p.RTT
		}
	}

	switch {
	case hop.Received == 0:
		hop.Status = StatusUnreachable
	case hop.Received < hop.Sent:
		hop.Status = StatusTimeout
	default:
		hop.Status = StatusResponded
	}

	if hop.Received > 0 {
		hop.RTTAvg = sum / time.Duration(hop.Received)
	}
	return hop
}
