// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"fmt"
	"net"
	"time"
)

// tcpProber sends raw SYN probes towards the target. Answers arrive on
// two paths: ICMP errors from intermediate routers on the shared ICMP
// socket, and SYN-ACK or RST segments from the target itself on the raw
// TCP socket. The source port of each probe is the correlation token on
// both paths.
//
// No connection is ever completed. The kernel holds no state for our
// hand-built SYNs, so it answers an incoming SYN-ACK with a RST on its
// own, which closes the half-open connection at the target.
type tcpProber struct {
	l        *listener
	target   Target
	src      net.IP
	basePort int
	policy   TCPReachedPolicy
	timeout  time.Duration
}

// newTCPProber opens the shared listener pair and prepares SYN probing
// of the target.
func newTCPProber(ctx context.Context, target Target, opts *Options) (*tcpProber, error) {
	src, err := findSourceIP(target.IP)
	if err != nil {
		return nil, fmt.Errorf("failed to determine source address: %w", err)
	}

	l, err := newListener(ctx, target)
	if err != nil {
		return nil, err
	}

	return &tcpProber{
		l:        l,
		target:   target,
		src:      src,
		basePort: randomPort(),
		policy:   opts.tcpReached(),
		timeout:  opts.Timeout,
	}, nil
}

// send emits one SYN probe with the given TTL and waits for its reply.
// An unanswered probe yields a timed out result, not an error.
func (p *tcpProber) send(ctx context.Context, ttl, seq int) (ProbeResult, error) {
	srcPort := p.srcPort(seq)
	tok := token{id: srcPort}
	ch := p.l.register(tok)
	defer p.l.deregister(tok)

	pkt := buildSYN(p.src, p.target.IP, srcPort, p.target.Port, ttl, seq)
	start := time.Now()
	if err := p.l.sendSYN(pkt, p.target.IP); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to send SYN probe: %w", err)
	}

	return awaitReply(ctx, ch, start, p.timeout, ttl, p.outcome)
}

// srcPort derives the probe's source port from its sequence number,
// wrapping within the ephemeral range so concurrent probes of a hop
// stay distinguishable.
func (p *tcpProber) srcPort(seq int) int {
	return basePort + (p.basePort-basePort+seq)%portRange
}

// outcome maps a routed reply to the outcome of a SYN probe. A RST from
// the target means the port is closed but the host answered; whether
// that counts as reaching the destination is a policy decision.
func (p *tcpProber) outcome(rep reply) ProbeOutcome {
	switch rep.kind {
	case replySynAck:
		return OutcomeReached
	case replyReset:
		if p.policy == TCPReachedSynAck {
			return OutcomeUnreachable
		}
		return OutcomeReached
	case replyUnreachable:
		return OutcomeUnreachable
	default:
		return OutcomeTimeExceeded
	}
}

// Close releases the shared listener pair.
func (p *tcpProber) Close() error {
	return p.l.Close()
}
