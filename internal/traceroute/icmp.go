// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// icmpProber sends echo request probes over the shared raw socket.
// All probes of a sweep share one echo identifier; the sequence number
// makes each probe unique on the wire.
type icmpProber struct {
	l       *listener
	target  Target
	id      int
	timeout time.Duration
}

// newICMPProber opens the shared listener and prepares echo probing of
// the target.
func newICMPProber(ctx context.Context, target Target, opts *Options) (*icmpProber, error) {
	l, err := newListener(ctx, target)
	if err != nil {
		return nil, err
	}

	return &icmpProber{
		l:       l,
		target:  target,
		id:      os.Getpid() & 0xffff,
		timeout: opts.Timeout,
	}, nil
}

// send emits one echo probe with the given TTL and waits for its reply.
// An unanswered probe yields a timed out result, not an error.
func (p *icmpProber) send(ctx context.Context, ttl, seq int) (ProbeResult, error) {
	tok := token{id: p.id, seq: seq}
	ch := p.l.register(tok)
	defer p.l.deregister(tok)

	// Probes within a hop share the TTL and hops run one after the
	// other, so setting it on the shared socket is race free.
	if err := p.l.setTTL(ttl); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to set TTL %d: %w", ttl, err)
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: probePayload},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	start := time.Now()
	if err := p.l.sendEcho(b, p.target.IP); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to send echo request: %w", err)
	}

	return awaitReply(ctx, ch, start, p.timeout, ttl, icmpOutcome)
}

// Close releases the shared listener.
func (p *icmpProber) Close() error {
	return p.l.Close()
}

// icmpOutcome maps a routed reply to the outcome of an echo probe.
func icmpOutcome(rep reply) ProbeOutcome {
	switch rep.kind {
	case replyEchoReply:
		return OutcomeReached
	case replyUnreachable:
		return OutcomeUnreachable
	default:
		return OutcomeTimeExceeded
	}
}

// awaitReply waits for the routed reply of a probe sent at start, or
// for the probe timeout. Cancellation of the parent context is the only
// error case.
func awaitReply(ctx context.Context, ch <-chan reply, start time.Time, timeout time.Duration, ttl int, outcome func(reply) ProbeOutcome) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case rep := <-ch:
		return ProbeResult{
			TTL:     ttl,
			RTT:     rep.at.Sub(start),
			From:    rep.from,
			Outcome: outcome(rep),
		}, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProbeResult{TTL: ttl, Outcome: OutcomeTimedOut}, nil
		}
		return ProbeResult{}, ctx.Err()
	}
}
