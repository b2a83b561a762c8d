// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// udpBasePort is the first destination port of the classic
	// traceroute walk, used when the target carries no port.
	udpBasePort = 33434
	// udpPortSpread is how many destination ports the walk rotates
	// through before wrapping.
	udpPortSpread = 30
)

// udpProber sends UDP probes to high destination ports. Each probe uses
// its own connected socket with IP_RECVERR enabled, so the kernel
// correlates ICMP errors to the probe and queues them on the socket
// error queue. No raw socket and no extra privileges are needed.
type udpProber struct {
	target  Target
	timeout time.Duration
	// dial abstracts the creation of a UDP socket with TTL configured.
	dial func(ctx context.Context, addr *net.UDPAddr, ttl int, timeout time.Duration) (net.Conn, error)
}

// newUDPProber prepares UDP probing of the target.
func newUDPProber(_ context.Context, target Target, opts *Options) (*udpProber, error) {
	return &udpProber{
		target:  target,
		timeout: opts.Timeout,
		dial:    dialUDP,
	}, nil
}

// send emits one UDP probe with the given TTL and waits for the ICMP
// error it provokes. An unanswered probe yields a timed out result,
// not an error.
func (p *udpProber) send(ctx context.Context, ttl, seq int) (ProbeResult, error) {
	dstPort := p.target.Port
	if dstPort == 0 {
		dstPort = udpBasePort + seq%udpPortSpread
	}

	conn, err := p.dial(ctx, &net.UDPAddr{IP: p.target.IP, Port: dstPort}, ttl, p.timeout)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed to dial UDP connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	eq, err := newErrQueueListener(conn)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed creating errQueueListener: %w", err)
	}

	start := time.Now()
	if _, err = conn.Write(probePayload); err != nil {
		return ProbeResult{}, fmt.Errorf("failed sending UDP probe: %w", err)
	}

	ctx, cancel := context.WithDeadline(ctx, start.Add(p.timeout))
	defer cancel()

	rep, err := eq.read(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ProbeResult{TTL: ttl, Outcome: OutcomeTimedOut}, nil
	case err != nil:
		return ProbeResult{}, fmt.Errorf("failed to read ICMP error: %w", err)
	}

	return ProbeResult{
		TTL:     ttl,
		RTT:     rep.at.Sub(start),
		From:    rep.from,
		Outcome: p.outcome(rep),
	}, nil
}

// outcome maps a queued ICMP error to the outcome of a UDP probe. A
// port unreachable from the target is the classic arrival signal.
func (p *udpProber) outcome(rep reply) ProbeOutcome {
	switch rep.kind {
	case replyUnreachable:
		if rep.code == icmpUnreachablePort && (rep.from == nil || rep.from.Equal(p.target.IP)) {
			return OutcomeReached
		}
		return OutcomeUnreachable
	default:
		return OutcomeTimeExceeded
	}
}

// Close is a no-op, probe sockets are per probe.
func (p *udpProber) Close() error {
	return nil
}

// dialUDP sets up a connected UDP socket with the desired TTL and the
// kernel error queue enabled. We bind to a random local port so the
// kernel routes ICMP errors back to exactly this socket.
func dialUDP(ctx context.Context, addr *net.UDPAddr, ttl int, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		LocalAddr: &net.UDPAddr{Port: randomPort()},
		Timeout:   timeout,
		ControlContext: func(_ context.Context, _, _ string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = errors.Join(
					unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TTL, ttl), // #nosec G115
					unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_RECVERR, 1),   // #nosec G115
				)
			}); err != nil {
				return err
			}
			return opErr
		},
	}

	return dialer.DialContext(ctx, "udp4", addr.String())
}
