// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/telekom/tracelens/internal/logger"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	// mtuSize is the buffer size for reading raw packets.
	mtuSize = 1500
	// readInterval is the rolling read deadline of the reader loops.
	// It bounds how long Close can lag behind a blocked read.
	readInterval = time.Second
)

// IP protocol numbers of the packets quoted in ICMP error messages.
const (
	protoICMP = 1
	protoTCP  = 6
	protoUDP  = 17
)

// token identifies an outstanding probe on the shared sockets.
// For ICMP probes it is the echo identifier and sequence number,
// for TCP probes the local source port with a zero sequence.
type token struct {
	id  int
	seq int
}

// replyKind classifies a reply routed to a waiting probe.
type replyKind int

const (
	replyTimeExceeded replyKind = iota
	replyUnreachable
	replyEchoReply
	replySynAck
	replyReset
)

// reply is a parsed response to a single probe.
type reply struct {
	// kind classifies the response.
	kind replyKind
	// code is the ICMP code for unreachable replies.
	code int
	// from is the address of the device that sent the response.
	from net.IP
	// at is the receive timestamp, used for RTT calculation.
	at time.Time
}

// ICMP codes for Destination Unreachable messages.
// For more information, see:
// https://www.iana.org/assignments/icmp-parameters/icmp-parameters.xhtml#icmp-parameters-codes-3
const (
	// icmpUnreachableHost is the ICMP code for Destination Unreachable - "Host Unreachable" messages.
	icmpUnreachableHost = 1
	// icmpUnreachablePort is the ICMP code for Destination Unreachable - "Port Unreachable" messages.
	icmpUnreachablePort = 3
)

// listener owns the shared raw sockets of one sweep. Every socket has
// exactly one reader goroutine, which parses inbound packets, extracts
// the correlation token and routes the reply to the probe that
// registered the token. Packets without a registered token are dropped.
type listener struct {
	// conn is the shared raw ICMP socket, used both for sending echo
	// probes and for receiving all ICMP replies of the sweep.
	conn *icmp.PacketConn
	// tcpConn is the raw TCP socket used for TCP sweeps. It sends
	// SYN probes with IP_HDRINCL and receives direct answers from
	// the target. Nil for other protocols.
	tcpConn net.PacketConn
	// target is the destination the sweep probes towards. Direct TCP
	// answers are only accepted from this address.
	target Target

	mu      sync.Mutex
	waiters map[token]chan reply

	done chan struct{}
	once sync.Once
}

// newListener opens the shared sockets for the given target and starts
// their reader goroutines. Creating the raw sockets requires the
// CAP_NET_RAW capability; the permission error is returned as is so
// callers can surface it distinctly.
func newListener(ctx context.Context, target Target) (*listener, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("failed to create ICMP listener: %w", err)
	}

	l := &listener{
		conn:    conn,
		target:  target,
		waiters: make(map[token]chan reply),
		done:    make(chan struct{}),
	}

	if target.Protocol == ProtocolTCP {
		tc, terr := net.ListenPacket("ip4:6", "0.0.0.0")
		if terr != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create raw TCP listener: %w", terr)
		}
		if terr = setHeaderInclude(tc); terr != nil {
			_ = conn.Close()
			_ = tc.Close()
			return nil, fmt.Errorf("failed to enable IP_HDRINCL: %w", terr)
		}
		l.tcpConn = tc
		go l.readTCP(ctx)
	}

	go l.readICMP(ctx)
	return l, nil
}

// register adds a waiter for the given token and returns the channel
// its reply will be delivered on. The channel is buffered so the
// reader never blocks on a slow or abandoned probe.
func (l *listener) register(tok token) <-chan reply {
	ch := make(chan reply, 1)
	l.mu.Lock()
	l.waiters[tok] = ch
	l.mu.Unlock()
	return ch
}

// deregister removes the waiter for the given token.
func (l *listener) deregister(tok token) {
	l.mu.Lock()
	delete(l.waiters, tok)
	l.mu.Unlock()
}

// route delivers a reply to the waiter registered for the token.
// Replies for unknown tokens and duplicates are dropped.
func (l *listener) route(tok token, rep reply) {
	l.mu.Lock()
	ch, ok := l.waiters[tok]
	l.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- rep:
	default:
	}
}

// setTTL sets the IP TTL for outgoing packets on the shared ICMP socket.
func (l *listener) setTTL(ttl int) error {
	return l.conn.IPv4PacketConn().SetTTL(ttl)
}

// sendEcho writes a marshaled ICMP message to the destination.
func (l *listener) sendEcho(b []byte, dst net.IP) error {
	_, err := l.conn.WriteTo(b, &net.IPAddr{IP: dst})
	return err
}

// sendSYN writes a complete IPv4+TCP packet to the destination.
func (l *listener) sendSYN(pkt []byte, dst net.IP) error {
	_, err := l.tcpConn.WriteTo(pkt, &net.IPAddr{IP: dst})
	return err
}

// readICMP is the single reader of the shared ICMP socket. It runs
// until the listener is closed.
func (l *listener) readICMP(ctx context.Context) {
	log := logger.FromContext(ctx)
	buf := make([]byte, mtuSize)

	for {
		select {
		case <-l.done:
			return
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(readInterval)); err != nil {
			log.DebugContext(ctx, "Failed to set ICMP read deadline", "error", err)
			return
		}

		n, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			// This is most probably the closed socket during shutdown.
			log.DebugContext(ctx, "ICMP reader stopping", "error", err)
			return
		}
		at := time.Now()

		msg, err := icmp.ParseMessage(ipv4.ICMPTypeTimeExceeded.Protocol(), buf[:n])
		if err != nil {
			log.DebugContext(ctx, "Failed to parse ICMP message", "error", err)
			continue
		}

		tok, rep, ok := parseICMPReply(src, msg, at)
		if !ok {
			continue
		}
		l.route(tok, rep)
	}
}

// readTCP is the single reader of the raw TCP socket. It accepts only
// segments sent by the target to one of our probe source ports.
func (l *listener) readTCP(ctx context.Context) {
	log := logger.FromContext(ctx)
	buf := make([]byte, mtuSize)

	for {
		select {
		case <-l.done:
			return
		default:
		}

		if err := l.tcpConn.SetReadDeadline(time.Now().Add(readInterval)); err != nil {
			log.DebugContext(ctx, "Failed to set TCP read deadline", "error", err)
			return
		}

		n, src, err := l.tcpConn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			log.DebugContext(ctx, "TCP reader stopping", "error", err)
			return
		}
		at := time.Now()

		from := ipFromAddr(src)
		if from == nil || !from.Equal(l.target.IP) {
			continue
		}

		tok, rep, ok := parseTCPReply(from, buf[:n], l.target.Port, at)
		if !ok {
			continue
		}
		l.route(tok, rep)
	}
}

// Close stops the reader goroutines and closes the shared sockets.
func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.conn.Close()
		if l.tcpConn != nil {
			err = errors.Join(err, l.tcpConn.Close())
		}
	})
	return err
}

// parseICMPReply extracts the correlation token and the routed reply
// from an inbound ICMP message.
func parseICMPReply(src net.Addr, msg *icmp.Message, at time.Time) (token, reply, bool) {
	from := ipFromAddr(src)
	if from == nil {
		return token{}, reply{}, false
	}

	switch msg.Type {
	case ipv4.ICMPTypeEchoReply:
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok {
			return token{}, reply{}, false
		}
		return token{id: echo.ID, seq: echo.Seq},
			reply{kind: replyEchoReply, from: from, at: at}, true

	case ipv4.ICMPTypeTimeExceeded:
		body, ok := msg.Body.(*icmp.TimeExceeded)
		if !ok {
			return token{}, reply{}, false
		}
		tok, ok := innerToken(body.Data)
		if !ok {
			return token{}, reply{}, false
		}
		return tok, reply{kind: replyTimeExceeded, from: from, at: at}, true

	case ipv4.ICMPTypeDestinationUnreachable:
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok {
			return token{}, reply{}, false
		}
		tok, ok := innerToken(body.Data)
		if !ok {
			return token{}, reply{}, false
		}
		return tok, reply{kind: replyUnreachable, code: msg.Code, from: from, at: at}, true

	default:
		// Ignore other messages (e.g. Redirect).
		return token{}, reply{}, false
	}
}

// innerToken extracts the correlation token from the quoted original
// packet of a Time Exceeded or Destination Unreachable message. The
// quote starts with the inner IPv4 header, followed by at least the
// first 8 bytes of the original transport header.
func innerToken(data []byte) (token, bool) {
	if len(data) < ipv4.HeaderLen+8 {
		return token{}, false
	}

	ihl := int(data[0]&0x0f) * 4
	if ihl < ipv4.HeaderLen || len(data) < ihl+8 {
		return token{}, false
	}

	l4 := data[ihl:]
	switch data[9] {
	case protoICMP:
		// Echo request: identifier and sequence follow type, code
		// and checksum.
		return token{
			id:  int(binary.BigEndian.Uint16(l4[4:6])),
			seq: int(binary.BigEndian.Uint16(l4[6:8])),
		}, true
	case protoTCP, protoUDP:
		// The source port of the original segment is our token.
		return token{id: int(binary.BigEndian.Uint16(l4[0:2]))}, true
	default:
		return token{}, false
	}
}

// parseTCPReply extracts the correlation token and the routed reply
// from a raw TCP segment answered directly by the target.
func parseTCPReply(from net.IP, seg []byte, targetPort int, at time.Time) (token, reply, bool) {
	const minTCPHeader = 20
	if len(seg) < minTCPHeader {
		return token{}, reply{}, false
	}

	srcPort := int(binary.BigEndian.Uint16(seg[0:2]))
	dstPort := int(binary.BigEndian.Uint16(seg[2:4]))
	if srcPort != targetPort {
		return token{}, reply{}, false
	}

	const (
		flagRST = 0x04
		flagSYN = 0x02
		flagACK = 0x10
	)
	flags := seg[13]

	var kind replyKind
	switch {
	case flags&flagSYN != 0 && flags&flagACK != 0:
		kind = replySynAck
	case flags&flagRST != 0:
		kind = replyReset
	default:
		return token{}, reply{}, false
	}

	return token{id: dstPort}, reply{kind: kind, from: from, at: at}, true
}

// setHeaderInclude enables IP_HDRINCL on a raw IPv4 socket so sends
// carry a caller-built IP header.
func setHeaderInclude(conn net.PacketConn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("the provided connection does not implement syscall.Conn: %T", conn)
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get RawConn: %w", err)
	}

	var opErr error
	if err = rc.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_HDRINCL, 1) // #nosec G115 // The net package is safe to use
	}); err != nil {
		return err
	}
	return opErr
}
