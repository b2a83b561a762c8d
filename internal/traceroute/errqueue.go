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
	"syscall"
	"time"

	"github.com/telekom/tracelens/internal/logger"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	// oobBufSize is the size of the out-of-band buffer used for receiving extended error messages.
	oobBufSize = 512
	// dataBufSize is the size of the data buffer used for receiving messages.
	dataBufSize = 64
)

// errQueueListener reads ICMP errors from the kernel error queue of a
// connected UDP probe socket. It requires IP_RECVERR enabled on the
// socket. The socket itself is the correlation: the kernel only queues
// errors provoked by this socket's probes.
type errQueueListener struct {
	conn    net.Conn
	rawConn syscall.RawConn
	oobBuf  []byte
}

// newErrQueueListener wraps a UDP connection in an errQueueListener.
func newErrQueueListener(conn net.Conn) (*errQueueListener, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("the provided connection does not implement syscall.Conn: %T", conn)
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to get RawConn: %w", err)
	}

	return &errQueueListener{
		conn:    conn,
		rawConn: rc,
		oobBuf:  make([]byte, oobBufSize),
	}, nil
}

// read waits until an ICMP error arrives on the error queue or the
// context deadline expires. Messages that cannot be parsed are skipped,
// only the deadline ends the wait.
func (l *errQueueListener) read(ctx context.Context) (reply, error) {
	log := logger.FromContext(ctx)
	deadline, ok := ctx.Deadline()
	if !ok || deadline.IsZero() {
		return reply{}, context.Canceled
	}

	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return reply{}, fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return reply{}, ctx.Err()
		default:
		}

		rep, err := l.recvPacket()
		if err != nil {
			if isTimeout(err) {
				return reply{}, context.DeadlineExceeded
			}
			log.DebugContext(ctx, "Failed to receive ICMP error", "error", err)
			continue
		}
		return *rep, nil
	}
}

// recvPacket performs Recvmsg(..., MSG_ERRQUEUE) and parses one ICMP
// error. An empty queue suspends on the poller until the socket becomes
// ready again, which a queued error triggers.
func (l *errQueueListener) recvPacket() (*reply, error) {
	var rep *reply
	var opErr error
	err := l.rawConn.Read(func(fd uintptr) bool {
		oob, rerr := recvMsg(fd, l.oobBuf, unix.MSG_ERRQUEUE)
		if rerr != nil {
			if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) {
				return false
			}
			opErr = rerr
			return true
		}

		rep, opErr = parseExtendedErr(oob)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read from raw connection: %w", err)
	}

	if opErr != nil {
		return nil, fmt.Errorf("failed to read ICMP error: %w", opErr)
	}
	return rep, nil
}

// unixRecvMsg is a wrapper around the [unix.Recvmsg] function.
// It allows us to mock the function in tests.
var unixRecvMsg = unix.Recvmsg

// recvMsg receives one message from the socket error queue and returns
// its out-of-band data. The regular data is the payload of our own
// probe and is only drained.
var recvMsg = func(fd uintptr, oob []byte, flags int) ([]byte, error) {
	dataBuf := make([]byte, dataBufSize)
	_, oobn, _, _, err := unixRecvMsg(int(fd), dataBuf, oob, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	return oob[:oobn], nil
}

// parseExtendedErr decodes SOL_IP / IP_RECVERR control messages for both TimeExceeded and DestinationUnreachable.
var parseExtendedErr = func(oob []byte) (*reply, error) {
	cms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("failed to parse control messages: %w", err)
	}

	for _, cm := range cms {
		if cm.Header.Level != unix.SOL_IP || cm.Header.Type != unix.IP_RECVERR {
			continue
		}

		ee, err := newSockExtendedErr(cm.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode extended error: %w", err)
		}

		var kind replyKind
		switch ee.Type {
		case uint8(ipv4.ICMPTypeTimeExceeded):
			kind = replyTimeExceeded
		case uint8(ipv4.ICMPTypeDestinationUnreachable):
			kind = replyUnreachable
		default:
			return nil, fmt.Errorf("unexpected ICMP type %d with code %d", ee.Type, ee.Code)
		}

		return &reply{
			kind: kind,
			code: int(ee.Code),
			from: offenderAddr(cm.Data),
			at:   time.Now(),
		}, nil
	}

	return nil, errors.New("no SOL_IP/IP_RECVERR message found")
}

// minExtendedErrSize is the minimum size of the extended error structure
// as defined in the Linux kernel documentation:
// https://man7.org/linux/man-pages/man7/ip.7.html
const minExtendedErrSize = 16

// newSockExtendedErr converts the first 16 bytes of an OOB buffer into a [unix.SockExtendedErr].
func newSockExtendedErr(data []byte) (unix.SockExtendedErr, error) {
	if len(data) < minExtendedErrSize {
		return unix.SockExtendedErr{}, fmt.Errorf("extended error too short: %d bytes", len(data))
	}

	return unix.SockExtendedErr{
		Errno:  binary.LittleEndian.Uint32(data[0:4]),
		Origin: data[4],
		Type:   data[5],
		Code:   data[6],
		Info:   binary.LittleEndian.Uint32(data[8:12]),
		Data:   binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// offenderAddr extracts the address of the device that sent the ICMP
// error from the sockaddr the kernel appends after the extended error
// structure (SO_EE_OFFENDER). Returns nil when the origin is unknown.
func offenderAddr(data []byte) net.IP {
	const addrOffset = minExtendedErrSize + 4
	if len(data) < addrOffset+net.IPv4len {
		return nil
	}

	family := binary.LittleEndian.Uint16(data[minExtendedErrSize : minExtendedErrSize+2])
	if family != unix.AF_INET {
		return nil
	}

	ip := make(net.IP, net.IPv4len)
	copy(ip, data[addrOffset:addrOffset+net.IPv4len])
	return ip
}
