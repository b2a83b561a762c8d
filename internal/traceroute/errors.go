// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// isTimeout reports whether the error is a read deadline expiry or a
// context deadline. The reader loops use it to tell a rolling deadline
// from a closed socket.
func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

// IsPrivilegeError reports whether the error stems from missing raw
// socket privileges. Opening the shared sockets needs CAP_NET_RAW,
// which unprivileged processes lack.
func IsPrivilegeError(err error) bool {
	return errors.Is(err, unix.EPERM) || errors.Is(err, os.ErrPermission)
}

// IsNetworkUnreachable reports whether the error indicates that no
// route to the probed destination exists.
func IsNetworkUnreachable(err error) bool {
	return errors.Is(err, unix.ENETUNREACH) || errors.Is(err, unix.EHOSTUNREACH)
}
