// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline exceeded", fmt.Errorf("ctx error: %w", context.DeadlineExceeded), true},
		{"read deadline", os.ErrDeadlineExceeded, true},
		{"net op timeout", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, true},
		{"some other error", errors.New("foo"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isTimeout(tt.err)
			assert.Equal(t, tt.want, got, "isTimeout(%v)", tt.err)
		})
	}
}

func TestIsPrivilegeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"eperm", unix.EPERM, true},
		{"wrapped eperm", fmt.Errorf("socket: %w", unix.EPERM), true},
		{"op error around eperm", &net.OpError{Op: "listen", Err: os.NewSyscallError("socket", unix.EPERM)}, true},
		{"permission sentinel", os.ErrPermission, true},
		{"unrelated errno", unix.ECONNREFUSED, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsPrivilegeError(tt.err)
			assert.Equal(t, tt.want, got, "IsPrivilegeError(%v)", tt.err)
		})
	}
}

func TestIsNetworkUnreachable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"enetunreach", unix.ENETUNREACH, true},
		{"ehostunreach", unix.EHOSTUNREACH, true},
		{"wrapped enetunreach", fmt.Errorf("sendto: %w", unix.ENETUNREACH), true},
		{"unrelated errno", unix.EPERM, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNetworkUnreachable(tt.err)
			assert.Equal(t, tt.want, got, "IsNetworkUnreachable(%v)", tt.err)
		})
	}
}
