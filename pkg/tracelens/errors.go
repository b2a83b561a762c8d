// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package tracelens

import "fmt"

// ErrInvalidConfig is returned when the configuration rejects before
// any network activity starts.
type ErrInvalidConfig struct {
	// Field is the offending configuration field.
	Field string
	// Reason explains why the value was rejected.
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid configuration field %q: %s", e.Field, e.Reason)
}

// ErrResolution is returned when the target does not resolve to an
// IPv4 address.
type ErrResolution struct {
	// Target is the name or address that failed to resolve.
	Target string
	// Err is the underlying resolver error.
	Err error
}

func (e ErrResolution) Error() string {
	return fmt.Sprintf("failed to resolve %s: %v", e.Target, e.Err)
}

func (e ErrResolution) Unwrap() error { return e.Err }

// ErrPrivilege is returned when the probing sockets cannot be opened
// for lack of privileges.
type ErrPrivilege struct {
	// Op names the probing operation that was denied.
	Op string
	// Err is the underlying socket error.
	Err error
}

func (e ErrPrivilege) Error() string {
	return fmt.Sprintf("%s requires CAP_NET_RAW or root privileges: %v", e.Op, e.Err)
}

func (e ErrPrivilege) Unwrap() error { return e.Err }

// ErrNetworkUnreachable is returned when no route to the target exists.
type ErrNetworkUnreachable struct {
	// Target is the address without a route.
	Target string
	// Err is the underlying socket error.
	Err error
}

func (e ErrNetworkUnreachable) Error() string {
	return fmt.Sprintf("no route to %s: %v", e.Target, e.Err)
}

func (e ErrNetworkUnreachable) Unwrap() error { return e.Err }
