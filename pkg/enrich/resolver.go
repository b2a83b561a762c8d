// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"net"
)

// Resolver does reverse DNS lookups.
type Resolver interface {
	// LookupAddr performs a reverse lookup for the given address,
	// returning a list of names mapping to that address.
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

type resolver struct {
	*net.Resolver
}

// NewResolver creates a new Resolver using the pure Go implementation.
func NewResolver() Resolver {
	return &resolver{
		Resolver: &net.Resolver{
			PreferGo: true,
		},
	}
}
