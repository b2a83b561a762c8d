// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"net"
	"net/netip"
)

// Classification buckets an address by routability. Only public
// addresses are eligible for remote lookups.
type Classification string

const (
	// ClassPrivate covers RFC 1918 space and everything else that is
	// not globally routable, such as loopback, link local, multicast
	// and reserved ranges.
	ClassPrivate Classification = "private"
	// ClassCGNAT is the RFC 6598 shared address space.
	ClassCGNAT Classification = "cgnat"
	// ClassPublic is globally routable address space.
	ClassPublic Classification = "public"
)

var (
	cgnat = netip.MustParsePrefix("100.64.0.0/10")

	// specialPurpose lists IPv4 ranges from the IANA special-purpose
	// registry that count as global unicast but are not routable on
	// the public internet.
	specialPurpose = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("192.0.0.0/24"),
		netip.MustParsePrefix("192.0.2.0/24"),
		netip.MustParsePrefix("198.18.0.0/15"),
		netip.MustParsePrefix("198.51.100.0/24"),
		netip.MustParsePrefix("203.0.113.0/24"),
		netip.MustParsePrefix("240.0.0.0/4"),
	}
)

// Classify buckets an IPv4 address. Invalid or missing addresses
// classify as private, which keeps them away from remote lookups.
func Classify(ip net.IP) Classification {
	addr, ok := netip.AddrFromSlice(ip.To4())
	if !ok {
		return ClassPrivate
	}

	switch {
	case cgnat.Contains(addr):
		return ClassCGNAT
	case !addr.IsGlobalUnicast(), addr.IsPrivate():
		return ClassPrivate
	}
	for _, p := range specialPurpose {
		if p.Contains(addr) {
			return ClassPrivate
		}
	}
	return ClassPublic
}
