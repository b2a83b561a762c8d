// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ip   net.IP
		want Classification
	}{
		{name: "rfc1918 class A", ip: net.ParseIP("10.1.2.3"), want: ClassPrivate},
		{name: "rfc1918 class B", ip: net.ParseIP("172.16.0.1"), want: ClassPrivate},
		{name: "rfc1918 class C", ip: net.ParseIP("192.168.178.1"), want: ClassPrivate},
		{name: "loopback", ip: net.ParseIP("127.0.0.1"), want: ClassPrivate},
		{name: "link local", ip: net.ParseIP("169.254.10.20"), want: ClassPrivate},
		{name: "multicast", ip: net.ParseIP("224.0.0.1"), want: ClassPrivate},
		{name: "broadcast", ip: net.ParseIP("255.255.255.255"), want: ClassPrivate},
		{name: "this network", ip: net.ParseIP("0.1.2.3"), want: ClassPrivate},
		{name: "cgnat lower bound", ip: net.ParseIP("100.64.0.1"), want: ClassCGNAT},
		{name: "cgnat upper bound", ip: net.ParseIP("100.127.255.254"), want: ClassCGNAT},
		{name: "beyond cgnat", ip: net.ParseIP("100.128.0.1"), want: ClassPublic},
		{name: "benchmarking range", ip: net.ParseIP("198.18.0.1"), want: ClassPrivate},
		{name: "documentation range", ip: net.ParseIP("192.0.2.5"), want: ClassPrivate},
		{name: "documentation range 2", ip: net.ParseIP("203.0.113.9"), want: ClassPrivate},
		{name: "reserved class E", ip: net.ParseIP("240.0.0.1"), want: ClassPrivate},
		{name: "public resolver", ip: net.ParseIP("8.8.8.8"), want: ClassPublic},
		{name: "public cdn", ip: net.ParseIP("1.1.1.1"), want: ClassPublic},
		{name: "nil address", ip: nil, want: ClassPrivate},
		{name: "ipv6 address", ip: net.ParseIP("2001:db8::1"), want: ClassPrivate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ip))
		})
	}
}
