// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"encoding/binary"
	"net"
)

// probePayload marks outgoing echo probes.
var probePayload = []byte("tracelens")

const (
	ipv4HeaderLen = 20
	tcpHeaderLen  = 20
)

// buildSYN assembles a complete IPv4 packet carrying a TCP SYN segment.
// The raw socket sends with IP_HDRINCL, so the header goes out as built
// here, with the hop limit burned into the TTL field of this packet
// instead of a socket option. That keeps concurrent probes with
// different TTLs safe on one socket.
func buildSYN(src, dst net.IP, srcPort, dstPort, ttl, seq int) []byte {
	pkt := make([]byte, ipv4HeaderLen+tcpHeaderLen)
	writeIPv4Header(pkt[:ipv4HeaderLen], src, dst, ttl, protoTCP, len(pkt))
	writeTCPSYN(pkt[ipv4HeaderLen:], src, dst, srcPort, dstPort, seq)
	return pkt
}

// writeIPv4Header fills a 20 byte IPv4 header without options.
func writeIPv4Header(h []byte, src, dst net.IP, ttl, proto, totalLen int) {
	h[0] = 0x45 // version 4, header length 5 words
	binary.BigEndian.PutUint16(h[2:4], uint16(totalLen)) // #nosec G115 // probe packets are far below 64k
	h[8] = byte(ttl)
	h[9] = byte(proto)
	copy(h[12:16], src.To4())
	copy(h[16:20], dst.To4())
	binary.BigEndian.PutUint16(h[10:12], checksum(h))
}

// writeTCPSYN fills a 20 byte TCP header for a SYN probe. The TCP
// sequence number carries the probe sequence, which survives in the
// quoted header of ICMP errors even if a middlebox rewrites ports.
func writeTCPSYN(h []byte, src, dst net.IP, srcPort, dstPort, seq int) {
	binary.BigEndian.PutUint16(h[0:2], uint16(srcPort)) // #nosec G115 // ports are validated to 16 bit
	binary.BigEndian.PutUint16(h[2:4], uint16(dstPort)) // #nosec G115
	binary.BigEndian.PutUint32(h[4:8], uint32(seq))     // #nosec G115
	h[12] = 0x50 // data offset 5 words
	h[13] = 0x02 // SYN
	binary.BigEndian.PutUint16(h[14:16], 29200)
	binary.BigEndian.PutUint16(h[16:18], transportChecksum(src, dst, protoTCP, h))
}

// checksum computes the RFC 1071 internet checksum over b.
func checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum) // #nosec G115 // folded to 16 bit above
}

// transportChecksum computes the TCP checksum over the IPv4 pseudo
// header and the segment. The checksum field of seg must be zero.
func transportChecksum(src, dst net.IP, proto int, seg []byte) uint16 {
	pseudo := make([]byte, 12, 12+len(seg))
	copy(pseudo[0:4], src.To4())
	copy(pseudo[4:8], dst.To4())
	pseudo[9] = byte(proto)
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(seg))) // #nosec G115
	return checksum(append(pseudo, seg...))
}
