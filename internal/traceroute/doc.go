// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package traceroute discovers the router path towards a target by
// sending probes with incrementing TTLs and interpreting the ICMP
// time-exceeded and destination-unreachable messages they provoke.
//
// It exposes a [Client] for running a sweep against a [Target] with
// configurable [Options]. Probes go out over ICMP echo, raw TCP SYN or
// UDP to high ports, selected per target. Replies of a sweep arrive on
// shared sockets, where a single reader goroutine per socket matches
// them to in-flight probes by correlation token: the echo identifier
// and sequence for ICMP, the probe source port for TCP. UDP probes use
// connected sockets with IP_RECVERR instead, so the kernel does the
// matching and no raw socket is needed.
//
// Key features:
//   - Raw SYN probing with the TTL built into the packet header via
//     IP_HDRINCL (no connection is ever completed)
//   - Per-hop probe fan-out with deterministic sequence numbers, so
//     late replies of earlier hops are never miscounted
//   - Built-in OpenTelemetry spans and events for tracing each hop
//   - Prometheus collectors for probe outcomes and round trip times
//   - Configurable retry policy, timeouts, and maximum hops via Options
//
// Typical usage:
//
//	client := traceroute.NewClient()
//	opts := &traceroute.Options{MaxHops: 30, ProbesPerHop: 3, Timeout: 2 * time.Second}
//	hops, err := client.Run(ctx, traceroute.Target{
//		Protocol: traceroute.ProtocolICMP,
//		IP:       net.ParseIP("192.0.2.1"),
//	}, opts)
//	// hops holds one entry per TTL probed, in order
package traceroute
