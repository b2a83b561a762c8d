// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	originSuffix = ".origin.asn.cymru.com"
	asSuffix     = ".asn.cymru.com"

	fallbackNameserver = "8.8.8.8:53"
)

// asnInfo is the routing registry data for a single address.
type asnInfo struct {
	asn     string
	org     string
	country string
}

// cymruClient resolves origin AS data through the Team Cymru
// IP-to-ASN DNS zones. Answers are plain TXT records, so any
// recursive resolver can serve them.
type cymruClient struct {
	client *dns.Client
	server string

	exchange func(ctx context.Context, msg *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

func newCymruClient(timeout time.Duration) *cymruClient {
	c := &cymruClient{
		client: &dns.Client{Timeout: timeout},
		server: nameserver(),
	}
	c.exchange = c.client.ExchangeContext
	return c
}

// nameserver returns the first resolver from /etc/resolv.conf,
// falling back to a public one when the file cannot be read.
func nameserver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return fallbackNameserver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// lookup resolves the origin AS, country and description for an
// address. The description is best effort, origin data alone is a
// valid answer.
func (c *cymruClient) lookup(ctx context.Context, ip net.IP) (asnInfo, error) {
	txt, err := c.queryTXT(ctx, reverseOctets(ip)+originSuffix)
	if err != nil {
		return asnInfo{}, err
	}
	info, ok := parseOrigin(txt)
	if !ok {
		return asnInfo{}, fmt.Errorf("malformed origin record %q", txt)
	}

	if txt, err = c.queryTXT(ctx, info.asn+asSuffix); err == nil {
		info.org = parseASDescription(txt)
	}
	return info, nil
}

func (c *cymruClient) queryTXT(ctx context.Context, name string) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	in, _, err := c.exchange(ctx, msg, c.server)
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("query for %s returned %s", name, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		if t, ok := rr.(*dns.TXT); ok {
			return strings.Join(t.Txt, ""), nil
		}
	}
	return "", fmt.Errorf("no TXT record for %s", name)
}

// parseOrigin parses an origin zone answer of the form
// "15169 | 8.8.8.0/24 | US | arin | 1992-12-01".
func parseOrigin(txt string) (asnInfo, bool) {
	fields := splitCymru(txt)
	if len(fields) < 3 {
		return asnInfo{}, false
	}

	// Multi-homed prefixes list several origins in the first field,
	// the first one wins.
	asns := strings.Fields(fields[0])
	if len(asns) == 0 {
		return asnInfo{}, false
	}
	return asnInfo{asn: "AS" + asns[0], country: fields[2]}, true
}

// parseASDescription parses an AS zone answer of the form
// "15169 | US | arin | 2000-03-30 | GOOGLE, US".
func parseASDescription(txt string) string {
	fields := splitCymru(txt)
	if len(fields) < 5 {
		return ""
	}
	return fields[4]
}

func splitCymru(txt string) []string {
	fields := strings.Split(txt, "|")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// reverseOctets turns 8.8.4.4 into 4.4.8.8 for the origin zone name.
func reverseOctets(ip net.IP) string {
	octets := strings.Split(ip.To4().String(), ".")
	slices.Reverse(octets)
	return strings.Join(octets, ".")
}
