// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var enrichedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeResolver struct {
	mu    sync.Mutex
	names map[string][]string
	err   error
	calls int
}

func (f *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.names[addr], nil
}

type fakeStore struct {
	mu   sync.Mutex
	recs map[string]Record
	gets int
	puts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[string]Record{}}
}

func (f *fakeStore) Get(ip string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	rec, ok := f.recs[ip]
	return rec, ok
}

func (f *fakeStore) Put(ip string, rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.recs[ip] = rec
}

func newTestPipeline(t *testing.T, cfg Config, store Store) *Pipeline {
	t.Helper()
	p := NewPipeline(cfg, store)
	p.now = func() time.Time { return enrichedAt }
	p.resolver = &fakeResolver{}
	p.asn.exchange = func(_ context.Context, msg *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
		return nil, 0, fmt.Errorf("unexpected DNS query %q", msg.Question[0].Name)
	}
	return p
}

func TestNewPipeline_Defaults(t *testing.T) {
	p := NewPipeline(Config{}, nil)
	assert.Equal(t, defaultWorkers, p.cfg.Workers)
	assert.Equal(t, defaultTimeout, p.cfg.Timeout)
	assert.Len(t, p.GetMetricCollectors(), 3)
}

func TestPipeline_Enrich_ClassificationOnly(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, Config{}, store)

	got := p.Enrich(context.Background(), []net.IP{
		net.ParseIP("10.0.0.1"),
		net.ParseIP("100.64.0.5"),
		net.ParseIP("8.8.8.8"),
	})

	want := map[string]Record{
		"10.0.0.1":   {IP: "10.0.0.1", Classification: ClassPrivate, FetchedAt: enrichedAt},
		"100.64.0.5": {IP: "100.64.0.5", Classification: ClassCGNAT, FetchedAt: enrichedAt},
		"8.8.8.8":    {IP: "8.8.8.8", Classification: ClassPublic, FetchedAt: enrichedAt},
	}
	assert.Equal(t, want, got)

	// Without remote lookups the store stays untouched.
	assert.Zero(t, store.gets)
	assert.Zero(t, store.puts)
}

func TestPipeline_Enrich_UsesCache(t *testing.T) {
	cached := Record{
		IP:             "8.8.8.8",
		PTR:            "dns.google",
		ASN:            "AS15169",
		Classification: ClassPublic,
		FetchedAt:      enrichedAt.Add(-time.Hour),
	}
	store := newFakeStore()
	store.recs["8.8.8.8"] = cached

	p := newTestPipeline(t, Config{EnableDNS: true}, store)

	got := p.Enrich(context.Background(), []net.IP{net.ParseIP("8.8.8.8")})
	assert.Equal(t, cached, got["8.8.8.8"])

	res := p.resolver.(*fakeResolver)
	assert.Zero(t, res.calls, "cache hits must not trigger lookups")
	assert.Zero(t, store.puts)
}

func TestPipeline_Enrich_LookupsAndPersist(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet,
		"http://ip-api.com/json/8.8.8.8?fields=status,country,countryCode,city,lat,lon",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"status":      "success",
			"country":     "United States",
			"countryCode": "US",
			"city":        "Mountain View",
			"lat":         37.386,
			"lon":         -122.0838,
		}),
	)

	store := newFakeStore()
	p := newTestPipeline(t, Config{EnableDNS: true, EnableGeo: true, Workers: 2}, store)
	p.resolver = &fakeResolver{names: map[string][]string{"8.8.8.8": {"dns.google."}}}
	p.asn.exchange = func(_ context.Context, msg *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
		switch msg.Question[0].Name {
		case "8.8.8.8.origin.asn.cymru.com.":
			return txtReply(msg, "15169 | 8.8.8.0/24 | US | arin | 1992-12-01"), 0, nil
		case "AS15169.asn.cymru.com.":
			return txtReply(msg, "15169 | US | arin | 2000-03-30 | GOOGLE, US"), 0, nil
		}
		return nil, 0, fmt.Errorf("unexpected question %q", msg.Question[0].Name)
	}

	got := p.Enrich(context.Background(), []net.IP{
		net.ParseIP("8.8.8.8"),
		net.ParseIP("192.168.2.1"),
	})
	require.Len(t, got, 2)

	assert.Equal(t, Record{
		IP:             "8.8.8.8",
		PTR:            "dns.google",
		ASN:            "AS15169",
		Org:            "GOOGLE, US",
		Country:        "United States",
		CountryCode:    "US",
		City:           "Mountain View",
		Lat:            37.386,
		Lon:            -122.0838,
		Classification: ClassPublic,
		FetchedAt:      enrichedAt,
	}, got["8.8.8.8"])
	assert.Equal(t, Record{
		IP:             "192.168.2.1",
		Classification: ClassPrivate,
		FetchedAt:      enrichedAt,
	}, got["192.168.2.1"])

	// Only the public address is worth persisting.
	assert.Equal(t, 1, store.puts)
	_, ok := store.recs["8.8.8.8"]
	assert.True(t, ok)
}

func TestPipeline_Enrich_CountryCodeFallback(t *testing.T) {
	p := newTestPipeline(t, Config{EnableDNS: true}, nil)
	p.asn.exchange = func(_ context.Context, msg *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
		if msg.Question[0].Name == "4.3.2.1.origin.asn.cymru.com." {
			return txtReply(msg, "2914 | 1.2.0.0/16 | JP | apnic | 2000-01-01"), 0, nil
		}
		return nil, 0, fmt.Errorf("no description")
	}

	got := p.Enrich(context.Background(), []net.IP{net.ParseIP("1.2.3.4")})
	rec := got["1.2.3.4"]
	assert.Equal(t, "AS2914", rec.ASN)
	assert.Equal(t, "JP", rec.CountryCode, "registry country fills in for missing geo data")
	assert.Empty(t, rec.Country)
}

func TestPipeline_Enrich_DedupesInput(t *testing.T) {
	res := &fakeResolver{names: map[string][]string{"8.8.8.8": {"dns.google."}}}
	p := newTestPipeline(t, Config{EnableDNS: true}, nil)
	p.resolver = res
	p.asn.exchange = func(_ context.Context, msg *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
		return txtReply(msg, "15169 | 8.8.8.0/24 | US | arin | 1992-12-01"), 0, nil
	}

	got := p.Enrich(context.Background(), []net.IP{
		net.ParseIP("8.8.8.8"),
		net.ParseIP("8.8.8.8"),
		nil,
	})

	assert.Len(t, got, 1)
	assert.Equal(t, 1, res.calls, "duplicate addresses must be looked up once")
}

func TestPipeline_Enrich_DegradesOnFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet,
		"http://ip-api.com/json/9.9.9.9?fields=status,country,countryCode,city,lat,lon",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"),
	)

	store := newFakeStore()
	p := newTestPipeline(t, Config{EnableDNS: true, EnableGeo: true}, store)
	p.resolver = &fakeResolver{err: fmt.Errorf("nxdomain")}

	got := p.Enrich(context.Background(), []net.IP{net.ParseIP("9.9.9.9")})

	assert.Equal(t, Record{
		IP:             "9.9.9.9",
		Classification: ClassPublic,
		FetchedAt:      enrichedAt,
	}, got["9.9.9.9"], "failed lookups degrade to empty fields")
	assert.Equal(t, 1, store.puts)
}
