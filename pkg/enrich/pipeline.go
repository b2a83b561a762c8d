// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package enrich annotates traced addresses with reverse DNS names,
// origin AS data from the Team Cymru zones and coarse geo location
// from ip-api.com. Lookups run concurrently per address and every
// failure degrades to an empty field instead of an error.
package enrich

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/telekom/tracelens/internal/helper"
	"github.com/telekom/tracelens/internal/logger"
)

const (
	defaultWorkers = 8
	defaultTimeout = 3 * time.Second
)

// Config holds the configuration of the enrichment pipeline.
type Config struct {
	// EnableDNS turns on reverse DNS and origin AS lookups.
	EnableDNS bool `yaml:"enableDns" mapstructure:"enableDns"`
	// EnableGeo turns on geo location lookups.
	EnableGeo bool `yaml:"enableGeo" mapstructure:"enableGeo"`
	// Workers caps how many addresses are enriched concurrently.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// Timeout bounds each remote lookup attempt.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Retry configures how failed lookups are repeated.
	Retry helper.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// Pipeline enriches addresses with reverse DNS, routing registry and
// geo location data. A nil store disables persistence, the lookups
// then run on every occasion.
type Pipeline struct {
	cfg      Config
	store    Store
	resolver Resolver
	asn      *cymruClient
	geo      *geoClient
	metrics  metrics
	now      func() time.Time
}

// NewPipeline creates a pipeline with the given configuration and
// backing store. The store may be nil.
func NewPipeline(cfg Config, store Store) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Pipeline{
		cfg:      cfg,
		store:    store,
		resolver: NewResolver(),
		asn:      newCymruClient(cfg.Timeout),
		geo:      newGeoClient(cfg.Timeout),
		metrics:  newMetrics(),
		now:      time.Now,
	}
}

// GetMetricCollectors returns the metric collectors of the pipeline.
func (p *Pipeline) GetMetricCollectors() []prometheus.Collector {
	return p.metrics.GetCollectors()
}

// Enrich produces a record for every distinct address. It never
// fails, lookup errors leave the affected fields of a record empty.
func (p *Pipeline) Enrich(ctx context.Context, ips []net.IP) map[string]Record {
	distinct := make([]net.IP, 0, len(ips))
	seen := make(map[string]bool, len(ips))
	for _, ip := range ips {
		if ip == nil || seen[ip.String()] {
			continue
		}
		seen[ip.String()] = true
		distinct = append(distinct, ip)
	}

	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer("enrich.pipeline")
	ctx, sp := tracer.Start(ctx, "Enrich", trace.WithAttributes(
		attribute.Int("enrich.addresses", len(distinct)),
	))
	defer sp.End()

	records := make([]Record, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, ip := range distinct {
		g.Go(func() error {
			records[i] = p.one(gctx, ip)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Record, len(records))
	for _, rec := range records {
		out[rec.IP] = rec
	}
	return out
}

// one assembles the record for a single address, consulting the
// store first and persisting fresh lookups for public addresses.
func (p *Pipeline) one(ctx context.Context, ip net.IP) Record {
	key := ip.String()
	remote := p.cfg.EnableDNS || p.cfg.EnableGeo

	if remote && p.store != nil {
		rec, ok := p.store.Get(key)
		p.metrics.recordCache(ok)
		if ok {
			return rec
		}
	}

	rec := Record{
		IP:             key,
		Classification: Classify(ip),
		FetchedAt:      p.now(),
	}
	if rec.Classification != ClassPublic || !remote {
		return rec
	}

	var asnCountry string
	if p.cfg.EnableDNS {
		rec.PTR = p.lookupPTR(ctx, ip)
		asnCountry = p.lookupASN(ctx, ip, &rec)
	}
	if p.cfg.EnableGeo {
		p.lookupGeo(ctx, ip, &rec)
	}
	// The routing registry knows a country code even when the geo
	// provider has no answer.
	if rec.CountryCode == "" {
		rec.CountryCode = asnCountry
	}

	if p.store != nil {
		p.store.Put(key, rec)
	}
	return rec
}

func (p *Pipeline) lookupPTR(ctx context.Context, ip net.IP) string {
	var names []string
	retry := helper.Retry(func(ctx context.Context) error {
		lctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		var err error
		names, err = p.resolver.LookupAddr(lctx, ip.String())
		return err
	}, p.cfg.Retry)

	start := time.Now()
	err := retry(ctx)
	p.metrics.recordLookup("ptr", start, err)
	if err != nil || len(names) == 0 {
		if err != nil {
			logger.FromContext(ctx).Debug("Reverse lookup failed", "ip", ip.String(), "error", err)
		}
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

func (p *Pipeline) lookupASN(ctx context.Context, ip net.IP, rec *Record) string {
	var info asnInfo
	retry := helper.Retry(func(ctx context.Context) error {
		lctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		var err error
		info, err = p.asn.lookup(lctx, ip)
		return err
	}, p.cfg.Retry)

	start := time.Now()
	err := retry(ctx)
	p.metrics.recordLookup("asn", start, err)
	if err != nil {
		logger.FromContext(ctx).Debug("ASN lookup failed", "ip", ip.String(), "error", err)
		return ""
	}

	rec.ASN = info.asn
	rec.Org = info.org
	return info.country
}

func (p *Pipeline) lookupGeo(ctx context.Context, ip net.IP, rec *Record) {
	var info geoInfo
	retry := helper.Retry(func(ctx context.Context) error {
		lctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		var err error
		info, err = p.geo.lookup(lctx, ip)
		return err
	}, p.cfg.Retry)

	start := time.Now()
	err := retry(ctx)
	p.metrics.recordLookup("geo", start, err)
	if err != nil {
		logger.FromContext(ctx).Debug("Geo lookup failed", "ip", ip.String(), "error", err)
		return
	}

	rec.Country = info.Country
	rec.CountryCode = info.CountryCode
	rec.City = info.City
	rec.Lat = info.Lat
	rec.Lon = info.Lon
}
