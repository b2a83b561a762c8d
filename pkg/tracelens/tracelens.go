// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package tracelens ties the probing engine, the enrichment pipeline
// and the path analysis together into single trace runs.
package tracelens

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telekom/tracelens/internal/logger"
	"github.com/telekom/tracelens/internal/traceroute"
	"github.com/telekom/tracelens/pkg/cache"
	"github.com/telekom/tracelens/pkg/diag"
	"github.com/telekom/tracelens/pkg/enrich"
)

// hostResolver resolves hostnames, satisfied by net.DefaultResolver.
type hostResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Tracer runs traces for one configuration.
type Tracer struct {
	cfg      *Config
	client   traceroute.Client
	resolver hostResolver
	cache    *cache.Cache
	pipeline *enrich.Pipeline
	now      func() time.Time
}

// New validates the configuration and prepares a Tracer. A cache that
// cannot be located only disables persistence, it does not fail the
// run.
func New(ctx context.Context, cfg *Config) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracer{
		cfg:      cfg,
		client:   traceroute.NewClient(),
		resolver: net.DefaultResolver,
		now:      time.Now,
	}

	if cfg.UseCache {
		path := cfg.CachePath
		if path == "" {
			p, err := cache.DefaultPath()
			if err != nil {
				logger.FromContext(ctx).Warn("Disabling enrichment cache", "error", err)
			} else {
				path = p
			}
		}
		if path != "" {
			t.cache = cache.New(ctx, path)
		}
	}

	var store enrich.Store
	if t.cache != nil {
		store = t.cache
	}
	t.pipeline = enrich.NewPipeline(enrich.Config{
		EnableDNS: cfg.EnableDNS,
		EnableGeo: cfg.EnableGeo,
		Workers:   cfg.Workers,
		Timeout:   cfg.LookupTimeout,
		Retry:     cfg.Retry,
	}, store)

	return t, nil
}

// Trace runs a single trace with the given configuration.
func Trace(ctx context.Context, cfg *Config) (*TraceResult, error) {
	t, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx)
}

// GetMetricCollectors returns the collectors of the probing engine
// and the enrichment pipeline for registration.
func (t *Tracer) GetMetricCollectors() []prometheus.Collector {
	return append(t.client.GetMetricCollectors(), t.pipeline.GetMetricCollectors()...)
}

// Run executes one trace and assembles the result.
func (t *Tracer) Run(ctx context.Context) (*TraceResult, error) {
	log := logger.FromContext(ctx)
	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer("tracelens")
	ctx, sp := tracer.Start(ctx, "Trace", trace.WithAttributes(
		attribute.String("tracelens.target", t.cfg.Target),
		attribute.String("tracelens.protocol", string(t.cfg.Protocol)),
	))
	defer sp.End()

	started := t.now()

	ip, err := t.resolveTarget(ctx)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "Failed to resolve target")
		return nil, err
	}
	log.Debug("Resolved target", "target", t.cfg.Target, "ip", ip.String())

	target := traceroute.Target{
		Protocol: t.cfg.Protocol,
		IP:       ip,
		Port:     t.cfg.port(),
	}
	opts := &traceroute.Options{
		Retry:        t.cfg.Retry,
		MaxHops:      t.cfg.MaxHops,
		ProbesPerHop: t.cfg.ProbesPerHop,
		Timeout:      t.cfg.Timeout,
		MaxTimeouts:  t.cfg.MaxTimeouts,
		TCPReached:   t.cfg.TCPReached,
	}

	hops, err := t.client.Run(ctx, target, opts)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "Failed to run sweep")
		return nil, t.mapRunError(err)
	}

	records := t.pipeline.Enrich(ctx, responders(hops))
	rep := diag.Analyze(hops, records, ip, t.cfg.Diag)

	if t.cache != nil {
		if err := t.cache.Flush(ctx); err != nil {
			log.Warn("Failed to persist enrichment cache", "error", err)
		}
	}

	return newResult(t.cfg, target, hops, records, rep, started), nil
}

// resolveTarget turns the configured target into an IPv4 address. A
// literal address resolves to itself.
func (t *Tracer) resolveTarget(ctx context.Context) (net.IP, error) {
	ips, err := t.resolver.LookupIP(ctx, "ip4", t.cfg.Target)
	if err != nil {
		return nil, ErrResolution{Target: t.cfg.Target, Err: err}
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, ErrResolution{Target: t.cfg.Target, Err: errors.New("no IPv4 addresses")}
}

// mapRunError translates well known engine failures into the error
// types callers can act on.
func (t *Tracer) mapRunError(err error) error {
	switch {
	case traceroute.IsPrivilegeError(err):
		return ErrPrivilege{Op: strings.ToUpper(string(t.cfg.Protocol)) + " probing", Err: err}
	case traceroute.IsNetworkUnreachable(err):
		return ErrNetworkUnreachable{Target: t.cfg.Target, Err: err}
	}
	return err
}

// responders collects the answering addresses of a sweep.
func responders(hops []traceroute.Hop) []net.IP {
	var ips []net.IP
	for _, hop := range hops {
		if hop.IP != nil {
			ips = append(ips, hop.IP)
		}
	}
	return ips
}
