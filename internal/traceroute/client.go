// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ Client = (*genericClient)(nil)
)

// Client is able to run a traceroute sweep towards a target.
type Client interface {
	// Run executes the sweep for the given target with the specified
	// options. It returns the hops discovered along the path, in TTL
	// order, or an error if the sweep could not run at all.
	Run(ctx context.Context, target Target, opts *Options) ([]Hop, error)
	// GetMetricCollectors returns the prometheus collectors of the client.
	GetMetricCollectors() []prometheus.Collector
}

type genericClient struct {
	metrics metrics
	// newProber is swappable for testing.
	newProber func(ctx context.Context, target Target, opts *Options) (prober, error)
}

func NewClient() Client {
	return &genericClient{
		metrics:   newMetrics(),
		newProber: newProber,
	}
}

// newProber selects the probing strategy for the target's protocol.
// The shared sockets are opened here, before any probe is sent, so
// missing privileges surface before the sweep starts.
func newProber(ctx context.Context, target Target, opts *Options) (prober, error) {
	switch target.Protocol {
	case ProtocolICMP:
		return newICMPProber(ctx, target, opts)
	case ProtocolTCP:
		return newTCPProber(ctx, target, opts)
	case ProtocolUDP:
		return newUDPProber(ctx, target, opts)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", target.Protocol)
	}
}

func (c *genericClient) Run(ctx context.Context, target Target, opts *Options) ([]Hop, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target %s: %w", target, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer("traceroute.client")
	ctx, sp := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.Stringer("traceroute.target.address", target),
		attribute.Int("traceroute.options.max_hops", opts.MaxHops),
		attribute.Int("traceroute.options.probes_per_hop", opts.ProbesPerHop),
		attribute.Stringer("traceroute.options.timeout", opts.Timeout),
	))
	defer sp.End()

	p, err := c.newProber(ctx, target, opts)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "Failed to create prober")
		return nil, wrapError(ctx, err, "failed to prepare probing")
	}
	defer func() { _ = p.Close() }()

	s := &sweeper{
		probe:      p,
		otelTracer: tracer,
		opts:       *opts,
		metrics:    c.metrics,
	}

	hops, err := s.run(ctx, target)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "Failed to execute sweep")
		return hops, err
	}

	logHops(ctx, hops)
	return hops, nil
}

func (c *genericClient) GetMetricCollectors() []prometheus.Collector {
	return c.metrics.GetCollectors()
}
