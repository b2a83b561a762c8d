// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/telekom/tracelens/internal/helper"
	"github.com/telekom/tracelens/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// prober is the probing strategy of one protocol. Implementations send
// a single probe with the given TTL and sequence number and report its
// fate. A probe that stays unanswered is a result, not an error.
type prober interface {
	send(ctx context.Context, ttl, seq int) (ProbeResult, error)
	Close() error
}

// sweeper walks the TTL range towards one target, one hop at a time,
// fanning out the configured number of probes per hop.
type sweeper struct {
	probe      prober
	otelTracer trace.Tracer
	opts       Options
	metrics    metrics
}

// run performs the sweep. It stops early once the destination answered,
// the destination itself reported unreachable, or the configured run of
// consecutive silent hops is exceeded.
func (s *sweeper) run(ctx context.Context, target Target) ([]Hop, error) {
	log := logger.FromContext(ctx)
	hops := make([]Hop, 0, s.opts.MaxHops)

	silent := 0
	for ttl := 1; ttl <= s.opts.MaxHops; ttl++ {
		hop, err := s.hop(ctx, target, ttl)
		if err != nil {
			return hops, err
		}
		hops = append(hops, hop)

		if hop.Reached {
			break
		}
		if directUnreachable(hop, target) {
			log.DebugContext(ctx, "Destination reported unreachable, stopping sweep", "ttl", ttl)
			break
		}

		if hop.Received == 0 {
			silent++
		} else {
			silent = 0
		}
		if s.opts.MaxTimeouts > 0 && silent >= s.opts.MaxTimeouts {
			log.DebugContext(ctx, "Giving up after consecutive silent hops", "count", silent)
			break
		}
	}

	return hops, nil
}

// hop sends all probes of one TTL concurrently and folds their results.
func (s *sweeper) hop(ctx context.Context, target Target, ttl int) (Hop, error) {
	ctx, span := s.otelTracer.Start(ctx, target.String(), trace.WithAttributes(
		attribute.Stringer("traceroute.target.address", target),
		attribute.Int("traceroute.target.ttl", ttl),
	))
	defer span.End()

	results := make([]ProbeResult, s.opts.ProbesPerHop)
	errs := make([]error, s.opts.ProbesPerHop)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Sequence numbers are unique across the whole sweep so
			// late replies of earlier hops cannot be mistaken for
			// answers to this one.
			seq := (ttl-1)*s.opts.ProbesPerHop + i + 1

			retry := helper.Retry(func(ctx context.Context) error {
				res, err := s.probe.send(ctx, ttl, seq)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			}, s.opts.Retry)

			errs[i] = retry(ctx)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to probe hop")
		return Hop{}, fmt.Errorf("failed to probe hop %d: %w", ttl, err)
	}

	hop := newHop(ttl, results)
	s.metrics.recordHop(target, hop)
	span.AddEvent("Hop finalized", trace.WithAttributes(
		attribute.Stringer("traceroute.target.hop", hop),
		attribute.Bool("traceroute.target.reached", hop.Reached),
	))
	return hop, nil
}

// directUnreachable reports whether the destination itself answered a
// probe with an unreachable error. The path goes no further then.
func directUnreachable(hop Hop, target Target) bool {
	for _, pr := range hop.Probes {
		if pr.Outcome == OutcomeUnreachable && pr.From != nil && pr.From.Equal(target.IP) {
			return true
		}
	}
	return false
}
