// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Exporter is the protocol used to export the traces
type Exporter string

const (
	// HTTP sends the traces to an otlp collector via HTTP
	HTTP Exporter = "http"
	// GRPC sends the traces to an otlp collector via gRPC
	GRPC Exporter = "grpc"
	// STDOUT prints the traces to the standard output
	STDOUT Exporter = "stdout"
	// NOOP discards the traces
	NOOP Exporter = "noop"
)

func (e Exporter) String() string {
	return string(e)
}

// Validate checks if the exporter is valid
func (e Exporter) Validate() error {
	switch e {
	case HTTP, GRPC, STDOUT, NOOP, "":
		return nil
	default:
		return fmt.Errorf("unsupported exporter %q", e)
	}
}

// IsExporting returns true if the exporter sends the traces to a collector
func (e Exporter) IsExporting() bool {
	return e == HTTP || e == GRPC
}

// Create creates the span exporter for the configured protocol
func (e Exporter) Create(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch e {
	case HTTP:
		return newHTTPExporter(ctx, cfg)
	case GRPC:
		return newGRPCExporter(ctx, cfg)
	case STDOUT:
		return stdouttrace.New()
	case NOOP, "":
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter %q", e)
	}
}

func newHTTPExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Url),
	}
	if cfg.Token != "" {
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.Token,
		}))
	}
	if !cfg.TLS.Enabled {
		opts = append(opts, otlptracehttp.WithInsecure())
		return otlptracehttp.New(ctx, opts...)
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLS.CertPath != "" {
		pem, err := os.ReadFile(cfg.TLS.CertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read tls certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse tls certificate %q", cfg.TLS.CertPath)
		}
		tlsCfg.RootCAs = pool
	}
	opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsCfg))
	return otlptracehttp.New(ctx, opts...)
}

func newGRPCExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Url),
	}
	if cfg.Token != "" {
		opts = append(opts, otlptracegrpc.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.Token,
		}))
	}
	if !cfg.TLS.Enabled {
		opts = append(opts, otlptracegrpc.WithInsecure())
		return otlptracegrpc.New(ctx, opts...)
	}

	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	return otlptracegrpc.New(ctx, opts...)
}

func transportCredentials(cfg *Config) (credentials.TransportCredentials, error) {
	if cfg.TLS.CertPath == "" {
		return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}), nil
	}

	creds, err := credentials.NewClientTLSFromFile(cfg.TLS.CertPath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load tls certificate: %w", err)
	}
	return creds, nil
}

var _ sdktrace.SpanExporter = (*noopExporter)(nil)

// noopExporter drops every span. It keeps the tracer provider wiring
// intact when exporting is disabled.
type noopExporter struct{}

func (noopExporter) ExportSpans(_ context.Context, _ []sdktrace.ReadOnlySpan) error { return nil }

func (noopExporter) Shutdown(_ context.Context) error { return nil }
