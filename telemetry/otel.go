// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/bullrider/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	exportTimeout = 10 * time.Second
	// Runs last seconds, so metrics are pushed often enough that the last
	// partial interval still reaches the collector at shutdown.
	metricInterval = 5 * time.Second
)

// Provider owns the SDK providers installed for one run. A nil field means
// the signal is disabled.
type Provider struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
}

// Setup installs the global tracer and meter providers for the signals cfg
// enables, exporting over OTLP gRPC. Disabled tracing installs a noop tracer.
func Setup(ctx context.Context, cfg config.TelemetryConfig, runID string) (*Provider, error) {
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		return &Provider{}, nil
	}

	res, err := runResource(ctx, cfg, runID)
	if err != nil {
		return nil, err
	}

	var (
		spans  sdktrace.SpanExporter
		reader sdkmetric.Reader
	)
	if cfg.TracesEnabled {
		spans, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithTimeout(exportTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}
	if cfg.MetricsEnabled {
		metrics, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithTimeout(exportTimeout),
		)
		if err != nil {
			if spans != nil {
				_ = spans.Shutdown(ctx)
			}
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(metricInterval))
	}

	return install(res, cfg.TraceSampleRate, spans, reader), nil
}

func runResource(ctx context.Context, cfg config.TelemetryConfig, runID string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.ServiceInstanceIDKey.String(runID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// install builds and registers providers around the given exporter and
// reader. Either may be nil to leave that signal off.
func install(res *resource.Resource, sampleRate float64, spans sdktrace.SpanExporter, reader sdkmetric.Reader) *Provider {
	p := &Provider{}

	if spans != nil {
		p.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
			sdktrace.WithBatcher(spans, sdktrace.WithMaxExportBatchSize(512)),
		)
		otel.SetTracerProvider(p.tracer)
	} else {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	}

	if reader != nil {
		p.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(p.meter)
	}

	return p
}

// Shutdown flushes pending spans and metrics and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.meter != nil {
		if err := p.meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
