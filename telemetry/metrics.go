// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds client-side instruments for requests sent and notifications received.
type Metrics struct {
	meter metric.Meter

	requestsTotal         metric.Int64Counter
	requestErrors         metric.Int64Counter
	bytesSent             metric.Int64Counter
	notificationsReceived metric.Int64Counter

	requestDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("bullrider"),
	}

	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"wsn.requests.total",
		metric.WithDescription("Requests sent to the broker by message kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requestsTotal counter: %w", err)
	}

	m.requestErrors, err = m.meter.Int64Counter(
		"wsn.requests.errors.total",
		metric.WithDescription("Requests that failed at the transport level"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requestErrors counter: %w", err)
	}

	m.bytesSent, err = m.meter.Int64Counter(
		"wsn.bytes.sent.total",
		metric.WithDescription("Request body bytes sent"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bytesSent counter: %w", err)
	}

	m.notificationsReceived, err = m.meter.Int64Counter(
		"wsn.notifications.received.total",
		metric.WithDescription("Notifications delivered back to the local consumer or observer"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notificationsReceived counter: %w", err)
	}

	m.requestDuration, err = m.meter.Float64Histogram(
		"wsn.request.duration.ms",
		metric.WithDescription("Round trip time of a request in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requestDuration histogram: %w", err)
	}

	return m, nil
}

// RecordSend records a completed request.
func (m *Metrics) RecordSend(kind string, status int, bytes int64, duration time.Duration) {
	ctx := context.Background()
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Int("status", status),
	))
	m.bytesSent.Add(ctx, bytes, metric.WithAttributes(attribute.String("kind", kind)))
	m.requestDuration.Record(ctx, float64(duration)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSendError records a transport failure.
func (m *Metrics) RecordSendError(kind string) {
	m.requestErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordNotificationReceived records a notification seen by source ("consumer" or "mqtt").
func (m *Metrics) RecordNotificationReceived(source string) {
	m.notificationsReceived.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}
