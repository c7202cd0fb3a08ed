// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/bullrider/config"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIDHeader carries a per-send UUID so broker logs can be correlated.
	RequestIDHeader = "X-Request-ID"

	tracerName = "github.com/absmach/bullrider/transport"
)

var (
	// ErrTransport marks network-level failures: refused connections, resets, timeouts.
	ErrTransport = errors.New("transport failure")
	// ErrCircuitOpen is returned without sending once consecutive failures trip the breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Recorder receives per-send measurements.
type Recorder interface {
	RecordSend(kind string, status int, bytes int64, duration time.Duration)
	RecordSendError(kind string)
}

// Request is a single POST to the target broker.
type Request struct {
	// Kind names the message for logs, spans and metrics.
	Kind string
	// Action is the envelope's WS-Addressing action, recorded on spans and logs.
	Action string
	// Path is appended to the base URL; empty means "/".
	Path string
	// Payload is sent with a Content-Length unless Stream is set.
	Payload string
	// Stream, when non-nil, is sent instead of Payload with chunked encoding.
	Stream io.Reader
}

// Response is the broker's reply, kept opaque.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	RequestID  string
	BytesSent  int64
	Duration   time.Duration
}

// Config holds HTTPSender settings.
type Config struct {
	Host           string
	Port           int
	ContentType    string
	UserAgent      string
	Timeout        time.Duration
	CircuitBreaker config.CircuitBreakerConfig
}

// HTTPSender posts SOAP envelopes to http://host:port<path>.
type HTTPSender struct {
	client      *http.Client
	baseURL     string
	contentType string
	userAgent   string
	breaker     *gobreaker.CircuitBreaker
	recorder    Recorder
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewHTTPSender creates a new sender. recorder may be nil.
func NewHTTPSender(cfg Config, recorder Recorder, logger *slog.Logger) *HTTPSender {
	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPSender{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		contentType: cfg.ContentType,
		userAgent:   cfg.UserAgent,
		recorder:    recorder,
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
	}

	if cfg.CircuitBreaker.Enabled {
		threshold := uint32(cfg.CircuitBreaker.FailureThreshold)
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.baseURL,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("target circuit breaker state changed",
					slog.String("target", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	return s
}

// URL returns the absolute URL for path.
func (s *HTTPSender) URL(path string) string {
	if path == "" {
		path = "/"
	}
	return s.baseURL + path
}

// Send posts req and returns the raw response. Non-2xx statuses are not errors.
func (s *HTTPSender) Send(ctx context.Context, req Request) (*Response, error) {
	if s.breaker == nil {
		return s.send(ctx, req)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.send(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, s.baseURL, err)
	}
	if err != nil {
		return nil, err
	}
	return out.(*Response), nil
}

func (s *HTTPSender) send(ctx context.Context, req Request) (*Response, error) {
	url := s.URL(req.Path)
	requestID := uuid.New().String()

	ctx, span := s.tracer.Start(ctx, "wsn.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("wsn.kind", req.Kind),
			attribute.String("wsa.action", req.Action),
			attribute.String("http.url", url),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	var body io.Reader
	counter := &countingReader{}
	if req.Stream != nil {
		counter.r = req.Stream
		body = counter
	} else {
		body = strings.NewReader(req.Payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", s.contentType)
	httpReq.Header.Set(RequestIDHeader, requestID)
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.recorder != nil {
			s.recorder.RecordSendError(req.Kind)
		}
		return nil, fmt.Errorf("%w: post %s: %w", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.recorder != nil {
			s.recorder.RecordSendError(req.Kind)
		}
		return nil, fmt.Errorf("%w: read response from %s: %w", ErrTransport, url, err)
	}
	elapsed := time.Since(start)

	sent := int64(len(req.Payload))
	if req.Stream != nil {
		sent = counter.n
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int64("wsn.bytes_sent", sent),
	)
	if s.recorder != nil {
		s.recorder.RecordSend(req.Kind, resp.StatusCode, sent, elapsed)
	}

	s.logger.Debug("request sent",
		slog.String("kind", req.Kind),
		slog.String("action", req.Action),
		slog.String("url", url),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Int64("bytes_sent", sent),
		slog.Duration("duration", elapsed))

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       respBody,
		RequestID:  requestID,
		BytesSent:  sent,
		Duration:   elapsed,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
