// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package consumer runs a minimal NotificationConsumer so deliveries the
// broker makes to this machine's WAN address are visible to the operator.
package consumer

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Recorder counts notifications that reach the consumer.
type Recorder interface {
	RecordNotificationReceived(source string)
}

// Config holds listener settings.
type Config struct {
	Address         string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Notification is one NotificationMessage found in a delivered Notify.
type Notification struct {
	Topic   string
	Message string
}

// Server accepts Notify deliveries over HTTP/1.1 and h2c and answers 200.
type Server struct {
	config     Config
	httpServer *http.Server
	recorder   Recorder
	logger     *slog.Logger
	received   atomic.Int64
}

// New creates a consumer server. recorder may be nil.
func New(cfg Config, recorder Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		recorder: recorder,
		logger:   logger,
	}

	h2s := &http2.Server{}
	s.httpServer = &http.Server{
		Addr:        cfg.Address,
		Handler:     h2c.NewHandler(s.Handler(), h2s),
		ReadTimeout: 30 * time.Second,
	}

	return s
}

// Handler returns the delivery handler without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleNotify)
	return mux
}

// Received returns the number of notifications seen so far.
func (s *Server) Received() int64 {
	return s.received.Load()
}

// Listen serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("consumer listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts deliveries on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("consumer_starting", slog.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("consumer_shutdown_initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("consumer shutdown: %w", err)
		}
		s.logger.Info("consumer_stopped", slog.Int64("received", s.Received()))
		return nil
	case err := <-errCh:
		return fmt.Errorf("consumer server error: %w", err)
	}
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.logger.Warn("consumer_body_rejected", slog.String("error", err.Error()))
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	notes, err := ParseNotify(body)
	if err != nil {
		// UseRaw subscriptions deliver the bare message without an envelope.
		s.count(1)
		s.logger.Info("consumer_raw_delivery",
			slog.String("path", r.URL.Path),
			slog.Int("bytes", len(body)))
		w.WriteHeader(http.StatusOK)
		return
	}

	s.count(len(notes))
	for _, n := range notes {
		s.logger.Info("consumer_notification",
			slog.String("path", r.URL.Path),
			slog.String("topic", n.Topic),
			slog.String("message", n.Message))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) count(n int) {
	s.received.Add(int64(n))
	if s.recorder == nil {
		return
	}
	for i := 0; i < n; i++ {
		s.recorder.RecordNotificationReceived("consumer")
	}
}

var errNotNotify = errors.New("body is not a Notify envelope")

type notifyEnvelope struct {
	Body struct {
		Notify *struct {
			Messages []struct {
				Topic   string `xml:"Topic"`
				Message struct {
					Inner string `xml:",innerxml"`
				} `xml:"Message"`
			} `xml:"NotificationMessage"`
		} `xml:"Notify"`
	} `xml:"Body"`
}

// ParseNotify extracts topic and message content from a SOAP Notify body.
// Element names are matched regardless of namespace prefix.
func ParseNotify(body []byte) ([]Notification, error) {
	var env notifyEnvelope
	dec := xml.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", errNotNotify, err)
	}
	if env.Body.Notify == nil {
		return nil, errNotNotify
	}

	out := make([]Notification, 0, len(env.Body.Notify.Messages))
	for _, m := range env.Body.Notify.Messages {
		out = append(out, Notification{
			Topic:   strings.TrimSpace(m.Topic),
			Message: strings.TrimSpace(m.Message.Inner),
		})
	}
	return out, nil
}
