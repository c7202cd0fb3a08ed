// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package driver turns a mode into WS-Notification requests and reports the
// broker's raw responses to the operator.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/absmach/bullrider/config"
	"github.com/absmach/bullrider/ratelimit"
	"github.com/absmach/bullrider/transport"
	"github.com/absmach/bullrider/wsn"
)

// DefaultWANAddr is used when the operator leaves the address prompt empty.
const DefaultWANAddr = "0.0.0.0:8000"

const (
	wanQuestion          = "Which IP:Port should be used as host of this machine? (0.0.0.0:8000) "
	subscriptionQuestion = "Enter the subscription reference: "
	publisherQuestion    = "Enter the publisher reference: "

	arrivingMessage = "Test message that should arrive at consumer address."
	pausedMessage   = "Notify sent during paused subscription that should not be recieved."
	concreteMessage = "Test message 1 (Concrete)"
	simpleMessage   = "Test message 2 (Simple)"
)

// Sender delivers one request to the broker.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithRand sets the source used to shuffle notify content.
func WithRand(r *rand.Rand) Option {
	return func(d *Driver) {
		d.rnd = r
	}
}

// WithWANAddr sets this machine's host:port so it is not prompted for.
func WithWANAddr(addr string) Option {
	return func(d *Driver) {
		d.wan = addr
	}
}

// Driver sends requests one at a time; it is not safe for concurrent use.
type Driver struct {
	cfg      config.DriverConfig
	large    config.LargeConfig
	topic    string
	catalog  wsn.Catalog
	sender   Sender
	prompter Prompter
	out      io.Writer
	logger   *slog.Logger
	rnd      *rand.Rand
	words    []string
	wan      string

	sent    int
	failed  int
	bytes   int64
	elapsed time.Duration
}

// New creates a driver publishing to topic.
func New(cfg *config.Config, topic string, sender Sender, prompter Prompter, out io.Writer, logger *slog.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		cfg:      cfg.Driver,
		large:    cfg.Large,
		topic:    topic,
		catalog:  wsn.Catalog{Escape: cfg.Driver.EscapeValues},
		sender:   sender,
		prompter: prompter,
		out:      out,
		logger:   logger,
		words:    append([]string(nil), words...),
		wan:      cfg.Driver.WANAddr,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rnd == nil {
		d.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return d
}

// Run executes mode and prints progress to the driver's output.
func (d *Driver) Run(ctx context.Context, mode Mode) error {
	fmt.Fprintf(d.out, "[i] Running in %s mode...\n", mode.Description)
	d.lint(mode)

	if mode.NeedsWAN {
		if err := d.resolveWAN(ctx); err != nil {
			return err
		}
	}

	var err error
	switch {
	case mode.Kind == 0:
		err = d.runAll(ctx)
	case mode.Looped:
		err = d.massNotify(ctx)
	default:
		err = d.runSingle(ctx, mode)
	}

	d.logger.Info("run finished",
		slog.String("mode", mode.Name),
		slog.Int("sent", d.sent),
		slog.Int("failed", d.failed),
		slog.Int64("bytes_sent", d.bytes),
		slog.Duration("send_time", d.elapsed))
	if err != nil {
		return err
	}

	fmt.Fprintln(d.out, "[X] Complete.")
	return nil
}

// WANAddr returns this machine's host:port once resolved.
func (d *Driver) WANAddr() string {
	return d.wan
}

func (d *Driver) runSingle(ctx context.Context, mode Mode) error {
	switch mode.Kind {
	case wsn.Notify:
		return d.notify(ctx, mode, d.cfg.NotifyMessage)
	case wsn.NotifyMultiple:
		return d.notifyMultiple(ctx, mode, d.shuffle(), d.shuffle())
	case wsn.NotifyLarge:
		return d.notifyLarge(ctx, mode)
	case wsn.GetCurrentMessage:
		return d.send(ctx, mode, "/", d.topic)
	case wsn.SubscribeNoTopic:
		return d.send(ctx, mode, "/", d.callbackURL())
	case wsn.Subscribe, wsn.SubscribeFullTopic, wsn.SubscribeXPathTopic,
		wsn.SubscribeXPathFilter, wsn.SubscribeSimpleTopic, wsn.SubscribeUseRaw:
		return d.send(ctx, mode, "/", d.callbackURL(), d.topic)
	case wsn.Register:
		return d.send(ctx, mode, "/", d.publisherAddress(), d.topic)
	}

	ref, err := d.reference(ctx, mode.Reference)
	if err != nil {
		return err
	}
	return d.send(ctx, mode, EndpointPath(ref))
}

func (d *Driver) runAll(ctx context.Context) error {
	fmt.Fprintln(d.out, "[i] Performing all requests in order...")

	if err := d.runSingle(ctx, mustMode("subscribe")); err != nil {
		return err
	}
	subRef, err := d.reference(ctx, SubscriptionReference)
	if err != nil {
		return err
	}
	if err := d.runSingle(ctx, mustMode("register")); err != nil {
		return err
	}
	pubRef, err := d.reference(ctx, PublisherReference)
	if err != nil {
		return err
	}

	notify := mustMode("notify")
	steps := []func() error{
		func() error { return d.notify(ctx, notify, arrivingMessage) },
		func() error { return d.notifyMultiple(ctx, mustMode("multinotify"), concreteMessage, simpleMessage) },
		func() error { return d.runSingle(ctx, mustMode("getcurrent")) },
		func() error { return d.runSingle(ctx, mustMode("subscribe-notopic")) },
		func() error { return d.runSingle(ctx, mustMode("subscribe-xpath")) },
		func() error { return d.runSingle(ctx, mustMode("subscribe-xpathtopic")) },
		func() error { return d.runSingle(ctx, mustMode("subscribe-simpletopic")) },
		func() error { return d.runSingle(ctx, mustMode("subscribe-useraw")) },
		func() error { return d.send(ctx, mustMode("renew"), EndpointPath(subRef)) },
		func() error { return d.send(ctx, mustMode("pause"), EndpointPath(subRef)) },
		func() error { return d.notify(ctx, notify, pausedMessage) },
		func() error { return d.send(ctx, mustMode("resume"), EndpointPath(subRef)) },
		func() error { return d.send(ctx, mustMode("unsubscribe"), EndpointPath(subRef)) },
		func() error { return d.send(ctx, mustMode("unregister"), EndpointPath(pubRef)) },
	}

	for i, step := range steps {
		if i > 0 {
			if err := ratelimit.Sleep(ctx, d.cfg.StepDelay); err != nil {
				return err
			}
		}
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) massNotify(ctx context.Context) error {
	pacer := ratelimit.NewPacer(d.cfg.Interval)
	d.logger.Info("mass notify started",
		slog.Int("runs", d.cfg.Runs),
		slog.Duration("interval", pacer.Interval()),
		slog.Bool("continue_on_error", d.cfg.ContinueOnError))
	for i := 0; i < d.cfg.Runs; i++ {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		fmt.Fprintf(d.out, "[%d] Sending Notify...\n", i+1)

		payload, err := d.catalog.Render(wsn.Notify, d.topic, d.shuffle())
		if err != nil {
			return err
		}
		err = d.post(ctx, request(wsn.Notify, "/", payload))
		if err == nil {
			continue
		}
		if !d.cfg.ContinueOnError || errors.Is(err, transport.ErrCircuitOpen) {
			return err
		}
		d.logger.Warn("notify failed, continuing",
			slog.Int("run", i+1),
			slog.String("error", err.Error()))
	}
	return nil
}

func (d *Driver) notify(ctx context.Context, mode Mode, message string) error {
	return d.send(ctx, mode, "/", d.topic, message)
}

func (d *Driver) notifyMultiple(ctx context.Context, mode Mode, first, second string) error {
	return d.send(ctx, mode, "/", d.topic, first, d.topic, second)
}

func (d *Driver) notifyLarge(ctx context.Context, mode Mode) error {
	data, err := LoadLargeData(d.large)
	if err != nil {
		return err
	}
	payload, err := d.catalog.Render(wsn.NotifyLarge, d.topic, data)
	if err != nil {
		return err
	}

	d.announce(mode)
	req := request(wsn.NotifyLarge, "/", payload)
	if d.large.Stream {
		req.Payload = ""
		req.Stream = wsn.NewChunkReader(payload, d.large.ChunkLines)
	}
	return d.post(ctx, req)
}

// send renders mode's kind with values, announces it and posts it to path.
func (d *Driver) send(ctx context.Context, mode Mode, path string, values ...string) error {
	payload, err := d.catalog.Render(mode.Kind, values...)
	if err != nil {
		return err
	}
	d.announce(mode)
	return d.post(ctx, request(mode.Kind, path, payload))
}

func request(kind wsn.MessageKind, path, payload string) transport.Request {
	return transport.Request{
		Kind:    kind.String(),
		Action:  wsn.Action(kind),
		Path:    path,
		Payload: payload,
	}
}

func (d *Driver) announce(mode Mode) {
	fmt.Fprintf(d.out, "[i] Sending a %s request\n", mode.Description)
}

func (d *Driver) post(ctx context.Context, req transport.Request) error {
	resp, err := d.sender.Send(ctx, req)
	if err != nil {
		d.failed++
		return err
	}
	d.sent++
	d.bytes += resp.BytesSent
	d.elapsed += resp.Duration
	d.logger.Debug("response received",
		slog.String("kind", req.Kind),
		slog.String("request_id", resp.RequestID),
		slog.String("status", resp.Status),
		slog.Duration("duration", resp.Duration))
	if d.cfg.Debug {
		d.printResponse(resp)
	}
	return nil
}

func (d *Driver) printResponse(resp *transport.Response) {
	fmt.Fprintln(d.out, "--- RESPONSE CODE -------------------------------------")
	fmt.Fprintln(d.out, resp.StatusCode)
	fmt.Fprintln(d.out, "--- RESPONSE HEADERS ----------------------------------")
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(d.out, "%s: %s\n", k, strings.Join(resp.Header[k], ", "))
	}
	fmt.Fprintln(d.out, "--- RESPONSE BODY -------------------------------------")
	fmt.Fprintln(d.out, string(resp.Body))
	fmt.Fprintln(d.out, "--- RESPONSE END --------------------------------------")
}

func (d *Driver) shuffle() string {
	d.rnd.Shuffle(len(d.words), func(i, j int) {
		d.words[i], d.words[j] = d.words[j], d.words[i]
	})
	return strings.Join(d.words, " ")
}

func (d *Driver) callbackURL() string {
	return "http://" + d.wan
}

// publisherAddress is the register PublisherReference address, bare host:port
// unless publisher_url asks for the callback URL form.
func (d *Driver) publisherAddress() string {
	if d.cfg.PublisherURL {
		return d.callbackURL()
	}
	return d.wan
}

func (d *Driver) resolveWAN(ctx context.Context) error {
	if d.wan != "" {
		return nil
	}
	answer, err := d.prompter.Prompt(ctx, wanQuestion)
	if err != nil {
		return err
	}
	if answer == "" {
		answer = DefaultWANAddr
	}
	d.wan = answer
	return nil
}

// reference asks for a broker-issued reference. An empty answer is sent as is
// and addresses the broker root.
func (d *Driver) reference(ctx context.Context, ref Reference) (string, error) {
	question, name := subscriptionQuestion, "subscription"
	if ref == PublisherReference {
		question, name = publisherQuestion, "publisher"
	}
	answer, err := d.prompter.Prompt(ctx, question)
	if err != nil {
		return "", err
	}
	if answer == "" {
		d.logger.Warn("empty reference, addressing the broker root",
			slog.String("reference", name))
	}
	return answer, nil
}

// lint warns about topics the broker will likely reject for mode's dialect.
func (d *Driver) lint(mode Mode) {
	kinds := []wsn.MessageKind{mode.Kind}
	if mode.Kind == 0 {
		kinds = wsn.Kinds()
	}

	seen := map[wsn.Dialect]bool{}
	for _, k := range kinds {
		dialect, ok := wsn.TopicDialect(k)
		if !ok || seen[dialect] {
			continue
		}
		seen[dialect] = true
		for _, note := range wsn.LintTopic(dialect, d.topic) {
			d.logger.Warn("topic may be rejected",
				slog.String("topic", d.topic),
				slog.String("dialect", string(dialect)),
				slog.String("note", note))
		}
	}
}
