// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/absmach/bullrider/config"
	"github.com/absmach/bullrider/consumer"
	"github.com/absmach/bullrider/driver"
	"github.com/absmach/bullrider/observer"
	"github.com/absmach/bullrider/telemetry"
	"github.com/absmach/bullrider/transport"
	"github.com/google/uuid"
)

var errInvalidArguments = errors.New("invalid arguments")

type cliFlags struct {
	configFile  string
	debug       bool
	runs        int
	interval    time.Duration
	stepDelay   time.Duration
	wan         string
	contentType string
	asset       string
	escape      bool
	listen      bool
	mqtt        string
	listModes   bool
}

type invocation struct {
	mode  driver.Mode
	host  string
	port  int
	topic string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bullrider", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s [flags] <mode> <host> <port> <topic>\n", fs.Name())
		usage(stdout, fs)
	}

	var f cliFlags
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file")
	fs.BoolVar(&f.debug, "debug", true, "Print status, headers and body of every response")
	fs.IntVar(&f.runs, "runs", 1000, "Number of notifies sent by massnotify")
	fs.DurationVar(&f.interval, "interval", time.Millisecond, "Minimum spacing between massnotify sends")
	fs.DurationVar(&f.stepDelay, "step-delay", 2*time.Second, "Pause between steps of the all sequence")
	fs.StringVar(&f.wan, "wan", "", "IP:Port the broker should use to reach this machine")
	fs.StringVar(&f.contentType, "content-type", "", "Content-Type header of every request")
	fs.StringVar(&f.asset, "asset", "", "Base64 filler file for largenotify (.gz allowed)")
	fs.BoolVar(&f.escape, "escape", false, "XML-escape topic and message values")
	fs.BoolVar(&f.listen, "listen", false, "Run a local notification consumer")
	fs.StringVar(&f.mqtt, "mqtt", "", "Observe the topic on this MQTT broker address")
	fs.BoolVar(&f.listModes, "list-modes", false, "List modes and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if f.listModes {
		printModes(stdout)
		return 0
	}

	inv, err := parseInvocation(fs.Args())
	if err != nil {
		fmt.Fprintf(stdout, "Invalid arguments: %s [flags] <mode> <host> <port> <topic>\n", fs.Name())
		fmt.Fprintf(stdout, "  %v\n", err)
		usage(stdout, fs)
		return 1
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	applyFlags(fs, f, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Log, stderr)
	runID := uuid.NewString()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// After the first signal, restore default handling so a second one kills the process.
	context.AfterFunc(ctx, stop)

	if err := execute(ctx, cfg, inv, runID, stdin, stdout, logger); err != nil {
		logger.Error("Run failed", "mode", inv.mode.Name, "run_id", runID, "error", err)
		return 1
	}
	return 0
}

func parseInvocation(args []string) (invocation, error) {
	if len(args) != 4 {
		return invocation{}, fmt.Errorf("%w: expected 4 arguments, got %d", errInvalidArguments, len(args))
	}
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return invocation{}, fmt.Errorf("%w: port %q is not an integer", errInvalidArguments, args[2])
	}
	mode, err := driver.Resolve(args[0])
	if err != nil {
		return invocation{}, err
	}
	return invocation{mode: mode, host: args[1], port: port, topic: args[3]}, nil
}

// applyFlags copies explicitly set flags over file values.
func applyFlags(fs *flag.FlagSet, f cliFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "debug":
			cfg.Driver.Debug = f.debug
		case "runs":
			cfg.Driver.Runs = f.runs
		case "interval":
			cfg.Driver.Interval = f.interval
		case "step-delay":
			cfg.Driver.StepDelay = f.stepDelay
		case "wan":
			cfg.Driver.WANAddr = f.wan
		case "content-type":
			cfg.Transport.ContentType = f.contentType
		case "asset":
			cfg.Large.AssetFile = f.asset
		case "escape":
			cfg.Driver.EscapeValues = f.escape
		case "listen":
			cfg.Consumer.Enabled = f.listen
		case "mqtt":
			cfg.Observer.Enabled = true
			cfg.Observer.MQTTAddr = f.mqtt
		}
	})
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

func execute(ctx context.Context, cfg *config.Config, inv invocation, runID string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	tel, err := telemetry.Setup(ctx, cfg.Telemetry, runID)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("OpenTelemetry shutdown error", "error", err)
		}
	}()

	var (
		sendRecorder     transport.Recorder
		consumerRecorder consumer.Recorder
		observerRecorder observer.Recorder
	)
	if cfg.Telemetry.MetricsEnabled {
		m, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		sendRecorder, consumerRecorder, observerRecorder = m, m, m
		logger.Info("OTel metrics enabled", "endpoint", cfg.Telemetry.Endpoint)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var consumerErr chan error
	if cfg.Consumer.Enabled {
		srv := consumer.New(consumer.Config{
			Address:         cfg.Consumer.Addr,
			MaxBodyBytes:    cfg.Consumer.MaxBodyBytes,
			ShutdownTimeout: cfg.Consumer.ShutdownTimeout,
		}, consumerRecorder, logger)
		consumerErr = make(chan error, 1)
		go func() { consumerErr <- srv.Listen(runCtx) }()
	}

	if cfg.Observer.Enabled {
		topic := cfg.Observer.Topic
		if topic == "" {
			topic = inv.topic
		}
		obs := observer.New(observer.Config{
			Address:        cfg.Observer.MQTTAddr,
			ClientID:       cfg.Observer.ClientID,
			Topic:          topic,
			QoS:            cfg.Observer.QoS,
			ConnectTimeout: cfg.Observer.ConnectTimeout,
		}, observerRecorder, logger)
		if err := obs.Start(); err != nil {
			return err
		}
		defer obs.Close()
	}

	sender := transport.NewHTTPSender(transport.Config{
		Host:           inv.host,
		Port:           inv.port,
		ContentType:    cfg.Transport.ContentType,
		UserAgent:      cfg.Transport.UserAgent,
		Timeout:        cfg.Transport.Timeout,
		CircuitBreaker: cfg.Transport.CircuitBreaker,
	}, sendRecorder, logger)

	logger.Debug("Starting run",
		"run_id", runID,
		"mode", inv.mode.Name,
		"target", sender.URL("/"),
		"topic", inv.topic)

	d := driver.New(cfg, inv.topic, sender, driver.NewLinePrompter(stdin, stdout), stdout, logger)
	if err := d.Run(runCtx, inv.mode); err != nil {
		return err
	}

	if consumerErr == nil && !cfg.Observer.Enabled {
		return nil
	}

	logger.Info("Waiting for notifications",
		"callback", d.WANAddr(),
		"listen", cfg.Consumer.Addr,
		"mqtt_observer", cfg.Observer.Enabled)
	fmt.Fprintln(stdout, "[i] Waiting for notifications, press Ctrl+C to stop...")
	if consumerErr == nil {
		<-runCtx.Done()
		return nil
	}
	select {
	case err := <-consumerErr:
		return err
	case <-runCtx.Done():
		return <-consumerErr
	}
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w, "Modes:")
	printModes(w)
}

func printModes(w io.Writer) {
	for _, m := range driver.Modes() {
		fmt.Fprintf(w, "  %-22s %s\n", m.Name, m.Description)
	}
}
