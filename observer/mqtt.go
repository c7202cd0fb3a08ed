// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package observer watches the broker's MQTT side for messages published
// through WS-Notification, for brokers that bridge the two protocols.
package observer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrTimeout is returned when the broker does not answer within ConnectTimeout.
var ErrTimeout = errors.New("mqtt operation timed out")

// Recorder counts messages seen by the observer.
type Recorder interface {
	RecordNotificationReceived(source string)
}

// Config holds MQTT observer settings.
type Config struct {
	Address        string
	ClientID       string
	Topic          string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTT is a subscribed MQTT client that logs and counts arrivals.
type MQTT struct {
	config   Config
	client   mqtt.Client
	recorder Recorder
	logger   *slog.Logger
	received atomic.Int64
}

// New creates an observer. Call Start to connect.
func New(cfg Config, recorder Recorder, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}

	o := &MQTT{
		config:   cfg,
		recorder: recorder,
		logger:   logger,
	}

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + cfg.Address).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetProtocolVersion(4).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("observer_connection_lost", slog.String("error", err.Error()))
		})
	o.client = mqtt.NewClient(opts)

	return o
}

// Start connects and subscribes to the configured topic.
func (o *MQTT) Start() error {
	if err := wait(o.client.Connect(), o.config.ConnectTimeout); err != nil {
		return fmt.Errorf("observer connect to %s: %w", o.config.Address, err)
	}
	if err := wait(o.client.Subscribe(o.config.Topic, o.config.QoS, o.handle), o.config.ConnectTimeout); err != nil {
		o.client.Disconnect(250)
		return fmt.Errorf("observer subscribe to %s: %w", o.config.Topic, err)
	}

	o.logger.Info("observer_subscribed",
		slog.String("address", o.config.Address),
		slog.String("topic", o.config.Topic),
		slog.Int("qos", int(o.config.QoS)))
	return nil
}

// Received returns the number of messages seen so far.
func (o *MQTT) Received() int64 {
	return o.received.Load()
}

// Close disconnects from the broker.
func (o *MQTT) Close() {
	if o.client.IsConnected() {
		o.client.Disconnect(250)
	}
	o.logger.Info("observer_stopped", slog.Int64("received", o.Received()))
}

func (o *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	o.received.Add(1)
	if o.recorder != nil {
		o.recorder.RecordNotificationReceived("mqtt")
	}
	o.logger.Info("observer_message",
		slog.String("topic", msg.Topic()),
		slog.Int("qos", int(msg.Qos())),
		slog.Bool("retained", msg.Retained()),
		slog.Int("payload_size", len(msg.Payload())),
		slog.String("payload", string(msg.Payload())))
}

func wait(tok mqtt.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return tok.Error()
}
