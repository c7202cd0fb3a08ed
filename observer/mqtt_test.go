// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type countingRecorder struct {
	sources []string
}

func (r *countingRecorder) RecordNotificationReceived(source string) {
	r.sources = append(r.sources, source)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandle(t *testing.T) {
	rec := &countingRecorder{}
	o := New(Config{Address: "127.0.0.1:1883", ClientID: "test", Topic: "ox/test", ConnectTimeout: time.Second}, rec, testLogger())

	o.handle(nil, &fakeMessage{topic: "ox/test", payload: []byte("derp")})
	o.handle(nil, &fakeMessage{topic: "ox/test", payload: []byte("why are snakes")})

	assert.Equal(t, int64(2), o.Received())
	assert.Equal(t, []string{"mqtt", "mqtt"}, rec.sources)
}

func TestStartUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	o := New(Config{Address: addr, ClientID: "test", Topic: "ox/test", ConnectTimeout: time.Second}, nil, testLogger())
	err = o.Start()
	assert.Error(t, err)
	o.Close()
}
