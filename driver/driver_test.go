// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/bullrider/config"
	"github.com/absmach/bullrider/transport"
	"github.com/absmach/bullrider/wsn"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	requests []transport.Request
	bodies   []string
	failAt   map[int]error
}

func (s *fakeSender) Send(_ context.Context, req transport.Request) (*transport.Response, error) {
	n := len(s.requests)
	body := req.Payload
	if req.Stream != nil {
		data, err := io.ReadAll(req.Stream)
		if err != nil {
			return nil, err
		}
		body = string(data)
	}
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)

	if err, ok := s.failAt[n]; ok {
		return nil, err
	}
	return &transport.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": {"application/soap+xml"}},
		Body:       []byte("<ok/>"),
		RequestID:  fmt.Sprintf("req-%d", n),
		BytesSent:  int64(len(body)),
		Duration:   time.Millisecond,
	}, nil
}

func (s *fakeSender) kinds() []string {
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Kind
	}
	return out
}

type fakePrompter struct {
	answers   []string
	questions []string
}

func (p *fakePrompter) Prompt(_ context.Context, question string) (string, error) {
	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Driver.Interval = 0
	cfg.Driver.StepDelay = 0
	cfg.Driver.Debug = false
	return cfg
}

func newTestDriver(cfg *config.Config, sender Sender, prompter Prompter, out io.Writer, opts ...Option) *Driver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return New(cfg, "ox:test", sender, prompter, out, logger, opts...)
}

func TestResolve(t *testing.T) {
	for _, m := range Modes() {
		got, err := Resolve(m.Name)
		require.NoError(t, err, m.Name)
		assert.Equal(t, m, got)
		assert.NotEmpty(t, got.Description, m.Name)
	}

	_, err := Resolve("explode")
	assert.ErrorIs(t, err, ErrUnknownMode)

	full, err := Resolve("full")
	require.NoError(t, err)
	mass, err := Resolve("massnotify")
	require.NoError(t, err)
	assert.Equal(t, mass.Kind, full.Kind)
	assert.True(t, full.Looped)
}

func TestModesExactSet(t *testing.T) {
	want := []string{
		"all", "full", "getcurrent", "largenotify", "massnotify", "multinotify", "notify",
		"pause", "register", "renew", "resume", "subscribe", "subscribe-fulltopic",
		"subscribe-notopic", "subscribe-simpletopic", "subscribe-useraw", "subscribe-xpath",
		"subscribe-xpathtopic", "unregister", "unsubscribe",
	}
	var got []string
	for _, m := range Modes() {
		got = append(got, m.Name)
	}
	assert.Equal(t, want, got)
}

func TestEndpointPath(t *testing.T) {
	assert.Equal(t, "/", EndpointPath(""))
	assert.Equal(t, "/abc123", EndpointPath("abc123"))
}

func TestLifecyclePaths(t *testing.T) {
	for _, name := range []string{"renew", "pause", "resume", "unsubscribe", "unregister"} {
		t.Run(name, func(t *testing.T) {
			sender := &fakeSender{}
			prompter := &fakePrompter{answers: []string{"abc123"}}
			d := newTestDriver(testConfig(), sender, prompter, io.Discard)

			require.NoError(t, d.Run(context.Background(), mustMode(name)))
			require.Len(t, sender.requests, 1)
			assert.Equal(t, "/abc123", sender.requests[0].Path)

			want := subscriptionQuestion
			if name == "unregister" {
				want = publisherQuestion
			}
			assert.Equal(t, []string{want}, prompter.questions)
		})
	}
}

func TestNonLifecyclePaths(t *testing.T) {
	for _, m := range Modes() {
		if m.Reference != NoReference || m.Name == "all" {
			continue
		}
		t.Run(m.Name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Driver.Runs = 2
			cfg.Large.SynthesizeBytes = 4096
			sender := &fakeSender{}
			d := newTestDriver(cfg, sender, &fakePrompter{}, io.Discard, WithWANAddr("1.2.3.4:8000"))

			require.NoError(t, d.Run(context.Background(), m))
			require.NotEmpty(t, sender.requests)
			for _, r := range sender.requests {
				assert.Equal(t, "/", r.Path)
			}
		})
	}
}

func TestEmptyReference(t *testing.T) {
	for _, name := range []string{"pause", "unregister"} {
		t.Run(name, func(t *testing.T) {
			sender := &fakeSender{}
			d := newTestDriver(testConfig(), sender, &fakePrompter{answers: []string{""}}, io.Discard)

			require.NoError(t, d.Run(context.Background(), mustMode(name)))
			require.Len(t, sender.requests, 1)
			assert.Equal(t, "/", sender.requests[0].Path)
		})
	}
}

func TestPromptCancelled(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	d := newTestDriver(testConfig(), &fakeSender{}, NewLinePrompter(in, io.Discard), io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- d.Run(ctx, mustMode("pause")) }()
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run still blocked on the reference prompt after cancel")
	}
}

func TestNotifyOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Driver.Debug = true
	sender := &fakeSender{}
	var out bytes.Buffer
	d := newTestDriver(cfg, sender, &fakePrompter{}, &out)

	require.NoError(t, d.Run(context.Background(), mustMode("notify")))

	require.Len(t, sender.bodies, 1)
	assert.Contains(t, sender.bodies[0], ">derp<")
	assert.Contains(t, sender.bodies[0], ">ox:test<")

	lines := out.String()
	assert.True(t, strings.HasPrefix(lines, "[i] Running in Notification mode...\n"))
	assert.Contains(t, lines, "[i] Sending a Notification request\n")
	assert.Contains(t, lines, "--- RESPONSE CODE")
	assert.Contains(t, lines, "200\n")
	assert.Contains(t, lines, "Content-Type: application/soap+xml\n")
	assert.Contains(t, lines, "<ok/>\n")
	assert.Contains(t, lines, "--- RESPONSE END")
	assert.True(t, strings.HasSuffix(lines, "[X] Complete.\n"))
}

func TestMassNotify(t *testing.T) {
	cfg := testConfig()
	cfg.Driver.Runs = 3
	sender := &fakeSender{}
	var out bytes.Buffer
	d := newTestDriver(cfg, sender, &fakePrompter{}, &out)

	require.NoError(t, d.Run(context.Background(), mustMode("massnotify")))

	require.Len(t, sender.bodies, 3)
	assert.NotEqual(t, sender.bodies[0], sender.bodies[1])
	assert.NotEqual(t, sender.bodies[1], sender.bodies[2])
	assert.NotEqual(t, sender.bodies[0], sender.bodies[2])
	for _, b := range sender.bodies {
		for _, w := range words {
			assert.Contains(t, b, w)
		}
	}
	for _, line := range []string{"[1] Sending Notify...", "[2] Sending Notify...", "[3] Sending Notify..."} {
		assert.Contains(t, out.String(), line)
	}
}

func TestMassNotifyFailure(t *testing.T) {
	transportErr := errors.Join(transport.ErrTransport, errors.New("connection refused"))

	tests := []struct {
		name      string
		keepGoing bool
		failAt    map[int]error
		wantErr   error
		wantSent  int
	}{
		{
			name:     "stops on first failure",
			failAt:   map[int]error{1: transportErr},
			wantErr:  transport.ErrTransport,
			wantSent: 2,
		},
		{
			name:      "continues past failures",
			keepGoing: true,
			failAt:    map[int]error{1: transportErr, 2: transportErr},
			wantSent:  5,
		},
		{
			name:      "stops once the breaker opens",
			keepGoing: true,
			failAt:    map[int]error{1: transportErr, 2: transport.ErrCircuitOpen},
			wantErr:   transport.ErrCircuitOpen,
			wantSent:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Driver.Runs = 5
			cfg.Driver.ContinueOnError = tt.keepGoing
			sender := &fakeSender{failAt: tt.failAt}
			d := newTestDriver(cfg, sender, &fakePrompter{}, io.Discard)

			err := d.Run(context.Background(), mustMode("massnotify"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, sender.requests, tt.wantSent)
		})
	}
}

func TestMultiNotify(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDriver(testConfig(), sender, &fakePrompter{}, io.Discard)

	require.NoError(t, d.Run(context.Background(), mustMode("multinotify")))
	require.Len(t, sender.bodies, 1)
	assert.Equal(t, 2, strings.Count(sender.bodies[0], "<wsnt:NotificationMessage>"))
	assert.Equal(t, wsn.NotifyMultiple.String(), sender.requests[0].Kind)
}

func TestWANPrompt(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{name: "explicit address", answer: "10.0.0.7:9000", want: "http://10.0.0.7:9000"},
		{name: "empty answer uses default", answer: "", want: "http://" + DefaultWANAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			prompter := &fakePrompter{answers: []string{tt.answer}}
			d := newTestDriver(testConfig(), sender, prompter, io.Discard)

			require.NoError(t, d.Run(context.Background(), mustMode("subscribe-notopic")))
			assert.Equal(t, []string{wanQuestion}, prompter.questions)
			require.Len(t, sender.bodies, 1)
			assert.Contains(t, sender.bodies[0], "<ns2:Address>"+tt.want+"</ns2:Address>")
			assert.NotContains(t, sender.bodies[0], "Filter")
		})
	}
}

func TestNotifyDoesNotPromptForWAN(t *testing.T) {
	prompter := &fakePrompter{}
	d := newTestDriver(testConfig(), &fakeSender{}, prompter, io.Discard)

	require.NoError(t, d.Run(context.Background(), mustMode("notify")))
	assert.Empty(t, prompter.questions)
}

func TestAllSequence(t *testing.T) {
	wantKinds := []string{
		"subscribe", "register", "notify", "notify-multiple", "getcurrent",
		"subscribe-notopic", "subscribe-xpath", "subscribe-xpathtopic", "subscribe-simpletopic",
		"subscribe-useraw", "renew", "pause", "notify", "resume", "unsubscribe", "unregister",
	}

	for _, refs := range [][2]string{{"sub-1", "pub-1"}, {"zzz", "aaa"}, {"", ""}} {
		sender := &fakeSender{}
		prompter := &fakePrompter{answers: []string{refs[0], refs[1]}}
		d := newTestDriver(testConfig(), sender, prompter, io.Discard, WithWANAddr("1.2.3.4:8000"))

		require.NoError(t, d.Run(context.Background(), mustMode("all")))
		assert.Equal(t, wantKinds, sender.kinds())
		assert.Equal(t, []string{subscriptionQuestion, publisherQuestion}, prompter.questions)

		for i, r := range sender.requests {
			switch r.Kind {
			case "renew", "pause", "resume", "unsubscribe":
				assert.Equal(t, EndpointPath(refs[0]), r.Path)
			case "unregister":
				assert.Equal(t, EndpointPath(refs[1]), r.Path)
			default:
				assert.Equal(t, "/", r.Path, i)
			}
		}

		assert.Contains(t, sender.bodies[2], arrivingMessage)
		assert.Contains(t, sender.bodies[3], concreteMessage)
		assert.Contains(t, sender.bodies[3], simpleMessage)
		assert.Contains(t, sender.bodies[12], pausedMessage)
		assert.Contains(t, sender.bodies[1], "<wsa:Address>1.2.3.4:8000</wsa:Address>")
		for _, r := range sender.requests {
			assert.NotEmpty(t, r.Action, r.Kind)
		}
	}
}

func TestRegisterAddress(t *testing.T) {
	tests := []struct {
		name         string
		publisherURL bool
		want         string
	}{
		{name: "bare host and port", want: "<wsa:Address>1.2.3.4:8000</wsa:Address>"},
		{name: "callback url", publisherURL: true, want: "<wsa:Address>http://1.2.3.4:8000</wsa:Address>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Driver.PublisherURL = tt.publisherURL
			sender := &fakeSender{}
			d := newTestDriver(cfg, sender, &fakePrompter{}, io.Discard, WithWANAddr("1.2.3.4:8000"))

			require.NoError(t, d.Run(context.Background(), mustMode("register")))
			require.Len(t, sender.bodies, 1)
			assert.Contains(t, sender.bodies[0], tt.want)
			assert.Equal(t, wsn.Action(wsn.Register), sender.requests[0].Action)
		})
	}
}

func TestRunSummary(t *testing.T) {
	cfg := testConfig()
	cfg.Driver.Runs = 2
	cfg.Driver.Interval = 5 * time.Millisecond
	sender := &fakeSender{}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := New(cfg, "ox:test", sender, &fakePrompter{}, io.Discard, logger)

	require.NoError(t, d.Run(context.Background(), mustMode("massnotify")))

	total := len(sender.bodies[0]) + len(sender.bodies[1])
	out := logs.String()
	assert.Contains(t, out, "interval=5ms")
	assert.Contains(t, out, "request_id=req-0")
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, `status="200 OK"`)
	assert.Contains(t, out, fmt.Sprintf("bytes_sent=%d", total))
	assert.Contains(t, out, "send_time=2ms")
}

func TestAllStopsOnFailure(t *testing.T) {
	sender := &fakeSender{failAt: map[int]error{0: transport.ErrTransport}}
	prompter := &fakePrompter{answers: []string{"s", "p"}}
	d := newTestDriver(testConfig(), sender, prompter, io.Discard, WithWANAddr("1.2.3.4:8000"))

	err := d.Run(context.Background(), mustMode("all"))
	assert.ErrorIs(t, err, transport.ErrTransport)
	assert.Len(t, sender.requests, 1)
	assert.Empty(t, prompter.questions)
}

func TestLargeNotify(t *testing.T) {
	tests := []struct {
		name   string
		stream bool
	}{
		{name: "streamed in chunks", stream: true},
		{name: "sent whole", stream: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Large.SynthesizeBytes = 64 * 1024
			cfg.Large.Stream = tt.stream
			sender := &fakeSender{}
			d := newTestDriver(cfg, sender, &fakePrompter{}, io.Discard)

			require.NoError(t, d.Run(context.Background(), mustMode("largenotify")))
			require.Len(t, sender.requests, 1)

			data, err := LoadLargeData(cfg.Large)
			require.NoError(t, err)
			payload, err := wsn.Render(wsn.NotifyLarge, "ox:test", data)
			require.NoError(t, err)

			if tt.stream {
				assert.NotNil(t, sender.requests[0].Stream)
				assert.Equal(t, strings.Join(wsn.Chunks(payload, cfg.Large.ChunkLines), ""), sender.bodies[0])
			} else {
				assert.Equal(t, payload, sender.bodies[0])
			}
		})
	}
}

func TestLoadLargeData(t *testing.T) {
	dir := t.TempDir()
	content := "QUJDREVG\nR0hJSktM\n"

	plain := filepath.Join(dir, "smallb64data.txt")
	require.NoError(t, os.WriteFile(plain, []byte(content), 0o644))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	compressed := filepath.Join(dir, "smallb64data.txt.gz")
	require.NoError(t, os.WriteFile(compressed, buf.Bytes(), 0o644))

	got, err := LoadLargeData(config.LargeConfig{AssetFile: plain})
	require.NoError(t, err)
	assert.Equal(t, content, got)

	got, err = LoadLargeData(config.LargeConfig{AssetFile: compressed})
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = LoadLargeData(config.LargeConfig{AssetFile: filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)

	for _, size := range []int{1000, 1001, 1002, 1003, 3} {
		got, err = LoadLargeData(config.LargeConfig{SynthesizeBytes: size})
		require.NoError(t, err)
		for _, line := range strings.Split(got, "\n") {
			assert.LessOrEqual(t, len(line), lineWidth)
		}
		assert.Equal(t, size, len(strings.ReplaceAll(got, "\n", "")), size)
	}
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("abc123  \r\n\nlast"), &out)

	ctx := context.Background()
	got, err := p.Prompt(ctx, subscriptionQuestion)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
	assert.Equal(t, subscriptionQuestion, out.String())

	got, err = p.Prompt(ctx, wanQuestion)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = p.Prompt(ctx, publisherQuestion)
	require.NoError(t, err)
	assert.Equal(t, "last", got)

	_, err = p.Prompt(ctx, publisherQuestion)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLinePrompterCancel(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	p := NewLinePrompter(in, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Prompt(ctx, subscriptionQuestion)
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned read still delivers its line to the next prompt.
	go func() { _, _ = io.WriteString(w, "late\n") }()
	got, err := p.Prompt(context.Background(), publisherQuestion)
	require.NoError(t, err)
	assert.Equal(t, "late", got)
}
