package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-client-app/internal/journal"
	"github.com/nerrad567/mqtt-client-app/internal/scheduler"
	"github.com/nerrad567/mqtt-client-app/internal/session"
	"github.com/nerrad567/mqtt-client-app/internal/session/sessiontest"
	"github.com/nerrad567/mqtt-client-app/internal/shutdown"
)

// syncBuffer is a bytes.Buffer safe for the callback goroutines that print
// received messages.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MQTT.Broker.ClientID = "test-client"
	cfg.Publish.Topic = "sensors/temp"
	cfg.Publish.QoS = 1
	cfg.Publish.PeriodSeconds = 0.02
	cfg.Publish.MessageCount = 3
	cfg.Subscribe.TimeoutSeconds = 1
	return cfg
}

func testDeps(t *testing.T, tr *sessiontest.Transport) (Deps, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	return Deps{
		Transport: tr,
		Stop:      shutdown.New(),
		Stdin:     strings.NewReader(""),
		Stdout:    out,
		Logger:    logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, "test", io.Discard),
		Rand:      rand.New(rand.NewPCG(1, 2)),
	}, out
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_PublishesUntilLimit(t *testing.T) {
	tr := sessiontest.New()
	deps, out := testDeps(t, tr)
	cfg := testConfig()
	cfg.Publish.PeriodSeconds = 1
	cfg.Payload.Message = "hello"
	var final []session.State
	deps.OnFinish = func(st session.State) { final = append(final, st) }

	res, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(final) != 1 || final[0] != session.StateDisconnected {
		t.Errorf("final session states = %v, want [%v]", final, session.StateDisconnected)
	}
	if res.Sent != 3 || res.Failed != 0 {
		t.Errorf("Run() sent/failed = %d/%d, want 3/0", res.Sent, res.Failed)
	}
	if res.Stopped || res.Drained {
		t.Errorf("Run() stopped = %v, drained = %v, want both false", res.Stopped, res.Drained)
	}

	published := tr.Published()
	if len(published) != 3 {
		t.Fatalf("published %d messages, want 3", len(published))
	}
	for i, p := range published {
		want := fmt.Sprintf("hello #%d", i)
		if p.Topic != "sensors/temp" || string(p.Payload) != want || p.QoS != 1 {
			t.Errorf("message %d = %+v, want sensors/temp %q qos 1", i, p, want)
		}
		if i > 0 {
			if gap := p.At.Sub(published[i-1].At); gap < 900*time.Millisecond || gap > 1100*time.Millisecond {
				t.Errorf("gap before message %d = %v, want about 1s", i, gap)
			}
		}
	}

	if got := strings.Count(out.String(), "Publishing message: hello #"); got != 3 {
		t.Errorf("console has %d publishing lines, want 3\n%s", got, out.String())
	}
	if tr.Connects() != 1 || tr.Disconnects() != 1 {
		t.Errorf("connects/disconnects = %d/%d, want 1/1", tr.Connects(), tr.Disconnects())
	}
	if tr.IsConnected() {
		t.Error("transport still connected after Run()")
	}
	if code := ExitCode(err); code != 0 {
		t.Errorf("ExitCode() = %d, want 0", code)
	}
}

func TestRun_StopsOnRequest(t *testing.T) {
	tr := sessiontest.New()
	deps, out := testDeps(t, tr)
	cfg := testConfig()
	cfg.Publish.MessageCount = 0
	cfg.Subscribe.Topic = "sensors/cmd"

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for len(tr.Published()) < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		tr.Deliver("sensors/cmd", 1, []byte("ping"))
		deps.Stop.RequestStop()
	}()

	res, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Stopped {
		t.Error("Run() stopped = false, want true")
	}
	if res.Sent < 2 {
		t.Errorf("Run() sent = %d, want at least 2", res.Sent)
	}
	if !strings.Contains(out.String(), "sensors/cmd 1 ping\n") {
		t.Errorf("console missing received message\n%s", out.String())
	}
	if tr.Disconnects() != 1 {
		t.Errorf("disconnects = %d, want 1", tr.Disconnects())
	}
}

func TestRun_StopBeforeConnect(t *testing.T) {
	tr := sessiontest.New()
	deps, _ := testDeps(t, tr)
	deps.Stop.RequestStop()

	res, err := Run(context.Background(), testConfig(), deps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Stopped || res.Sent != 0 {
		t.Errorf("Run() = %+v, want stopped with nothing sent", res)
	}
	if len(tr.Published()) != 0 {
		t.Errorf("published %d messages after early stop", len(tr.Published()))
	}
}

func TestRun_DrainsStdinLines(t *testing.T) {
	tr := sessiontest.New()
	deps, _ := testDeps(t, tr)
	deps.Stdin = strings.NewReader("first\nsecond\n")
	cfg := testConfig()
	cfg.Publish.MessageCount = 0
	cfg.Payload.StdinLines = true

	res, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Drained {
		t.Error("Run() drained = false, want true")
	}
	if res.Sent != 2 {
		t.Errorf("Run() sent = %d, want 2", res.Sent)
	}

	var got []string
	for _, p := range tr.Published() {
		got = append(got, string(p.Payload))
	}
	if strings.Join(got, ",") != "first,second" {
		t.Errorf("published payloads = %v, want [first second]", got)
	}
}

func TestRun_SubscribeHandshake(t *testing.T) {
	tests := []struct {
		name     string
		granted  []byte
		wantErr  bool
		wantLine string
	}{
		{
			name:     "granted",
			granted:  []byte{1},
			wantLine: "on_subscribe: 0:granted qos = 1\n",
		},
		{
			name:     "rejected",
			granted:  []byte{0x80},
			wantErr:  true,
			wantLine: "on_subscribe: 0:granted qos = 128\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sessiontest.New()
			tr.SetGranted(tt.granted...)
			deps, out := testDeps(t, tr)
			cfg := testConfig()
			cfg.Subscribe.Topic = "sensors/#"

			_, err := Run(context.Background(), cfg, deps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantLine) {
				t.Errorf("console missing %q\n%s", tt.wantLine, out.String())
			}
			if subs := tr.Subscribes(); len(subs) != 1 || subs[0] != "sensors/#" {
				t.Errorf("Subscribes() = %v, want [sensors/#]", subs)
			}
			if tt.wantErr {
				if code := ExitCode(err); code != 1 {
					t.Errorf("ExitCode() = %d, want 1", code)
				}
				if len(tr.Published()) != 0 {
					t.Errorf("published %d messages after rejected subscribe", len(tr.Published()))
				}
				if tr.Disconnects() != 1 {
					t.Errorf("disconnects = %d, want 1", tr.Disconnects())
				}
			}
		})
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	tr := sessiontest.New()
	tr.FailConnect(&sessiontest.CodeError{Code: 5})
	deps, _ := testDeps(t, tr)

	_, err := Run(context.Background(), testConfig(), deps)
	if err == nil {
		t.Fatal("Run() error = nil, want connect failure")
	}
	if !strings.Contains(err.Error(), "connecting to broker") {
		t.Errorf("Run() error = %v, want connect context", err)
	}
	if code := ExitCode(err); code != 1 {
		t.Errorf("ExitCode() = %d, want 1", code)
	}
}

func TestRun_InvalidConfigurationBeforeConnect(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"zero period", func(c *config.Config) { c.Publish.PeriodSeconds = 0 }},
		{"negative period", func(c *config.Config) { c.Publish.PeriodSeconds = -1 }},
		{"unknown format", func(c *config.Config) { c.Payload.Format = "xml" }},
		{"missing file", func(c *config.Config) { c.Payload.File = filepath.Join(t.TempDir(), "absent.txt") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sessiontest.New()
			deps, _ := testDeps(t, tr)
			cfg := testConfig()
			tt.modify(cfg)

			_, err := Run(context.Background(), cfg, deps)
			if code := ExitCode(err); code != 2 {
				t.Errorf("ExitCode(%v) = %d, want 2", err, code)
			}
			if tr.Connects() != 0 {
				t.Errorf("connects = %d, want 0 before validation passes", tr.Connects())
			}
		})
	}
}

func TestRun_NoTransport(t *testing.T) {
	if _, err := Run(context.Background(), testConfig(), Deps{}); err == nil {
		t.Error("Run() without transport error = nil")
	}
}

func TestRun_PublishFailureContinues(t *testing.T) {
	tr := sessiontest.New()
	// Both the first send and its resend fail; later sends succeed.
	tr.FailPublish(sessiontest.ErrInjected, sessiontest.ErrInjected)
	deps, _ := testDeps(t, tr)
	cfg := testConfig()
	cfg.Retry.Resubscribe = false

	res, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Sent != 3 || res.Failed != 1 {
		t.Errorf("Run() sent/failed = %d/%d, want 3/1", res.Sent, res.Failed)
	}
	if got := len(tr.Published()); got != 2 {
		t.Errorf("published %d messages, want 2", got)
	}
}

func TestRun_PayloadReadErrorAborts(t *testing.T) {
	tr := sessiontest.New()
	deps, _ := testDeps(t, tr)
	broken := errors.New("device gone")
	deps.Stdin = io.MultiReader(strings.NewReader("one\n"), errReader{broken})
	var final session.State
	deps.OnFinish = func(st session.State) { final = st }
	cfg := testConfig()
	cfg.Payload.StdinLines = true
	cfg.Publish.MessageCount = 0

	res, err := Run(context.Background(), cfg, deps)
	if !errors.Is(err, scheduler.ErrAbort) || !errors.Is(err, broken) {
		t.Fatalf("Run() error = %v, want ErrAbort wrapping the read error", err)
	}
	if code := ExitCode(err); code != 1 {
		t.Errorf("ExitCode() = %d, want 1", code)
	}
	if res.Sent != 2 || res.Failed != 1 || res.Drained {
		t.Errorf("Run() = %+v, want 2 sent with 1 failed, not drained", res)
	}
	if got := tr.Published(); len(got) != 1 || string(got[0].Payload) != "one" {
		t.Errorf("published = %+v, want just \"one\"", got)
	}
	if final != session.StateDisconnected {
		t.Errorf("final session state = %v, want %v", final, session.StateDisconnected)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestRun_RecordsJournal(t *testing.T) {
	tr := sessiontest.New()
	deps, _ := testDeps(t, tr)
	logs := &syncBuffer{}
	deps.Logger = logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "test", logs)
	cfg := testConfig()
	cfg.Payload.Message = "abc"
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")

	if _, err := Run(context.Background(), cfg, deps); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	db, err := database.Open(cfg.Journal)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	var runID string
	if err := db.QueryRowContext(ctx, "SELECT id FROM runs").Scan(&runID); err != nil {
		t.Fatalf("query run id error = %v", err)
	}

	repo := journal.NewSQLiteRepository(db.DB)
	run, err := repo.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != journal.StatusCompleted || run.Sent != 3 || run.Failed != 0 {
		t.Errorf("run = %+v, want completed with 3 sent", run)
	}
	if run.ClientID != "test-client" || run.Topic != "sensors/temp" {
		t.Errorf("run client/topic = %q/%q", run.ClientID, run.Topic)
	}

	deliveries, err := repo.ListDeliveries(ctx, runID, journal.Filter{})
	if err != nil {
		t.Fatalf("ListDeliveries() error = %v", err)
	}
	if len(deliveries) != 3 {
		t.Fatalf("ListDeliveries() = %d entries, want 3", len(deliveries))
	}
	for i, d := range deliveries {
		if d.Outcome != "delivered" || d.PayloadSize != len("abc #0") {
			t.Errorf("delivery %d = %+v, want delivered with 6 bytes", i, d)
		}
	}

	// The recorder reads the run back before closing the journal.
	out := logs.String()
	for _, want := range []string{
		"journal opened",
		"mode=wal",
		"journal run stored",
		"run_id=" + runID,
		"status=completed",
		"sent=3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q\n%s", want, out)
		}
	}
}

func TestRun_JournalStoresFailedDelivery(t *testing.T) {
	tr := sessiontest.New()
	tr.FailPublish(sessiontest.ErrInjected, sessiontest.ErrInjected)
	deps, _ := testDeps(t, tr)
	logs := &syncBuffer{}
	deps.Logger = logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "test", logs)
	cfg := testConfig()
	cfg.Retry.Resubscribe = false
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")

	if _, err := Run(context.Background(), cfg, deps); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := logs.String()
	for _, want := range []string{"journal run stored", "failed=1", "first_failed_seq=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q\n%s", want, out)
		}
	}
}

func TestRun_JournalOpenFailure(t *testing.T) {
	tr := sessiontest.New()
	deps, _ := testDeps(t, tr)
	cfg := testConfig()
	cfg.Journal.Enabled = true

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg.Journal.Path = filepath.Join(blocker, "journal.db")

	if _, err := Run(context.Background(), cfg, deps); err == nil {
		t.Fatal("Run() error = nil with unusable journal path")
	}
	if tr.Connects() != 0 {
		t.Errorf("connects = %d, want 0", tr.Connects())
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"invalid config", fmt.Errorf("loading: %w", config.ErrInvalid), 2},
		{"invalid period", scheduler.ErrInvalidPeriod, 2},
		{"app config", fmt.Errorf("%w: payload", ErrConfig), 2},
		{"runtime", errors.New("connecting to broker: refused"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewSource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payload.txt")
	if err := os.WriteFile(file, []byte("from file"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name    string
		cfg     config.PayloadConfig
		stdin   io.Reader
		want    string
		wantErr bool
	}{
		{name: "message", cfg: config.PayloadConfig{Message: "fixed"}, want: "fixed #0"},
		{name: "file", cfg: config.PayloadConfig{File: file}, want: "from file"},
		{name: "missing file", cfg: config.PayloadConfig{File: filepath.Join(dir, "nope")}, wantErr: true},
		{
			name:  "stdin lines",
			cfg:   config.PayloadConfig{StdinLines: true, Delimiter: "\n", MaxLength: 100},
			stdin: strings.NewReader("line one\nline two\n"),
			want:  "line one",
		},
		{name: "stdin lines without stream", cfg: config.PayloadConfig{StdinLines: true}, wantErr: true},
		{name: "unknown format", cfg: config.PayloadConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg, tt.stdin, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("NewSource() error = %v, want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSource() error = %v", err)
			}
			got, err := src.Next(1)
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Next() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSource_Sensor(t *testing.T) {
	src, err := NewSource(config.PayloadConfig{Format: "json"}, nil, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	got, err := src.Next(1)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(got) == 0 || got[0] != '{' {
		t.Errorf("Next() = %q, want a JSON reading", got)
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name string
		res  scheduler.Result
		err  error
		want journal.Status
	}{
		{"completed", scheduler.Result{Sent: 3}, nil, journal.StatusCompleted},
		{"stopped", scheduler.Result{Stopped: true}, nil, journal.StatusStopped},
		{"drained", scheduler.Result{Drained: true}, nil, journal.StatusDrained},
		{"failed", scheduler.Result{}, scheduler.ErrAbort, journal.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runStatus(tt.res, tt.err); got != tt.want {
				t.Errorf("runStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
