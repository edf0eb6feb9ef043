package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"swarmspawn/internal/kv"
	"swarmspawn/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	lines []logLine
}

func (c *captureLogger) add(level, msg string, args []any) {
	c.lines = append(c.lines, logLine{level: level, msg: msg, args: args})
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) has(level, msgPrefix string) bool {
	for _, line := range c.lines {
		if line.level == level && strings.HasPrefix(line.msg, msgPrefix) {
			return true
		}
	}
	return false
}

func TestServiceObservabilityLifecycle(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	svc, err := NewService(kv.NewMemory(), kv.NewMemory(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.EnsureUserIndex(ctx, "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	swarm, _, err := svc.CreateSwarm(ctx, "u1", "alpha")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !audit.has(OpCreateSwarm, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.SwarmID == swarm.ID && e.UserID == "u1" && e.OccurredAt.Equal(fixed)
	}) {
		t.Fatalf("expected audit entry for create, got %+v", audit.entries)
	}
	if err := svc.StartSwarm(ctx, "u1", swarm.ID, "ship it"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.GetSwarm(ctx, "u1", swarm.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.DeleteSwarm(ctx, "u1", "missing"); !domain.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	if !audit.has(OpStartSwarm, AuditStatusSuccess, nil) {
		t.Fatalf("expected audit entry for start")
	}
	if !audit.has(OpDeleteSwarm, AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }) {
		t.Fatalf("expected audit error entry for delete")
	}
	if audit.has(OpGetSwarm, AuditStatusSuccess, nil) || audit.has(OpEnsureUser, AuditStatusSuccess, nil) {
		t.Fatalf("reads must not be audited")
	}
	if !metrics.has(OpGetSwarm, true) || !metrics.has(OpDeleteSwarm, false) {
		t.Fatalf("expected metrics for get success and delete failure, got %+v", metrics.calls)
	}
	for _, call := range metrics.calls {
		if call.duration != 0 {
			t.Fatalf("expected zero duration with a fixed clock, got %v", call.duration)
		}
	}
	if !tracer.has(OpCreateSwarm, true) || !tracer.has(OpDeleteSwarm, false) {
		t.Fatalf("expected spans for create and delete")
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("every started span must end: %d started %d ended", len(tracer.started), len(tracer.ended))
	}
	if !logger.has("debug", OpCreateSwarm) || !logger.has("info", OpDeleteSwarm+" rejected") {
		t.Fatalf("unexpected log lines %+v", logger.lines)
	}
}

func TestServiceLogsStoreFailuresAsErrors(t *testing.T) {
	logger := &captureLogger{}
	users := &faultyStore{Store: kv.NewMemory(), failGet: func(string) bool { return true }}
	svc, err := NewService(users, kv.NewMemory(), WithLogger(logger))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.ListSwarms(context.Background(), "u1"); err == nil {
		t.Fatalf("expected list to fail")
	}
	if !logger.has("error", OpListSwarms+" failed") {
		t.Fatalf("expected error log, got %+v", logger.lines)
	}
}

func TestServiceLogsCompensation(t *testing.T) {
	logger := &captureLogger{}
	users := &faultyStore{Store: kv.NewMemory()}
	swarms := &faultyStore{Store: kv.NewMemory()}
	svc, err := NewService(users, swarms, WithLogger(logger))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.EnsureUserIndex(context.Background(), "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	users.failPut = func(string) bool { return true }
	swarms.failDelete = func(string) bool { return true }

	if _, _, err := svc.CreateSwarm(context.Background(), "u1", "alpha"); err == nil {
		t.Fatalf("expected create to fail")
	}
	if !logger.has("error", "compensation failed") {
		t.Fatalf("expected failed compensation to be logged, got %+v", logger.lines)
	}
}

func TestStoreTimeoutBoundsOperations(t *testing.T) {
	blocking := &blockingStore{Store: kv.NewMemory()}
	svc, err := NewService(blocking, kv.NewMemory(), WithStoreTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.ListSwarms(context.Background(), "u1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !domain.IsStore(err) {
		t.Fatalf("expected store error wrapper, got %v", err)
	}
}

type blockingStore struct {
	kv.Store
}

func (b *blockingStore) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), OpCreateSwarm, true, 2*time.Millisecond)
	rec.Observe(context.Background(), OpCreateSwarm, false, 3*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if got := snap.DurationsMS[OpCreateSwarm]; got != 5 {
		t.Fatalf("expected 5ms total, got %v", got)
	}
	if snap.Results[OpCreateSwarm]["success"] != 1 || snap.Results[OpCreateSwarm]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation must be ignored: %+v", snap.Results)
	}
	v := expvar.Get(rec.Name())
	if v == nil || !strings.Contains(v.String(), OpCreateSwarm) {
		t.Fatalf("expected expvar export under %s", rec.Name())
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), OpStartSwarm)
	span.End(errors.New("boom"))
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected a single entry, got %d", len(entries))
	}
	if entries[0].Status != "error" || entries[0].Error != "boom" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode trace line: %v", err)
	}
	if decoded.Operation != OpStartSwarm {
		t.Fatalf("unexpected decoded entry %+v", decoded)
	}
}

func TestJSONAuditRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := NewJSONAuditRecorder(&buf)
	rec.Record(context.Background(), AuditEntry{Operation: OpDeleteSwarm, Status: AuditStatusSuccess, UserID: "u1", SwarmID: "s1"})
	var decoded AuditEntry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if decoded.Operation != OpDeleteSwarm || decoded.SwarmID != "s1" {
		t.Fatalf("unexpected audit entry %+v", decoded)
	}
}
