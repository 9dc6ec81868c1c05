package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
)

type captured struct {
	mu   sync.Mutex
	logs []models.SystemLog
}

func (c *captured) write(batch []models.SystemLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, batch...)
	return nil
}

func (c *captured) snapshot() []models.SystemLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.SystemLog(nil), c.logs...)
}

func TestPGHandler_PersistsErrorsOnly(t *testing.T) {
	sink := &captured{}
	h := newPGHandler(sink.write, time.Hour)
	logger := slog.New(h).With("app_id", "couples")

	logger.Info("not persisted")
	logger.Error("risk score write failed",
		"user_id", "u-1",
		"stage", "persist",
		"error", errors.New("connection refused"),
		"text", "I want to kill myself",
		"assessment_id", "a-1",
	)
	h.Stop()

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	logs := sink.snapshot()
	got := logs[0]
	assert.Equal(t, "ERROR", got.Level)
	assert.Equal(t, "couples", got.AppID)
	assert.Equal(t, "persist", got.Stage)
	assert.Equal(t, "connection refused", got.Error)
	require.NotNil(t, got.UserID)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Extra, &extra))
	assert.Equal(t, "[redacted]", extra["text"])
	assert.NotContains(t, extra, "assessment_id")
	require.NotNil(t, got.AssessmentID)
	assert.Equal(t, "a-1", *got.AssessmentID)
	assert.NotContains(t, string(got.Extra), "kill myself")
}

func TestPGHandler_FlushesOnBatchSize(t *testing.T) {
	sink := &captured{}
	h := newPGHandler(sink.write, time.Hour)
	defer h.Stop()
	logger := slog.New(h)

	for i := 0; i < pgBatchSize; i++ {
		logger.Error("boom")
	}
	assert.Eventually(t, func() bool { return len(sink.snapshot()) == pgBatchSize }, time.Second, 10*time.Millisecond)
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("component", "test")
	logger.Info("hello")
	logger.Error("bad")

	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, a.String(), "bad")
	assert.NotContains(t, b.String(), "hello")
	assert.Contains(t, b.String(), `"component":"test"`)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandler_ContinuesPastFailure(t *testing.T) {
	var out bytes.Buffer
	h := NewMultiHandler(
		failingHandler{slog.NewJSONHandler(io.Discard, nil)},
		slog.NewJSONHandler(&out, nil),
	)
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "persist failed", 0))
	assert.EqualError(t, err, "sink down")
	assert.Contains(t, out.String(), "persist failed")
}

type fakePurger struct {
	calls int
	err   error
}

func (p *fakePurger) Purge(context.Context, time.Time) (PurgeResult, error) {
	p.calls++
	return PurgeResult{TransparencyEntries: 3}, p.err
}

func TestStartRetention(t *testing.T) {
	_, err := StartRetention(&fakePurger{}, "not a schedule", time.Second)
	assert.Error(t, err)

	c, err := StartRetention(&fakePurger{}, "@daily", time.Second)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()
}

func TestRunPurge(t *testing.T) {
	p := &fakePurger{}
	runPurge(p, time.Second)
	assert.Equal(t, 1, p.calls)

	failing := &fakePurger{err: errors.New("db down")}
	assert.NotPanics(t, func() { runPurge(failing, 0) })
}
