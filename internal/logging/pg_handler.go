package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const pgBatchSize = 50

// Attribute keys that may carry user-authored text. They are never
// persisted to system_logs.
var redactedKeys = map[string]bool{
	"text":    true,
	"content": true,
	"message": true,
}

type pgBuffer struct {
	write  func([]models.SystemLog) error
	mu     sync.Mutex
	buffer []models.SystemLog
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// PGHandler is an slog.Handler that batches ERROR+ logs to PostgreSQL.
type PGHandler struct {
	buf   *pgBuffer
	attrs []slog.Attr
}

func NewPGHandler(db *gorm.DB) *PGHandler {
	return newPGHandler(func(batch []models.SystemLog) error {
		return db.CreateInBatches(batch, pgBatchSize).Error
	}, 5*time.Second)
}

func newPGHandler(write func([]models.SystemLog) error, interval time.Duration) *PGHandler {
	b := &pgBuffer{
		write:  write,
		buffer: make([]models.SystemLog, 0, pgBatchSize),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go b.flushLoop()
	return &PGHandler{buf: b}
}

func (b *pgBuffer) flushLoop() {
	for {
		select {
		case <-b.ticker.C:
			b.flush()
		case <-b.done:
			b.flush()
			return
		}
	}
}

func (b *pgBuffer) flush() {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = make([]models.SystemLog, 0, pgBatchSize)
	b.mu.Unlock()

	if err := b.write(batch); err != nil {
		// Written straight to stdout; routing through slog.Default would
		// feed the failure back into this handler.
		slog.New(slog.NewJSONHandler(stdout, nil)).Error("failed to flush system logs to DB", "error", err, "count", len(batch))
	}
}

// Stop flushes what is buffered and ends the background loop.
func (h *PGHandler) Stop() {
	h.buf.once.Do(func() {
		h.buf.ticker.Stop()
		close(h.buf.done)
	})
}

// Enabled only handles ERROR and above.
func (h *PGHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *PGHandler) Handle(_ context.Context, record slog.Record) error {
	entry := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}

	extra := make(map[string]interface{})
	apply := func(a slog.Attr) bool {
		switch a.Key {
		case "app_id":
			entry.AppID = a.Value.String()
		case "trace_id", "request_id":
			entry.TraceID = a.Value.String()
		case "user_id":
			s := a.Value.String()
			entry.UserID = &s
		case "assessment_id":
			s := a.Value.String()
			entry.AssessmentID = &s
		case "action", "stage", "validator", "extractor":
			entry.Stage = a.Value.String()
		case "error":
			entry.Error = a.Value.String()
		case "latency_ms":
			if f, ok := a.Value.Any().(float64); ok {
				entry.LatencyMs = int(math.Round(f))
			}
		default:
			if redactedKeys[a.Key] {
				extra[a.Key] = "[redacted]"
				return true
			}
			extra[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range h.attrs {
		apply(a)
	}
	record.Attrs(apply)

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}

	h.buf.mu.Lock()
	h.buf.buffer = append(h.buf.buffer, entry)
	needFlush := len(h.buf.buffer) >= pgBatchSize
	h.buf.mu.Unlock()

	if needFlush {
		go h.buf.flush()
	}
	return nil
}

func (h *PGHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PGHandler{buf: h.buf, attrs: merged}
}

// WithGroup is flattened; system_logs has no notion of groups.
func (h *PGHandler) WithGroup(string) slog.Handler {
	return h
}
