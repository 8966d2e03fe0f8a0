package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit entries. Implementations must not block the caller and
// must not fail the enclosing operation.
type Sink interface {
	Log(ctx context.Context, entry Entry)
}

// Writer persists batches of entries.
type Writer interface {
	Write(ctx context.Context, entries []Entry) error
}

// Logger is the fire-and-forget Sink. Entries are queued on a bounded buffer
// and written by a background goroutine; when the buffer is full the entry is
// dropped with a warning.
type Logger struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	queue  chan Entry
	closed bool
	done   chan struct{}
}

// LoggerConfig tunes the Logger.
type LoggerConfig struct {
	Buffer       int
	BatchSize    int
	WriteTimeout time.Duration
}

// NewLogger starts a Logger writing through writer. A nil writer only emits
// entries to the structured log.
func NewLogger(writer Writer, logger *slog.Logger, cfg LoggerConfig) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	l := &Logger{
		writer: writer,
		logger: logger,
		now:    time.Now,
		queue:  make(chan Entry, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go l.run(cfg)
	return l
}

// Log stamps and enqueues entry.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = l.now().UTC()
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, entry.Message(),
		slog.String("audit_id", entry.ID.String()),
		slog.String("actor", entry.Actor),
		slog.String("subject", entry.Subject))

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- entry:
	default:
		l.logger.Warn("audit buffer full, dropping entry", slog.String("audit_id", entry.ID.String()))
	}
}

// Close stops accepting entries and waits until queued ones are written or
// ctx expires.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) run(cfg LoggerConfig) {
	defer close(l.done)
	batch := make([]Entry, 0, cfg.BatchSize)
	for entry := range l.queue {
		batch = append(batch, entry)
	drain:
		for len(batch) < cfg.BatchSize {
			select {
			case next, ok := <-l.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		l.flush(batch, cfg.WriteTimeout)
		batch = batch[:0]
	}
}

func (l *Logger) flush(batch []Entry, timeout time.Duration) {
	if l.writer == nil || len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.writer.Write(ctx, batch); err != nil {
		l.logger.Error("audit write", slog.Any("error", err), slog.Int("entries", len(batch)))
	}
}

var _ Sink = (*Logger)(nil)
