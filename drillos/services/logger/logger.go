// Package logger routes slog records through a kernel queue to the HAL
// logger.
package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"drill/drillos/kernel"
	"drill/hal"
)

// Config selects the log level and encoding.
type Config struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup returns a logger that writes records to w.
func Setup(cfg Config, w io.Writer) *slog.Logger {
	level, ok := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler)
	if !ok && cfg.Level != "" {
		l.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}
	return l
}

// Writer queues each written record for the logger service. It never
// blocks: when the queue is full the record is dropped and counted.
type Writer struct {
	q       *kernel.Queue[[]byte]
	dropped atomic.Uint64
}

func NewWriter(q *kernel.Queue[[]byte]) *Writer {
	return &Writer{q: q}
}

func (w *Writer) Write(p []byte) (int, error) {
	line := bytes.Clone(bytes.TrimRight(p, "\n"))
	if err := w.q.TryPush(line); errors.Is(err, kernel.ErrQueueFull) {
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped returns the number of records lost to a full queue.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Service drains queued records into the HAL logger.
type Service struct {
	log hal.Logger
	q   *kernel.Queue[[]byte]
}

func New(log hal.Logger, q *kernel.Queue[[]byte]) *Service {
	return &Service{log: log, q: q}
}

func (s *Service) Run(ctx *kernel.Context) error {
	for {
		if err := s.Step(ctx); err != nil {
			if errors.Is(err, ctx.Err()) {
				s.Flush()
			}
			return err
		}
	}
}

// Step writes one queued record, blocking until one is available.
func (s *Service) Step(ctx context.Context) error {
	line, err := s.q.Pop(ctx, 0)
	if err != nil {
		return err
	}
	s.write(line)
	return nil
}

// Flush writes every record still queued without blocking.
func (s *Service) Flush() {
	for {
		line, err := s.q.TryPop()
		if errors.Is(err, kernel.ErrQueueEmpty) {
			return
		}
		s.write(line)
	}
}

func (s *Service) write(line []byte) {
	if s.log == nil {
		return
	}
	s.log.WriteLineBytes(line)
}
