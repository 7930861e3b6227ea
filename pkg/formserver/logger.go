package formserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// DecodeLogger records decode events for auditing and analytics.
type DecodeLogger interface {
	LogDecode(ctx context.Context, event *DecodeEvent) error
}

// DecodeEvent describes one decode request. Field values are never
// recorded, only key names.
type DecodeEvent struct {
	ID         string
	Timestamp  time.Time
	RemoteAddr string
	Source     string
	Bytes      int
	Keys       []string
	Code       string
}

// SlogDecodeLogger logs decode events using structured logging (slog).
type SlogDecodeLogger struct {
	logger *slog.Logger
}

// NewSlogDecodeLogger creates a decode logger that emits structured logs.
func NewSlogDecodeLogger(logger *slog.Logger) *SlogDecodeLogger {
	return &SlogDecodeLogger{logger: logger}
}

// LogDecode emits one log line per event. Failed decodes are logged at warn.
func (l *SlogDecodeLogger) LogDecode(ctx context.Context, event *DecodeEvent) error {
	level := slog.LevelInfo
	msg := "form decoded"
	if event.Code != "" {
		level = slog.LevelWarn
		msg = "form rejected"
	}

	l.logger.LogAttrs(ctx, level, msg,
		slog.String("id", event.ID),
		slog.String("remote_addr", event.RemoteAddr),
		slog.String("source", event.Source),
		slog.Int("bytes", event.Bytes),
		slog.Any("keys", event.Keys),
		slog.String("code", event.Code),
	)
	return nil
}

// MultiDecodeLogger calls multiple DecodeLoggers in sequence.
// Every logger is called even if an earlier one fails.
type MultiDecodeLogger struct {
	loggers []DecodeLogger
}

// NewMultiDecodeLogger creates a logger that calls multiple loggers.
func NewMultiDecodeLogger(loggers ...DecodeLogger) *MultiDecodeLogger {
	return &MultiDecodeLogger{loggers: loggers}
}

// LogDecode calls all loggers and joins their errors.
func (m *MultiDecodeLogger) LogDecode(ctx context.Context, event *DecodeEvent) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.LogDecode(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopDecodeLogger is a logger that does nothing.
type NoopDecodeLogger struct{}

// NewNoopDecodeLogger creates a no-op logger.
func NewNoopDecodeLogger() *NoopDecodeLogger {
	return &NoopDecodeLogger{}
}

// LogDecode does nothing and always returns nil.
func (n *NoopDecodeLogger) LogDecode(ctx context.Context, event *DecodeEvent) error {
	return nil
}

type decodeEventForJSON struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Source     string    `json:"source"`
	Bytes      int       `json:"bytes"`
	Keys       []string  `json:"keys"`
	Code       string    `json:"code,omitempty"`
}

func (e *DecodeEvent) toJSON() ([]byte, error) {
	keys := e.Keys
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(decodeEventForJSON{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		RemoteAddr: e.RemoteAddr,
		Source:     e.Source,
		Bytes:      e.Bytes,
		Keys:       keys,
		Code:       e.Code,
	})
}
