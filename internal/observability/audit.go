package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/serverwitch/internal/tracing"
	"github.com/rs/zerolog"
)

// Audit event types.
const (
	AuditSession = "session"
	AuditAction  = "action"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	ActionID  string                 `json:"action_id,omitempty"`
	Action    string                 `json:"action"` // e.g. "received", "approved", "executed"
	Status    string                 `json:"status"` // "success", "failure", "pending"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AuditLogger appends one JSON line per event. A nil *AuditLogger is valid
// and records nothing.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

// NewAuditLogger writes audit events to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w),
	}
}

// OpenAuditLogger appends audit events to the file at path.
func OpenAuditLogger(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	a := NewAuditLogger(file)
	a.closer = file
	return a, nil
}

// Record emits an audit event, tagged with the session and trace ids found
// in ctx.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ActionID == "" {
		event.ActionID = tracing.GetActionID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("event_type", event.Type).
		Str("action", event.Action).
		Str("status", event.Status)

	if sessionID := tracing.GetSessionID(ctx); sessionID != "" {
		entry.Str("session_id", sessionID)
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		entry.Str("trace_id", traceID)
	}
	if event.ActionID != "" {
		entry.Str("action_id", event.ActionID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// RecordActionAudit records one step of an action's lifecycle.
func (a *AuditLogger) RecordActionAudit(ctx context.Context, actionID, step, status string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:     AuditAction,
		ActionID: actionID,
		Action:   step,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordSessionAudit records a session lifecycle event.
func (a *AuditLogger) RecordSessionAudit(ctx context.Context, step, status string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:     AuditSession,
		Action:   step,
		Status:   status,
		Metadata: metadata,
	})
}
