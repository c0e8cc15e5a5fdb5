package logging

import (
	"context"
	"time"
)

// AuditRecord describes one administrative action. It never carries credential material.
type AuditRecord struct {
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
	TenantID   string            `json:"tenant_id"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resource_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Sink receives audit records. Appends are fire-and-forget from the caller's point of view.
type Sink interface {
	Enqueue(ctx context.Context, rec *AuditRecord) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(ctx context.Context, rec *AuditRecord) error {
	return nil
}

// Append hands rec to sink and logs, rather than returns, any failure.
func Append(ctx context.Context, sink Sink, rec *AuditRecord) {
	if sink == nil || rec == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := sink.Enqueue(ctx, rec); err != nil {
		Warningf("audit append failed action=%s tenant=%s: %v", rec.Action, rec.TenantID, err)
	}
}
