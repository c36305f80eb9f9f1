package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// NewAuditLog fills the common fields for a document event.
func NewAuditLog(actorID int64, action, entity string, entityID int64, meta map[string]any) AuditLog {
	return AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(entityID, 10), Meta: meta}
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

func validateAudit(log AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if err := validateAudit(log); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// MemoryAudit collects entries in process.
type MemoryAudit struct {
	mu      sync.Mutex
	entries []AuditLog
}

// Record appends the entry.
func (m *MemoryAudit) Record(_ context.Context, log AuditLog) error {
	if err := validateAudit(log); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	m.mu.Lock()
	m.entries = append(m.entries, log)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of recorded entries.
func (m *MemoryAudit) Entries() []AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditLog, len(m.entries))
	copy(out, m.entries)
	return out
}
