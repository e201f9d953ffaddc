package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction classifies what happened to an entity in a commit
type AuditAction string

const (
	AuditActionCreate     AuditAction = "CREATE"
	AuditActionUpdate     AuditAction = "UPDATE"
	AuditActionDelete     AuditAction = "DELETE"
	AuditActionSoftDelete AuditAction = "SOFT_DELETE"
	AuditActionRestore    AuditAction = "RESTORE"
)

// AuditEntry is an immutable record of one entity's net change in a commit.
// For updates, OldValues/NewValues contain only the fields that actually
// differ; an update with no changed fields is never emitted.
type AuditEntry struct {
	ID            uuid.UUID      `json:"id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	ActorID       uuid.UUID      `json:"actor_id"`
	ActorName     string         `json:"actor_name"`
	Action        AuditAction    `json:"action"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// AuditSink receives the entries of a successfully committed unit of work.
// Entries are handed off once and not retained by the unit of work.
type AuditSink interface {
	Emit(ctx context.Context, entries []AuditEntry) error
}
