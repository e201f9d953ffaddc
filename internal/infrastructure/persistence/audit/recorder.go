// Package audit turns the pending write set of a unit of work into
// field-level audit entries and delivers them to configurable sinks.
package audit

import (
	"reflect"
	"sort"
	"time"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bookkeeping columns the recorder never reports as changed. Creation
// stamps are handled separately: they are restored to their original
// values, not just skipped.
var exemptColumns = map[string]struct{}{
	"updated_at":  {},
	"modified_at": {},
	"modified_by": {},
	"version":     {},
}

var creationStampColumns = []string{"created_at", "created_by"}

// Recorder diffs copy-on-load snapshots against current entity state at
// commit time and classifies the result.
type Recorder struct {
	clock func() time.Time
}

// NewRecorder creates a recorder using the given clock
func NewRecorder(clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{clock: clock}
}

// ForCreate records a new entity: all field values as NewValues
func (r *Recorder) ForCreate(d *scope.Descriptor, entity any, ac *access.Context) shared.AuditEntry {
	return r.entry(d, d.EntityID(entity), ac, shared.AuditActionCreate, nil, d.Snapshot(entity), nil)
}

// ForDelete records a hard delete: the stored values as OldValues
func (r *Recorder) ForDelete(d *scope.Descriptor, entityID string, original map[string]any, ac *access.Context) shared.AuditEntry {
	return r.entry(d, entityID, ac, shared.AuditActionDelete, original, nil, nil)
}

// ForUpdate diffs the original snapshot against the entity's current state.
// Immutable creation stamps are silently restored onto the entity and never
// reported. The second return value is false when no field actually changed,
// in which case no entry must be emitted.
func (r *Recorder) ForUpdate(d *scope.Descriptor, entity any, original map[string]any, ac *access.Context) (shared.AuditEntry, bool) {
	current := d.Snapshot(entity)

	for _, col := range creationStampColumns {
		orig, ok := original[col]
		if !ok {
			continue
		}
		if !valuesEqual(current[col], orig) {
			d.Set(entity, col, orig)
			current[col] = orig
		}
	}

	var changed []string
	oldValues := make(map[string]any)
	newValues := make(map[string]any)
	for col, newVal := range current {
		if _, exempt := exemptColumns[col]; exempt {
			continue
		}
		oldVal, ok := original[col]
		if ok && valuesEqual(oldVal, newVal) {
			continue
		}
		changed = append(changed, col)
		oldValues[col] = oldVal
		newValues[col] = newVal
	}
	if len(changed) == 0 {
		return shared.AuditEntry{}, false
	}
	sort.Strings(changed)

	action := shared.AuditActionUpdate
	if d.Caps.SoftDeletable {
		oldDeleted, _ := original["is_deleted"].(bool)
		newDeleted, _ := current["is_deleted"].(bool)
		switch {
		case !oldDeleted && newDeleted:
			action = shared.AuditActionSoftDelete
		case oldDeleted && !newDeleted:
			action = shared.AuditActionRestore
		}
	}

	return r.entry(d, d.EntityID(entity), ac, action, oldValues, newValues, changed), true
}

func (r *Recorder) entry(d *scope.Descriptor, entityID string, ac *access.Context, action shared.AuditAction, oldValues, newValues map[string]any, changed []string) shared.AuditEntry {
	return shared.AuditEntry{
		ID:            uuid.New(),
		EntityType:    d.Name,
		EntityID:      entityID,
		ActorID:       ac.ActorID(),
		ActorName:     ac.ActorName(),
		Action:        action,
		OldValues:     oldValues,
		NewValues:     newValues,
		ChangedFields: changed,
		OccurredAt:    r.clock(),
	}
}

// valuesEqual compares snapshot values. Times and decimals compare by
// semantic equality rather than struct identity, so a value loaded from the
// database never looks different from the same value set in memory.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Equal(bv)
		}
		return false
	case *time.Time:
		bv, ok := b.(*time.Time)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == bv
		}
		return av.Equal(*bv)
	case decimal.Decimal:
		if bv, ok := b.(decimal.Decimal); ok {
			return av.Equal(bv)
		}
		return false
	case *decimal.Decimal:
		bv, ok := b.(*decimal.Decimal)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == bv
		}
		return av.Equal(*bv)
	}
	return reflect.DeepEqual(a, b)
}
