// Package uow implements the unit of work every caller goes through for
// data access. Reads are filtered by the entity type's scope predicate and
// snapshotted for later diffing; writes are queued and only applied by
// Commit, which runs soft-delete conversion, the write-time guard, and the
// audit recorder before a single atomic database transaction.
//
// A unit of work is created per logical request, bound to one access
// context, and must not be shared across concurrent callers.
package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/clinicerp/backend/internal/infrastructure/logger"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/audit"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type operation int

const (
	opAdd operation = iota
	opUpdate
	opDelete
)

// change is one queued write
type change struct {
	op       operation
	entity   any
	desc     *scope.Descriptor
	original map[string]any // snapshot at load time; resolved at commit for untracked entities
	soft     bool           // delete converted to tombstone update
	skip     bool           // update with no net field changes
	newVer   int            // version to apply in memory after a successful commit
	prevOp   operation      // operation as enqueued, restored on a failed commit
	revert   map[string]any // pre-commit field values, restored on a failed commit
}

// UnitOfWork queues writes against one access context and commits them
// atomically. Not safe for concurrent use; create one per request.
type UnitOfWork struct {
	db       *gorm.DB
	ac       *access.Context
	registry *scope.Registry
	recorder *audit.Recorder
	sink     shared.AuditSink
	clock    func() time.Time

	tracked map[any]map[string]any
	pending []*change
}

// Option configures a UnitOfWork
type Option func(*UnitOfWork)

// WithSink sets the audit sink entries are handed to after commit
func WithSink(sink shared.AuditSink) Option {
	return func(u *UnitOfWork) { u.sink = sink }
}

// WithClock overrides the time source, mainly for tests
func WithClock(clock func() time.Time) Option {
	return func(u *UnitOfWork) { u.clock = clock }
}

// New creates a unit of work bound to an access context. The db handle may
// be a plain connection or an open transaction; committing inside an outer
// transaction uses a savepoint, so a larger multi-step operation can roll
// back to a named point without discarding the whole transaction.
func New(db *gorm.DB, ac *access.Context, registry *scope.Registry, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		db:       db,
		ac:       ac,
		registry: registry,
		clock:    time.Now,
		tracked:  make(map[any]map[string]any),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.recorder = audit.NewRecorder(u.clock)
	return u
}

// AccessContext returns the access context this unit of work is bound to
func (u *UnitOfWork) AccessContext() *access.Context {
	return u.ac
}

// track snapshots a loaded entity's field values for commit-time diffing
func (u *UnitOfWork) track(entity any, d *scope.Descriptor) {
	u.tracked[entity] = d.Snapshot(entity)
}

// enqueue appends a write to the pending set
func (u *UnitOfWork) enqueue(op operation, entity any) error {
	d, ok := u.registry.Lookup(entity)
	if !ok {
		return fmt.Errorf("uow: entity type %T is not registered", entity)
	}
	u.pending = append(u.pending, &change{op: op, entity: entity, desc: d})
	return nil
}

// Pending returns the number of queued writes
func (u *UnitOfWork) Pending() int {
	return len(u.pending)
}

// Discard drops all queued writes and tracked snapshots
func (u *UnitOfWork) Discard() {
	u.pending = nil
	u.tracked = make(map[any]map[string]any)
}

// Commit applies the pending write set as one atomic transaction and
// returns the number of affected rows. On any failure nothing is persisted,
// the queue keeps its pre-commit content, and the queued entities are
// restored to their pre-commit field values, so the caller can fix and
// retry or discard the unit of work.
func (u *UnitOfWork) Commit(ctx context.Context) (int64, error) {
	if len(u.pending) == 0 {
		return 0, nil
	}

	for _, c := range u.pending {
		c.prevOp = c.op
		c.revert = c.desc.Snapshot(c.entity)
	}

	rows, entries, err := u.commit(ctx)
	if err != nil {
		u.rollback()
		return 0, err
	}

	u.finish(ctx, entries)
	return rows, nil
}

func (u *UnitOfWork) commit(ctx context.Context) (int64, []shared.AuditEntry, error) {
	now := u.clock()
	actor := u.ac.ActorID()

	u.convertSoftDeletes(now, actor)

	for _, c := range u.pending {
		if err := validate.Struct(c.entity); err != nil {
			return 0, nil, shared.NewValidationError(err)
		}
	}

	if err := u.resolveOriginals(ctx); err != nil {
		return 0, nil, err
	}

	u.applyStamps(now, actor)

	for _, c := range u.pending {
		if err := u.guard(ctx, c); err != nil {
			return 0, nil, err
		}
	}

	entries := u.recordEntries()

	rows, err := u.apply(ctx)
	if err != nil {
		return 0, nil, err
	}
	return rows, entries, nil
}

// rollback undoes the in-memory side of a failed commit: tombstone flags,
// stamps and generated ids go back to their enqueued values, and the
// changes return to their enqueued operations.
func (u *UnitOfWork) rollback() {
	for _, c := range u.pending {
		for col, val := range c.revert {
			c.desc.Set(c.entity, col, val)
		}
		c.op = c.prevOp
		c.soft = false
		c.skip = false
		c.newVer = 0
		c.original = nil
		c.revert = nil
	}
}

// convertSoftDeletes rewrites queued deletes of soft-deletable entities
// into tombstone updates so the guard and recorder see an update. An entity
// that is already tombstoned is not re-stamped; its diff comes out empty
// and the remove becomes a no-op.
func (u *UnitOfWork) convertSoftDeletes(now time.Time, actor uuid.UUID) {
	for _, c := range u.pending {
		if c.op != opDelete || !c.desc.Caps.SoftDeletable {
			continue
		}
		if sd, ok := c.entity.(shared.SoftDeletable); ok {
			if !sd.IsSoftDeleted() {
				sd.MarkDeleted(now, actor)
			}
			c.op = opUpdate
			c.soft = true
		}
	}
}

// resolveOriginals fills in pre-write snapshots for entities that did not
// come from a tracked read, so the guard can check the stored row's scope
// and the recorder can diff against real stored values.
func (u *UnitOfWork) resolveOriginals(ctx context.Context) error {
	for _, c := range u.pending {
		if c.op == opAdd || c.original != nil {
			continue
		}
		if snap, ok := u.tracked[c.entity]; ok {
			c.original = snap
			continue
		}
		stored := c.desc.New()
		id := c.desc.Snapshot(c.entity)["id"]
		err := u.db.WithContext(ctx).First(stored, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		c.original = c.desc.Snapshot(stored)
	}
	return nil
}

// applyStamps sets ids, creation stamps and modification stamps
func (u *UnitOfWork) applyStamps(now time.Time, actor uuid.UUID) {
	for _, c := range u.pending {
		switch c.op {
		case opAdd:
			if id, ok := c.desc.Snapshot(c.entity)["id"].(uuid.UUID); ok && id == uuid.Nil {
				c.desc.Set(c.entity, "id", uuid.New())
			}
			if a, ok := c.entity.(shared.Auditable); ok {
				a.StampCreated(now, actor)
			}
			if v, ok := c.entity.(shared.Versioned); ok && v.GetVersion() == 0 {
				v.SetVersion(1)
			}
		case opUpdate:
			if a, ok := c.entity.(shared.Auditable); ok {
				a.StampModified(now, actor)
			}
		}
	}
}

// guard validates the whole pending set against the caller's scope. Any
// violation aborts the entire commit; nothing is written. The check runs on
// both the in-memory entity and, for updates, the stored row it replaces,
// so a row cannot be moved across a branch boundary in either direction.
func (u *UnitOfWork) guard(ctx context.Context, c *change) error {
	if u.ac.IsSuperAdmin() {
		return nil
	}
	if c.desc.Caps.BranchScoped {
		if bs, ok := c.entity.(shared.BranchScoped); ok && !u.ac.HasBranchAccess(bs.GetBranchID()) {
			return u.violation(ctx, c)
		}
		if c.original != nil {
			if branchID, ok := c.original["branch_id"].(int64); ok && !u.ac.HasBranchAccess(branchID) {
				return u.violation(ctx, c)
			}
		}
	}
	if c.desc.Caps.TenantOwned {
		if to, ok := c.entity.(shared.TenantOwned); ok && !u.ac.HasTenantAccess(to.GetTenantID()) {
			return u.violation(ctx, c)
		}
		if c.original != nil {
			if tenantID, ok := c.original["tenant_id"].(uuid.UUID); ok && !u.ac.HasTenantAccess(tenantID) {
				return u.violation(ctx, c)
			}
		}
	}
	return nil
}

// violation logs the rejected write with identifiers only, never values
func (u *UnitOfWork) violation(ctx context.Context, c *change) error {
	entityID := c.desc.EntityID(c.entity)
	logger.L(ctx).Warn("commit rejected: write outside authorized scope",
		zap.String("actor_id", u.ac.ActorID().String()),
		zap.String("entity_type", c.desc.Name),
		zap.String("entity_id", entityID),
	)
	return &shared.IsolationViolationError{
		ActorID:    u.ac.ActorID(),
		EntityType: c.desc.Name,
		EntityID:   entityID,
	}
}

// recordEntries diffs the pending set into audit entries. Updates with no
// net changes are marked to be skipped entirely.
func (u *UnitOfWork) recordEntries() []shared.AuditEntry {
	entries := make([]shared.AuditEntry, 0, len(u.pending))
	for _, c := range u.pending {
		switch c.op {
		case opAdd:
			entries = append(entries, u.recorder.ForCreate(c.desc, c.entity, u.ac))
		case opUpdate:
			entry, changed := u.recorder.ForUpdate(c.desc, c.entity, c.original, u.ac)
			if !changed {
				c.skip = true
				continue
			}
			entries = append(entries, entry)
		case opDelete:
			entries = append(entries, u.recorder.ForDelete(c.desc, c.desc.EntityID(c.entity), c.original, u.ac))
		}
	}
	return entries
}

// apply runs the single database transaction. Version-stamped entities use
// a compare-and-swap on the version column; a mismatch means another unit
// of work committed first.
func (u *UnitOfWork) apply(ctx context.Context) (int64, error) {
	var rows int64
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range u.pending {
			if c.skip {
				continue
			}
			switch c.op {
			case opAdd:
				res := tx.Create(c.entity)
				if res.Error != nil {
					return res.Error
				}
				rows += res.RowsAffected

			case opUpdate:
				vals := c.desc.Snapshot(c.entity)
				id := vals["id"]
				delete(vals, "id")
				delete(vals, "updated_at") // stamped by the ORM

				q := tx.Model(c.desc.New()).Where("id = ?", id)
				versioned := false
				if v, ok := c.entity.(shared.Versioned); ok && c.desc.Caps.Versioned {
					versioned = true
					oldVer := v.GetVersion()
					c.newVer = oldVer + 1
					vals["version"] = c.newVer
					q = q.Where("version = ?", oldVer)
				}
				res := q.Updates(vals)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					if versioned {
						return shared.ErrConcurrencyConflict
					}
					return shared.ErrNotFound
				}
				rows += res.RowsAffected

			case opDelete:
				id := c.desc.Snapshot(c.entity)["id"]
				res := tx.Where("id = ?", id).Delete(c.desc.New())
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return shared.ErrNotFound
				}
				rows += res.RowsAffected
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// finish updates in-memory bookkeeping after a successful commit and hands
// the entries to the audit sink. Sink delivery failure does not undo the
// committed transaction; it is logged and the entries are dropped.
func (u *UnitOfWork) finish(ctx context.Context, entries []shared.AuditEntry) {
	for _, c := range u.pending {
		switch c.op {
		case opDelete:
			delete(u.tracked, c.entity)
		default:
			if c.newVer > 0 {
				if v, ok := c.entity.(shared.Versioned); ok {
					v.SetVersion(c.newVer)
				}
			}
			u.tracked[c.entity] = c.desc.Snapshot(c.entity)
		}
	}
	u.pending = nil

	if u.sink != nil && len(entries) > 0 {
		if err := u.sink.Emit(ctx, entries); err != nil {
			logger.L(ctx).Warn("audit sink delivery failed",
				zap.Int("entries", len(entries)),
				zap.Error(err),
			)
		}
	}
}
