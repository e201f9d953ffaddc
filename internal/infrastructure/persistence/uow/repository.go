package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/clinicerp/backend/internal/infrastructure/logger"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Paging limits. Out-of-range requests are clamped, never rejected.
const (
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// Repository is the generic scoped data-access surface for one entity
// type. All reads carry the type's scope predicate; all writes are queued
// on the owning unit of work.
type Repository[T any] struct {
	uow  *UnitOfWork
	desc *scope.Descriptor
}

// NewRepository creates a repository bound to a unit of work. The entity
// type is registered on first use; registration is idempotent.
func NewRepository[T any](u *UnitOfWork) (*Repository[T], error) {
	var prototype T
	d, err := u.registry.Register(&prototype)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{uow: u, desc: d}, nil
}

// MustNewRepository is NewRepository for startup wiring paths where the
// entity type is known to register cleanly.
func MustNewRepository[T any](u *UnitOfWork) *Repository[T] {
	r, err := NewRepository[T](u)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Repository[T]) scoped(ctx context.Context) *gorm.DB {
	var model T
	return r.uow.db.WithContext(ctx).Model(&model).Scopes(r.desc.Scope(r.uow.ac))
}

// GetByID returns the entity if it exists within the caller's scope. The
// result is tracked: its field values are snapshotted for commit-time
// diffing. Out-of-scope and absent ids are indistinguishable.
func (r *Repository[T]) GetByID(ctx context.Context, id uuid.UUID, preloads ...string) (*T, error) {
	entity, err := r.getByID(ctx, id, preloads)
	if err != nil {
		return nil, err
	}
	r.uow.track(entity, r.desc)
	return entity, nil
}

// GetByIDReadOnly is GetByID without tracking, for read paths that will
// never feed a write and do not need diffing overhead.
func (r *Repository[T]) GetByIDReadOnly(ctx context.Context, id uuid.UUID, preloads ...string) (*T, error) {
	return r.getByID(ctx, id, preloads)
}

func (r *Repository[T]) getByID(ctx context.Context, id uuid.UUID, preloads []string) (*T, error) {
	q := r.scoped(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	var entity T
	if err := q.First(&entity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entity, nil
}

// Find returns all in-scope entities matching the given column equality
// conditions. Results are tracked.
func (r *Repository[T]) Find(ctx context.Context, conds map[string]any) ([]T, error) {
	q := r.scoped(ctx)
	q, err := r.applyConds(q, conds)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	r.trackAll(items)
	return items, nil
}

// GetAll returns every in-scope entity. Results are tracked.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	var items []T
	if err := r.scoped(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	r.trackAll(items)
	return items, nil
}

// GetPaged returns one page of in-scope entities. Page numbers below 1
// clamp to 1; page sizes clamp to [10, 1000]. When the scoped, filtered
// count is zero the fetch query is skipped entirely. Default ordering is
// by primary key ascending.
func (r *Repository[T]) GetPaged(ctx context.Context, filter shared.Filter) (shared.Paginated[T], error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	countQ, err := r.applyConds(r.scoped(ctx), filter.Filters)
	if err != nil {
		return shared.Paginated[T]{}, err
	}
	var total int64
	if err := countQ.Count(&total).Error; err != nil {
		return shared.Paginated[T]{}, err
	}
	if total == 0 {
		return shared.NewPaginated([]T{}, 0, page, size), nil
	}

	orderBy, err := r.sortField(filter.OrderBy)
	if err != nil {
		return shared.Paginated[T]{}, err
	}
	order := orderBy + " " + ValidateSortOrder(filter.OrderDir)

	fetchQ, err := r.applyConds(r.scoped(ctx), filter.Filters)
	if err != nil {
		return shared.Paginated[T]{}, err
	}
	var items []T
	if err := fetchQ.Order(order).Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		return shared.Paginated[T]{}, err
	}
	r.trackAll(items)
	return shared.NewPaginated(items, total, page, size), nil
}

// GetByIDPrivileged reads without any scope predicate, optionally
// including soft-deleted rows. Every call is logged; this is the only way
// around the scope policy and exists for system-level operations.
func (r *Repository[T]) GetByIDPrivileged(ctx context.Context, id uuid.UUID, includeDeleted bool) (*T, error) {
	logger.L(ctx).Warn("privileged unscoped read",
		zap.String("actor_id", r.uow.ac.ActorID().String()),
		zap.String("entity_type", r.desc.Name),
		zap.String("entity_id", id.String()),
		zap.Bool("include_deleted", includeDeleted),
	)
	var model T
	q := r.uow.db.WithContext(ctx).Model(&model)
	if !includeDeleted && r.desc.Caps.SoftDeletable {
		q = q.Where("is_deleted = ?", false)
	}
	var entity T
	if err := q.First(&entity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	r.uow.track(&entity, r.desc)
	return &entity, nil
}

// GetAllIncludeDeleted keeps the branch/tenant scope but includes
// tombstoned rows. Logged like every privileged read.
func (r *Repository[T]) GetAllIncludeDeleted(ctx context.Context) ([]T, error) {
	logger.L(ctx).Warn("privileged include-deleted read",
		zap.String("actor_id", r.uow.ac.ActorID().String()),
		zap.String("entity_type", r.desc.Name),
	)
	var model T
	q := r.uow.db.WithContext(ctx).Model(&model).Scopes(r.desc.ScopeIncludeDeleted(r.uow.ac))
	var items []T
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	r.trackAll(items)
	return items, nil
}

// Add queues an insert; no effect until Commit
func (r *Repository[T]) Add(entity *T) error {
	return r.uow.enqueue(opAdd, entity)
}

// Update queues an update; no effect until Commit
func (r *Repository[T]) Update(entity *T) error {
	return r.uow.enqueue(opUpdate, entity)
}

// Remove queues a delete; soft-deletable entities are tombstoned at commit
// instead of physically removed
func (r *Repository[T]) Remove(entity *T) error {
	return r.uow.enqueue(opDelete, entity)
}

func (r *Repository[T]) trackAll(items []T) {
	for i := range items {
		r.uow.track(&items[i], r.desc)
	}
}

// applyConds adds column equality conditions, validated against the
// type's known columns to keep arbitrary SQL out of queries.
func (r *Repository[T]) applyConds(q *gorm.DB, conds map[string]any) (*gorm.DB, error) {
	for col, val := range conds {
		if !r.desc.HasField(col) {
			return nil, fmt.Errorf("uow: unknown filter column %q for %s", col, r.desc.Name)
		}
		q = q.Where(col+" = ?", val)
	}
	return q, nil
}

func (r *Repository[T]) sortField(requested string) (string, error) {
	if requested == "" {
		return "id", nil
	}
	if !r.desc.HasField(requested) {
		return "", fmt.Errorf("uow: unknown sort column %q for %s", requested, r.desc.Name)
	}
	return requested, nil
}

var _ shared.ScopedRepository[struct{}] = (*Repository[struct{}])(nil)
