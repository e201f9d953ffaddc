package shared

import (
	"context"

	"github.com/google/uuid"
)

// ScopedRepository is the contract every caller uses for data access. All
// reads are automatically restricted to the caller's accessible branches
// and tenant; writes are queued and only take effect when the owning unit
// of work commits.
type ScopedRepository[T any] interface {
	GetByID(ctx context.Context, id uuid.UUID, preloads ...string) (*T, error)
	GetByIDReadOnly(ctx context.Context, id uuid.UUID, preloads ...string) (*T, error)
	Find(ctx context.Context, conds map[string]any) ([]T, error)
	GetAll(ctx context.Context) ([]T, error)
	GetPaged(ctx context.Context, filter Filter) (Paginated[T], error)
	Add(entity *T) error
	Update(entity *T) error
	Remove(entity *T) error
}

// Filter represents query filter options
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Filters  map[string]any
}

// DefaultFilter returns a filter with default values
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 20,
		OrderBy:  "id",
		OrderDir: "asc",
		Filters:  make(map[string]any),
	}
}

// Paginated represents a paginated result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated creates a new paginated result
func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
