// Package access defines the per-request identity that every scoped query
// and guarded write consumes. A Context is built once per request from the
// resolved session claims, is immutable afterwards, and is never cached or
// reused across requests.
package access

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Principal is the raw identity material resolved by the session layer.
type Principal struct {
	ActorID    uuid.UUID
	ActorName  string
	TenantID   uuid.UUID
	CompanyID  int64
	BranchIDs  []int64
	SuperAdmin bool
}

// Context is the per-request access scope. All methods are pure predicates
// over state fixed at construction, so a Context is safe for concurrent
// reads within its unit of work.
type Context struct {
	actorID    uuid.UUID
	actorName  string
	tenantID   uuid.UUID
	companyID  int64
	branchIDs  map[int64]struct{}
	superAdmin bool
}

// New builds an immutable access context from a principal. The branch ID
// slice is copied; later mutation of the input does not affect the context.
func New(p Principal) *Context {
	branches := make(map[int64]struct{}, len(p.BranchIDs))
	for _, id := range p.BranchIDs {
		if id != 0 {
			branches[id] = struct{}{}
		}
	}
	return &Context{
		actorID:    p.ActorID,
		actorName:  p.ActorName,
		tenantID:   p.TenantID,
		companyID:  p.CompanyID,
		branchIDs:  branches,
		superAdmin: p.SuperAdmin,
	}
}

// ActorID returns the acting user's ID
func (c *Context) ActorID() uuid.UUID {
	return c.actorID
}

// ActorName returns the acting user's display name
func (c *Context) ActorName() string {
	return c.actorName
}

// TenantID returns the caller's tenant
func (c *Context) TenantID() uuid.UUID {
	return c.tenantID
}

// CompanyID returns the caller's company
func (c *Context) CompanyID() int64 {
	return c.companyID
}

// IsSuperAdmin reports whether the caller bypasses scoping entirely
func (c *Context) IsSuperAdmin() bool {
	return c.superAdmin
}

// ShouldFilterByBranch reports whether branch filtering applies to this caller
func (c *Context) ShouldFilterByBranch() bool {
	return !c.superAdmin
}

// BranchIDs returns the accessible branch IDs in ascending order
func (c *Context) BranchIDs() []int64 {
	ids := make([]int64, 0, len(c.branchIDs))
	for id := range c.branchIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasBranchAccess reports whether the caller may touch data in the given
// branch. A zero branch ID means the row is unassigned; filtered callers
// never have access to it.
func (c *Context) HasBranchAccess(branchID int64) bool {
	if !c.ShouldFilterByBranch() {
		return true
	}
	_, ok := c.branchIDs[branchID]
	return ok
}

// HasTenantAccess reports whether the caller may touch data owned by the
// given tenant. A nil tenant ID fails closed for non-admin callers.
func (c *Context) HasTenantAccess(tenantID uuid.UUID) bool {
	if c.superAdmin {
		return true
	}
	return tenantID != uuid.Nil && tenantID == c.tenantID
}

type contextKey struct{}

// WithContext attaches the access context to a request context
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext retrieves the access context from a request context
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(*Context)
	return ac, ok
}
