package shared

import (
	"time"

	"github.com/google/uuid"
)

// Capabilities are declared by embedding the field structs below. The
// persistence layer asserts these interfaces once, when an entity type is
// registered, and never inspects types per call. An entity that does not
// embed a capability simply does not get the corresponding behavior.

// BranchScoped entities are isolated per clinic branch. A zero branch ID
// means unassigned and is treated as inaccessible to filtered callers.
type BranchScoped interface {
	GetBranchID() int64
}

// TenantOwned entities are isolated per tenant, independently of any branch
// scoping they may also carry.
type TenantOwned interface {
	GetTenantID() uuid.UUID
}

// SoftDeletable entities are tombstoned instead of physically removed.
type SoftDeletable interface {
	IsSoftDeleted() bool
	MarkDeleted(at time.Time, by uuid.UUID)
	MarkRestored()
}

// Auditable entities carry creation and modification stamps. Creation
// stamps are written once and never overwritten on update.
type Auditable interface {
	StampCreated(at time.Time, by uuid.UUID)
	StampModified(at time.Time, by uuid.UUID)
}

// Versioned entities carry an optimistic-lock version. A commit whose
// version does not match the stored row fails with a concurrency conflict.
type Versioned interface {
	GetVersion() int
	SetVersion(version int)
}

// BranchField implements BranchScoped
type BranchField struct {
	BranchID int64 `gorm:"not null;index"`
}

// GetBranchID returns the owning branch ID
func (f *BranchField) GetBranchID() int64 {
	return f.BranchID
}

// TenantField implements TenantOwned
type TenantField struct {
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// GetTenantID returns the owning tenant ID
func (f *TenantField) GetTenantID() uuid.UUID {
	return f.TenantID
}

// SoftDeleteFields implements SoftDeletable
type SoftDeleteFields struct {
	IsDeleted bool       `gorm:"not null;default:false;index"`
	DeletedAt *time.Time `gorm:"index"`
	DeletedBy *uuid.UUID `gorm:"type:uuid"`
}

// IsSoftDeleted reports whether the entity is tombstoned
func (f *SoftDeleteFields) IsSoftDeleted() bool {
	return f.IsDeleted
}

// MarkDeleted tombstones the entity
func (f *SoftDeleteFields) MarkDeleted(at time.Time, by uuid.UUID) {
	f.IsDeleted = true
	f.DeletedAt = &at
	f.DeletedBy = &by
}

// MarkRestored clears the tombstone
func (f *SoftDeleteFields) MarkRestored() {
	f.IsDeleted = false
	f.DeletedAt = nil
	f.DeletedBy = nil
}

// AuditStamps implements Auditable. CreatedAt lives on BaseEntity; these
// fields record who created the row and who touched it last.
type AuditStamps struct {
	CreatedBy  uuid.UUID  `gorm:"type:uuid"`
	ModifiedAt *time.Time
	ModifiedBy *uuid.UUID `gorm:"type:uuid"`
}

// StampCreated records the creating actor
func (s *AuditStamps) StampCreated(at time.Time, by uuid.UUID) {
	s.CreatedBy = by
}

// StampModified records the modifying actor
func (s *AuditStamps) StampModified(at time.Time, by uuid.UUID) {
	s.ModifiedAt = &at
	s.ModifiedBy = &by
}

// VersionField implements Versioned
type VersionField struct {
	Version int `gorm:"not null;default:1"`
}

// GetVersion returns the optimistic-lock version
func (f *VersionField) GetVersion() int {
	return f.Version
}

// SetVersion sets the optimistic-lock version
func (f *VersionField) SetVersion(version int) {
	f.Version = version
}
