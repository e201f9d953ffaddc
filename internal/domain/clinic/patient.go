// Package clinic holds the clinic-facing domain entities. Only the fields
// relevant to scoping, auditing and billing are modeled here; the entities
// exist primarily as carriers of the persistence capabilities declared in
// domain/shared.
package clinic

import (
	"time"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Patient is a clinic patient record. Patients are scoped to both a branch
// and a tenant, carry audit stamps, and are soft-deleted.
type Patient struct {
	shared.BaseEntity
	shared.TenantField
	shared.BranchField
	shared.AuditStamps
	shared.SoftDeleteFields

	RecordNo  string     `gorm:"size:32;index" validate:"required"`
	FullName  string     `gorm:"size:128;not null" validate:"required"`
	Phone     string     `gorm:"size:32"`
	Gender    string     `gorm:"size:16"`
	BirthDate *time.Time
	Notes     string `gorm:"size:512"`
}

// TableName returns the table name for GORM
func (Patient) TableName() string {
	return "patients"
}

// NewPatient creates a patient assigned to a tenant and branch
func NewPatient(tenantID uuid.UUID, branchID int64, recordNo, fullName string) *Patient {
	p := &Patient{
		BaseEntity: shared.NewBaseEntity(),
		RecordNo:   recordNo,
		FullName:   fullName,
	}
	p.TenantID = tenantID
	p.BranchID = branchID
	return p
}
