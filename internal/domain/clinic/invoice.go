package clinic

import (
	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusIssued  InvoiceStatus = "issued"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Invoice is a financial document subject to concurrent payment updates, so
// it carries an optimistic-lock version. Invoices are never soft-deleted:
// removing a draft invoice is a hard delete.
type Invoice struct {
	shared.BaseEntity
	shared.TenantField
	shared.BranchField
	shared.AuditStamps
	shared.VersionField

	InvoiceNo   string          `gorm:"size:32;not null;index" validate:"required"`
	PatientID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PaidAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status      InvoiceStatus   `gorm:"size:16;not null;default:'draft'"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice creates a draft invoice for a patient
func NewInvoice(tenantID uuid.UUID, branchID int64, patientID uuid.UUID, invoiceNo string, total decimal.Decimal) *Invoice {
	inv := &Invoice{
		BaseEntity:  shared.NewBaseEntity(),
		InvoiceNo:   invoiceNo,
		PatientID:   patientID,
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		Status:      InvoiceStatusDraft,
	}
	inv.TenantID = tenantID
	inv.BranchID = branchID
	inv.Version = 1
	return inv
}

// RecordPayment applies a payment and advances the status
func (i *Invoice) RecordPayment(amount decimal.Decimal) {
	i.PaidAmount = i.PaidAmount.Add(amount)
	if i.PaidAmount.GreaterThanOrEqual(i.TotalAmount) {
		i.Status = InvoiceStatusPaid
	} else {
		i.Status = InvoiceStatusPartial
	}
}

// Outstanding returns the unpaid balance
func (i *Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}
