package clinic

import (
	"github.com/clinicerp/backend/internal/domain/shared"
)

// StockItem is branch-level consumable inventory. It is branch-scoped and
// soft-deletable but deliberately carries no tenant capability: branch and
// tenant scoping are independent, and tests rely on an entity with only
// one of the two.
type StockItem struct {
	shared.BaseEntity
	shared.BranchField
	shared.SoftDeleteFields

	SKU      string `gorm:"size:64;not null;index" validate:"required"`
	Name     string `gorm:"size:128;not null" validate:"required"`
	Quantity int    `gorm:"not null;default:0"`
	Unit     string `gorm:"size:16"`
}

// TableName returns the table name for GORM
func (StockItem) TableName() string {
	return "stock_items"
}

// NewStockItem creates a stock item in a branch
func NewStockItem(branchID int64, sku, name string, quantity int) *StockItem {
	s := &StockItem{
		BaseEntity: shared.NewBaseEntity(),
		SKU:        sku,
		Name:       name,
		Quantity:   quantity,
	}
	s.BranchID = branchID
	return s
}
