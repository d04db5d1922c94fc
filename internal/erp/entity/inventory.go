package entity

import (
	"time"
)

// Stock movement types
const (
	MovementTypeDispatch  = "DISPATCH"  // parts committed against a work order
	MovementTypeReception = "RECEPTION" // goods received into stock
	MovementTypeAdjust    = "ADJUST"    // manual correction
)

// InventoryItem is a tenant-scoped stock record. Its quantity is mutated
// only by the dispatch commit phase and the receiving flow.
type InventoryItem struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID      string     `json:"tenant_id" gorm:"type:uuid;not null;index"`
	SKU           string     `json:"sku" gorm:"size:64;not null;index"`
	Name          string     `json:"name" gorm:"size:128;not null"`
	StockQuantity float64    `json:"stock_quantity" gorm:"type:decimal(12,4);not null;default:0"`
	UnitCost      float64    `json:"unit_cost" gorm:"type:decimal(14,2);default:0"`
	Unit          string     `json:"unit" gorm:"size:20;not null;default:pcs"`
	IsActive      bool       `json:"is_active" gorm:"not null;default:true"`
	LastMovedAt   *time.Time `json:"last_moved_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (InventoryItem) TableName() string {
	return "erp_inventory_items"
}

// WarehouseLocation is a physical stock location inside the workshop.
type WarehouseLocation struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID  string    `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Code      string    `json:"code" gorm:"size:50;not null"`
	Name      string    `json:"name" gorm:"size:128"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WarehouseLocation) TableName() string {
	return "erp_warehouse_locations"
}

// StockMovement is the append-only audit trail for every stock change.
// Rows are never updated or deleted. Quantity is signed: positive for
// receptions, negative for dispatches.
type StockMovement struct {
	ID                  string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID            string    `json:"tenant_id" gorm:"type:uuid;not null;index"`
	InventoryItemID     string    `json:"inventory_item_id" gorm:"type:uuid;not null;index"`
	WarehouseLocationID string    `json:"warehouse_location_id" gorm:"type:uuid;not null"`
	MovementType        string    `json:"movement_type" gorm:"size:20;not null"`
	Quantity            float64   `json:"quantity" gorm:"type:decimal(12,4);not null"`
	WorkOrderID         *string   `json:"work_order_id" gorm:"type:uuid;index"`
	Reference           string    `json:"reference" gorm:"size:100"`
	Notes               string    `json:"notes" gorm:"type:text"`
	CreatedBy           string    `json:"created_by" gorm:"size:64;not null"`
	CreatedAt           time.Time `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "erp_stock_movements"
}
