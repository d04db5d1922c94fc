package entity

import (
	"time"
)

// Work order status values
const (
	WOStatusPending    = "PENDING"
	WOStatusInProgress = "IN_PROGRESS"
	WOStatusCompleted  = "COMPLETED"
	WOStatusInvoiced   = "INVOICED"
)

// woTransitions enumerates the allowed work-order transitions. INVOICED is
// terminal; a pending labor-only order may complete without dispatching.
var woTransitions = map[string][]string{
	WOStatusPending:    {WOStatusInProgress, WOStatusCompleted},
	WOStatusInProgress: {WOStatusCompleted},
	WOStatusCompleted:  {WOStatusInvoiced},
}

// WorkOrderCanTransition reports whether a work order may move from one
// status to another.
func WorkOrderCanTransition(from, to string) bool {
	for _, next := range woTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WorkOrder is a repair job for a client vehicle, usually born from an
// approved quotation. Invariants: invoice_id set implies status INVOICED;
// parts_dispatched implies every dispatched part carries a stock movement.
type WorkOrder struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID        string     `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Code            string     `json:"code" gorm:"size:50;not null;uniqueIndex"`
	ClientID        string     `json:"client_id" gorm:"type:uuid;not null;index"`
	VehicleID       *string    `json:"vehicle_id" gorm:"type:uuid"`
	QuotationID     *string    `json:"quotation_id" gorm:"type:uuid;index"`
	Status          string     `json:"status" gorm:"size:20;not null;default:PENDING"`
	PartsDispatched bool       `json:"parts_dispatched" gorm:"not null;default:false"`
	LaborCost       float64    `json:"labor_cost" gorm:"type:decimal(14,2);default:0"`
	LaborHours      float64    `json:"labor_hours" gorm:"type:decimal(8,2);default:0"`
	PartsCost       float64    `json:"parts_cost" gorm:"type:decimal(14,2);default:0"`
	TotalCost       float64    `json:"total_cost" gorm:"type:decimal(14,2);default:0"`
	InvoiceID       *string    `json:"invoice_id" gorm:"type:uuid"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	DispatchedAt    *time.Time `json:"dispatched_at"`
	DispatchedBy    string     `json:"dispatched_by" gorm:"size:64"`
	InvoicedAt      *time.Time `json:"invoiced_at"`
	InvoicedBy      string     `json:"invoiced_by" gorm:"size:64"`
	Notes           string     `json:"notes" gorm:"type:text"`
	CreatedBy       string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Parts  []WorkOrderPart `json:"parts,omitempty" gorm:"foreignKey:WorkOrderID"`
	Client *Client         `json:"client,omitempty" gorm:"foreignKey:ClientID"`
}

func (WorkOrder) TableName() string {
	return "erp_work_orders"
}

// WorkOrderPart is one part line of a work order. A dispatched line always
// references the stock movement that consumed the inventory.
type WorkOrderPart struct {
	ID                  string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	WorkOrderID         string    `json:"work_order_id" gorm:"type:uuid;not null;index"`
	Name                string    `json:"name" gorm:"size:255;not null"`
	Quantity            float64   `json:"quantity" gorm:"type:decimal(12,4);not null"`
	UnitPrice           float64   `json:"unit_price" gorm:"type:decimal(14,2);not null"`
	TotalPrice          float64   `json:"total_price" gorm:"type:decimal(14,2);not null"`
	InventoryItemID     *string   `json:"inventory_item_id" gorm:"type:uuid"`
	WarehouseLocationID *string   `json:"warehouse_location_id" gorm:"type:uuid"`
	IsDispatched        bool      `json:"is_dispatched" gorm:"not null;default:false"`
	StockMovementID     *string   `json:"stock_movement_id" gorm:"type:uuid"`
	SortOrder           int       `json:"sort_order" gorm:"default:0"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (WorkOrderPart) TableName() string {
	return "erp_work_order_parts"
}
