package entity

import (
	"time"
)

// Quotation status values
const (
	QuotationStatusDraft     = "DRAFT"
	QuotationStatusSent      = "SENT"
	QuotationStatusApproved  = "APPROVED"
	QuotationStatusConverted = "CONVERTED"
	QuotationStatusRejected  = "REJECTED"
)

// Pipeline stage of a quotation→work-order→invoice chain
const (
	StageQuotation  = "QUOTATION"
	StageWorkOrder  = "WORK_ORDER"
	StageDispatched = "DISPATCHED"
	StageInvoiced   = "INVOICED"
)

// quotationTransitions enumerates the allowed status transitions. Anything
// not listed here is rejected; CONVERTED and REJECTED are terminal.
var quotationTransitions = map[string][]string{
	QuotationStatusDraft:    {QuotationStatusSent},
	QuotationStatusSent:     {QuotationStatusApproved, QuotationStatusRejected},
	QuotationStatusApproved: {QuotationStatusConverted},
}

// QuotationCanTransition reports whether a quotation may move from one
// status to another.
func QuotationCanTransition(from, to string) bool {
	for _, next := range quotationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Quotation is a priced proposal for workshop labor and parts. Once
// converted it is immutable except for the pipeline stage tag.
type Quotation struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID      string     `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ClientID      string     `json:"client_id" gorm:"type:uuid;not null;index"`
	VehicleID     *string    `json:"vehicle_id" gorm:"type:uuid"`
	Status        string     `json:"status" gorm:"size:20;not null;default:DRAFT"`
	PipelineStage string     `json:"pipeline_stage" gorm:"size:20;not null;default:QUOTATION"`
	TotalAmount   float64    `json:"total_amount" gorm:"type:decimal(14,2);default:0"`
	WorkOrderID   *string    `json:"work_order_id" gorm:"type:uuid;uniqueIndex"`
	InvoiceID     *string    `json:"invoice_id" gorm:"type:uuid"`
	Notes         string     `json:"notes" gorm:"type:text"`
	ConvertedAt   *time.Time `json:"converted_at"`
	ConvertedBy   string     `json:"converted_by" gorm:"size:64"`
	CreatedBy     string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Items  []QuotationItem `json:"items,omitempty" gorm:"foreignKey:QuotationID"`
	Client *Client         `json:"client,omitempty" gorm:"foreignKey:ClientID"`
}

func (Quotation) TableName() string {
	return "erp_quotations"
}

// QuotationItem is one priced line of a quotation.
type QuotationItem struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	QuotationID string    `json:"quotation_id" gorm:"type:uuid;not null;index"`
	Description string    `json:"description" gorm:"size:255;not null"`
	Quantity    float64   `json:"quantity" gorm:"type:decimal(12,4);not null"`
	UnitPrice   float64   `json:"unit_price" gorm:"type:decimal(14,2);not null"`
	TotalPrice  float64   `json:"total_price" gorm:"type:decimal(14,2);not null"`
	SortOrder   int       `json:"sort_order" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
}

func (QuotationItem) TableName() string {
	return "erp_quotation_items"
}
