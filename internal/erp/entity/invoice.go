package entity

import (
	"time"
)

// DTE document types handled by the invoicing gate.
const (
	DTETypeFactura       = 33 // factura electrónica afecta
	DTETypeFacturaExenta = 34
	DTETypeBoleta        = 39
	DTETypeNotaCredito   = 61
)

// Invoice status values. Payment and void handling live outside this core;
// only the issuance states are owned here.
const (
	InvoiceStatusIssued      = "ISSUED"
	InvoiceStatusSent        = "SENT"
	InvoiceStatusPendingSend = "PENDING_SEND"
	InvoiceStatusVoided      = "VOIDED"
)

// CafFolio is an authorized folio window for a (tenant, DTE type) pair.
// current_folio is the next number to issue. At most one active,
// non-exhausted row exists per pair, enforced by a partial unique index;
// exhaustion is permanent.
type CafFolio struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID     string    `json:"tenant_id" gorm:"type:uuid;not null;index:idx_caf_tenant_type;uniqueIndex:uniq_caf_active_window,where:is_active AND NOT is_exhausted"`
	DTEType      int       `json:"dte_type" gorm:"not null;index:idx_caf_tenant_type;uniqueIndex:uniq_caf_active_window"`
	FolioFrom    int64     `json:"folio_from" gorm:"not null"`
	FolioTo      int64     `json:"folio_to" gorm:"not null"`
	CurrentFolio int64     `json:"current_folio" gorm:"not null"`
	IsExhausted  bool      `json:"is_exhausted" gorm:"not null;default:false"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:true"`
	AuthorizedAt time.Time `json:"authorized_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (CafFolio) TableName() string {
	return "erp_caf_folios"
}

// Invoice is a legally numbered fiscal document issued for a work order.
// The (tenant, dte_type, folio) triple is unique; the allocator guarantees
// it beyond the index.
type Invoice struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID    string    `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_invoice_folio"`
	DTEType     int       `json:"dte_type" gorm:"not null;uniqueIndex:idx_invoice_folio"`
	Folio       int64     `json:"folio" gorm:"not null;uniqueIndex:idx_invoice_folio"`
	WorkOrderID string    `json:"work_order_id" gorm:"type:uuid;not null;index"`
	QuotationID *string   `json:"quotation_id" gorm:"type:uuid"`
	ClientID    string    `json:"client_id" gorm:"type:uuid;not null;index"`
	NetAmount   float64   `json:"net_amount" gorm:"type:decimal(14,2);not null"`
	TaxAmount   float64   `json:"tax_amount" gorm:"type:decimal(14,2);not null"`
	TotalAmount float64   `json:"total_amount" gorm:"type:decimal(14,2);not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:ISSUED"`
	TrackID     string    `json:"track_id" gorm:"size:64"`
	DocumentURL string    `json:"document_url" gorm:"size:255"`
	IssuedAt    time.Time `json:"issued_at"`
	CreatedBy   string    `json:"created_by" gorm:"size:64;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Invoice) TableName() string {
	return "erp_invoices"
}
