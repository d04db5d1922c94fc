package service

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline error taxonomy. Handlers map these onto response codes; every
// rejected precondition is attributable to a specific field or row.
var (
	ErrNotFound         = errors.New("record not found")
	ErrInvalidState     = errors.New("invalid state for requested transition")
	ErrAlreadyConverted = errors.New("quotation already converted")
	ErrAlreadyInvoiced  = errors.New("work order already invoiced")
	ErrOutOfFolios      = errors.New("no folios available for document type")
	ErrTransactionFailed = errors.New("transaction failed")
)

// ValidationError carries every missing or invalid field at once so a
// caller can render the full list, not just the first failure.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// StockShortfall describes one item whose requested quantity exceeds the
// on-hand stock.
type StockShortfall struct {
	InventoryItemID string  `json:"inventory_item_id"`
	SKU             string  `json:"sku"`
	Requested       float64 `json:"requested"`
	Available       float64 `json:"available"`
}

// InsufficientStockError reports per-item shortfalls for a rejected
// dispatch request.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s: requested %.4f, available %.4f", s.SKU, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}
