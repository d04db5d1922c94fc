package entity

import "gorm.io/gorm"

// AutoMigrate migrates every table owned by the ERP core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// master data
		&Client{},
		&Vehicle{},
		&WarehouseLocation{},

		// sales pipeline
		&Quotation{},
		&QuotationItem{},
		&WorkOrder{},
		&WorkOrderPart{},

		// inventory
		&InventoryItem{},
		&StockMovement{},

		// invoicing
		&CafFolio{},
		&Invoice{},
	)
}
