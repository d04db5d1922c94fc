package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/shared/dte"
	"github.com/tallerpro/taller-erp/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IVA rate applied to afecta document types.
const taxRate = 0.19

// InvoicingService gates the work-order→invoice step: it validates the
// order is billable, consumes a folio, delegates document construction to
// the external builder, and persists the invoice in the same transaction
// as the folio consumption.
type InvoicingService struct {
	woRepo      *repository.WorkOrderRepository
	clientRepo  *repository.ClientRepository
	invoiceRepo *repository.InvoiceRepository
	folio       *FolioService
	builder     dte.Builder
	archiver    *dte.Archiver
	notifier    *notify.Notifier
	db          *gorm.DB
	cache       *PipelineCache
	logger      *zap.Logger
}

func NewInvoicingService(
	woRepo *repository.WorkOrderRepository,
	clientRepo *repository.ClientRepository,
	invoiceRepo *repository.InvoiceRepository,
	folio *FolioService,
	builder dte.Builder,
	archiver *dte.Archiver,
	notifier *notify.Notifier,
	db *gorm.DB,
	cache *PipelineCache,
	logger *zap.Logger,
) *InvoicingService {
	return &InvoicingService{
		woRepo:      woRepo,
		clientRepo:  clientRepo,
		invoiceRepo: invoiceRepo,
		folio:       folio,
		builder:     builder,
		archiver:    archiver,
		notifier:    notifier,
		db:          db,
		cache:       cache,
		logger:      logger,
	}
}

// Validate checks every invoicing precondition and returns the full list
// of missing fields. It never mutates anything.
func (s *InvoicingService) Validate(ctx context.Context, tenantID, workOrderID string) (bool, []string, error) {
	wo, err := s.woRepo.FindByID(ctx, tenantID, workOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, ErrNotFound
		}
		return false, nil, fmt.Errorf("find work order: %w", err)
	}
	missing := s.collectMissing(ctx, tenantID, wo)
	return len(missing) == 0, missing, nil
}

func (s *InvoicingService) collectMissing(ctx context.Context, tenantID string, wo *entity.WorkOrder) []string {
	var missing []string

	if wo.InvoiceID != nil || wo.Status == entity.WOStatusInvoiced {
		missing = append(missing, "invoice_id: work order is already invoiced")
		return missing
	}
	if wo.Status != entity.WOStatusCompleted {
		missing = append(missing, fmt.Sprintf("status: must be %s (is %s)", entity.WOStatusCompleted, wo.Status))
	}

	client, err := s.clientRepo.FindByID(ctx, tenantID, wo.ClientID)
	if err != nil {
		missing = append(missing, "client: not found")
	} else if client.RUT == "" {
		missing = append(missing, "client.rut: tax identifier is required")
	}

	if wo.VehicleID == nil || *wo.VehicleID == "" {
		missing = append(missing, "vehicle_id: vehicle is required")
	}
	if !wo.PartsDispatched {
		missing = append(missing, "parts_dispatched: parts have not been dispatched")
	}
	if len(wo.Parts) == 0 && wo.LaborCost <= 0 {
		missing = append(missing, "items: at least one part or positive labor cost is required")
	}
	if wo.LaborCost <= 0 && wo.LaborHours <= 0 {
		missing = append(missing, "labor: labor cost or hours must be recorded")
	}
	return missing
}

// Invoice issues a fiscal document for a completed work order.
//
// The folio consumption, the invoice row, the work-order transition and the
// quotation back-reference all commit in one transaction. An unusable draft
// aborts the transaction before the folio cursor update commits, so the
// folio is never consumed; any later builder failure still commits the
// invoice with its already-issued folio and leaves the document to be
// rebuilt and re-sent out of band.
func (s *InvoicingService) Invoice(ctx context.Context, tenantID, workOrderID string, dteType int, actorID string) (*entity.Invoice, *entity.WorkOrder, error) {
	wo, err := s.woRepo.FindByID(ctx, tenantID, workOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("find work order: %w", err)
	}
	if wo.InvoiceID != nil || wo.Status == entity.WOStatusInvoiced {
		return nil, nil, ErrAlreadyInvoiced
	}
	if missing := s.collectMissing(ctx, tenantID, wo); len(missing) > 0 {
		return nil, nil, &ValidationError{Fields: missing}
	}

	client, err := s.clientRepo.FindByID(ctx, tenantID, wo.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve client: %w", err)
	}

	lineItems := make([]dte.LineItem, 0, len(wo.Parts)+1)
	for _, part := range wo.Parts {
		lineItems = append(lineItems, dte.LineItem{
			Description: part.Name,
			Quantity:    part.Quantity,
			UnitPrice:   part.UnitPrice,
			Total:       part.TotalPrice,
		})
	}
	if wo.LaborCost > 0 {
		lineItems = append(lineItems, dte.LineItem{
			Description: "Mano de obra",
			Quantity:    1,
			UnitPrice:   wo.LaborCost,
			Total:       wo.LaborCost,
		})
	}

	net := wo.TotalCost
	tax := net * taxRate
	if dteType == entity.DTETypeFacturaExenta {
		tax = 0
	}

	var (
		invoice *entity.Invoice
		blob    []byte
		now     = time.Now()
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockedWO, err := s.woRepo.FindByIDForUpdateTx(tx, tenantID, workOrderID)
		if err != nil {
			return fmt.Errorf("lock work order: %w", err)
		}
		if lockedWO.InvoiceID != nil || lockedWO.Status == entity.WOStatusInvoiced {
			return ErrAlreadyInvoiced
		}
		if !entity.WorkOrderCanTransition(lockedWO.Status, entity.WOStatusInvoiced) {
			return fmt.Errorf("%w: work order status is %s", ErrInvalidState, lockedWO.Status)
		}

		folio, err := s.folio.NextFolioTx(tx, tenantID, dteType)
		if err != nil {
			return err
		}

		draft := dte.InvoiceDraft{
			TenantID:    tenantID,
			DTEType:     dteType,
			Folio:       folio,
			ClientRUT:   client.RUT,
			ClientName:  client.Name,
			NetAmount:   net,
			TaxAmount:   tax,
			TotalAmount: net + tax,
			IssuedAt:    now.Format("2006-01-02"),
		}

		status := entity.InvoiceStatusIssued
		blob, err = s.builder.BuildDocument(ctx, draft, lineItems)
		if err != nil {
			if errors.Is(err, dte.ErrDraftUnusable) {
				// Aborting here rolls the folio cursor back with the rest
				// of the transaction: the folio was never consumed.
				return err
			}
			// The folio is already committed to this invoice; keep the row
			// and leave the document to be rebuilt later.
			s.logger.Warn("document build failed, committing invoice without document",
				zap.String("work_order_id", workOrderID),
				zap.Int64("folio", folio),
				zap.Error(err))
			status = entity.InvoiceStatusPendingSend
			blob = nil
		}

		invoice = &entity.Invoice{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			DTEType:     dteType,
			Folio:       folio,
			WorkOrderID: lockedWO.ID,
			QuotationID: lockedWO.QuotationID,
			ClientID:    lockedWO.ClientID,
			NetAmount:   net,
			TaxAmount:   tax,
			TotalAmount: net + tax,
			Status:      status,
			IssuedAt:    now,
			CreatedBy:   actorID,
		}
		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		if err := tx.Model(&entity.WorkOrder{}).Where("id = ?", lockedWO.ID).
			Updates(map[string]interface{}{
				"status":      entity.WOStatusInvoiced,
				"invoice_id":  invoice.ID,
				"invoiced_at": now,
				"invoiced_by": actorID,
			}).Error; err != nil {
			return fmt.Errorf("mark work order invoiced: %w", err)
		}

		if lockedWO.QuotationID != nil {
			if err := tx.Model(&entity.Quotation{}).Where("id = ?", *lockedWO.QuotationID).
				Updates(map[string]interface{}{
					"pipeline_stage": entity.StageInvoiced,
					"invoice_id":     invoice.ID,
				}).Error; err != nil {
				return fmt.Errorf("advance quotation stage: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyInvoiced),
			errors.Is(err, ErrOutOfFolios),
			errors.Is(err, ErrInvalidState),
			errors.Is(err, dte.ErrDraftUnusable):
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	invoicesIssuedTotal.Inc()
	s.afterCommit(ctx, tenantID, actorID, invoice, blob)

	updated, err := s.woRepo.FindByID(ctx, tenantID, workOrderID)
	if err != nil {
		return invoice, nil, fmt.Errorf("reload work order: %w", err)
	}
	if updated.QuotationID != nil {
		s.cache.Invalidate(ctx, tenantID, *updated.QuotationID)
	}
	return invoice, updated, nil
}

// afterCommit runs the best-effort side effects of a committed invoice:
// submission, archiving, and notification. None of them can undo the
// invoice.
func (s *InvoicingService) afterCommit(ctx context.Context, tenantID, actorID string, invoice *entity.Invoice, blob []byte) {
	if blob != nil {
		if trackID, err := s.builder.Submit(ctx, blob); err != nil {
			s.logger.Warn("document submission failed",
				zap.String("invoice_id", invoice.ID),
				zap.Int64("folio", invoice.Folio),
				zap.Error(err))
		} else {
			invoice.TrackID = trackID
			invoice.Status = entity.InvoiceStatusSent
		}

		if s.archiver != nil {
			if url, err := s.archiver.Store(ctx, tenantID, invoice.DTEType, invoice.Folio, blob); err != nil {
				s.logger.Warn("document archive failed",
					zap.String("invoice_id", invoice.ID),
					zap.Error(err))
			} else {
				invoice.DocumentURL = url
			}
		}

		if invoice.TrackID != "" || invoice.DocumentURL != "" {
			if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
				s.logger.Warn("saving submission references failed",
					zap.String("invoice_id", invoice.ID),
					zap.Error(err))
			}
		}
	}

	if err := s.notifier.Send(ctx, notify.Event{
		Type:     "invoice_issued",
		TenantID: tenantID,
		ActorID:  actorID,
		Payload: map[string]interface{}{
			"invoice_id": invoice.ID,
			"dte_type":   invoice.DTEType,
			"folio":      invoice.Folio,
			"total":      invoice.TotalAmount,
		},
	}); err != nil {
		s.logger.Warn("invoice notification failed", zap.Error(err))
	}
}

// RegisterCaf loads a new folio authorization window. The new window must
// not coexist with an active one for the same document type. The check and
// the insert share one transaction that locks the pair's existing rows, and
// the partial unique index on (tenant_id, dte_type) rejects the second
// insert when two registrations race on an empty pair.
func (s *InvoicingService) RegisterCaf(ctx context.Context, tenantID string, req RegisterCafRequest) (*entity.CafFolio, error) {
	if req.FolioTo < req.FolioFrom {
		return nil, &ValidationError{Fields: []string{"folio_to: must not be below folio_from"}}
	}

	caf := &entity.CafFolio{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		DTEType:      req.DTEType,
		FolioFrom:    req.FolioFrom,
		FolioTo:      req.FolioTo,
		CurrentFolio: req.FolioFrom,
		IsActive:     true,
		AuthorizedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.invoiceRepo.ListCafsForUpdateTx(tx, tenantID, req.DTEType)
		if err != nil {
			return fmt.Errorf("list caf windows: %w", err)
		}
		for _, w := range existing {
			if w.IsActive && !w.IsExhausted {
				return fmt.Errorf("%w: an active window already exists for dte_type %d", ErrInvalidState, req.DTEType)
			}
		}
		return s.invoiceRepo.CreateCafTx(tx, caf)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: an active window already exists for dte_type %d", ErrInvalidState, req.DTEType)
		}
		return nil, fmt.Errorf("create caf window: %w", err)
	}
	return caf, nil
}

func (s *InvoicingService) Get(ctx context.Context, tenantID, id string) (*entity.Invoice, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return inv, nil
}

func (s *InvoicingService) List(ctx context.Context, tenantID string, params repository.InvoiceListParams) ([]entity.Invoice, int64, error) {
	return s.invoiceRepo.List(ctx, tenantID, params)
}
