package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/testutil"
	"github.com/tallerpro/taller-erp/internal/shared/dte"
	"github.com/tallerpro/taller-erp/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeBuilder is an in-memory Builder for exercising the invoicing gate.
type fakeBuilder struct {
	buildErr  error
	submitErr error
	built     []dte.InvoiceDraft
}

func (f *fakeBuilder) BuildDocument(ctx context.Context, draft dte.InvoiceDraft, items []dte.LineItem) ([]byte, error) {
	f.built = append(f.built, draft)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return []byte("<DTE/>"), nil
}

func (f *fakeBuilder) Submit(ctx context.Context, document []byte) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "TRK-0001", nil
}

func setupInvoicingTest(t *testing.T, builder dte.Builder) (*gorm.DB, *repository.Repositories, *InvoicingService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	folio := NewFolioService(repos.Invoice)
	svc := NewInvoicingService(repos.WorkOrder, repos.Client, repos.Invoice, folio,
		builder, nil, notify.NewNotifier(""), db, NewPipelineCache(nil), zap.NewNop())
	return db, repos, svc
}

// seedBillableWorkOrder creates a completed, dispatched work order with one
// part line and labor, ready to invoice.
func seedBillableWorkOrder(t *testing.T, db *gorm.DB, clientID string, vehicleID *string, partsCost, laborCost float64) *entity.WorkOrder {
	t.Helper()
	wo := seedWorkOrder(t, db, clientID, vehicleID, entity.WOStatusCompleted)
	updates := map[string]interface{}{
		"parts_dispatched": true,
		"parts_cost":       partsCost,
		"labor_cost":       laborCost,
		"labor_hours":      2.5,
		"total_cost":       partsCost + laborCost,
	}
	if err := db.Model(&entity.WorkOrder{}).Where("id = ?", wo.ID).Updates(updates).Error; err != nil {
		t.Fatalf("Failed to prepare billable work order: %v", err)
	}
	part := &entity.WorkOrderPart{
		WorkOrderID:  wo.ID,
		Name:         "Repuesto",
		Quantity:     1,
		UnitPrice:    partsCost,
		TotalPrice:   partsCost,
		IsDispatched: true,
		SortOrder:    1,
	}
	if err := db.Create(part).Error; err != nil {
		t.Fatalf("Failed to seed part line: %v", err)
	}
	reloaded := &entity.WorkOrder{}
	if err := db.Preload("Parts").Where("id = ?", wo.ID).First(reloaded).Error; err != nil {
		t.Fatalf("Failed to reload work order: %v", err)
	}
	return reloaded
}

func TestInvoiceValidateReportsAllMissingFields(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Cliente Sin RUT", "")
	wo := seedWorkOrder(t, db, client.ID, nil, entity.WOStatusPending)

	ok, missing, err := svc.Validate(ctx, testutil.TestTenant, wo.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatalf("expected not billable")
	}
	joined := strings.Join(missing, "; ")
	for _, want := range []string{"status", "client.rut", "vehicle_id", "parts_dispatched", "labor"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in missing list: %q", want, joined)
		}
	}
}

func TestInvoiceFullScenario(t *testing.T) {
	builder := &fakeBuilder{}
	db, _, svc := setupInvoicingTest(t, builder)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Minera Los Andes", "90.111.222-3")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "WXYZ-90")
	wo := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 80000, 20000)
	testutil.SeedCaf(t, db, entity.DTETypeFactura, 100, 200)

	invoice, updatedWO, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001")
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}

	if invoice.Folio != 100 {
		t.Fatalf("expected folio 100, got %d", invoice.Folio)
	}
	if invoice.NetAmount != 100000 {
		t.Fatalf("expected net 100000, got %v", invoice.NetAmount)
	}
	if invoice.TaxAmount != 19000 {
		t.Fatalf("expected tax 19000, got %v", invoice.TaxAmount)
	}
	if invoice.TotalAmount != 119000 {
		t.Fatalf("expected total 119000, got %v", invoice.TotalAmount)
	}

	if updatedWO.Status != entity.WOStatusInvoiced || updatedWO.InvoiceID == nil {
		t.Fatalf("work order not marked invoiced: %s", updatedWO.Status)
	}

	// The builder saw the draft with the assigned folio and labor line.
	if len(builder.built) != 1 {
		t.Fatalf("expected 1 build call, got %d", len(builder.built))
	}
	if builder.built[0].Folio != 100 || builder.built[0].ClientRUT != "90.111.222-3" {
		t.Fatalf("unexpected draft: %+v", builder.built[0])
	}

	// Submission succeeded, so the persisted row carries the track id.
	var stored entity.Invoice
	db.Where("id = ?", invoice.ID).First(&stored)
	if stored.Status != entity.InvoiceStatusSent || stored.TrackID != "TRK-0001" {
		t.Fatalf("expected SENT with track id, got %s/%s", stored.Status, stored.TrackID)
	}
}

func TestInvoiceExentaHasNoTax(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Fundación Exenta", "65.432.100-9")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "EXEN-10")
	wo := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 50000, 10000)
	testutil.SeedCaf(t, db, entity.DTETypeFacturaExenta, 1, 10)

	invoice, _, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFacturaExenta, "test-user-001")
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if invoice.TaxAmount != 0 || invoice.TotalAmount != 60000 {
		t.Fatalf("expected exenta totals, got tax=%v total=%v", invoice.TaxAmount, invoice.TotalAmount)
	}
}

func TestInvoiceOutOfFolios(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Taller Sin CAF", "91.222.333-4")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "NOCA-01")
	wo := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 40000, 10000)

	_, _, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001")
	if !errors.Is(err, ErrOutOfFolios) {
		t.Fatalf("expected ErrOutOfFolios, got %v", err)
	}

	// Failure leaves the work order billable.
	var got entity.WorkOrder
	db.Where("id = ?", wo.ID).First(&got)
	if got.Status != entity.WOStatusCompleted || got.InvoiceID != nil {
		t.Fatalf("work order mutated on folio failure")
	}
}

func TestInvoiceWindowExhaustion(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Flota Grande", "92.333.444-5")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "FLOT-22")
	caf := testutil.SeedCaf(t, db, entity.DTETypeFactura, 10, 11)

	woA := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 10000, 5000)
	woB := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 20000, 5000)
	woC := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 30000, 5000)

	invA, _, err := svc.Invoice(ctx, testutil.TestTenant, woA.ID, entity.DTETypeFactura, "test-user-001")
	if err != nil || invA.Folio != 10 {
		t.Fatalf("first invoice: folio=%v err=%v", invA, err)
	}
	invB, _, err := svc.Invoice(ctx, testutil.TestTenant, woB.ID, entity.DTETypeFactura, "test-user-001")
	if err != nil || invB.Folio != 11 {
		t.Fatalf("second invoice: folio=%v err=%v", invB, err)
	}

	var gotCaf entity.CafFolio
	db.Where("id = ?", caf.ID).First(&gotCaf)
	if !gotCaf.IsExhausted || gotCaf.IsActive {
		t.Fatalf("window not marked exhausted: exhausted=%v active=%v", gotCaf.IsExhausted, gotCaf.IsActive)
	}

	if _, _, err := svc.Invoice(ctx, testutil.TestTenant, woC.ID, entity.DTETypeFactura, "test-user-001"); !errors.Is(err, ErrOutOfFolios) {
		t.Fatalf("expected ErrOutOfFolios after exhaustion, got %v", err)
	}
}

func TestInvoiceUnusableDraftLeavesFolioUnconsumed(t *testing.T) {
	builder := &fakeBuilder{buildErr: dte.ErrDraftUnusable}
	db, _, svc := setupInvoicingTest(t, builder)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Cliente Raro", "93.444.555-6")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "RARO-33")
	wo := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 30000, 10000)
	caf := testutil.SeedCaf(t, db, entity.DTETypeFactura, 500, 600)

	_, _, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001")
	if !errors.Is(err, dte.ErrDraftUnusable) {
		t.Fatalf("expected ErrDraftUnusable, got %v", err)
	}

	// The transaction rolled back: cursor untouched, no invoice, order
	// still completed.
	var gotCaf entity.CafFolio
	db.Where("id = ?", caf.ID).First(&gotCaf)
	if gotCaf.CurrentFolio != 500 {
		t.Fatalf("folio consumed on aborted invoice: %d", gotCaf.CurrentFolio)
	}
	var invoices int64
	db.Model(&entity.Invoice{}).Count(&invoices)
	if invoices != 0 {
		t.Fatalf("expected no invoice rows, got %d", invoices)
	}
	var got entity.WorkOrder
	db.Where("id = ?", wo.ID).First(&got)
	if got.Status != entity.WOStatusCompleted {
		t.Fatalf("work order mutated: %s", got.Status)
	}
}

func TestInvoiceTransientBuildFailureStillCommits(t *testing.T) {
	builder := &fakeBuilder{buildErr: errors.New("gateway timeout")}
	db, _, svc := setupInvoicingTest(t, builder)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Cliente Paciente", "94.555.666-7")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "PACI-44")
	wo := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 60000, 15000)
	caf := testutil.SeedCaf(t, db, entity.DTETypeFactura, 700, 800)

	invoice, _, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001")
	if err != nil {
		t.Fatalf("transient failure must not fail the invoice: %v", err)
	}
	if invoice.Status != entity.InvoiceStatusPendingSend {
		t.Fatalf("expected PENDING_SEND, got %s", invoice.Status)
	}
	if invoice.Folio != 700 {
		t.Fatalf("expected folio 700, got %d", invoice.Folio)
	}

	// The folio stays consumed even though the document never built.
	var gotCaf entity.CafFolio
	db.Where("id = ?", caf.ID).First(&gotCaf)
	if gotCaf.CurrentFolio != 701 {
		t.Fatalf("expected cursor 701, got %d", gotCaf.CurrentFolio)
	}
	var got entity.WorkOrder
	db.Where("id = ?", wo.ID).First(&got)
	if got.Status != entity.WOStatusInvoiced {
		t.Fatalf("expected INVOICED, got %s", got.Status)
	}
}

func TestInvoiceReplayRejected(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Cliente Doble", "95.666.777-8")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "DOBL-55")
	wo := seedBillableWorkOrder(t, db, client.ID, &vehicle.ID, 25000, 5000)
	testutil.SeedCaf(t, db, entity.DTETypeFactura, 1, 100)

	if _, _, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001"); err != nil {
		t.Fatalf("first invoice: %v", err)
	}
	if _, _, err := svc.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001"); !errors.Is(err, ErrAlreadyInvoiced) {
		t.Fatalf("expected ErrAlreadyInvoiced, got %v", err)
	}

	var count int64
	db.Model(&entity.Invoice{}).Where("work_order_id = ?", wo.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 invoice, got %d", count)
	}
}

func TestRegisterCafRejectsSecondActiveWindow(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	testutil.SeedCaf(t, db, entity.DTETypeFactura, 1, 100)

	_, err := svc.RegisterCaf(ctx, testutil.TestTenant, RegisterCafRequest{
		DTEType:   entity.DTETypeFactura,
		FolioFrom: 101,
		FolioTo:   200,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for overlapping window, got %v", err)
	}

	// A different document type is unaffected.
	if _, err := svc.RegisterCaf(ctx, testutil.TestTenant, RegisterCafRequest{
		DTEType:   entity.DTETypeBoleta,
		FolioFrom: 1,
		FolioTo:   50,
	}); err != nil {
		t.Fatalf("register boleta window: %v", err)
	}
}

// Racing registrations for the same document type must leave exactly one
// active window.
func TestRegisterCafConcurrentRegistrations(t *testing.T) {
	db, _, svc := setupInvoicingTest(t, &fakeBuilder{})
	ctx := context.Background()

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(from int64) {
			defer wg.Done()
			_, err := svc.RegisterCaf(ctx, testutil.TestTenant, RegisterCafRequest{
				DTEType:   entity.DTETypeFactura,
				FolioFrom: from,
				FolioTo:   from + 99,
			})
			errs <- err
		}(int64(i)*100 + 1)
	}
	wg.Wait()
	close(errs)

	var won int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrInvalidState):
		default:
			t.Fatalf("unexpected registration error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one registration to win, got %d", won)
	}

	var active int64
	db.Model(&entity.CafFolio{}).
		Where("tenant_id = ? AND dte_type = ? AND is_active AND NOT is_exhausted",
			testutil.TestTenant, entity.DTETypeFactura).
		Count(&active)
	if active != 1 {
		t.Fatalf("expected 1 active window, got %d", active)
	}
}

// The database itself refuses a second active window for a pair, even when
// writes bypass the service.
func TestCafActiveWindowUniquePerType(t *testing.T) {
	db, _, _ := setupInvoicingTest(t, &fakeBuilder{})

	testutil.SeedCaf(t, db, entity.DTETypeFactura, 1, 100)

	dup := &entity.CafFolio{
		ID:           uuid.New().String(),
		TenantID:     testutil.TestTenant,
		DTEType:      entity.DTETypeFactura,
		FolioFrom:    101,
		FolioTo:      200,
		CurrentFolio: 101,
		IsActive:     true,
	}
	if err := db.Create(dup).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected duplicated key error, got %v", err)
	}

	// An exhausted row for the pair sits outside the constraint.
	closed := &entity.CafFolio{
		ID:           uuid.New().String(),
		TenantID:     testutil.TestTenant,
		DTEType:      entity.DTETypeFactura,
		FolioFrom:    201,
		FolioTo:      300,
		CurrentFolio: 301,
		IsExhausted:  true,
	}
	if err := db.Create(closed).Error; err != nil {
		t.Fatalf("exhausted window insert: %v", err)
	}
}
