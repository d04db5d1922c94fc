package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/testutil"
	"github.com/tallerpro/taller-erp/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPipelineTest(t *testing.T) (*gorm.DB, *Services) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svcs := NewServices(repos, db, nil, &fakeBuilder{}, nil, notify.NewNotifier(""), zap.NewNop())
	return db, svcs
}

// TestPipelineStatusProgression walks one chain end to end and checks the
// snapshot at each stage.
func TestPipelineStatusProgression(t *testing.T) {
	db, svcs := setupPipelineTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Agro Sur", "96.777.888-9")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "AGRO-66")
	q := testutil.SeedQuotation(t, db, client.ID, &vehicle.ID, entity.QuotationStatusApproved,
		entity.QuotationItem{Description: "Correa distribución", Quantity: 1, UnitPrice: 95000})

	status, err := svcs.Pipeline.Status(ctx, testutil.TestTenant, q.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stage != entity.StageQuotation || status.WorkOrder != nil || status.Invoice != nil {
		t.Fatalf("fresh quotation should have bare snapshot: %+v", status)
	}

	wo, err := svcs.Quotation.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	status, err = svcs.Pipeline.Status(ctx, testutil.TestTenant, q.ID)
	if err != nil {
		t.Fatalf("status after convert: %v", err)
	}
	if status.Stage != entity.StageWorkOrder {
		t.Fatalf("expected WORK_ORDER stage, got %s", status.Stage)
	}
	if status.WorkOrder == nil || status.WorkOrder.ID != wo.ID {
		t.Fatalf("work order missing from snapshot")
	}
	if status.WorkOrder.DispatchedParts != 0 {
		t.Fatalf("no parts dispatched yet, got %d", status.WorkOrder.DispatchedParts)
	}

	// Dispatch the part line, then complete and invoice.
	loc := testutil.SeedLocation(t, db, "BOD-A")
	item := testutil.SeedItem(t, db, "TIM-001", 3, 95000)
	if _, err := svcs.Dispatch.Dispatch(ctx, testutil.TestTenant, wo.ID, []DispatchLine{
		{InventoryItemID: item.ID, WarehouseLocationID: loc.ID, Quantity: 1, PartID: wo.Parts[0].ID},
	}, "test-user-001", ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	status, _ = svcs.Pipeline.Status(ctx, testutil.TestTenant, q.ID)
	if status.Stage != entity.StageDispatched || status.WorkOrder.DispatchedParts != 1 {
		t.Fatalf("expected DISPATCHED with 1 part, got %s/%d", status.Stage, status.WorkOrder.DispatchedParts)
	}

	if _, err := svcs.Dispatch.Complete(ctx, testutil.TestTenant, wo.ID, "test-user-001", CompleteRequest{
		LaborCost: 40000, LaborHours: 2,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	testutil.SeedCaf(t, db, entity.DTETypeFactura, 1, 10)
	invoice, _, err := svcs.Invoicing.Invoice(ctx, testutil.TestTenant, wo.ID, entity.DTETypeFactura, "test-user-001")
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}

	status, _ = svcs.Pipeline.Status(ctx, testutil.TestTenant, q.ID)
	if status.Stage != entity.StageInvoiced {
		t.Fatalf("expected INVOICED stage, got %s", status.Stage)
	}
	if status.Invoice == nil || status.Invoice.Folio != invoice.Folio {
		t.Fatalf("invoice missing from snapshot")
	}
}

func TestPipelineStatusUnknownQuotation(t *testing.T) {
	_, svcs := setupPipelineTest(t)

	_, err := svcs.Pipeline.Status(context.Background(), testutil.TestTenant, "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
