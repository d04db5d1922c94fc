package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/testutil"
	"gorm.io/gorm"
)

func setupQuotationTest(t *testing.T) (*gorm.DB, *repository.Repositories, *QuotationService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewQuotationService(repos.Quotation, repos.Client, db, NewPipelineCache(nil))
	return db, repos, svc
}

func TestQuotationLifecycle(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Taller Norte SpA", "76.543.210-K")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "ABCD-12")

	q, err := svc.Create(ctx, testutil.TestTenant, "test-user-001", &CreateQuotationRequest{
		ClientID:  client.ID,
		VehicleID: vehicle.ID,
		Items: []QuotationItemRequest{
			{Description: "Pastillas de freno", Quantity: 2, UnitPrice: 45000},
			{Description: "Mano de obra frenos", Quantity: 1, UnitPrice: 60000},
		},
	})
	if err != nil {
		t.Fatalf("create quotation: %v", err)
	}
	if q.Status != entity.QuotationStatusDraft {
		t.Fatalf("expected DRAFT, got %s", q.Status)
	}
	if q.TotalAmount != 150000 {
		t.Fatalf("expected total 150000, got %v", q.TotalAmount)
	}

	if _, err := svc.SetStatus(ctx, testutil.TestTenant, q.ID, entity.QuotationStatusSent); err != nil {
		t.Fatalf("send quotation: %v", err)
	}
	if _, err := svc.SetStatus(ctx, testutil.TestTenant, q.ID, entity.QuotationStatusApproved); err != nil {
		t.Fatalf("approve quotation: %v", err)
	}
}

func TestQuotationTransitionGuards(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Taller Sur Ltda", "77.111.222-3")
	q := testutil.SeedQuotation(t, db, client.ID, nil, entity.QuotationStatusDraft,
		entity.QuotationItem{Description: "Filtro de aceite", Quantity: 1, UnitPrice: 12000})

	// Draft cannot jump straight to approved.
	if _, err := svc.SetStatus(ctx, testutil.TestTenant, q.ID, entity.QuotationStatusApproved); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// Conversion is not reachable through SetStatus at all.
	if _, err := svc.SetStatus(ctx, testutil.TestTenant, q.ID, entity.QuotationStatusConverted); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for converted, got %v", err)
	}
}

func TestQuotationConvert(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Transportes Maipo", "78.222.333-4")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "JKLM-34")
	q := testutil.SeedQuotation(t, db, client.ID, &vehicle.ID, entity.QuotationStatusApproved,
		entity.QuotationItem{Description: "Pastillas de freno", Quantity: 2, UnitPrice: 45000},
		entity.QuotationItem{Description: "Mano de obra frenos", Quantity: 1, UnitPrice: 60000})

	wo, err := svc.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{})
	if err != nil {
		t.Fatalf("convert quotation: %v", err)
	}

	if wo.Status != entity.WOStatusPending {
		t.Fatalf("expected PENDING work order, got %s", wo.Status)
	}
	if len(wo.Parts) != 2 {
		t.Fatalf("expected 2 part lines, got %d", len(wo.Parts))
	}
	if wo.PartsCost != 150000 || wo.TotalCost != 150000 {
		t.Fatalf("expected cost 150000, got parts=%v total=%v", wo.PartsCost, wo.TotalCost)
	}

	var updated entity.Quotation
	if err := db.Where("id = ?", q.ID).First(&updated).Error; err != nil {
		t.Fatalf("reload quotation: %v", err)
	}
	if updated.Status != entity.QuotationStatusConverted {
		t.Fatalf("expected CONVERTED, got %s", updated.Status)
	}
	if updated.PipelineStage != entity.StageWorkOrder {
		t.Fatalf("expected stage WORK_ORDER, got %s", updated.PipelineStage)
	}
	if updated.WorkOrderID == nil || *updated.WorkOrderID != wo.ID {
		t.Fatalf("quotation does not reference the new work order")
	}
	if updated.ConvertedAt == nil || updated.ConvertedBy != "test-user-001" {
		t.Fatalf("conversion audit fields not set")
	}
}

func TestQuotationConvertReplay(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Rectificadora Lira", "79.000.111-2")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "PQRS-56")
	q := testutil.SeedQuotation(t, db, client.ID, &vehicle.ID, entity.QuotationStatusApproved,
		entity.QuotationItem{Description: "Embrague completo", Quantity: 1, UnitPrice: 280000})

	if _, err := svc.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{}); err != nil {
		t.Fatalf("first convert: %v", err)
	}
	if _, err := svc.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{}); !errors.Is(err, ErrAlreadyConverted) {
		t.Fatalf("expected ErrAlreadyConverted, got %v", err)
	}

	var count int64
	db.Model(&entity.WorkOrder{}).Where("quotation_id = ?", q.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly 1 work order, got %d", count)
	}
}

func TestQuotationConvertReportsAllMissingFields(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	// Client without a tax id, quotation without vehicle or items.
	client := testutil.SeedClient(t, db, "Cliente Informal", "")
	q := testutil.SeedQuotation(t, db, client.ID, nil, entity.QuotationStatusApproved)

	_, err := svc.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validation.Fields) != 3 {
		t.Fatalf("expected 3 failures, got %d: %v", len(validation.Fields), validation.Fields)
	}
	joined := strings.Join(validation.Fields, "; ")
	for _, want := range []string{"client.rut", "vehicle_id", "items"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}

	// Nothing was written.
	var count int64
	db.Model(&entity.WorkOrder{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no work orders, got %d", count)
	}
}

func TestQuotationConvertRejectsUnknownVehicle(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Transportes Lota", "82.444.555-6")
	ghost := uuid.New().String()
	q := testutil.SeedQuotation(t, db, client.ID, &ghost, entity.QuotationStatusApproved,
		entity.QuotationItem{Description: "Radiador", Quantity: 1, UnitPrice: 120000})

	_, err := svc.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if joined := strings.Join(validation.Fields, "; "); !strings.Contains(joined, "vehicle_id: vehicle not found") {
		t.Fatalf("expected vehicle resolution failure in %q", joined)
	}

	var count int64
	db.Model(&entity.WorkOrder{}).Where("quotation_id = ?", q.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no work orders, got %d", count)
	}
}

func TestQuotationConvertRequiresApproval(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Flota Central", "80.123.456-7")
	vehicle := testutil.SeedVehicle(t, db, client.ID, "TUVW-78")
	q := testutil.SeedQuotation(t, db, client.ID, &vehicle.ID, entity.QuotationStatusSent,
		entity.QuotationItem{Description: "Cambio de aceite", Quantity: 1, UnitPrice: 35000})

	if _, err := svc.Convert(ctx, testutil.TestTenant, q.ID, "test-user-001", ConvertOptions{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestQuotationTenantIsolation(t *testing.T) {
	db, _, svc := setupQuotationTest(t)
	ctx := context.Background()

	client := testutil.SeedClient(t, db, "Taller Oculto", "81.999.888-0")
	q := testutil.SeedQuotation(t, db, client.ID, nil, entity.QuotationStatusDraft,
		entity.QuotationItem{Description: "Bujías", Quantity: 4, UnitPrice: 9000})

	otherTenant := "22222222-2222-2222-2222-222222222222"
	if _, err := svc.Get(ctx, otherTenant, q.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}
