package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/testutil"
	"gorm.io/gorm"
)

func setupFolioTest(t *testing.T) (*gorm.DB, *FolioService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	return db, NewFolioService(repos.Invoice)
}

func TestNextFolioSequential(t *testing.T) {
	db, svc := setupFolioTest(t)

	caf := testutil.SeedCaf(t, db, entity.DTETypeFactura, 1, 5)

	for want := int64(1); want <= 5; want++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			folio, err := svc.NextFolioTx(tx, testutil.TestTenant, entity.DTETypeFactura)
			if err != nil {
				return err
			}
			if folio != want {
				t.Fatalf("expected folio %d, got %d", want, folio)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("allocate folio %d: %v", want, err)
		}
	}

	var got entity.CafFolio
	db.Where("id = ?", caf.ID).First(&got)
	if !got.IsExhausted || got.IsActive {
		t.Fatalf("window should be exhausted and inactive")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.NextFolioTx(tx, testutil.TestTenant, entity.DTETypeFactura)
		return err
	})
	if !errors.Is(err, ErrOutOfFolios) {
		t.Fatalf("expected ErrOutOfFolios, got %v", err)
	}
}

func TestNextFolioRollbackReturnsCursor(t *testing.T) {
	db, svc := setupFolioTest(t)

	caf := testutil.SeedCaf(t, db, entity.DTETypeBoleta, 100, 200)

	sentinel := errors.New("caller aborted")
	err := db.Transaction(func(tx *gorm.DB) error {
		folio, err := svc.NextFolioTx(tx, testutil.TestTenant, entity.DTETypeBoleta)
		if err != nil {
			return err
		}
		if folio != 100 {
			t.Fatalf("expected folio 100, got %d", folio)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	// The aborted transaction must not consume the folio.
	var got entity.CafFolio
	db.Where("id = ?", caf.ID).First(&got)
	if got.CurrentFolio != 100 {
		t.Fatalf("cursor advanced on rollback: %d", got.CurrentFolio)
	}

	// The next allocation hands out the same number.
	db.Transaction(func(tx *gorm.DB) error {
		folio, err := svc.NextFolioTx(tx, testutil.TestTenant, entity.DTETypeBoleta)
		if err != nil {
			t.Fatalf("reallocate: %v", err)
		}
		if folio != 100 {
			t.Fatalf("expected folio 100 again, got %d", folio)
		}
		return nil
	})
}

// Concurrent allocators must serialize on the row lock: every folio is
// distinct and none is skipped.
func TestNextFolioConcurrent(t *testing.T) {
	db, svc := setupFolioTest(t)

	testutil.SeedCaf(t, db, entity.DTETypeFactura, 1, 50)

	const workers = 10
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db.Transaction(func(tx *gorm.DB) error {
				folio, err := svc.NextFolioTx(tx, testutil.TestTenant, entity.DTETypeFactura)
				if err != nil {
					return err
				}
				results <- folio
				return nil
			})
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for folio := range results {
		if seen[folio] {
			t.Fatalf("folio %d issued twice", folio)
		}
		seen[folio] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d distinct folios, got %d", workers, len(seen))
	}
	for f := int64(1); f <= workers; f++ {
		if !seen[f] {
			t.Fatalf("folio %d skipped", f)
		}
	}
}
