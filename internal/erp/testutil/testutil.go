package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/middleware"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_erp"
	JWTSecret  = "taller-erp-jwt-secret-key-2026"

	// TestTenant is the tenant every seeded record belongs to unless a
	// test supplies its own.
	TestTenant = "11111111-1111-1111-1111-111111111111"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test
// schema. Each test gets an isolated schema that is cleaned up after the
// test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "taller")
	password := getEnv("DB_PASSWORD", "taller123")
	dbname := getEnv("DB_NAME", "taller_erp")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled
	// connections use the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, tenantID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"tid":   tenantID,
		"name":  name,
		"roles": roles,
		"iss":   "taller-erp",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default admin test user
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", TestTenant, "Test Admin", []string{"taller_admin"})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedClient creates a client with a tax id
func SeedClient(t *testing.T, db *gorm.DB, name, rut string) *entity.Client {
	t.Helper()
	client := &entity.Client{
		ID:       uuid.New().String(),
		TenantID: TestTenant,
		Name:     name,
		RUT:      rut,
		IsActive: true,
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("Failed to seed client: %v", err)
	}
	return client
}

// SeedVehicle creates a vehicle for a client
func SeedVehicle(t *testing.T, db *gorm.DB, clientID, plate string) *entity.Vehicle {
	t.Helper()
	vehicle := &entity.Vehicle{
		ID:          uuid.New().String(),
		TenantID:    TestTenant,
		ClientID:    clientID,
		PlateNumber: plate,
		Brand:       "Toyota",
		Model:       "Hilux",
		Year:        2021,
	}
	if err := db.Create(vehicle).Error; err != nil {
		t.Fatalf("Failed to seed vehicle: %v", err)
	}
	return vehicle
}

// SeedItem creates an inventory item with stock
func SeedItem(t *testing.T, db *gorm.DB, sku string, stock, unitCost float64) *entity.InventoryItem {
	t.Helper()
	item := &entity.InventoryItem{
		ID:            uuid.New().String(),
		TenantID:      TestTenant,
		SKU:           sku,
		Name:          "Part " + sku,
		StockQuantity: stock,
		UnitCost:      unitCost,
		Unit:          "pcs",
		IsActive:      true,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed inventory item: %v", err)
	}
	return item
}

// SeedLocation creates a warehouse location
func SeedLocation(t *testing.T, db *gorm.DB, code string) *entity.WarehouseLocation {
	t.Helper()
	loc := &entity.WarehouseLocation{
		ID:       uuid.New().String(),
		TenantID: TestTenant,
		Code:     code,
		Name:     "Location " + code,
		IsActive: true,
	}
	if err := db.Create(loc).Error; err != nil {
		t.Fatalf("Failed to seed warehouse location: %v", err)
	}
	return loc
}

// SeedQuotation creates a quotation in the given status with line items.
// Each item is (description, quantity, unitPrice).
func SeedQuotation(t *testing.T, db *gorm.DB, clientID string, vehicleID *string, status string, items ...entity.QuotationItem) *entity.Quotation {
	t.Helper()
	q := &entity.Quotation{
		ID:            uuid.New().String(),
		TenantID:      TestTenant,
		ClientID:      clientID,
		VehicleID:     vehicleID,
		Status:        status,
		PipelineStage: entity.StageQuotation,
		CreatedBy:     "test-user-001",
	}
	var total float64
	for i := range items {
		items[i].ID = uuid.New().String()
		items[i].QuotationID = q.ID
		items[i].TotalPrice = items[i].Quantity * items[i].UnitPrice
		items[i].SortOrder = i + 1
		total += items[i].TotalPrice
	}
	q.TotalAmount = total
	q.Items = items
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("Failed to seed quotation: %v", err)
	}
	return q
}

// SeedCaf creates an active folio window
func SeedCaf(t *testing.T, db *gorm.DB, dteType int, from, to int64) *entity.CafFolio {
	t.Helper()
	caf := &entity.CafFolio{
		ID:           uuid.New().String(),
		TenantID:     TestTenant,
		DTEType:      dteType,
		FolioFrom:    from,
		FolioTo:      to,
		CurrentFolio: from,
		IsActive:     true,
		AuthorizedAt: time.Now(),
	}
	if err := db.Create(caf).Error; err != nil {
		t.Fatalf("Failed to seed caf window: %v", err)
	}
	return caf
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
