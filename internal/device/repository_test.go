package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/database"
	_ "github.com/nerrad567/graylogic-tuya/migrations"
)

// setupTestDB opens an in-memory database with the production schema.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func testDevice(productID, deviceID string) *Device {
	return &Device{
		ID:           GenerateID(),
		Name:         "Kitchen Plug",
		Driver:       "socket",
		ProductID:    productID,
		DeviceID:     deviceID,
		Category:     "cz",
		Capabilities: []string{"onoff", "measure_power"},
		Store:        map[string]any{"tuya_category": "cz"},
		Settings:     map[string]any{"deviceSpecification": "{}"},
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	d := testDevice("p1", "d1")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Create() should set timestamps")
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != d.Name || got.ProductID != "p1" || got.DeviceID != "d1" {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.Capabilities) != 2 || got.Capabilities[1] != "measure_power" {
		t.Errorf("Capabilities = %v", got.Capabilities)
	}
	if got.Store["tuya_category"] != "cz" {
		t.Errorf("Store = %v", got.Store)
	}
	if got.CapabilitiesOptions == nil {
		t.Error("nil CapabilitiesOptions should round trip as an empty map")
	}
	if got.OAuthClientID != nil {
		t.Errorf("OAuthClientID = %v, want nil", *got.OAuthClientID)
	}
	if !got.CreatedAt.Equal(d.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, d.CreatedAt)
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("p1", "d1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.Create(ctx, testDevice("p1", "d1"))
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate cloud identity: err = %v, want ErrDeviceExists", err)
	}

	d := testDevice("p2", "d2")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	dup := testDevice("p3", "d3")
	dup.ID = d.ID
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate id: err = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() err = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	b := testDevice("p2", "d2")
	b.Name = "Bedroom Lamp"
	a := testDevice("p1", "d1")
	a.Name = "Attic Plug"
	for _, d := range []*Device{b, a} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 || devices[0].Name != "Attic Plug" {
		t.Fatalf("List() = %+v, want 2 devices ordered by name", devices)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() err = %v, want ErrDeviceNotFound", err)
	}
}
