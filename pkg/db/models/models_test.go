package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Inserting without a preset ID must still yield one. Sqlite cannot evaluate
// the gen_random_uuid column default, so the hooks supply the ID client-side.
func TestCreateAssignsIDWithoutColumnDefault(t *testing.T) {
	t.Parallel()

	dsn := "file:models_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE inventory_items (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  service_type TEXT NOT NULL,
  unit_price_centavos INTEGER NOT NULL,
  location TEXT NOT NULL DEFAULT 'both',
  capacity_per_day INTEGER,
  description TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE reservations (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'held',
  hold_expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)

	item := &InventoryItem{
		Name:              "Sound System",
		Category:          "av",
		ServiceType:       enums.ServiceTypeEquipment,
		UnitPriceCentavos: 50000,
		Location:          enums.ItemLocationBoth,
		Active:            true,
	}
	require.NoError(t, db.Create(item).Error)
	if item.ID == uuid.Nil {
		t.Fatal("inventory item created without an ID")
	}

	now := time.Now().UTC()
	res := &Reservation{
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Qty:       1,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 1),
		Status:    enums.ReservationStatusHeld,
	}
	require.NoError(t, db.Create(res).Error)
	if res.ID == uuid.Nil {
		t.Fatal("reservation created without an ID")
	}

	var reloaded Reservation
	require.NoError(t, db.First(&reloaded, "id = ?", res.ID).Error)
	if reloaded.ItemID != item.ID {
		t.Fatalf("reloaded reservation points at %s, want %s", reloaded.ItemID, item.ID)
	}

	// A caller-chosen ID wins over the hook.
	preset := uuid.New()
	second := &Reservation{
		ID:        preset,
		BookingID: uuid.New(),
		ItemID:    item.ID,
		Qty:       1,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 1),
		Status:    enums.ReservationStatusHeld,
	}
	require.NoError(t, db.Create(second).Error)
	if second.ID != preset {
		t.Fatalf("preset ID was replaced: %s", second.ID)
	}
}
