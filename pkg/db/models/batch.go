package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Batch is a dated procurement lot of an inventory item. Depleted batches are
// kept at zero quantity for audit history.
type Batch struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID           uuid.UUID           `gorm:"column:item_id;type:uuid;not null"`
	BatchLabel       string              `gorm:"column:batch_label;type:text;not null"`
	Supplier         *string             `gorm:"column:supplier;type:text"`
	QtyReceived      int                 `gorm:"column:qty_received;not null"`
	QtyOnHand        int                 `gorm:"column:qty_on_hand;not null;check:qty_on_hand >= 0"`
	UnitCostCentavos int64               `gorm:"column:unit_cost_centavos;not null;default:0"`
	ExpiresAt        *time.Time          `gorm:"column:expires_at"`
	Location         *enums.ItemLocation `gorm:"column:location;type:text"`
	Notes            *string             `gorm:"column:notes;type:text"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (b *Batch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
