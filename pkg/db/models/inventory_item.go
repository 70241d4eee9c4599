package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// InventoryItem is a rentable catalog entry. Total on-hand quantity is never
// stored here; it is derived from the item's batches.
type InventoryItem struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string             `gorm:"column:name;type:text;not null"`
	Category          string             `gorm:"column:category;type:text;not null"`
	ServiceType       enums.ServiceType  `gorm:"column:service_type;type:text;not null"`
	UnitPriceCentavos int64              `gorm:"column:unit_price_centavos;not null"`
	Location          enums.ItemLocation `gorm:"column:location;type:text;not null;default:'both'"`
	CapacityPerDay    *int               `gorm:"column:capacity_per_day"`
	Description       *string            `gorm:"column:description;type:text"`
	Active            bool               `gorm:"column:active;not null;default:true"`
	Batches           []Batch            `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
