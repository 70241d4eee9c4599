package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockAdjustment is an audit row for an admin-initiated quantity change.
type StockAdjustment struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID    uuid.UUID  `gorm:"column:item_id;type:uuid;not null"`
	BatchID   *uuid.UUID `gorm:"column:batch_id;type:uuid"`
	Delta     int        `gorm:"column:delta;not null"`
	Reason    string     `gorm:"column:reason;type:text;not null"`
	ActorID   uuid.UUID  `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (a *StockAdjustment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
