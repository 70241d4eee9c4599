package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservationAllocation records how many units a reservation consumed from a
// specific batch, so a release can restore the exact batches it drew from.
type ReservationAllocation struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null"`
	BatchID       uuid.UUID `gorm:"column:batch_id;type:uuid;not null"`
	Qty           int       `gorm:"column:qty;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (a *ReservationAllocation) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
