package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Reservation pins a quantity of one item to a booking over a date range.
type Reservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID     uuid.UUID               `gorm:"column:booking_id;type:uuid;not null"`
	ItemID        uuid.UUID               `gorm:"column:item_id;type:uuid;not null"`
	Qty           int                     `gorm:"column:qty;not null"`
	StartDate     time.Time               `gorm:"column:start_date;not null"`
	EndDate       time.Time               `gorm:"column:end_date;not null"`
	Status        enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'held'"`
	HoldExpiresAt *time.Time              `gorm:"column:hold_expires_at"`
	Allocations   []ReservationAllocation `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
