package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Receipt is the local record of one paid checkout visit.
type Receipt struct {
	ID              uuid.UUID `gorm:"column:id;type:varchar(36);primaryKey"`
	VisitID         uuid.UUID `gorm:"column:visit_id;type:varchar(36);not null;unique"`
	UserID          string    `gorm:"column:user_id;not null;default:''"`
	OrderID         string    `gorm:"column:order_id;not null;default:''"`
	OrderedItem     string    `gorm:"column:ordered_item;not null"`
	AmountCents     int64     `gorm:"column:amount_cents;not null"`
	Currency        string    `gorm:"column:currency;not null;default:'inr'"`
	Email           string    `gorm:"column:email;not null"`
	PaymentMethodID string    `gorm:"column:payment_method_id;not null"`
	CardLast4       string    `gorm:"column:card_last4;not null;default:''"`
	ShippingAddress string    `gorm:"column:shipping_address;not null"`
	PaidAt          time.Time `gorm:"column:paid_at;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// BeforeCreate assigns an id when the caller did not.
func (r *Receipt) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
