// Package domain contains purchase intents: the pending-to-terminal records
// reconciliation operates on.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Purchase is one pre-payment for a slot package. PaymentReference is
// client-generated, globally unique, and is the idempotency key for the
// whole reconciliation flow. A purchase transitions out of pending exactly
// once; terminal states are never reversed.
type Purchase struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	CoordinatorID    snowflake.ID   `json:"coordinator_id" gorm:"not null;index"`
	ChapterID        snowflake.ID   `json:"chapter_id" gorm:"not null"`
	SlotPackageID    snowflake.ID   `json:"slot_package_id" gorm:"not null"`
	SlotsPurchased   int            `json:"slots_purchased" gorm:"not null"`
	AmountPaid       int64          `json:"amount_paid" gorm:"not null"`
	PaymentReference string         `json:"payment_reference" gorm:"type:text;not null;uniqueIndex:ux_purchases_payment_reference"`
	PaymentStatus    PaymentStatus  `json:"payment_status" gorm:"type:text;not null;default:'pending'"`
	GatewayReference *string        `json:"gateway_reference"`
	RawResponse      datatypes.JSON `json:"raw_response" gorm:"type:jsonb"`
	PurchaseDate     time.Time      `json:"purchase_date" gorm:"not null"`
	VerifiedAt       *time.Time     `json:"verified_at"`
	CreatedAt        time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Purchase) TableName() string { return "purchases" }
