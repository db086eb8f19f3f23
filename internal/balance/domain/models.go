// Package domain contains the authoritative per-coordinator slot counters
// and the append-only usage journal they are audited against.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CoordinatorBalance is the authoritative counter set for one coordinator.
// available_slots + used_slots == total_purchased_slots after every commit;
// the table carries the same CHECK constraint.
type CoordinatorBalance struct {
	CoordinatorID       snowflake.ID `json:"coordinator_id" gorm:"primaryKey"`
	ChapterID           snowflake.ID `json:"chapter_id" gorm:"not null"`
	AvailableSlots      int          `json:"available_slots" gorm:"not null;default:0"`
	UsedSlots           int          `json:"used_slots" gorm:"not null;default:0"`
	TotalPurchasedSlots int          `json:"total_purchased_slots" gorm:"not null;default:0"`
	LastPurchaseAt      *time.Time   `json:"last_purchase_at"`
	LastUsageAt         *time.Time   `json:"last_usage_at"`
	ArchivedAt          *time.Time   `json:"archived_at"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CoordinatorBalance) TableName() string { return "coordinator_balances" }

// UsageType classifies journal entries.
type UsageType string

const (
	UsageTypeRegistration     UsageType = "registration"
	UsageTypeBulkRegistration UsageType = "bulk_registration"
	UsageTypeAdjustment       UsageType = "adjustment"
)

// UsageEntry is one append-only journal row. SlotsDelta is positive for
// consumption (debit) and negative for additions (credit). Credits carry the
// payment reference they were applied for; registration debits carry the
// registration identity. Both columns are uniquely indexed so a duplicate
// application of the same event fails at the database.
type UsageEntry struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	CoordinatorID    snowflake.ID  `json:"coordinator_id" gorm:"not null;index"`
	RegistrationID   *snowflake.ID `json:"registration_id"`
	PaymentReference *string       `json:"payment_reference"`
	SlotsDelta       int           `json:"slots_delta" gorm:"not null"`
	UsageType        UsageType     `json:"usage_type" gorm:"type:text;not null"`
	Notes            string        `json:"notes" gorm:"type:text;not null;default:''"`
	CreatedAt        time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageEntry) TableName() string { return "slot_usage_entries" }
