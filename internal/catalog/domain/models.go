// Package domain contains the purchasable catalog: chapters, slot packages,
// and the routing tokens that tell the payment gateway how to split funds.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Chapter is a regional unit of the examination body. PerSlotAmount is the
// chapter's price per registration slot in minor currency units; nil means
// the configured default applies.
type Chapter struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	Name          string       `json:"name" gorm:"type:text;not null"`
	Code          string       `json:"code" gorm:"type:text;not null;uniqueIndex:ux_chapters_code"`
	PerSlotAmount *int64       `json:"per_slot_amount"`
	IsActive      bool         `json:"is_active" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Chapter) TableName() string { return "chapters" }

// SlotPackage is a purchasable bundle of registration slots. Price is not
// stored; it is derived per chapter at purchase time.
type SlotPackage struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	SlotCount   int          `json:"slot_count" gorm:"not null"`
	Description string       `json:"description" gorm:"type:text;not null;default:''"`
	IsActive    bool         `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SlotPackage) TableName() string { return "slot_packages" }

// ChapterRoutingToken maps a (chapter, package) pair to the gateway split
// identifier funds are routed through. A purchase cannot be initiated
// without an active token.
type ChapterRoutingToken struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ChapterID     snowflake.ID `json:"chapter_id" gorm:"not null;uniqueIndex:ux_chapter_routing_tokens_chapter_package,priority:1"`
	SlotPackageID snowflake.ID `json:"slot_package_id" gorm:"not null;uniqueIndex:ux_chapter_routing_tokens_chapter_package,priority:2"`
	Token         string       `json:"token" gorm:"type:text;not null"`
	IsActive      bool         `json:"is_active" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ChapterRoutingToken) TableName() string { return "chapter_routing_tokens" }
