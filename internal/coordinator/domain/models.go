// Package domain holds the coordinator directory read model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Coordinator is a chapter-level actor who pre-purchases slots and registers
// students against their balance.
type Coordinator struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ChapterID snowflake.ID `json:"chapter_id" gorm:"not null;index"`
	FullName  string       `json:"full_name" gorm:"type:text;not null"`
	Email     string       `json:"email" gorm:"type:text;not null;uniqueIndex:ux_coordinators_email"`
	IsActive  bool         `json:"is_active" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Coordinator) TableName() string { return "coordinators" }

type Repository interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Coordinator, error)
}

var (
	ErrCoordinatorNotFound = errors.New("coordinator_not_found")
	ErrCoordinatorInactive = errors.New("coordinator_inactive")
	ErrChapterMismatch     = errors.New("coordinator_chapter_mismatch")
)
