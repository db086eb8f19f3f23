package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreditRequest adds purchased slots to a coordinator's balance, exactly
// once per payment reference.
type CreditRequest struct {
	CoordinatorID    snowflake.ID
	ChapterID        snowflake.ID
	Slots            int
	PaymentReference string
	Notes            string
}

// CreditResult reports whether the credit was applied by this call. Applied
// is false when the reference was already journaled; the balance returned is
// current either way.
type CreditResult struct {
	Applied bool
	Balance CoordinatorBalance
}

// ConsumeRequest debits slots for a registration, exactly once per
// registration identity.
type ConsumeRequest struct {
	CoordinatorID  snowflake.ID
	RegistrationID snowflake.ID
	Slots          int
	UsageType      UsageType
	Notes          string
}

type ConsumeResult struct {
	Success         bool   `json:"success"`
	AlreadyConsumed bool   `json:"already_consumed"`
	RemainingSlots  int    `json:"remaining_slots"`
	Message         string `json:"message"`
}

// Availability is the read-only pre-check used by the registration workflow.
type Availability struct {
	Allowed        bool   `json:"allowed"`
	AvailableSlots int    `json:"available_slots"`
	Message        string `json:"message"`
}

// AdjustRequest applies an operator correction. Positive Delta grants slots,
// negative Delta revokes unused slots.
type AdjustRequest struct {
	CoordinatorID snowflake.ID
	ChapterID     snowflake.ID
	Delta         int
	Notes         string
}

type Service interface {
	GetBalance(ctx context.Context, coordinatorID snowflake.ID) (*CoordinatorBalance, error)
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)
	// CreditTx applies the credit inside the caller's transaction so the
	// reconciler can commit the journal row, the balance mutation, and the
	// purchase transition as one unit.
	CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) (*CreditResult, error)
	CanConsume(ctx context.Context, coordinatorID snowflake.ID, required int) (*Availability, error)
	Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error)
	Adjust(ctx context.Context, req AdjustRequest) (*CoordinatorBalance, error)
	ListUsage(ctx context.Context, coordinatorID snowflake.ID, limit int) ([]UsageEntry, error)
}

var (
	ErrBalanceNotFound     = errors.New("balance_not_found")
	ErrInsufficientSlots   = errors.New("insufficient_slots")
	ErrInvalidSlotAmount   = errors.New("invalid_slot_amount")
	ErrInvalidUsageType    = errors.New("invalid_usage_type")
	ErrInvalidReference    = errors.New("invalid_payment_reference")
	ErrInvalidRegistration = errors.New("invalid_registration")
	ErrInvalidCoordinator  = errors.New("invalid_coordinator")
)
