package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type InitiatePurchaseRequest struct {
	CoordinatorID snowflake.ID `json:"coordinator_id"`
	ChapterID     snowflake.ID `json:"chapter_id"`
	SlotPackageID snowflake.ID `json:"slot_package_id"`
}

type InitiatePurchaseResponse struct {
	RedirectURL      string   `json:"redirect_url"`
	PaymentReference string   `json:"payment_reference"`
	Purchase         Purchase `json:"purchase"`
}

type Service interface {
	InitiatePurchase(ctx context.Context, req InitiatePurchaseRequest) (*InitiatePurchaseResponse, error)
	ListPurchases(ctx context.Context, coordinatorID snowflake.ID) ([]Purchase, error)
	GetByReference(ctx context.Context, reference string) (*Purchase, error)
}

var (
	// ErrUnknownReference marks a reconciliation attempt for a purchase
	// this system never created. Logged as suspicious, never credited.
	ErrUnknownReference = errors.New("unknown_payment_reference")
)
