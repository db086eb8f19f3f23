package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, purchase *Purchase) error
	GetByReference(ctx context.Context, reference string) (*Purchase, error)
	ListByCoordinator(ctx context.Context, coordinatorID snowflake.ID) ([]Purchase, error)
	// MarkCompletedTx moves a purchase to completed inside the caller's
	// transaction. Failed purchases may be recovered this way after a
	// manual re-query; completed is never overwritten. Returns false when
	// nothing was written.
	MarkCompletedTx(ctx context.Context, tx *gorm.DB, reference, gatewayReference string, rawResponse []byte, verifiedAt time.Time) (bool, error)
	// MarkFailed moves a pending purchase to failed. Returns false when
	// the purchase was no longer pending.
	MarkFailed(ctx context.Context, reference string, rawResponse []byte, at time.Time) (bool, error)
	// ListStalePending returns references of purchases still pending since
	// before the cutoff, oldest first, for the reconciliation poller.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}
