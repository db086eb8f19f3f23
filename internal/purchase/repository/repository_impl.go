package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) purchasedomain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, purchase *purchasedomain.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repo) GetByReference(ctx context.Context, reference string) (*purchasedomain.Purchase, error) {
	var purchase purchasedomain.Purchase
	err := r.db.WithContext(ctx).First(&purchase, "payment_reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchasedomain.ErrUnknownReference
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repo) ListByCoordinator(ctx context.Context, coordinatorID snowflake.ID) ([]purchasedomain.Purchase, error) {
	var purchases []purchasedomain.Purchase
	err := r.db.WithContext(ctx).
		Where("coordinator_id = ?", coordinatorID).
		Order("purchase_date DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *repo) MarkCompletedTx(ctx context.Context, tx *gorm.DB, reference, gatewayReference string, rawResponse []byte, verifiedAt time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET payment_status = ?,
		     gateway_reference = ?,
		     raw_response = ?,
		     verified_at = ?,
		     updated_at = ?
		 WHERE payment_reference = ? AND payment_status <> ?`,
		string(purchasedomain.PaymentStatusCompleted),
		gatewayReference,
		rawResponse,
		verifiedAt,
		verifiedAt,
		reference,
		string(purchasedomain.PaymentStatusCompleted),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, reference string, rawResponse []byte, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET payment_status = ?,
		     raw_response = ?,
		     updated_at = ?
		 WHERE payment_reference = ? AND payment_status = ?`,
		string(purchasedomain.PaymentStatusFailed),
		rawResponse,
		at,
		reference,
		string(purchasedomain.PaymentStatusPending),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var references []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT payment_reference
		 FROM purchases
		 WHERE payment_status = ? AND purchase_date < ?
		 ORDER BY purchase_date ASC
		 LIMIT ?`,
		string(purchasedomain.PaymentStatusPending),
		cutoff,
		limit,
	).Scan(&references).Error
	if err != nil {
		return nil, err
	}
	return references, nil
}
