package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
	"github.com/chapterhq/examslots/internal/clock"
	obsmetrics "github.com/chapterhq/examslots/internal/observability/metrics"
	"github.com/chapterhq/examslots/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) balancedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("balance.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, coordinatorID snowflake.ID) (*balancedomain.CoordinatorBalance, error) {
	if coordinatorID == 0 {
		return nil, balancedomain.ErrInvalidCoordinator
	}
	return s.loadBalance(ctx, s.db, coordinatorID)
}

func (s *Service) Credit(ctx context.Context, req balancedomain.CreditRequest) (*balancedomain.CreditResult, error) {
	var result *balancedomain.CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.CreditTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreditTx journals the credit and increments the balance inside the
// caller's transaction. The journal insert is the idempotency gate: a
// reference that is already journaled affects zero rows and the balance is
// left untouched, regardless of how many reconciliation calls race here.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req balancedomain.CreditRequest) (*balancedomain.CreditResult, error) {
	if req.CoordinatorID == 0 {
		return nil, balancedomain.ErrInvalidCoordinator
	}
	if req.Slots <= 0 {
		return nil, balancedomain.ErrInvalidSlotAmount
	}
	reference := strings.TrimSpace(req.PaymentReference)
	if reference == "" {
		return nil, balancedomain.ErrInvalidReference
	}

	now := s.clock.Now()
	insert := tx.WithContext(ctx).Exec(
		`INSERT INTO slot_usage_entries (
			id, coordinator_id, payment_reference, slots_delta, usage_type, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_reference) WHERE payment_reference IS NOT NULL DO NOTHING`,
		s.genID.Generate(),
		req.CoordinatorID,
		reference,
		-req.Slots,
		string(balancedomain.UsageTypeAdjustment),
		creditNotes(req),
		now,
	)
	if insert.Error != nil {
		return nil, insert.Error
	}

	if insert.RowsAffected == 0 {
		bal, err := s.loadBalance(ctx, tx, req.CoordinatorID)
		if err != nil {
			return nil, err
		}
		return &balancedomain.CreditResult{Applied: false, Balance: *bal}, nil
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO coordinator_balances (
			coordinator_id, chapter_id, available_slots, used_slots, total_purchased_slots,
			last_purchase_at, created_at, updated_at
		) VALUES (?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT (coordinator_id) DO UPDATE SET
			available_slots = coordinator_balances.available_slots + EXCLUDED.available_slots,
			total_purchased_slots = coordinator_balances.total_purchased_slots + EXCLUDED.total_purchased_slots,
			last_purchase_at = EXCLUDED.last_purchase_at,
			updated_at = EXCLUDED.updated_at`,
		req.CoordinatorID,
		req.ChapterID,
		req.Slots,
		req.Slots,
		now,
		now,
		now,
	).Error; err != nil {
		return nil, err
	}

	bal, err := s.loadBalance(ctx, tx, req.CoordinatorID)
	if err != nil {
		return nil, err
	}

	s.obsMetrics.AddSlotsCredited(req.Slots)
	s.log.Info("credited slots",
		zap.String("coordinator_id", req.CoordinatorID.String()),
		zap.String("payment_reference", reference),
		zap.Int("slots", req.Slots),
		zap.Int("available_slots", bal.AvailableSlots),
	)
	return &balancedomain.CreditResult{Applied: true, Balance: *bal}, nil
}

func (s *Service) CanConsume(ctx context.Context, coordinatorID snowflake.ID, required int) (*balancedomain.Availability, error) {
	if coordinatorID == 0 {
		return nil, balancedomain.ErrInvalidCoordinator
	}
	if required <= 0 {
		required = 1
	}

	bal, err := s.loadBalance(ctx, s.db, coordinatorID)
	if err != nil {
		if errors.Is(err, balancedomain.ErrBalanceNotFound) {
			return &balancedomain.Availability{
				Allowed:        false,
				AvailableSlots: 0,
				Message:        "no slot balance: purchase a slot package before registering students",
			}, nil
		}
		return nil, err
	}

	if bal.AvailableSlots < required {
		return &balancedomain.Availability{
			Allowed:        false,
			AvailableSlots: bal.AvailableSlots,
			Message:        fmt.Sprintf("insufficient slots: %d available, %d required", bal.AvailableSlots, required),
		}, nil
	}

	return &balancedomain.Availability{
		Allowed:        true,
		AvailableSlots: bal.AvailableSlots,
		Message:        fmt.Sprintf("%d slots available", bal.AvailableSlots),
	}, nil
}

func (s *Service) Consume(ctx context.Context, req balancedomain.ConsumeRequest) (*balancedomain.ConsumeResult, error) {
	if req.CoordinatorID == 0 {
		return nil, balancedomain.ErrInvalidCoordinator
	}
	if req.RegistrationID == 0 {
		return nil, balancedomain.ErrInvalidRegistration
	}
	if req.Slots <= 0 {
		return nil, balancedomain.ErrInvalidSlotAmount
	}
	switch req.UsageType {
	case balancedomain.UsageTypeRegistration, balancedomain.UsageTypeBulkRegistration:
	case "":
		req.UsageType = balancedomain.UsageTypeRegistration
	default:
		return nil, balancedomain.ErrInvalidUsageType
	}

	var result *balancedomain.ConsumeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.consumeTx(ctx, tx, req)
		return err
	})
	if err != nil {
		// A concurrent call for the same registration can slip past the
		// pre-check and lose the journal insert race; the unique index
		// turns that into a duplicate-key error, which means the debit
		// was applied exactly once already.
		if db.IsDuplicateKeyErr(err) {
			return s.alreadyConsumed(ctx, req.CoordinatorID)
		}
		// A refusal still reports the current balance so the
		// registration flow can show it alongside the error.
		if errors.Is(err, balancedomain.ErrInsufficientSlots) {
			return result, err
		}
		return nil, err
	}

	if result.Success && !result.AlreadyConsumed {
		s.obsMetrics.AddSlotsConsumed(req.Slots)
	}
	return result, nil
}

func (s *Service) consumeTx(ctx context.Context, tx *gorm.DB, req balancedomain.ConsumeRequest) (*balancedomain.ConsumeResult, error) {
	// A registration is debited once, whether it arrived as a single or a
	// bulk consume. The partial unique index on the journal enforces the
	// same rule for callers racing past this check.
	var existing int64
	if err := tx.WithContext(ctx).
		Table("slot_usage_entries").
		Where("registration_id = ? AND usage_type IN ?", req.RegistrationID, []string{
			string(balancedomain.UsageTypeRegistration),
			string(balancedomain.UsageTypeBulkRegistration),
		}).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		bal, err := s.loadBalance(ctx, tx, req.CoordinatorID)
		if err != nil && !errors.Is(err, balancedomain.ErrBalanceNotFound) {
			return nil, err
		}
		available := 0
		if bal != nil {
			available = bal.AvailableSlots
		}
		return &balancedomain.ConsumeResult{
			Success:         true,
			AlreadyConsumed: true,
			RemainingSlots:  available,
			Message:         "slot already consumed for this registration",
		}, nil
	}

	now := s.clock.Now()
	update := tx.WithContext(ctx).Exec(
		`UPDATE coordinator_balances
		 SET available_slots = available_slots - ?,
		     used_slots = used_slots + ?,
		     last_usage_at = ?,
		     updated_at = ?
		 WHERE coordinator_id = ? AND available_slots >= ?`,
		req.Slots,
		req.Slots,
		now,
		now,
		req.CoordinatorID,
		req.Slots,
	)
	if update.Error != nil {
		return nil, update.Error
	}
	if update.RowsAffected == 0 {
		bal, err := s.loadBalance(ctx, tx, req.CoordinatorID)
		if err != nil && !errors.Is(err, balancedomain.ErrBalanceNotFound) {
			return nil, err
		}
		available := 0
		if bal != nil {
			available = bal.AvailableSlots
		}
		return &balancedomain.ConsumeResult{
			Success:        false,
			RemainingSlots: available,
			Message:        fmt.Sprintf("insufficient slots: %d available, %d required", available, req.Slots),
		}, balancedomain.ErrInsufficientSlots
	}

	registrationID := req.RegistrationID
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO slot_usage_entries (
			id, coordinator_id, registration_id, slots_delta, usage_type, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		req.CoordinatorID,
		registrationID,
		req.Slots,
		string(req.UsageType),
		req.Notes,
		now,
	).Error; err != nil {
		return nil, err
	}

	bal, err := s.loadBalance(ctx, tx, req.CoordinatorID)
	if err != nil {
		return nil, err
	}

	s.log.Info("consumed slots",
		zap.String("coordinator_id", req.CoordinatorID.String()),
		zap.String("registration_id", registrationID.String()),
		zap.Int("slots", req.Slots),
		zap.Int("remaining_slots", bal.AvailableSlots),
	)
	return &balancedomain.ConsumeResult{
		Success:        true,
		RemainingSlots: bal.AvailableSlots,
		Message:        fmt.Sprintf("%d slots remaining", bal.AvailableSlots),
	}, nil
}

func (s *Service) Adjust(ctx context.Context, req balancedomain.AdjustRequest) (*balancedomain.CoordinatorBalance, error) {
	if req.CoordinatorID == 0 {
		return nil, balancedomain.ErrInvalidCoordinator
	}
	if req.Delta == 0 {
		return nil, balancedomain.ErrInvalidSlotAmount
	}

	var bal *balancedomain.CoordinatorBalance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if req.Delta > 0 {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO coordinator_balances (
					coordinator_id, chapter_id, available_slots, used_slots, total_purchased_slots,
					created_at, updated_at
				) VALUES (?, ?, ?, 0, ?, ?, ?)
				ON CONFLICT (coordinator_id) DO UPDATE SET
					available_slots = coordinator_balances.available_slots + EXCLUDED.available_slots,
					total_purchased_slots = coordinator_balances.total_purchased_slots + EXCLUDED.total_purchased_slots,
					updated_at = EXCLUDED.updated_at`,
				req.CoordinatorID,
				req.ChapterID,
				req.Delta,
				req.Delta,
				now,
				now,
			).Error; err != nil {
				return err
			}
		} else {
			revoke := -req.Delta
			update := tx.WithContext(ctx).Exec(
				`UPDATE coordinator_balances
				 SET available_slots = available_slots - ?,
				     total_purchased_slots = total_purchased_slots - ?,
				     updated_at = ?
				 WHERE coordinator_id = ? AND available_slots >= ?`,
				revoke,
				revoke,
				now,
				req.CoordinatorID,
				revoke,
			)
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				return balancedomain.ErrInsufficientSlots
			}
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO slot_usage_entries (
				id, coordinator_id, slots_delta, usage_type, notes, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			req.CoordinatorID,
			-req.Delta,
			string(balancedomain.UsageTypeAdjustment),
			req.Notes,
			now,
		).Error; err != nil {
			return err
		}

		var err error
		bal, err = s.loadBalance(ctx, tx, req.CoordinatorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("adjusted balance",
		zap.String("coordinator_id", req.CoordinatorID.String()),
		zap.Int("delta", req.Delta),
		zap.Int("available_slots", bal.AvailableSlots),
	)
	return bal, nil
}

func (s *Service) ListUsage(ctx context.Context, coordinatorID snowflake.ID, limit int) ([]balancedomain.UsageEntry, error) {
	if coordinatorID == 0 {
		return nil, balancedomain.ErrInvalidCoordinator
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []balancedomain.UsageEntry
	err := s.db.WithContext(ctx).
		Where("coordinator_id = ?", coordinatorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) alreadyConsumed(ctx context.Context, coordinatorID snowflake.ID) (*balancedomain.ConsumeResult, error) {
	bal, err := s.loadBalance(ctx, s.db, coordinatorID)
	if err != nil && !errors.Is(err, balancedomain.ErrBalanceNotFound) {
		return nil, err
	}
	available := 0
	if bal != nil {
		available = bal.AvailableSlots
	}
	return &balancedomain.ConsumeResult{
		Success:         true,
		AlreadyConsumed: true,
		RemainingSlots:  available,
		Message:         "slot already consumed for this registration",
	}, nil
}

func (s *Service) loadBalance(ctx context.Context, tx *gorm.DB, coordinatorID snowflake.ID) (*balancedomain.CoordinatorBalance, error) {
	var bal balancedomain.CoordinatorBalance
	err := tx.WithContext(ctx).First(&bal, "coordinator_id = ?", coordinatorID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, balancedomain.ErrBalanceNotFound
		}
		return nil, err
	}
	return &bal, nil
}

func creditNotes(req balancedomain.CreditRequest) string {
	if req.Notes != "" {
		return req.Notes
	}
	return fmt.Sprintf("purchase credit %s", strings.TrimSpace(req.PaymentReference))
}
