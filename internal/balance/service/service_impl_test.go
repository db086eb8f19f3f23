package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
	"github.com/chapterhq/examslots/internal/clock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ledgerDDL = []string{
	`CREATE TABLE coordinator_balances (
		coordinator_id BIGINT PRIMARY KEY,
		chapter_id BIGINT NOT NULL,
		available_slots INTEGER NOT NULL DEFAULT 0 CHECK (available_slots >= 0),
		used_slots INTEGER NOT NULL DEFAULT 0 CHECK (used_slots >= 0),
		total_purchased_slots INTEGER NOT NULL DEFAULT 0 CHECK (total_purchased_slots >= 0),
		last_purchase_at TIMESTAMP,
		last_usage_at TIMESTAMP,
		archived_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (available_slots + used_slots = total_purchased_slots)
	)`,
	`CREATE TABLE slot_usage_entries (
		id BIGINT PRIMARY KEY,
		coordinator_id BIGINT NOT NULL,
		registration_id BIGINT,
		payment_reference TEXT,
		slots_delta INTEGER NOT NULL,
		usage_type TEXT NOT NULL,
		notes TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_slot_usage_entries_payment_reference
		ON slot_usage_entries (payment_reference)
		WHERE payment_reference IS NOT NULL`,
	`CREATE UNIQUE INDEX ux_slot_usage_entries_registration
		ON slot_usage_entries (registration_id)
		WHERE registration_id IS NOT NULL
		  AND usage_type IN ('registration', 'bulk_registration')`,
}

func setupLedger(t *testing.T) (balancedomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// A single pooled connection keeps every session on the one shared
	// in-memory database and serializes concurrent transactions.
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range ledgerDDL {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, conn, fake
}

func assertInvariant(t *testing.T, conn *gorm.DB, coordinatorID snowflake.ID) {
	t.Helper()
	var bal balancedomain.CoordinatorBalance
	require.NoError(t, conn.First(&bal, "coordinator_id = ?", coordinatorID).Error)
	assert.Equal(t, bal.TotalPurchasedSlots, bal.AvailableSlots+bal.UsedSlots)
}

func TestCreditCreatesBalanceAndJournal(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	result, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            10,
		PaymentReference: "SLOT-AAA",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 10, result.Balance.AvailableSlots)
	assert.Equal(t, 0, result.Balance.UsedSlots)
	assert.Equal(t, 10, result.Balance.TotalPurchasedSlots)

	var entries []balancedomain.UsageEntry
	require.NoError(t, conn.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, -10, entries[0].SlotsDelta)
	require.NotNil(t, entries[0].PaymentReference)
	assert.Equal(t, "SLOT-AAA", *entries[0].PaymentReference)
	assertInvariant(t, conn, coordinatorID)
}

func TestCreditIsIdempotentPerReference(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	req := balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            20,
		PaymentReference: "SLOT-BBB",
	}

	first, err := svc.Credit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := svc.Credit(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, 20, second.Balance.AvailableSlots)

	var count int64
	require.NoError(t, conn.Table("slot_usage_entries").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assertInvariant(t, conn, coordinatorID)
}

func TestCreditAccumulatesAcrossReferences(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()
	chapterID := node.Generate()

	for i, ref := range []string{"SLOT-C1", "SLOT-C2"} {
		_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
			CoordinatorID:    coordinatorID,
			ChapterID:        chapterID,
			Slots:            5 * (i + 1),
			PaymentReference: ref,
		})
		require.NoError(t, err)
	}

	bal, err := svc.GetBalance(context.Background(), coordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 15, bal.AvailableSlots)
	assert.Equal(t, 15, bal.TotalPurchasedSlots)
	assertInvariant(t, conn, coordinatorID)
}

func TestCreditValidation(t *testing.T) {
	svc, _, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    node.Generate(),
		Slots:            0,
		PaymentReference: "SLOT-X",
	})
	assert.ErrorIs(t, err, balancedomain.ErrInvalidSlotAmount)

	_, err = svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID: node.Generate(),
		Slots:         5,
	})
	assert.ErrorIs(t, err, balancedomain.ErrInvalidReference)

	_, err = svc.Credit(context.Background(), balancedomain.CreditRequest{
		Slots:            5,
		PaymentReference: "SLOT-Y",
	})
	assert.ErrorIs(t, err, balancedomain.ErrInvalidCoordinator)
}

func TestConsumeDebitsBalance(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            5,
		PaymentReference: "SLOT-CON",
	})
	require.NoError(t, err)

	result, err := svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID:  coordinatorID,
		RegistrationID: node.Generate(),
		Slots:          1,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyConsumed)
	assert.Equal(t, 4, result.RemainingSlots)

	bal, err := svc.GetBalance(context.Background(), coordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 4, bal.AvailableSlots)
	assert.Equal(t, 1, bal.UsedSlots)
	assert.Equal(t, 5, bal.TotalPurchasedSlots)
	assertInvariant(t, conn, coordinatorID)
}

func TestConsumeIsIdempotentPerRegistration(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()
	registrationID := node.Generate()

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            5,
		PaymentReference: "SLOT-IDEM",
	})
	require.NoError(t, err)

	req := balancedomain.ConsumeRequest{
		CoordinatorID:  coordinatorID,
		RegistrationID: registrationID,
		Slots:          1,
	}

	first, err := svc.Consume(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyConsumed)

	second, err := svc.Consume(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyConsumed)
	assert.Equal(t, 4, second.RemainingSlots)

	bal, err := svc.GetBalance(context.Background(), coordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 1, bal.UsedSlots)
	assertInvariant(t, conn, coordinatorID)
}

func TestConsumeInsufficientSlots(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            2,
		PaymentReference: "SLOT-LOW",
	})
	require.NoError(t, err)

	result, err := svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID:  coordinatorID,
		RegistrationID: node.Generate(),
		Slots:          3,
		UsageType:      balancedomain.UsageTypeBulkRegistration,
	})
	assert.ErrorIs(t, err, balancedomain.ErrInsufficientSlots)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.RemainingSlots)

	// The refusal must leave the counters untouched.
	bal, err := svc.GetBalance(context.Background(), coordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 2, bal.AvailableSlots)
	assert.Equal(t, 0, bal.UsedSlots)
	assertInvariant(t, conn, coordinatorID)
}

func TestConsumeWithoutBalance(t *testing.T) {
	svc, _, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)

	result, err := svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID:  node.Generate(),
		RegistrationID: node.Generate(),
		Slots:          1,
	})
	assert.ErrorIs(t, err, balancedomain.ErrInsufficientSlots)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.RemainingSlots)
}

func TestConsumeConcurrentLastSlot(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            1,
		PaymentReference: "SLOT-RACE",
	})
	require.NoError(t, err)

	type outcome struct {
		result *balancedomain.ConsumeResult
		err    error
	}

	outcomes := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		registrationID := node.Generate()
		go func() {
			defer wg.Done()
			result, err := svc.Consume(context.Background(), balancedomain.ConsumeRequest{
				CoordinatorID:  coordinatorID,
				RegistrationID: registrationID,
				Slots:          1,
			})
			outcomes <- outcome{result, err}
		}()
	}
	wg.Wait()
	close(outcomes)

	var wins, refusals int
	for o := range outcomes {
		switch {
		case o.err == nil:
			require.NotNil(t, o.result)
			assert.True(t, o.result.Success)
			wins++
		default:
			assert.ErrorIs(t, o.err, balancedomain.ErrInsufficientSlots)
			require.NotNil(t, o.result)
			assert.False(t, o.result.Success)
			assert.Equal(t, 0, o.result.RemainingSlots)
			refusals++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, refusals)

	bal, err := svc.GetBalance(context.Background(), coordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.AvailableSlots)
	assert.Equal(t, 1, bal.UsedSlots)
	assert.Equal(t, 1, bal.TotalPurchasedSlots)

	var debits int64
	require.NoError(t, conn.Table("slot_usage_entries").
		Where("usage_type = ?", string(balancedomain.UsageTypeRegistration)).
		Count(&debits).Error)
	assert.Equal(t, int64(1), debits)
	assertInvariant(t, conn, coordinatorID)
}

func TestConsumeBulkRetryIsIdempotent(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()
	registrationID := node.Generate()

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            10,
		PaymentReference: "SLOT-BULK",
	})
	require.NoError(t, err)

	req := balancedomain.ConsumeRequest{
		CoordinatorID:  coordinatorID,
		RegistrationID: registrationID,
		Slots:          3,
		UsageType:      balancedomain.UsageTypeBulkRegistration,
	}

	first, err := svc.Consume(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyConsumed)
	assert.Equal(t, 7, first.RemainingSlots)

	// A retry of the same registration is a no-op regardless of usage type.
	second, err := svc.Consume(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyConsumed)
	assert.Equal(t, 7, second.RemainingSlots)

	single, err := svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID:  coordinatorID,
		RegistrationID: registrationID,
		Slots:          1,
	})
	require.NoError(t, err)
	assert.True(t, single.AlreadyConsumed)
	assert.Equal(t, 7, single.RemainingSlots)

	bal, err := svc.GetBalance(context.Background(), coordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 3, bal.UsedSlots)
	assertInvariant(t, conn, coordinatorID)
}

func TestConsumeValidation(t *testing.T) {
	svc, _, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)

	_, err := svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		RegistrationID: node.Generate(),
		Slots:          1,
	})
	assert.ErrorIs(t, err, balancedomain.ErrInvalidCoordinator)

	_, err = svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID: node.Generate(),
		Slots:         1,
	})
	assert.ErrorIs(t, err, balancedomain.ErrInvalidRegistration)

	_, err = svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID:  node.Generate(),
		RegistrationID: node.Generate(),
		Slots:          1,
		UsageType:      "refund",
	})
	assert.ErrorIs(t, err, balancedomain.ErrInvalidUsageType)
}

func TestCanConsume(t *testing.T) {
	svc, _, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	availability, err := svc.CanConsume(context.Background(), coordinatorID, 1)
	require.NoError(t, err)
	assert.False(t, availability.Allowed)
	assert.Equal(t, 0, availability.AvailableSlots)

	_, err = svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            3,
		PaymentReference: "SLOT-AVAIL",
	})
	require.NoError(t, err)

	availability, err = svc.CanConsume(context.Background(), coordinatorID, 2)
	require.NoError(t, err)
	assert.True(t, availability.Allowed)
	assert.Equal(t, 3, availability.AvailableSlots)

	availability, err = svc.CanConsume(context.Background(), coordinatorID, 4)
	require.NoError(t, err)
	assert.False(t, availability.Allowed)
}

func TestAdjustGrantAndRevoke(t *testing.T) {
	svc, conn, _ := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()
	chapterID := node.Generate()

	bal, err := svc.Adjust(context.Background(), balancedomain.AdjustRequest{
		CoordinatorID: coordinatorID,
		ChapterID:     chapterID,
		Delta:         8,
		Notes:         "goodwill grant",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, bal.AvailableSlots)

	bal, err = svc.Adjust(context.Background(), balancedomain.AdjustRequest{
		CoordinatorID: coordinatorID,
		ChapterID:     chapterID,
		Delta:         -3,
		Notes:         "correction",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, bal.AvailableSlots)
	assert.Equal(t, 5, bal.TotalPurchasedSlots)
	assertInvariant(t, conn, coordinatorID)

	_, err = svc.Adjust(context.Background(), balancedomain.AdjustRequest{
		CoordinatorID: coordinatorID,
		ChapterID:     chapterID,
		Delta:         -10,
	})
	assert.ErrorIs(t, err, balancedomain.ErrInsufficientSlots)
}

func TestListUsageNewestFirst(t *testing.T) {
	svc, _, fake := setupLedger(t)
	node, _ := snowflake.NewNode(2)
	coordinatorID := node.Generate()

	_, err := svc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    coordinatorID,
		ChapterID:        node.Generate(),
		Slots:            5,
		PaymentReference: "SLOT-LIST",
	})
	require.NoError(t, err)

	fake.Advance(time.Minute)
	_, err = svc.Consume(context.Background(), balancedomain.ConsumeRequest{
		CoordinatorID:  coordinatorID,
		RegistrationID: node.Generate(),
		Slots:          1,
	})
	require.NoError(t, err)

	entries, err := svc.ListUsage(context.Background(), coordinatorID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, balancedomain.UsageTypeRegistration, entries[0].UsageType)
	assert.Equal(t, 1, entries[0].SlotsDelta)
	assert.Equal(t, -5, entries[1].SlotsDelta)
}
