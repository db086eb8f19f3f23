package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
	balanceservice "github.com/chapterhq/examslots/internal/balance/service"
	"github.com/chapterhq/examslots/internal/clock"
	gatewaydomain "github.com/chapterhq/examslots/internal/gateway/domain"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	purchaserepository "github.com/chapterhq/examslots/internal/purchase/repository"
	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) Provider() string { return "mock" }

func (m *gatewayMock) Initialize(ctx context.Context, req gatewaydomain.InitializeRequest) (*gatewaydomain.InitializeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gatewaydomain.InitializeResponse), args.Error(1)
}

func (m *gatewayMock) Verify(ctx context.Context, reference string) (*gatewaydomain.VerifyResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gatewaydomain.VerifyResult), args.Error(1)
}

func (m *gatewayMock) ValidateWebhookSignature(payload []byte, signature string) bool {
	args := m.Called(payload, signature)
	return args.Bool(0)
}

var reconcileDDL = []string{
	`CREATE TABLE purchases (
		id BIGINT PRIMARY KEY,
		coordinator_id BIGINT NOT NULL,
		chapter_id BIGINT NOT NULL,
		slot_package_id BIGINT NOT NULL,
		slots_purchased INTEGER NOT NULL,
		amount_paid BIGINT NOT NULL,
		payment_reference TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		gateway_reference TEXT,
		raw_response TEXT,
		purchase_date TIMESTAMP NOT NULL,
		verified_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_purchases_payment_reference ON purchases (payment_reference)`,
	`CREATE TABLE coordinator_balances (
		coordinator_id BIGINT PRIMARY KEY,
		chapter_id BIGINT NOT NULL,
		available_slots INTEGER NOT NULL DEFAULT 0,
		used_slots INTEGER NOT NULL DEFAULT 0,
		total_purchased_slots INTEGER NOT NULL DEFAULT 0,
		last_purchase_at TIMESTAMP,
		last_usage_at TIMESTAMP,
		archived_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
}

type reconcileFixture struct {
	svc        reconciledomain.Service
	conn       *gorm.DB
	gateway    *gatewayMock
	balanceSvc balancedomain.Service
	node       *snowflake.Node
}

func setupReconcile(t *testing.T) *reconcileFixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// A single pooled connection keeps every session on the one shared
	// in-memory database and serializes concurrent transactions.
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range reconcileDDL {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	balanceSvc := balanceservice.NewService(balanceservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	gateway := new(gatewayMock)
	svc := NewService(Params{
		DB:           conn,
		Log:          zap.NewNop(),
		Clock:        fake,
		PurchaseRepo: purchaserepository.Provide(conn),
		BalanceSvc:   balanceSvc,
		Gateway:      gateway,
	})

	return &reconcileFixture{
		svc:        svc,
		conn:       conn,
		gateway:    gateway,
		balanceSvc: balanceSvc,
		node:       node,
	}
}

func (f *reconcileFixture) insertPurchase(t *testing.T, status purchasedomain.PaymentStatus, slots int, amount int64) *purchasedomain.Purchase {
	t.Helper()
	purchase := &purchasedomain.Purchase{
		ID:               f.node.Generate(),
		CoordinatorID:    f.node.Generate(),
		ChapterID:        f.node.Generate(),
		SlotPackageID:    f.node.Generate(),
		SlotsPurchased:   slots,
		AmountPaid:       amount,
		PaymentReference: "SLOT-" + f.node.Generate().String(),
		PaymentStatus:    status,
		PurchaseDate:     time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.conn.Create(purchase).Error)
	return purchase
}

func (f *reconcileFixture) purchaseStatus(t *testing.T, reference string) purchasedomain.PaymentStatus {
	t.Helper()
	var purchase purchasedomain.Purchase
	require.NoError(t, f.conn.First(&purchase, "payment_reference = ?", reference).Error)
	return purchase.PaymentStatus
}

func TestReconcileCreditsVerifiedPurchase(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 10, 2500000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:           gatewaydomain.VerifyStatusSuccess,
		AmountPaid:       2500000,
		GatewayReference: "PSK-123",
		RawResponse:      []byte(`{"status":"success"}`),
	}, nil)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.True(t, result.Credited)
	assert.Equal(t, 10, result.SlotsCredited)
	assert.Equal(t, 10, result.AvailableSlots)

	assert.Equal(t, purchasedomain.PaymentStatusCompleted, f.purchaseStatus(t, purchase.PaymentReference))

	bal, err := f.balanceSvc.GetBalance(context.Background(), purchase.CoordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 10, bal.AvailableSlots)
}

func TestReconcileRepeatIsNoop(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 5, 1250000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:     gatewaydomain.VerifyStatusSuccess,
		AmountPaid: 1250000,
	}, nil)

	first, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.True(t, first.Credited)

	second, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.False(t, second.Credited)
	assert.Equal(t, reconciledomain.ReasonAlreadyCompleted, second.Reason)

	bal, err := f.balanceSvc.GetBalance(context.Background(), purchase.CoordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 5, bal.AvailableSlots)

	// The completed check short-circuits, so Verify ran exactly once.
	f.gateway.AssertNumberOfCalls(t, "Verify", 1)
}

func TestReconcileConcurrentCallsCreditOnce(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 5, 1250000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:     gatewaydomain.VerifyStatusSuccess,
		AmountPaid: 1250000,
	}, nil)

	type outcome struct {
		result *reconciledomain.Result
		err    error
	}

	outcomes := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
			outcomes <- outcome{result, err}
		}()
	}
	wg.Wait()
	close(outcomes)

	var credited, repeats int
	for o := range outcomes {
		require.NoError(t, o.err)
		require.NotNil(t, o.result)
		if o.result.Credited {
			credited++
			continue
		}
		assert.Equal(t, reconciledomain.ReasonAlreadyCompleted, o.result.Reason)
		repeats++
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, 1, repeats)

	bal, err := f.balanceSvc.GetBalance(context.Background(), purchase.CoordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 5, bal.AvailableSlots)
	assert.Equal(t, 5, bal.TotalPurchasedSlots)

	var credits int64
	require.NoError(t, f.conn.Table("slot_usage_entries").
		Where("payment_reference = ?", purchase.PaymentReference).
		Count(&credits).Error)
	assert.Equal(t, int64(1), credits)

	assert.Equal(t, purchasedomain.PaymentStatusCompleted, f.purchaseStatus(t, purchase.PaymentReference))
}

func TestReconcileJournaledReferenceIsNotRecredited(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 5, 1250000)

	// A racing caller already journaled the credit but the purchase row
	// transition was not observed yet; the journal gate must hold.
	_, err := f.balanceSvc.Credit(context.Background(), balancedomain.CreditRequest{
		CoordinatorID:    purchase.CoordinatorID,
		ChapterID:        purchase.ChapterID,
		Slots:            5,
		PaymentReference: purchase.PaymentReference,
	})
	require.NoError(t, err)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:     gatewaydomain.VerifyStatusSuccess,
		AmountPaid: 1250000,
	}, nil)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Equal(t, reconciledomain.ReasonAlreadyCompleted, result.Reason)

	bal, err := f.balanceSvc.GetBalance(context.Background(), purchase.CoordinatorID)
	require.NoError(t, err)
	assert.Equal(t, 5, bal.AvailableSlots)

	// The purchase row still completes even though the credit was a repeat.
	assert.Equal(t, purchasedomain.PaymentStatusCompleted, f.purchaseStatus(t, purchase.PaymentReference))
}

func TestReconcileUnknownReference(t *testing.T) {
	f := setupReconcile(t)

	_, err := f.svc.Reconcile(context.Background(), "SLOT-NEVER-ISSUED")
	assert.ErrorIs(t, err, purchasedomain.ErrUnknownReference)
}

func TestReconcileVerificationUnavailable(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 10, 2500000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(nil, gatewaydomain.ErrVerifyUnavailable)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Equal(t, reconciledomain.ReasonVerificationFailed, result.Reason)

	// Inconclusive answers leave the purchase pending for the next sweep.
	assert.Equal(t, purchasedomain.PaymentStatusPending, f.purchaseStatus(t, purchase.PaymentReference))
}

func TestReconcileAmountMismatch(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 10, 2500000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:     gatewaydomain.VerifyStatusSuccess,
		AmountPaid: 1,
	}, nil)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Equal(t, reconciledomain.ReasonVerificationFailed, result.Reason)
	assert.Equal(t, purchasedomain.PaymentStatusPending, f.purchaseStatus(t, purchase.PaymentReference))

	_, err = f.balanceSvc.GetBalance(context.Background(), purchase.CoordinatorID)
	assert.ErrorIs(t, err, balancedomain.ErrBalanceNotFound)
}

func TestReconcileGatewayRejected(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 10, 2500000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:      gatewaydomain.VerifyStatusFailed,
		RawResponse: []byte(`{"status":"failed"}`),
	}, nil)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Equal(t, reconciledomain.ReasonGatewayRejected, result.Reason)
	assert.Equal(t, purchasedomain.PaymentStatusFailed, f.purchaseStatus(t, purchase.PaymentReference))
}

func TestReconcileNotYetSuccessful(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 10, 2500000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status: gatewaydomain.VerifyStatusPending,
	}, nil)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Equal(t, reconciledomain.ReasonNotYetSuccessful, result.Reason)
	assert.Equal(t, purchasedomain.PaymentStatusPending, f.purchaseStatus(t, purchase.PaymentReference))
}

func TestReconcileRecoversFailedPurchase(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusFailed, 10, 2500000)

	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:     gatewaydomain.VerifyStatusSuccess,
		AmountPaid: 2500000,
	}, nil)

	result, err := f.svc.Reconcile(context.Background(), purchase.PaymentReference)
	require.NoError(t, err)
	assert.True(t, result.Credited)
	assert.Equal(t, purchasedomain.PaymentStatusCompleted, f.purchaseStatus(t, purchase.PaymentReference))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := setupReconcile(t)
	payload := []byte(`{"event":"charge.success","data":{"reference":"SLOT-1"}}`)

	f.gateway.On("ValidateWebhookSignature", payload, "bogus").Return(false)

	_, err := f.svc.HandleWebhook(context.Background(), payload, "bogus")
	assert.ErrorIs(t, err, reconciledomain.ErrInvalidSignature)
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	f := setupReconcile(t)
	payload := []byte(`{not json`)

	f.gateway.On("ValidateWebhookSignature", payload, "sig").Return(true)

	_, err := f.svc.HandleWebhook(context.Background(), payload, "sig")
	assert.ErrorIs(t, err, reconciledomain.ErrInvalidPayload)
}

func TestHandleWebhookIgnoresEventsWithoutReference(t *testing.T) {
	f := setupReconcile(t)
	payload := []byte(`{"event":"transfer.success","data":{}}`)

	f.gateway.On("ValidateWebhookSignature", payload, "sig").Return(true)

	_, err := f.svc.HandleWebhook(context.Background(), payload, "sig")
	assert.ErrorIs(t, err, reconciledomain.ErrEventIgnored)
}

func TestHandleWebhookVerifiesBeforeCrediting(t *testing.T) {
	f := setupReconcile(t)
	purchase := f.insertPurchase(t, purchasedomain.PaymentStatusPending, 20, 5000000)
	payload := []byte(`{"event":"charge.success","data":{"reference":"` + purchase.PaymentReference + `"}}`)

	f.gateway.On("ValidateWebhookSignature", payload, "sig").Return(true)
	f.gateway.On("Verify", mock.Anything, purchase.PaymentReference).Return(&gatewaydomain.VerifyResult{
		Status:     gatewaydomain.VerifyStatusSuccess,
		AmountPaid: 5000000,
	}, nil)

	result, err := f.svc.HandleWebhook(context.Background(), payload, "sig")
	require.NoError(t, err)
	assert.True(t, result.Credited)

	// The event body is never trusted: crediting went through Verify.
	f.gateway.AssertCalled(t, "Verify", mock.Anything, purchase.PaymentReference)
}
