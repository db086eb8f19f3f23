package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
	"github.com/chapterhq/examslots/internal/clock"
	gatewaydomain "github.com/chapterhq/examslots/internal/gateway/domain"
	obsmetrics "github.com/chapterhq/examslots/internal/observability/metrics"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	PurchaseRepo purchasedomain.Repository
	BalanceSvc   balancedomain.Service
	Gateway      gatewaydomain.Adapter
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	purchaseRepo purchasedomain.Repository
	balanceSvc   balancedomain.Service
	gateway      gatewaydomain.Adapter
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) reconciledomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("reconcile.service"),
		clock:        p.Clock,
		purchaseRepo: p.PurchaseRepo,
		balanceSvc:   p.BalanceSvc,
		gateway:      p.Gateway,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) Reconcile(ctx context.Context, reference string) (*reconciledomain.Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, purchasedomain.ErrUnknownReference
	}

	purchase, err := s.purchaseRepo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, purchasedomain.ErrUnknownReference) {
			s.log.Warn("reconcile called for unknown reference",
				zap.String("payment_reference", reference),
			)
			s.obsMetrics.IncReconcileOutcome("unknown_reference")
		}
		return nil, err
	}

	// Primary idempotency gate: a completed purchase is done, no matter
	// how many webhooks or polls arrive after the fact.
	if purchase.PaymentStatus == purchasedomain.PaymentStatusCompleted {
		s.obsMetrics.IncReconcileOutcome("already_completed")
		return &reconciledomain.Result{
			Credited:         false,
			Reason:           reconciledomain.ReasonAlreadyCompleted,
			PaymentReference: reference,
			Message:          "purchase already completed",
		}, nil
	}

	verify, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		// Inconclusive: the purchase stays as it is, a later poll can
		// retry. Only an authoritative gateway answer moves it.
		s.log.Warn("gateway verification unavailable",
			zap.String("payment_reference", reference),
			zap.Error(err),
		)
		s.obsMetrics.IncReconcileOutcome("verification_failed")
		return &reconciledomain.Result{
			Credited:         false,
			Reason:           reconciledomain.ReasonVerificationFailed,
			PaymentReference: reference,
			Message:          "payment verification unavailable, still processing",
		}, nil
	}

	switch verify.Status {
	case gatewaydomain.VerifyStatusSuccess:
	case gatewaydomain.VerifyStatusFailed:
		return s.markRejected(ctx, reference, verify)
	default:
		s.obsMetrics.IncReconcileOutcome("not_yet_successful")
		return &reconciledomain.Result{
			Credited:         false,
			Reason:           reconciledomain.ReasonNotYetSuccessful,
			PaymentReference: reference,
			Message:          "payment not yet successful at the gateway",
		}, nil
	}

	if verify.AmountPaid != purchase.AmountPaid {
		s.log.Warn("gateway amount does not match purchase",
			zap.String("payment_reference", reference),
			zap.Int64("expected_amount", purchase.AmountPaid),
			zap.Int64("gateway_amount", verify.AmountPaid),
		)
		s.obsMetrics.IncReconcileOutcome("verification_failed")
		return &reconciledomain.Result{
			Credited:         false,
			Reason:           reconciledomain.ReasonVerificationFailed,
			PaymentReference: reference,
			Message:          "gateway amount does not match the recorded purchase",
		}, nil
	}

	// Credit step: journal row, balance increment, and purchase transition
	// commit together or not at all. The journal's unique reference index
	// is the second idempotency gate for callers racing past the status
	// check above.
	var creditResult *balancedomain.CreditResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		creditResult, txErr = s.balanceSvc.CreditTx(ctx, tx, balancedomain.CreditRequest{
			CoordinatorID:    purchase.CoordinatorID,
			ChapterID:        purchase.ChapterID,
			Slots:            purchase.SlotsPurchased,
			PaymentReference: reference,
		})
		if txErr != nil {
			return txErr
		}

		_, txErr = s.purchaseRepo.MarkCompletedTx(ctx, tx, reference, verify.GatewayReference, verify.RawResponse, s.clock.Now())
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if !creditResult.Applied {
		s.obsMetrics.IncReconcileOutcome("already_completed")
		return &reconciledomain.Result{
			Credited:         false,
			Reason:           reconciledomain.ReasonAlreadyCompleted,
			PaymentReference: reference,
			AvailableSlots:   creditResult.Balance.AvailableSlots,
			Message:          "credit already applied for this reference",
		}, nil
	}

	s.obsMetrics.IncReconcileOutcome("credited")
	s.log.Info("reconciled purchase",
		zap.String("payment_reference", reference),
		zap.String("coordinator_id", purchase.CoordinatorID.String()),
		zap.Int("slots_credited", purchase.SlotsPurchased),
	)
	return &reconciledomain.Result{
		Credited:         true,
		PaymentReference: reference,
		SlotsCredited:    purchase.SlotsPurchased,
		AvailableSlots:   creditResult.Balance.AvailableSlots,
		Message:          fmt.Sprintf("%d slots credited", purchase.SlotsPurchased),
	}, nil
}

func (s *Service) markRejected(ctx context.Context, reference string, verify *gatewaydomain.VerifyResult) (*reconciledomain.Result, error) {
	if _, err := s.purchaseRepo.MarkFailed(ctx, reference, verify.RawResponse, s.clock.Now()); err != nil {
		return nil, err
	}

	s.obsMetrics.IncReconcileOutcome("gateway_rejected")
	s.log.Info("purchase rejected by gateway",
		zap.String("payment_reference", reference),
	)
	return &reconciledomain.Result{
		Credited:         false,
		Reason:           reconciledomain.ReasonGatewayRejected,
		PaymentReference: reference,
		Message:          "payment was declined by the gateway; initiate a new purchase",
	}, nil
}

// webhookEvent is the provider-agnostic shape of inbound callbacks: an event
// name plus the transaction reference. Everything else in the payload is
// ignored; truth comes from Verify.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*reconciledomain.Result, error) {
	if !s.gateway.ValidateWebhookSignature(payload, signature) {
		s.obsMetrics.IncWebhookEvent("invalid_signature")
		return nil, reconciledomain.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.obsMetrics.IncWebhookEvent("invalid_payload")
		return nil, reconciledomain.ErrInvalidPayload
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		s.obsMetrics.IncWebhookEvent("ignored")
		return nil, reconciledomain.ErrEventIgnored
	}

	s.obsMetrics.IncWebhookEvent("accepted")
	s.log.Info("payment webhook accepted",
		zap.String("event", event.Event),
		zap.String("payment_reference", reference),
	)
	return s.Reconcile(ctx, reference)
}
