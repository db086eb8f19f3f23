package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/chapterhq/examslots/internal/catalog/domain"
	"github.com/chapterhq/examslots/internal/clock"
	coordinatordomain "github.com/chapterhq/examslots/internal/coordinator/domain"
	gatewaydomain "github.com/chapterhq/examslots/internal/gateway/domain"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            purchasedomain.Repository
	CoordinatorRepo coordinatordomain.Repository
	CatalogSvc      catalogdomain.Service
	Gateway         gatewaydomain.Adapter
}

type Service struct {
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            purchasedomain.Repository
	coordinatorRepo coordinatordomain.Repository
	catalogSvc      catalogdomain.Service
	gateway         gatewaydomain.Adapter
}

func NewService(p Params) purchasedomain.Service {
	return &Service{
		log:             p.Log.Named("purchase.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		coordinatorRepo: p.CoordinatorRepo,
		catalogSvc:      p.CatalogSvc,
		gateway:         p.Gateway,
	}
}

func (s *Service) InitiatePurchase(ctx context.Context, req purchasedomain.InitiatePurchaseRequest) (*purchasedomain.InitiatePurchaseResponse, error) {
	coordinator, err := s.coordinatorRepo.GetByID(ctx, req.CoordinatorID)
	if err != nil {
		return nil, err
	}
	if !coordinator.IsActive {
		return nil, coordinatordomain.ErrCoordinatorInactive
	}
	if coordinator.ChapterID != req.ChapterID {
		return nil, coordinatordomain.ErrChapterMismatch
	}

	pricing, err := s.catalogSvc.ResolvePricing(ctx, req.ChapterID, req.SlotPackageID)
	if err != nil {
		return nil, err
	}

	// The pending row is written before the gateway sees the reference so
	// a gateway-side success can never arrive for a reference with no
	// local record.
	purchase := &purchasedomain.Purchase{
		ID:               s.genID.Generate(),
		CoordinatorID:    coordinator.ID,
		ChapterID:        req.ChapterID,
		SlotPackageID:    pricing.Package.ID,
		SlotsPurchased:   pricing.Package.SlotCount,
		AmountPaid:       pricing.Price,
		PaymentReference: newPaymentReference(),
		PaymentStatus:    purchasedomain.PaymentStatusPending,
		PurchaseDate:     s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, purchase); err != nil {
		return nil, err
	}

	initResp, err := s.gateway.Initialize(ctx, gatewaydomain.InitializeRequest{
		Amount:       pricing.Price,
		Reference:    purchase.PaymentReference,
		Email:        coordinator.Email,
		RoutingToken: pricing.RoutingToken,
		Metadata: map[string]any{
			"coordinator_id":  coordinator.ID.String(),
			"chapter_id":      req.ChapterID.String(),
			"slot_package_id": pricing.Package.ID.String(),
			"slots":           pricing.Package.SlotCount,
		},
	})
	if err != nil {
		// The reference never reached checkout; close it out so the
		// poller does not keep re-verifying a purchase nobody can pay.
		if _, markErr := s.repo.MarkFailed(ctx, purchase.PaymentReference, nil, s.clock.Now()); markErr != nil {
			s.log.Error("failed to mark unreachable purchase failed",
				zap.String("payment_reference", purchase.PaymentReference),
				zap.Error(markErr),
			)
		}
		return nil, err
	}

	s.log.Info("initiated slot purchase",
		zap.String("coordinator_id", coordinator.ID.String()),
		zap.String("payment_reference", purchase.PaymentReference),
		zap.Int("slots", purchase.SlotsPurchased),
		zap.Int64("amount", purchase.AmountPaid),
	)
	return &purchasedomain.InitiatePurchaseResponse{
		RedirectURL:      initResp.RedirectURL,
		PaymentReference: purchase.PaymentReference,
		Purchase:         *purchase,
	}, nil
}

func (s *Service) ListPurchases(ctx context.Context, coordinatorID snowflake.ID) ([]purchasedomain.Purchase, error) {
	if coordinatorID == 0 {
		return nil, coordinatordomain.ErrCoordinatorNotFound
	}
	return s.repo.ListByCoordinator(ctx, coordinatorID)
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*purchasedomain.Purchase, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, purchasedomain.ErrUnknownReference
	}
	return s.repo.GetByReference(ctx, reference)
}

func newPaymentReference() string {
	return fmt.Sprintf("SLOT-%s", strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")))
}
