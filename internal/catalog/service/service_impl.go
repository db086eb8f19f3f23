package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/chapterhq/examslots/internal/catalog/domain"
	"github.com/chapterhq/examslots/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo catalogdomain.Repository
	Cfg  config.Config
}

type Service struct {
	log               *zap.Logger
	repo              catalogdomain.Repository
	defaultSlotAmount int64
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		log:               p.Log.Named("catalog.service"),
		repo:              p.Repo,
		defaultSlotAmount: p.Cfg.DefaultPerSlotAmount,
	}
}

func (s *Service) ListActivePackagesForChapter(ctx context.Context, chapterID snowflake.ID) ([]catalogdomain.PackageOffer, error) {
	chapter, err := s.repo.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !chapter.IsActive {
		return nil, catalogdomain.ErrChapterInactive
	}

	perSlot := s.perSlotAmount(chapter)

	rows, err := s.repo.ListActivePackagesWithTokens(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	offers := make([]catalogdomain.PackageOffer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, catalogdomain.PackageOffer{
			ID:           row.ID,
			Name:         row.Name,
			SlotCount:    row.SlotCount,
			Description:  row.Description,
			Price:        int64(row.SlotCount) * perSlot,
			RoutingToken: row.Token,
		})
	}
	return offers, nil
}

func (s *Service) ResolvePricing(ctx context.Context, chapterID, slotPackageID snowflake.ID) (*catalogdomain.PricingResolution, error) {
	chapter, err := s.repo.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !chapter.IsActive {
		return nil, catalogdomain.ErrChapterInactive
	}

	pkg, err := s.repo.GetPackage(ctx, slotPackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, catalogdomain.ErrPackageInactive
	}

	token, err := s.repo.GetRoutingToken(ctx, chapterID, slotPackageID)
	if err != nil {
		return nil, err
	}
	if !token.IsActive {
		return nil, catalogdomain.ErrRoutingTokenInactive
	}

	perSlot := s.perSlotAmount(chapter)
	return &catalogdomain.PricingResolution{
		Chapter:       *chapter,
		Package:       *pkg,
		PerSlotAmount: perSlot,
		Price:         int64(pkg.SlotCount) * perSlot,
		RoutingToken:  token.Token,
	}, nil
}

func (s *Service) perSlotAmount(chapter *catalogdomain.Chapter) int64 {
	if chapter.PerSlotAmount != nil && *chapter.PerSlotAmount > 0 {
		return *chapter.PerSlotAmount
	}
	return s.defaultSlotAmount
}
