package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// PackageOffer is a slot package priced for one chapter. Only packages with
// an active routing token for the chapter are offered.
type PackageOffer struct {
	ID           snowflake.ID `json:"id"`
	Name         string       `json:"name"`
	SlotCount    int          `json:"slot_count"`
	Description  string       `json:"description"`
	Price        int64        `json:"price"`
	RoutingToken string       `json:"routing_token"`
}

// PricingResolution is the fully validated pricing context for a purchase.
type PricingResolution struct {
	Chapter       Chapter
	Package       SlotPackage
	PerSlotAmount int64
	Price         int64
	RoutingToken  string
}

type Service interface {
	ListActivePackagesForChapter(ctx context.Context, chapterID snowflake.ID) ([]PackageOffer, error)
	ResolvePricing(ctx context.Context, chapterID, slotPackageID snowflake.ID) (*PricingResolution, error)
}

var (
	ErrChapterNotFound      = errors.New("chapter_not_found")
	ErrChapterInactive      = errors.New("chapter_inactive")
	ErrPackageNotFound      = errors.New("slot_package_not_found")
	ErrPackageInactive      = errors.New("slot_package_inactive")
	ErrRoutingTokenMissing  = errors.New("routing_token_missing")
	ErrRoutingTokenInactive = errors.New("routing_token_inactive")
)
