package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	GetChapter(ctx context.Context, id snowflake.ID) (*Chapter, error)
	GetPackage(ctx context.Context, id snowflake.ID) (*SlotPackage, error)
	GetRoutingToken(ctx context.Context, chapterID, slotPackageID snowflake.ID) (*ChapterRoutingToken, error)
	ListActivePackagesWithTokens(ctx context.Context, chapterID snowflake.ID) ([]PackageWithToken, error)
}

// PackageWithToken is the join row backing the chapter package listing.
type PackageWithToken struct {
	SlotPackage
	Token string
}
