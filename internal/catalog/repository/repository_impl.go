package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/chapterhq/examslots/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) catalogdomain.Repository {
	return &repo{db: db}
}

func (r *repo) GetChapter(ctx context.Context, id snowflake.ID) (*catalogdomain.Chapter, error) {
	var chapter catalogdomain.Chapter
	err := r.db.WithContext(ctx).First(&chapter, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogdomain.ErrChapterNotFound
		}
		return nil, err
	}
	return &chapter, nil
}

func (r *repo) GetPackage(ctx context.Context, id snowflake.ID) (*catalogdomain.SlotPackage, error) {
	var pkg catalogdomain.SlotPackage
	err := r.db.WithContext(ctx).First(&pkg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogdomain.ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func (r *repo) GetRoutingToken(ctx context.Context, chapterID, slotPackageID snowflake.ID) (*catalogdomain.ChapterRoutingToken, error) {
	var token catalogdomain.ChapterRoutingToken
	err := r.db.WithContext(ctx).
		First(&token, "chapter_id = ? AND slot_package_id = ?", chapterID, slotPackageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogdomain.ErrRoutingTokenMissing
		}
		return nil, err
	}
	return &token, nil
}

func (r *repo) ListActivePackagesWithTokens(ctx context.Context, chapterID snowflake.ID) ([]catalogdomain.PackageWithToken, error) {
	var rows []catalogdomain.PackageWithToken
	err := r.db.WithContext(ctx).Raw(
		`SELECT p.id, p.name, p.slot_count, p.description, p.is_active, p.created_at, p.updated_at, t.token
		 FROM slot_packages p
		 JOIN chapter_routing_tokens t
		   ON t.slot_package_id = p.id
		  AND t.chapter_id = ?
		  AND t.is_active = TRUE
		 WHERE p.is_active = TRUE
		 ORDER BY p.slot_count ASC`,
		chapterID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
