package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/chapterhq/examslots/internal/catalog/domain"
	coordinatordomain "github.com/chapterhq/examslots/internal/coordinator/domain"
	"gorm.io/gorm"
)

const (
	demoChapterName      = "Lagos Chapter"
	demoChapterCode      = "LAG"
	demoCoordinatorName  = "Demo Coordinator"
	demoCoordinatorEmail = "coordinator@examslots.dev"
)

// defaultPackages are the standard slot bundles offered to every chapter.
var defaultPackages = []struct {
	Name      string
	SlotCount int
}{
	{"Starter Bundle", 5},
	{"Standard Bundle", 10},
	{"Growth Bundle", 20},
	{"Chapter Bundle", 50},
}

// EnsureDefaultPackages seeds the standard slot bundles for startup bootstrap.
func EnsureDefaultPackages(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range defaultPackages {
			if _, err := ensurePackageTx(ctx, tx, node, p.Name, p.SlotCount); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoChapter seeds a chapter, a coordinator, and routing tokens for
// every default package so a fresh development install can complete a
// purchase end to end.
func EnsureDemoChapter(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chapter, err := ensureChapterTx(ctx, tx, node)
		if err != nil {
			return err
		}

		if err := ensureCoordinatorTx(ctx, tx, node, chapter.ID); err != nil {
			return err
		}

		for _, p := range defaultPackages {
			pkg, err := ensurePackageTx(ctx, tx, node, p.Name, p.SlotCount)
			if err != nil {
				return err
			}
			if err := ensureRoutingTokenTx(ctx, tx, node, chapter.ID, pkg.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePackageTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, name string, slotCount int) (catalogdomain.SlotPackage, error) {
	var pkg catalogdomain.SlotPackage
	err := tx.WithContext(ctx).Where("slot_count = ?", slotCount).First(&pkg).Error
	if err == nil {
		return pkg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkg, err
	}
	now := time.Now().UTC()
	pkg = catalogdomain.SlotPackage{
		ID:          node.Generate(),
		Name:        name,
		SlotCount:   slotCount,
		Description: fmt.Sprintf("%d registration slots", slotCount),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&pkg).Error; err != nil {
		return pkg, err
	}
	return pkg, nil
}

func ensureChapterTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (catalogdomain.Chapter, error) {
	var chapter catalogdomain.Chapter
	err := tx.WithContext(ctx).Where("code = ?", demoChapterCode).First(&chapter).Error
	if err == nil {
		return chapter, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return chapter, err
	}
	now := time.Now().UTC()
	chapter = catalogdomain.Chapter{
		ID:        node.Generate(),
		Name:      demoChapterName,
		Code:      demoChapterCode,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&chapter).Error; err != nil {
		return chapter, err
	}
	return chapter, nil
}

func ensureCoordinatorTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, chapterID snowflake.ID) error {
	var coordinator coordinatordomain.Coordinator
	err := tx.WithContext(ctx).Where("email = ?", demoCoordinatorEmail).First(&coordinator).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	now := time.Now().UTC()
	coordinator = coordinatordomain.Coordinator{
		ID:        node.Generate(),
		ChapterID: chapterID,
		FullName:  demoCoordinatorName,
		Email:     demoCoordinatorEmail,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Create(&coordinator).Error
}

func ensureRoutingTokenTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, chapterID, packageID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(`
		INSERT INTO chapter_routing_tokens (id, chapter_id, slot_package_id, token, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (chapter_id, slot_package_id) DO NOTHING
	`,
		node.Generate(),
		chapterID,
		packageID,
		fmt.Sprintf("SPL_DEMO_%s", packageID),
	).Error
}
