package migration

import (
	"github.com/chapterhq/examslots/internal/config"
	"github.com/chapterhq/examslots/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if err := seed.EnsureDefaultPackages(conn); err != nil {
			return err
		}
		if cfg.SeedDemoData {
			return seed.EnsureDemoChapter(conn)
		}
		return nil
	}),
)
