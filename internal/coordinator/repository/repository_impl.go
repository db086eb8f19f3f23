package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	coordinatordomain "github.com/chapterhq/examslots/internal/coordinator/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) coordinatordomain.Repository {
	return &repo{db: db}
}

func (r *repo) GetByID(ctx context.Context, id snowflake.ID) (*coordinatordomain.Coordinator, error) {
	var coordinator coordinatordomain.Coordinator
	err := r.db.WithContext(ctx).First(&coordinator, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, coordinatordomain.ErrCoordinatorNotFound
		}
		return nil, err
	}
	return &coordinator, nil
}
