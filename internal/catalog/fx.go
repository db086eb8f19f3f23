package catalog

import (
	"github.com/chapterhq/examslots/internal/catalog/repository"
	"github.com/chapterhq/examslots/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
