package purchase

import (
	"github.com/chapterhq/examslots/internal/purchase/repository"
	"github.com/chapterhq/examslots/internal/purchase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchase.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
