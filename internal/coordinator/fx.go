package coordinator

import (
	"github.com/chapterhq/examslots/internal/coordinator/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("coordinator.repository",
	fx.Provide(repository.Provide),
)
