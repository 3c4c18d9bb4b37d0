package stream

import (
	"github.com/payless2025/payless/internal/stream/domain"
	"github.com/payless2025/payless/internal/stream/service"
	"github.com/payless2025/payless/internal/stream/store"
	"go.uber.org/fx"
)

var Module = fx.Module("stream.service",
	fx.Provide(func() domain.Repository { return store.NewMemory() }),
	fx.Provide(service.NewService),
)
