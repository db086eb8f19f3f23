// Package server is the HTTP surface. Handlers stay thin: parse, delegate to
// a service, map the result. All ledger semantics live below this layer.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
	catalogdomain "github.com/chapterhq/examslots/internal/catalog/domain"
	"github.com/chapterhq/examslots/internal/config"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, registry *prometheus.Registry) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(cfg, log, registry)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    net.JoinHostPort("", cfg.HTTPPort),
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	catalogSvc   catalogdomain.Service
	purchaseSvc  purchasedomain.Service
	balanceSvc   balancedomain.Service
	reconcileSvc reconciledomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	CatalogSvc   catalogdomain.Service
	PurchaseSvc  purchasedomain.Service
	BalanceSvc   balancedomain.Service
	ReconcileSvc reconciledomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		catalogSvc:   p.CatalogSvc,
		purchaseSvc:  p.PurchaseSvc,
		balanceSvc:   p.BalanceSvc,
		reconcileSvc: p.ReconcileSvc,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Catalog --------
	v1.GET("/chapters/:chapter_id/packages", s.ListChapterPackages)

	// -------- Purchases --------
	v1.POST("/purchases", s.InitiatePurchase)
	v1.GET("/purchases/:reference", s.GetPurchaseByReference)
	v1.POST("/purchases/:reference/reconcile", s.ReconcilePurchase)

	// -------- Coordinators --------
	v1.GET("/coordinators/:coordinator_id/purchases", s.ListCoordinatorPurchases)
	v1.GET("/coordinators/:coordinator_id/balance", s.GetCoordinatorBalance)
	v1.GET("/coordinators/:coordinator_id/slot-availability", s.GetSlotAvailability)
	v1.GET("/coordinators/:coordinator_id/usage", s.ListCoordinatorUsage)
	v1.POST("/coordinators/:coordinator_id/adjustments", s.AdjustCoordinatorBalance)

	// -------- Registration slot guard --------
	v1.POST("/registrations/slot-consumption", s.ConsumeSlots)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payment", s.HandlePaymentWebhook)
}

// RequestLogMiddleware logs one line per request.
func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}
