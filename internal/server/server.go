package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"crashgame/internal/database"
	"crashgame/internal/game"
)

// HealthChecker is implemented by the optional cache and database services.
type HealthChecker interface {
	Health() map[string]string
}

// Archive serves archived rounds; nil when the database is disabled.
type Archive interface {
	HealthChecker
	RecentRounds(ctx context.Context, limit int) ([]database.RoundRecord, error)
}

type Deps struct {
	Engine   *game.Engine
	Ledger   *game.Ledger
	Hub      *game.Hub
	Cache    HealthChecker
	Archive  Archive
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type FiberServer struct {
	*fiber.App

	engine   *game.Engine
	ledger   *game.Ledger
	hub      *game.Hub
	protocol *game.Protocol
	cache    HealthChecker
	archive  Archive
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

func New(deps Deps) *FiberServer {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("server")

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashgame",
			AppName:       "crashgame",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		engine:   deps.Engine,
		ledger:   deps.Ledger,
		hub:      deps.Hub,
		protocol: game.NewProtocol(deps.Engine, deps.Ledger, deps.Hub, log),
		cache:    deps.Cache,
		archive:  deps.Archive,
		gatherer: deps.Gatherer,
		log:      log,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/ws" || c.Path() == "/metrics"
		},
	}))

	server.RegisterFiberRoutes()
	return server
}

// Shutdown stops accepting requests and drops every websocket client.
func (s *FiberServer) Shutdown() error {
	s.log.Info("shutting down")
	s.hub.Close()
	return s.App.ShutdownWithTimeout(5 * time.Second)
}
