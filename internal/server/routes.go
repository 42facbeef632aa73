package server

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	maxFrameSize   = 4096
	commandTimeout = 5 * time.Second
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	if s.gatherer != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.App.Group("/api/v1")

	api.Get("/game/state", s.getGameStateHandler)
	api.Get("/game/history", s.getHistoryHandler)
	api.Get("/game/rounds", s.getRoundsHandler)
	api.Get("/game/verify", s.verifyHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Get("/user/:userId/balance", s.getUserBalanceHandler)
	api.Post("/user/:userId/deposit", s.depositHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":            "running",
		"connected_clients": s.hub.GetClientCount(),
	}
	if round, ok := s.engine.Snapshot(); ok {
		status["round_id"] = round.RoundID
		status["phase"] = round.Phase
	}

	return c.JSON(fiber.Map{
		"cache":    healthOf(s.cache),
		"database": healthOf(s.archive),
		"game":     status,
	})
}

func healthOf(h HealthChecker) map[string]string {
	if h == nil {
		return map[string]string{"status": "disabled"}
	}
	return h.Health()
}

// gameWebSocketHandler owns one connection: it registers the client, sends
// the initial state and feeds inbound frames to the protocol until the
// socket closes.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	playerID := conn.Query("user_id", "")
	if playerID == "" {
		playerID = "guest-" + uuid.NewString()
	}

	client := s.hub.Register(conn, playerID)
	// The connection is recycled once this handler returns.
	defer s.hub.Release(client)

	conn.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.protocol.Welcome(ctx, client.ID, playerID); err != nil {
		s.log.Warn("welcome failed", zap.String("player", playerID), zap.Error(err))
		return
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("read ended", zap.String("client", client.ID), zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		reqCtx, reqCancel := context.WithTimeout(ctx, commandTimeout)
		s.protocol.Handle(reqCtx, client.ID, playerID, message)
		reqCancel()
	}
}
