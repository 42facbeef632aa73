package server

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"crashgame/internal/game"
)

type betRequest struct {
	UserID      string          `json:"user_id"`
	Amount      json.RawMessage `json:"amount"`
	AutoCashout float64         `json:"auto_cashout"`
}

type cashoutRequest struct {
	UserID string `json:"user_id"`
}

type depositRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// errorResponse maps engine and ledger errors to an HTTP status.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest
	switch {
	case errors.Is(err, game.ErrEngineBusy), errors.Is(err, game.ErrEngineStopped):
		status = fiber.StatusServiceUnavailable
	case game.Reason(err) == "internal_error":
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{
		"error":  err.Error(),
		"reason": game.Reason(err),
	})
}

func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	state, ok := s.engine.Snapshot()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(state)
}

func (s *FiberServer) getHistoryHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"history": s.engine.History(),
	})
}

func (s *FiberServer) getRoundsHandler(c *fiber.Ctx) error {
	if s.archive == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Round archive is disabled",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rounds, err := s.archive.RecentRounds(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load rounds",
		})
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

// verifyHandler recomputes a revealed round's crash point.
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	seed := game.RoundSeed{
		ServerSeed: c.Query("server_seed"),
		ClientSeed: c.Query("client_seed"),
	}
	if seed.ServerSeed == "" || seed.ClientSeed == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "server_seed and client_seed are required",
		})
	}
	nonce, err := strconv.Atoi(c.Query("nonce"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "nonce must be an integer",
		})
	}
	seed.Nonce = nonce

	gen := s.engine.Generator()
	resp := fiber.Map{
		"crash_point": gen.CrashPoint(seed),
		"commitment":  seed.Commitment(),
	}
	if claimed := c.Query("crash_point"); claimed != "" {
		v, err := strconv.ParseFloat(claimed, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "crash_point must be a number",
			})
		}
		resp["valid"] = game.VerifyCrashPoint(gen, seed, v)
	}
	return c.JSON(resp)
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req betRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	amount, err := game.ParseAmount(req.Amount)
	if err != nil {
		return errorResponse(c, err)
	}

	receipt, err := s.engine.PlaceBet(c.UserContext(), req.UserID, amount, req.AutoCashout)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"round_id": receipt.RoundID,
		"bet_id":   receipt.BetID,
		"amount":   receipt.Amount.InexactFloat64(),
		"balance":  receipt.Balance.InexactFloat64(),
	})
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req cashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	receipt, err := s.engine.CashOut(c.UserContext(), req.UserID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"round_id":   receipt.RoundID,
		"multiplier": receipt.Multiplier,
		"payout":     receipt.Payout.InexactFloat64(),
	})
}

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	balance, err := s.ledger.Balance(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance.InexactFloat64(),
	})
}

// depositHandler credits a player's balance (demo and testing convenience).
func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	amount, err := game.ParseAmount(req.Amount)
	if err == nil && !amount.IsPositive() {
		err = game.ErrInvalidAmount
	}
	if err != nil {
		return errorResponse(c, err)
	}

	balance, err := s.ledger.Credit(c.UserContext(), userID, amount)
	if err != nil {
		return errorResponse(c, err)
	}
	s.hub.SendToPlayer(userID, game.BalanceUpdateMessage{Type: game.MsgBalanceUpdate, Balance: balance.InexactFloat64()})

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance.InexactFloat64(),
		"message": "Deposit successful",
	})
}
