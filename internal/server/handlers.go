package server

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"flipzone/internal/database"
	"flipzone/internal/fairness"
	"flipzone/internal/gameerr"
)

type startRequest struct {
	BetAmount decimal.Decimal `json:"bet_amount"`
}

type flipRequest struct {
	Side *fairness.Side `json:"side"`
}

// clientMessage is what a presentation may send over the websocket.
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"game": fiber.Map{
			"status":            "running",
			"state":             s.engine.Snapshot().State,
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

// rulesHandler publishes the bet range and the payout curve so a presentation can render
// the multiplier ladder before a session starts.
func (s *FiberServer) rulesHandler(c *fiber.Ctx) error {
	rules := s.engine.Rules()
	ladder := make([]decimal.Decimal, 0, rules.MaxRounds)
	for wins := 1; wins <= rules.MaxRounds; wins++ {
		ladder = append(ladder, rules.Multiplier(wins))
	}
	return c.JSON(fiber.Map{
		"min_bet":           rules.MinBet,
		"max_bet":           rules.MaxBet,
		"max_rounds":        rules.MaxRounds,
		"base_rate":         rules.BaseRate,
		"max_multiplier":    rules.MaxMultiplier,
		"animation_timeout": rules.AnimationTimeout.Milliseconds(),
		"multipliers":       ladder,
	})
}

func (s *FiberServer) getSessionHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Snapshot())
}

func (s *FiberServer) startHandler(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session, err := s.engine.Start(c.UserContext(), req.BetAmount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(session)
}

func (s *FiberServer) restoreHandler(c *fiber.Ctx) error {
	session, err := s.engine.Restore(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(session)
}

func (s *FiberServer) flipHandler(c *fiber.Ctx) error {
	var req flipRequest
	if err := c.BodyParser(&req); err != nil || req.Side == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "side must be heads or tails",
		})
	}

	ticket, err := s.engine.Flip(c.UserContext(), *req.Side)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ticket)
}

func (s *FiberServer) completeHandler(c *fiber.Ctx) error {
	res, ok := s.engine.Complete(c.Params("token"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No pending round for this token",
		})
	}
	return c.JSON(res)
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	settlement, err := s.engine.CashOut(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(settlement)
}

func (s *FiberServer) resetHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Reset())
}

func (s *FiberServer) proofHandler(c *fiber.Ctx) error {
	bundle, ok := s.engine.Proof()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No finished session to prove",
		})
	}
	return c.JSON(bundle)
}

func (s *FiberServer) verifySessionHandler(c *fiber.Ctx) error {
	if s.audit == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Audit store is not configured",
		})
	}

	audit, err := s.audit.SessionAudit(c.UserContext(), c.Params("id"))
	if errors.Is(err, database.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if err != nil {
		log.Printf("[SERVER] Audit lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Audit lookup failed",
		})
	}

	resp := fiber.Map{
		"session":  audit,
		"revealed": false,
	}
	if bundle, ok := audit.Bundle(); ok {
		reports := bundle.Verify()
		resp["revealed"] = true
		resp["commitment_ok"] = bundle.CommitmentOK()
		resp["valid"] = bundle.Valid(reports)
		resp["rounds"] = reports
	}
	return c.JSON(resp)
}

func (s *FiberServer) verifyBundleHandler(c *fiber.Ctx) error {
	bundle, err := fairness.ParseBundle(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	reports := bundle.Verify()
	return c.JSON(fiber.Map{
		"commitment_ok": bundle.CommitmentOK(),
		"valid":         bundle.Valid(reports),
		"rounds":        reports,
	})
}

func (s *FiberServer) webSocketHandler(conn *websocket.Conn) {
	remote := conn.RemoteAddr().String()
	client := s.hub.RegisterClient(conn, remote)
	client.SendSnapshot(s.engine.Snapshot())

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.hub.UnregisterClient(client)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("[WS] Bad message from %s: %v", remote, err)
			continue
		}

		switch msg.Type {
		case "complete":
			// presentation finished showing the round
			s.engine.Complete(msg.Token)
		case "snapshot":
			client.SendSnapshot(s.engine.Snapshot())
		}
	}
}

// writeError maps the game error taxonomy to HTTP statuses.
func writeError(c *fiber.Ctx, err error) error {
	status, kind := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[SERVER] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	})
}

func errorStatus(err error) (int, string) {
	var (
		precondition *gameerr.PreconditionError
		invalidState *gameerr.InvalidStateError
		rejected     *gameerr.RejectedError
		network      *gameerr.NetworkError
		recovery     *gameerr.StateRecoveryError
		wrongNetwork *gameerr.WrongNetworkError
		mismatch     *gameerr.CommitmentMismatchError
	)

	switch {
	case errors.Is(err, gameerr.ErrInvalidBet):
		return fiber.StatusBadRequest, "invalid_bet"
	case errors.As(err, &precondition):
		return fiber.StatusPreconditionFailed, "precondition"
	case errors.As(err, &wrongNetwork):
		return fiber.StatusPreconditionFailed, "wrong_network"
	case errors.As(err, &invalidState):
		return fiber.StatusConflict, "invalid_state"
	case errors.Is(err, gameerr.ErrRoundDiscarded):
		return fiber.StatusConflict, "discarded"
	case errors.As(err, &rejected):
		return fiber.StatusUnprocessableEntity, "rejected"
	case errors.As(err, &mismatch):
		return fiber.StatusBadGateway, "commitment_mismatch"
	case errors.As(err, &recovery):
		return fiber.StatusBadGateway, "state_recovery"
	case errors.As(err, &network):
		return fiber.StatusBadGateway, "network"
	}
	return fiber.StatusInternalServerError, "internal"
}
