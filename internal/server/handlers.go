package server

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/dmethood/casino-sub001/internal/game"
)

// statusFor maps engine errors to HTTP statuses: validation failures are
// 400, conflicts 409, unknown IDs 404, everything else is a retryable 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrRoundNotFound), errors.Is(err, game.ErrSeedNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrNonceUsed), errors.Is(err, game.ErrGenerationInUse):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrInvalidStake),
		errors.Is(err, game.ErrInvalidGameType),
		errors.Is(err, game.ErrInvalidClientSeed),
		errors.Is(err, game.ErrInvalidSelection):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// commitmentHandler exposes the active commitment hash. Served from the
// Redis cache when warm, falling back to the seed manager.
func (s *FiberServer) commitmentHandler(c *fiber.Ctx) error {
	if commitment := s.fairness.Commitment(c.Context()); commitment != "" {
		return c.JSON(fiber.Map{"commitment_hash": commitment})
	}

	commitment, err := s.engine.Commitment(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	if err := s.fairness.SetCommitment(c.Context(), commitment); err != nil {
		log.Printf("[SERVER] Commitment cache refresh failed: %v", err)
	}
	return c.JSON(fiber.Map{"commitment_hash": commitment})
}

func (s *FiberServer) openRoundHandler(c *fiber.Ctx) error {
	var req game.OpenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.AccountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	resp, err := s.engine.Open(c.Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *FiberServer) settleRoundHandler(c *fiber.Ctx) error {
	roundID := c.Params("roundId")
	if roundID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Round ID is required",
		})
	}

	resp, err := s.engine.Settle(c.Context(), roundID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	round, err := s.engine.Round(c.Context(), c.Params("roundId"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(round)
}

// verifyHandler recomputes an outcome from the public tuple. Unauthenticated
// by design.
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var req game.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := game.Verify(game.DefaultConfig(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(result)
}

// recordHandler returns the published verification record for a settled
// round, preferring the Redis copy.
func (s *FiberServer) recordHandler(c *fiber.Ctx) error {
	roundID := c.Params("roundId")

	if rec, ok := s.fairness.Record(c.Context(), roundID); ok {
		return c.JSON(rec)
	}

	rec, err := s.engine.Record(c.Context(), roundID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(rec)
}

// rotateHandler retires the active seed generation on demand. The cache
// refresh rides on the seed manager's rotation hook.
func (s *FiberServer) rotateHandler(c *fiber.Ctx) error {
	gen, err := s.seeds.Rotate(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"commitment_hash": gen.CommitmentHash})
}

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	if accountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	balance, err := s.engine.Balance(c.Context(), accountID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	if accountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	balance, err := s.engine.Deposit(c.Context(), accountID, body.Amount)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id": accountID,
		"balance":    balance,
	})
}
