package server

import (
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	// Fairness surface. Verify is public by design: anyone must be able to
	// recheck a settled round from revealed data alone.
	api.Get("/fair/commitment", s.commitmentHandler)
	api.Post("/fair/verify", s.verifyHandler)
	api.Get("/fair/records/:roundId", s.recordHandler)

	// Round lifecycle.
	api.Post("/rounds", s.openRoundHandler)
	api.Post("/rounds/:roundId/settle", s.settleRoundHandler)
	api.Get("/rounds/:roundId", s.getRoundHandler)

	// Seed rotation (operator action).
	api.Post("/fair/rotate", s.rotateHandler)

	// In-engine ledger accounts.
	api.Get("/accounts/:accountId/balance", s.getBalanceHandler)
	api.Post("/accounts/:accountId/deposit", s.depositHandler)

	// Audit feed: settled rounds and seed reveals only.
	s.App.Get("/ws/audit", websocket.New(s.auditWebSocketHandler))
}

// auditWebSocketHandler streams reveal events to a subscriber until the
// connection drops. Incoming frames are drained and ignored.
func (s *FiberServer) auditWebSocketHandler(conn *websocket.Conn) {
	s.hub.RegisterClient(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("[WS] Audit read error: %v", err)
			s.hub.UnregisterClient(conn)
			break
		}
	}
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"engine": fiber.Map{
			"status":            "running",
			"audit_subscribers": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}
