package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dmethood/casino-sub001/internal/cache"
	"github.com/dmethood/casino-sub001/internal/database"
	"github.com/dmethood/casino-sub001/internal/game"
)

// fairnessCache is the slice of the Redis fairness cache the handlers
// consume. *cache.FairnessCache satisfies it.
type fairnessCache interface {
	Commitment(ctx context.Context) string
	SetCommitment(ctx context.Context, commitment string) error
	Record(ctx context.Context, roundID string) (game.VerificationRecord, bool)
}

type FiberServer struct {
	*fiber.App

	db       database.Service
	cache    cache.Service
	fairness fairnessCache
	engine   *game.Engine
	hub      *game.Hub
	seeds    *game.SeedManager
}

func New() *FiberServer {
	db := database.New()

	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for the fairness cache")
	}
	fairness := cache.NewFairnessCache(redisService.GetClient())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := database.NewPgStore(db.Pool())
	seeds, err := game.NewSeedManager(ctx, store, seedRotationInterval())
	if err != nil {
		log.Fatalf("[SERVER] Seed manager init failed: %v", err)
	}

	// Every rotation, including the on-reveal one during settle, refreshes
	// the cached commitment so the public endpoint never serves a revealed
	// generation.
	seeds.OnRotate(func(ctx context.Context, commitment string) {
		if err := fairness.SetCommitment(ctx, commitment); err != nil {
			log.Printf("[SERVER] Commitment cache refresh failed: %v", err)
		}
	})

	hub := game.NewHub()
	engine := game.NewEngine(game.DefaultConfig(), store, seeds, hub, fairness)

	if commitment, err := engine.Commitment(ctx); err == nil {
		if err := fairness.SetCommitment(ctx, commitment); err != nil {
			log.Printf("[SERVER] Commitment cache warmup failed: %v", err)
		}
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "fair-engine",
			AppName:       "fair-engine",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:       db,
		cache:    redisService,
		fairness: fairness,
		engine:   engine,
		hub:      hub,
		seeds:    seeds,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()

	log.Println("[SERVER] Engine initialized, commitment published")

	return server
}

func seedRotationInterval() time.Duration {
	if val := os.Getenv("SEED_ROTATION_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
		log.Printf("[SERVER] Invalid SEED_ROTATION_INTERVAL %q, using default", val)
	}
	return game.DefaultRotationInterval
}

// Shutdown gracefully shuts down the server and its backends.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if err := s.App.Shutdown(); err != nil {
		log.Printf("[SERVER] Fiber shutdown error: %v", err)
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
