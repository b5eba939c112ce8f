package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmethood/casino-sub001/internal/game"
)

const (
	KeyCommitment   = "fair:commitment"
	KeyVerifyPrefix = "fair:verify:"

	// Verification records stay cached long enough for auditors to pull
	// them without hitting Postgres; the store remains the source of truth.
	verifyRecordTTL = 7 * 24 * time.Hour
)

// FairnessCache publishes commit-reveal artifacts to Redis: the current
// commitment hash for cheap public reads, and verification records once a
// round's secret is disclosed. It implements game.RevealSink.
type FairnessCache struct {
	client *redis.Client
}

func NewFairnessCache(client *redis.Client) *FairnessCache {
	return &FairnessCache{client: client}
}

// PublishReveal caches the public verification record for a settled round.
func (f *FairnessCache) PublishReveal(ctx context.Context, rec game.VerificationRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal record %s: %w", rec.RoundID, err)
	}
	if err := f.client.Set(ctx, KeyVerifyPrefix+rec.RoundID, payload, verifyRecordTTL).Err(); err != nil {
		return fmt.Errorf("cache: publish record %s: %w", rec.RoundID, err)
	}
	return nil
}

// SetCommitment caches the active commitment hash.
func (f *FairnessCache) SetCommitment(ctx context.Context, commitment string) error {
	return f.client.Set(ctx, KeyCommitment, commitment, 0).Err()
}

// Commitment returns the cached commitment hash, or "" on a miss.
func (f *FairnessCache) Commitment(ctx context.Context) string {
	val, err := f.client.Get(ctx, KeyCommitment).Result()
	if err != nil {
		return ""
	}
	return val
}

// Record returns a cached verification record when present.
func (f *FairnessCache) Record(ctx context.Context, roundID string) (game.VerificationRecord, bool) {
	payload, err := f.client.Get(ctx, KeyVerifyPrefix+roundID).Bytes()
	if err != nil {
		return game.VerificationRecord{}, false
	}
	var rec game.VerificationRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return game.VerificationRecord{}, false
	}
	return rec, true
}
