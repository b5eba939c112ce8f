package game

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultRotationInterval = 24 * time.Hour

// SeedManager owns the operator secret lifecycle. The active generation is a
// single versioned record guarded by the manager's mutex; rotation swaps the
// pointer, it never mutates a published generation. Rounds snapshot the
// commitment at open time, so rotation cannot alter an in-flight round.
type SeedManager struct {
	mu          sync.RWMutex
	active      SeedGeneration
	store       Store
	rotateEvery time.Duration
	onRotate    func(ctx context.Context, commitment string)
}

// NewSeedManager generates and persists the first generation so its
// commitment is published before any round can reference it.
func NewSeedManager(ctx context.Context, store Store, rotateEvery time.Duration) (*SeedManager, error) {
	if rotateEvery <= 0 {
		rotateEvery = DefaultRotationInterval
	}
	m := &SeedManager{store: store, rotateEvery: rotateEvery}

	gen, err := m.mint(ctx)
	if err != nil {
		return nil, fmt.Errorf("seeds: initial generation: %w", err)
	}
	m.active = gen
	log.Printf("[SEEDS] Initial generation %s committed (%s...)", gen.ID, gen.CommitmentHash[:16])
	return m, nil
}

func (m *SeedManager) mint(ctx context.Context) (SeedGeneration, error) {
	secret := GenerateSeed()
	gen := SeedGeneration{
		ID:             uuid.NewString(),
		Secret:         secret,
		CommitmentHash: HashCommitment(secret),
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.store.InsertGeneration(ctx, gen); err != nil {
		return SeedGeneration{}, err
	}
	return gen, nil
}

// Current returns the active generation, rotating first when it has aged
// past the configured interval.
func (m *SeedManager) Current(ctx context.Context) (SeedGeneration, error) {
	m.mu.RLock()
	gen := m.active
	m.mu.RUnlock()

	if time.Since(gen.CreatedAt) < m.rotateEvery {
		return gen, nil
	}
	return m.Rotate(ctx)
}

// Commitment is the only seed datum safe to expose before settlement.
func (m *SeedManager) Commitment(ctx context.Context) (string, error) {
	gen, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return gen.CommitmentHash, nil
}

// OnRotate registers a callback invoked with the new commitment after every
// rotation, manual, interval-driven or on-reveal. Consumers that surface the
// commitment (caches, feeds) hook in here so they can never keep serving a
// revealed generation.
func (m *SeedManager) OnRotate(fn func(ctx context.Context, commitment string)) {
	m.mu.Lock()
	m.onRotate = fn
	m.mu.Unlock()
}

// Rotate replaces the active generation. The outgoing generation is retired,
// not purged: it stays retrievable until every round referencing it has
// revealed.
func (m *SeedManager) Rotate(ctx context.Context) (SeedGeneration, error) {
	m.mu.Lock()

	gen, err := m.mint(ctx)
	if err != nil {
		m.mu.Unlock()
		return SeedGeneration{}, fmt.Errorf("seeds: rotate: %w", err)
	}

	old := m.active
	if err := m.store.RetireGeneration(ctx, old.ID, time.Now().UTC()); err != nil {
		m.mu.Unlock()
		return SeedGeneration{}, fmt.Errorf("seeds: retire %s: %w", old.ID, err)
	}
	m.active = gen
	notify := m.onRotate
	m.mu.Unlock()

	log.Printf("[SEEDS] Rotated %s -> %s (%s...)", old.ID, gen.ID, gen.CommitmentHash[:16])
	if notify != nil {
		notify(ctx, gen.CommitmentHash)
	}
	return gen, nil
}

// RotateIfActive retires the generation behind the given commitment when it
// is still the active one. Called on reveal so a disclosed secret can never
// cover a round opened afterwards.
func (m *SeedManager) RotateIfActive(ctx context.Context, commitment string) error {
	m.mu.RLock()
	active := m.active.CommitmentHash == commitment
	m.mu.RUnlock()
	if !active {
		return nil
	}
	_, err := m.Rotate(ctx)
	return err
}

// SecretFor resolves a commitment to its secret, including retired
// generations. Not-found means the generation was purged, which the store
// refuses while unrevealed rounds reference it.
func (m *SeedManager) SecretFor(ctx context.Context, commitment string) (string, error) {
	m.mu.RLock()
	if m.active.CommitmentHash == commitment {
		secret := m.active.Secret
		m.mu.RUnlock()
		return secret, nil
	}
	m.mu.RUnlock()

	gen, err := m.store.GenerationByCommitment(ctx, commitment)
	if err != nil {
		return "", err
	}
	return gen.Secret, nil
}
