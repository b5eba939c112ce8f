package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	revealAttempts = 5
	revealBackoff  = 500 * time.Millisecond
)

// RevealSink receives verification records once a round's secret is public.
// Publication failures are retried and logged; they never touch the ledger.
type RevealSink interface {
	PublishReveal(ctx context.Context, rec VerificationRecord) error
}

// Engine is the round state machine. It owns every round transition: rounds
// move OPEN -> CLOSED exactly once, with the stake debit bound to open and
// the payout credit bound to settle.
type Engine struct {
	cfg   Config
	store Store
	seeds *SeedManager
	hub   *Hub
	sink  RevealSink
}

func NewEngine(cfg Config, store Store, seeds *SeedManager, hub *Hub, sink RevealSink) *Engine {
	return &Engine{cfg: cfg, store: store, seeds: seeds, hub: hub, sink: sink}
}

// Commitment exposes the active generation's hash. Safe before any bet.
func (e *Engine) Commitment(ctx context.Context) (string, error) {
	return e.seeds.Commitment(ctx)
}

// Open validates the request, snapshots the active seed generation,
// allocates the nonce atomically for (commitment, clientSeed) and creates
// the round with its stake reserved; insert and debit run in one transaction.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (OpenResponse, error) {
	if req.Stake < e.cfg.MinStake || req.Stake > e.cfg.MaxStake {
		return OpenResponse{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidStake, req.Stake, e.cfg.MinStake, e.cfg.MaxStake)
	}
	if err := ValidateSelection(e.cfg, req.GameType, req.Selection); err != nil {
		return OpenResponse{}, err
	}

	clientSeed := req.ClientSeed
	if clientSeed == "" {
		clientSeed = GenerateClientSeed()
	} else if !ValidClientSeed(clientSeed) {
		return OpenResponse{}, ErrInvalidClientSeed
	}

	gen, err := e.seeds.Current(ctx)
	if err != nil {
		return OpenResponse{}, fmt.Errorf("open: %w", err)
	}

	nonce, err := e.store.NextNonce(ctx, gen.CommitmentHash, clientSeed, req.Nonce)
	if err != nil {
		return OpenResponse{}, err
	}

	round := Round{
		ID:             uuid.NewString(),
		AccountID:      req.AccountID,
		GameType:       req.GameType,
		State:          RoundOpen,
		CommitmentHash: gen.CommitmentHash,
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		Stake:          req.Stake,
		Selection:      req.Selection,
		CreatedAt:      time.Now().UTC(),
	}

	balance, err := e.store.OpenRound(ctx, round)
	if err != nil {
		return OpenResponse{}, err
	}

	log.Printf("[ROUND] Opened %s %s stake=%d nonce=%d", round.ID, round.GameType, round.Stake, round.Nonce)
	return OpenResponse{
		RoundID:        round.ID,
		CommitmentHash: round.CommitmentHash,
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		Balance:        balance,
	}, nil
}

// Settle transitions a round OPEN -> CLOSED exactly once. The outcome is
// derived from inputs fixed at open, so concurrent callers compute the same
// result and the store's compare-and-set decides which one credits the
// payout. Repeat calls return the stored result without recomputation.
func (e *Engine) Settle(ctx context.Context, roundID string) (SettleResponse, error) {
	round, err := e.store.GetRound(ctx, roundID)
	if err != nil {
		return SettleResponse{}, err
	}
	if round.State == RoundClosed {
		// A crash or failed publication can leave a settled round
		// unrevealed. Settling again re-triggers disclosure without
		// touching the ledger.
		if round.RevealedSecret == "" && round.Outcome != nil {
			if secret, err := e.seeds.SecretFor(ctx, round.CommitmentHash); err != nil {
				log.Printf("[ROUND] Reveal retry for %s: %v", round.ID, err)
			} else {
				go e.revealAfterRotate(round, secret)
			}
		}
		return settleResponse(round), nil
	}

	secret, err := e.seeds.SecretFor(ctx, round.CommitmentHash)
	if err != nil {
		return SettleResponse{}, fmt.Errorf("settle %s: %w", roundID, err)
	}

	outcome, err := e.deriveOutcome(round, secret)
	if err != nil {
		return SettleResponse{}, err
	}
	payout := PayoutFor(round.Stake, outcome)

	settled, didSettle, err := e.store.SettleRound(ctx, roundID, outcome, payout, time.Now().UTC())
	if err != nil {
		return SettleResponse{}, fmt.Errorf("settle %s: %w", roundID, err)
	}

	if didSettle {
		log.Printf("[ROUND] Settled %s %s payout=%d mult=%.2f", settled.ID, settled.GameType, payout, outcome.Multiplier)

		// The secret is about to be disclosed, so no new round may open
		// under this generation. A rotation failure never blocks the
		// settlement result; disclosure is deferred to the retry path,
		// which rotates before publishing.
		if err := e.seeds.RotateIfActive(ctx, settled.CommitmentHash); err != nil {
			log.Printf("[ROUND] Rotation for reveal of %s failed: %v", settled.ID, err)
			go e.revealAfterRotate(settled, secret)
		} else {
			settled.RevealedSecret = secret
			go e.reveal(settled, secret)
		}
	}
	return settleResponse(settled), nil
}

// revealAfterRotate retires the round's generation when it is still active,
// then publishes the reveal. The ordering holds the line that a disclosed
// secret never covers a round opened afterwards.
func (e *Engine) revealAfterRotate(r Round, secret string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= revealAttempts; attempt++ {
		if lastErr = e.seeds.RotateIfActive(ctx, r.CommitmentHash); lastErr == nil {
			e.reveal(r, secret)
			return
		}
		log.Printf("[ROUND] Rotation attempt %d/%d for %s failed: %v", attempt, revealAttempts, r.ID, lastErr)
		time.Sleep(revealBackoff * time.Duration(attempt))
	}
	// The payout stands; the round shows as settled but unrevealed, and the
	// next settle call retries disclosure.
	log.Printf("[ROUND] ALERT: reveal of %s blocked, generation still active: %v", r.ID, lastErr)
}

func (e *Engine) deriveOutcome(r Round, secret string) (Outcome, error) {
	return DeriveOutcome(e.cfg, r.GameType, secret, r.ClientSeed, r.Nonce, r.Selection)
}

func settleResponse(r Round) SettleResponse {
	resp := SettleResponse{
		RoundID:        r.ID,
		State:          r.State,
		Payout:         r.Payout,
		RevealedSecret: r.RevealedSecret,
	}
	if r.Outcome != nil {
		resp.Outcome = *r.Outcome
	}
	return resp
}

// reveal persists the reveal metadata and publishes the verification record.
// Runs after the settle transaction committed; retried on failure and never
// allowed to reverse the payout.
func (e *Engine) reveal(r Round, secret string) {
	rec := VerificationRecord{
		RoundID:    r.ID,
		Secret:     secret,
		ClientSeed: r.ClientSeed,
		Nonce:      r.Nonce,
		GameType:   r.GameType,
		Selection:  r.Selection,
		Outcome:    *r.Outcome,
		RevealedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= revealAttempts; attempt++ {
		if lastErr = e.publishReveal(ctx, r.ID, secret, rec); lastErr == nil {
			if e.hub != nil {
				e.hub.Broadcast(RevealEvent{Type: "round_revealed", Record: rec})
			}
			return
		}
		log.Printf("[ROUND] Reveal attempt %d/%d for %s failed: %v", attempt, revealAttempts, r.ID, lastErr)
		time.Sleep(revealBackoff * time.Duration(attempt))
	}
	// Payout already stands; flag for follow-up since only public
	// verifiability is affected.
	log.Printf("[ROUND] ALERT: reveal permanently failed for %s: %v", r.ID, lastErr)
}

func (e *Engine) publishReveal(ctx context.Context, roundID, secret string, rec VerificationRecord) error {
	if err := e.store.MarkRevealed(ctx, roundID, secret); err != nil {
		return err
	}
	if err := e.store.SaveVerificationRecord(ctx, rec); err != nil {
		return err
	}
	if e.sink != nil {
		return e.sink.PublishReveal(ctx, rec)
	}
	return nil
}

// Round returns a round as stored. Secrets stay hidden until revealed.
func (e *Engine) Round(ctx context.Context, roundID string) (Round, error) {
	return e.store.GetRound(ctx, roundID)
}

// Record returns the public verification record of a revealed round.
func (e *Engine) Record(ctx context.Context, roundID string) (VerificationRecord, error) {
	return e.store.GetVerificationRecord(ctx, roundID)
}

// Deposit and Balance expose the in-engine ledger for the account surface.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: deposit %d", ErrInvalidStake, amount)
	}
	return e.store.Deposit(ctx, accountID, amount)
}

func (e *Engine) Balance(ctx context.Context, accountID string) (int64, error) {
	return e.store.Balance(ctx, accountID)
}
