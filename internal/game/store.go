package game

import (
	"context"
	"time"
)

// Store is the engine's persistence boundary. Implementations must make
// OpenRound and SettleRound atomic: the round mutation and its ledger
// mutation commit together or not at all.
type Store interface {
	// Seed generations.
	InsertGeneration(ctx context.Context, gen SeedGeneration) error
	GenerationByCommitment(ctx context.Context, commitment string) (SeedGeneration, error)
	RetireGeneration(ctx context.Context, id string, at time.Time) error
	// PurgeGeneration fails with ErrGenerationInUse while any round
	// referencing the generation is unrevealed.
	PurgeGeneration(ctx context.Context, id string) error

	// NextNonce allocates the next nonce for (commitment, clientSeed) as a
	// single atomic increment-and-check. When requested is non-nil it must
	// lie strictly above the pair's high-water mark or the call fails with
	// ErrNonceUsed; reuse is never possible.
	NextNonce(ctx context.Context, commitment, clientSeed string, requested *uint64) (uint64, error)

	// OpenRound inserts the round and debits the stake in one transaction.
	// Returns the account balance after the debit.
	OpenRound(ctx context.Context, r Round) (int64, error)

	// SettleRound performs the OPEN -> CLOSED compare-and-set fused with the
	// payout credit. The bool reports whether this call performed the
	// transition; on false the previously stored round is returned untouched.
	SettleRound(ctx context.Context, id string, outcome Outcome, payout int64, at time.Time) (Round, bool, error)

	GetRound(ctx context.Context, id string) (Round, error)

	// MarkRevealed records the disclosed secret on a settled round.
	MarkRevealed(ctx context.Context, id, secret string) error

	SaveVerificationRecord(ctx context.Context, rec VerificationRecord) error
	GetVerificationRecord(ctx context.Context, roundID string) (VerificationRecord, error)

	// Ledger accounts (integer cents).
	Deposit(ctx context.Context, accountID string, amount int64) (int64, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}
