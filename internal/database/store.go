package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmethood/casino-sub001/internal/game"
)

// PgStore is the persistent game.Store. Open and settle run as single
// transactions so a round mutation and its ledger mutation commit together
// or roll back together.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) InsertGeneration(ctx context.Context, gen game.SeedGeneration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seed_generations (id, secret, commitment_hash, created_at) VALUES ($1, $2, $3, $4)`,
		gen.ID, gen.Secret, gen.CommitmentHash, gen.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert generation: %w", err)
	}
	return nil
}

func (s *PgStore) GenerationByCommitment(ctx context.Context, commitment string) (game.SeedGeneration, error) {
	var gen game.SeedGeneration
	err := s.pool.QueryRow(ctx,
		`SELECT id, secret, commitment_hash, created_at, retired_at FROM seed_generations WHERE commitment_hash = $1`,
		commitment).Scan(&gen.ID, &gen.Secret, &gen.CommitmentHash, &gen.CreatedAt, &gen.RetiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.SeedGeneration{}, game.ErrSeedNotFound
	}
	if err != nil {
		return game.SeedGeneration{}, fmt.Errorf("store: generation by commitment: %w", err)
	}
	return gen, nil
}

func (s *PgStore) RetireGeneration(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE seed_generations SET retired_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("store: retire generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrSeedNotFound
	}
	return nil
}

func (s *PgStore) PurgeGeneration(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM seed_generations g
		 WHERE g.id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM rounds r
		       WHERE r.commitment_hash = g.commitment_hash AND r.revealed_secret = ''
		   )`, id)
	if err != nil {
		return fmt.Errorf("store: purge generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM seed_generations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("store: purge generation: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: generation %s", game.ErrGenerationInUse, id)
		}
		return game.ErrSeedNotFound
	}
	return nil
}

func (s *PgStore) NextNonce(ctx context.Context, commitment, clientSeed string, requested *uint64) (uint64, error) {
	if requested == nil {
		var nonce int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO nonce_counters (commitment_hash, client_seed, last_nonce) VALUES ($1, $2, 1)
			 ON CONFLICT (commitment_hash, client_seed)
			 DO UPDATE SET last_nonce = nonce_counters.last_nonce + 1
			 RETURNING last_nonce`,
			commitment, clientSeed).Scan(&nonce)
		if err != nil {
			return 0, fmt.Errorf("store: next nonce: %w", err)
		}
		return uint64(nonce), nil
	}

	// Explicit nonce: accepted only when strictly above the high-water mark,
	// so a value can never be reused. One atomic upsert; zero rows means
	// conflict. Values past int64 would wrap in the BIGINT column and dodge
	// the strictly-above check, so they are rejected outright.
	if *requested > math.MaxInt64 {
		return 0, fmt.Errorf("%w: nonce %d exceeds range", game.ErrNonceUsed, *requested)
	}
	var nonce int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO nonce_counters (commitment_hash, client_seed, last_nonce) VALUES ($1, $2, $3)
		 ON CONFLICT (commitment_hash, client_seed)
		 DO UPDATE SET last_nonce = $3
		 WHERE nonce_counters.last_nonce < $3
		 RETURNING last_nonce`,
		commitment, clientSeed, int64(*requested)).Scan(&nonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: nonce %d", game.ErrNonceUsed, *requested)
	}
	if err != nil {
		return 0, fmt.Errorf("store: claim nonce: %w", err)
	}
	return uint64(nonce), nil
}

func (s *PgStore) OpenRound(ctx context.Context, r game.Round) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: open round: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE id = $1 AND balance >= $2 RETURNING balance`,
		r.AccountID, r.Stake).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: account %s", game.ErrInsufficientFunds, r.AccountID)
	}
	if err != nil {
		return 0, fmt.Errorf("store: debit stake: %w", err)
	}

	selection, err := json.Marshal(r.Selection)
	if err != nil {
		return 0, fmt.Errorf("store: marshal selection: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO rounds (id, account_id, game_type, state, commitment_hash, client_seed, nonce, stake, selection, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.AccountID, string(r.GameType), string(r.State), r.CommitmentHash,
		r.ClientSeed, int64(r.Nonce), r.Stake, selection, r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("store: insert round: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: open round commit: %w", err)
	}
	return balance, nil
}

func (s *PgStore) SettleRound(ctx context.Context, id string, outcome game.Outcome, payout int64, at time.Time) (game.Round, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return game.Round{}, false, fmt.Errorf("store: settle round: %w", err)
	}
	defer tx.Rollback(ctx)

	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return game.Round{}, false, fmt.Errorf("store: marshal outcome: %w", err)
	}

	// Compare-and-set on state fused with the credit in one transaction.
	var accountID string
	err = tx.QueryRow(ctx,
		`UPDATE rounds SET state = 'CLOSED', outcome = $2, payout = $3, settled_at = $4
		 WHERE id = $1 AND state = 'OPEN'
		 RETURNING account_id`,
		id, outcomeJSON, payout, at).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race or unknown ID: report the stored state untouched.
		round, getErr := s.GetRound(ctx, id)
		if getErr != nil {
			return game.Round{}, false, getErr
		}
		return round, false, nil
	}
	if err != nil {
		return game.Round{}, false, fmt.Errorf("store: close round: %w", err)
	}

	if payout > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE id = $1`, accountID, payout); err != nil {
			return game.Round{}, false, fmt.Errorf("store: credit payout: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return game.Round{}, false, fmt.Errorf("store: settle commit: %w", err)
	}

	round, err := s.GetRound(ctx, id)
	if err != nil {
		return game.Round{}, false, err
	}
	return round, true, nil
}

func (s *PgStore) GetRound(ctx context.Context, id string) (game.Round, error) {
	var (
		r             game.Round
		gameType      string
		state         string
		nonce         int64
		selectionJSON []byte
		outcomeJSON   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, game_type, state, commitment_hash, client_seed, nonce, stake,
		        selection, outcome, payout, revealed_secret, created_at, settled_at
		 FROM rounds WHERE id = $1`, id).Scan(
		&r.ID, &r.AccountID, &gameType, &state, &r.CommitmentHash, &r.ClientSeed, &nonce,
		&r.Stake, &selectionJSON, &outcomeJSON, &r.Payout, &r.RevealedSecret, &r.CreatedAt, &r.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Round{}, game.ErrRoundNotFound
	}
	if err != nil {
		return game.Round{}, fmt.Errorf("store: get round: %w", err)
	}

	r.GameType = game.GameType(gameType)
	r.State = game.RoundState(state)
	r.Nonce = uint64(nonce)
	if err := json.Unmarshal(selectionJSON, &r.Selection); err != nil {
		return game.Round{}, fmt.Errorf("store: unmarshal selection: %w", err)
	}
	if outcomeJSON != nil {
		var o game.Outcome
		if err := json.Unmarshal(outcomeJSON, &o); err != nil {
			return game.Round{}, fmt.Errorf("store: unmarshal outcome: %w", err)
		}
		r.Outcome = &o
	}
	return r, nil
}

func (s *PgStore) MarkRevealed(ctx context.Context, id, secret string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds SET revealed_secret = $2 WHERE id = $1`, id, secret)
	if err != nil {
		return fmt.Errorf("store: mark revealed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrRoundNotFound
	}
	return nil
}

func (s *PgStore) SaveVerificationRecord(ctx context.Context, rec game.VerificationRecord) error {
	selection, err := json.Marshal(rec.Selection)
	if err != nil {
		return fmt.Errorf("store: marshal selection: %w", err)
	}
	outcome, err := json.Marshal(rec.Outcome)
	if err != nil {
		return fmt.Errorf("store: marshal outcome: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_records (round_id, secret, client_seed, nonce, game_type, selection, outcome, revealed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (round_id) DO NOTHING`,
		rec.RoundID, rec.Secret, rec.ClientSeed, int64(rec.Nonce), string(rec.GameType), selection, outcome, rec.RevealedAt)
	if err != nil {
		return fmt.Errorf("store: save verification record: %w", err)
	}
	return nil
}

func (s *PgStore) GetVerificationRecord(ctx context.Context, roundID string) (game.VerificationRecord, error) {
	var (
		rec           game.VerificationRecord
		gameType      string
		nonce         int64
		selectionJSON []byte
		outcomeJSON   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT round_id, secret, client_seed, nonce, game_type, selection, outcome, revealed_at
		 FROM verification_records WHERE round_id = $1`, roundID).Scan(
		&rec.RoundID, &rec.Secret, &rec.ClientSeed, &nonce, &gameType, &selectionJSON, &outcomeJSON, &rec.RevealedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.VerificationRecord{}, game.ErrRoundNotFound
	}
	if err != nil {
		return game.VerificationRecord{}, fmt.Errorf("store: get verification record: %w", err)
	}

	rec.GameType = game.GameType(gameType)
	rec.Nonce = uint64(nonce)
	if err := json.Unmarshal(selectionJSON, &rec.Selection); err != nil {
		return game.VerificationRecord{}, fmt.Errorf("store: unmarshal selection: %w", err)
	}
	if err := json.Unmarshal(outcomeJSON, &rec.Outcome); err != nil {
		return game.VerificationRecord{}, fmt.Errorf("store: unmarshal outcome: %w", err)
	}
	return rec, nil
}

func (s *PgStore) Deposit(ctx context.Context, accountID string, amount int64) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + $2
		 RETURNING balance`,
		accountID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("store: deposit: %w", err)
	}
	return balance, nil
}

func (s *PgStore) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: balance: %w", err)
	}
	return balance, nil
}
