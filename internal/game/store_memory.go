package game

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and single-node
// development runs. One mutex covers rounds, ledger and nonce state so the
// open/settle transactions are trivially atomic.
type MemoryStore struct {
	mu          sync.Mutex
	generations map[string]SeedGeneration // by ID
	byCommit    map[string]string         // commitment -> generation ID
	rounds      map[string]*Round
	nonces      map[string]uint64 // (commitment|clientSeed) -> last allocated
	balances    map[string]int64
	records     map[string]VerificationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		generations: make(map[string]SeedGeneration),
		byCommit:    make(map[string]string),
		rounds:      make(map[string]*Round),
		nonces:      make(map[string]uint64),
		balances:    make(map[string]int64),
		records:     make(map[string]VerificationRecord),
	}
}

func nonceKey(commitment, clientSeed string) string {
	return commitment + "|" + clientSeed
}

func (s *MemoryStore) InsertGeneration(_ context.Context, gen SeedGeneration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[gen.ID] = gen
	s.byCommit[gen.CommitmentHash] = gen.ID
	return nil
}

func (s *MemoryStore) GenerationByCommitment(_ context.Context, commitment string) (SeedGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCommit[commitment]
	if !ok {
		return SeedGeneration{}, ErrSeedNotFound
	}
	return s.generations[id], nil
}

func (s *MemoryStore) RetireGeneration(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.generations[id]
	if !ok {
		return ErrSeedNotFound
	}
	gen.RetiredAt = &at
	s.generations[id] = gen
	return nil
}

func (s *MemoryStore) PurgeGeneration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.generations[id]
	if !ok {
		return ErrSeedNotFound
	}
	for _, r := range s.rounds {
		if r.CommitmentHash == gen.CommitmentHash && r.RevealedSecret == "" {
			return fmt.Errorf("%w: generation %s", ErrGenerationInUse, id)
		}
	}
	delete(s.byCommit, gen.CommitmentHash)
	delete(s.generations, id)
	return nil
}

func (s *MemoryStore) NextNonce(_ context.Context, commitment, clientSeed string, requested *uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nonceKey(commitment, clientSeed)
	next := s.nonces[key] + 1
	if requested != nil {
		// Nonces persist as BIGINT; values past int64 can never round-trip.
		if *requested > math.MaxInt64 {
			return 0, fmt.Errorf("%w: nonce %d exceeds range", ErrNonceUsed, *requested)
		}
		if *requested < next {
			return 0, fmt.Errorf("%w: requested %d, high-water mark %d", ErrNonceUsed, *requested, next-1)
		}
		next = *requested
	}
	s.nonces[key] = next
	return next, nil
}

func (s *MemoryStore) OpenRound(_ context.Context, r Round) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balances[r.AccountID]
	if bal < r.Stake {
		return bal, fmt.Errorf("%w: balance %d, stake %d", ErrInsufficientFunds, bal, r.Stake)
	}
	s.balances[r.AccountID] = bal - r.Stake
	stored := r
	s.rounds[r.ID] = &stored
	return s.balances[r.AccountID], nil
}

func (s *MemoryStore) SettleRound(_ context.Context, id string, outcome Outcome, payout int64, at time.Time) (Round, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return Round{}, false, ErrRoundNotFound
	}
	if r.State != RoundOpen {
		return *r, false, nil
	}
	o := outcome
	r.State = RoundClosed
	r.Outcome = &o
	r.Payout = payout
	settled := at
	r.SettledAt = &settled
	s.balances[r.AccountID] += payout
	return *r, true, nil
}

func (s *MemoryStore) GetRound(_ context.Context, id string) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return Round{}, ErrRoundNotFound
	}
	return *r, nil
}

func (s *MemoryStore) MarkRevealed(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return ErrRoundNotFound
	}
	r.RevealedSecret = secret
	return nil
}

func (s *MemoryStore) SaveVerificationRecord(_ context.Context, rec VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RoundID] = rec
	return nil
}

func (s *MemoryStore) GetVerificationRecord(_ context.Context, roundID string) (VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[roundID]
	if !ok {
		return VerificationRecord{}, ErrRoundNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Deposit(_ context.Context, accountID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] += amount
	return s.balances[accountID], nil
}

func (s *MemoryStore) Balance(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID], nil
}
