package game

import (
	"errors"
	"time"
)

type GameType string

const (
	GameTypeDice  GameType = "dice"
	GameTypeCrash GameType = "crash"
	GameTypeReels GameType = "reels"
	GameTypeWheel GameType = "wheel"
)

// RoundState values. Settling is transient inside the store transaction and
// never observable as a resting state.
type RoundState string

const (
	RoundOpen   RoundState = "OPEN"
	RoundClosed RoundState = "CLOSED"
)

var (
	ErrRoundNotFound     = errors.New("round not found")
	ErrSeedNotFound      = errors.New("seed generation not found")
	ErrNonceUsed         = errors.New("nonce already used for this seed pair")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidStake      = errors.New("stake out of bounds")
	ErrInvalidGameType   = errors.New("unknown game type")
	ErrInvalidClientSeed = errors.New("client seed must be 8-64 characters")
	ErrInvalidSelection  = errors.New("invalid selection for game type")
	ErrGenerationInUse   = errors.New("seed generation has unrevealed rounds")
)

// Round is the unit of play: one stake, one outcome, settled exactly once.
// Stake and Payout are integer cents.
type Round struct {
	ID             string     `json:"round_id"`
	AccountID      string     `json:"account_id"`
	GameType       GameType   `json:"game_type"`
	State          RoundState `json:"state"`
	CommitmentHash string     `json:"commitment_hash"`
	ClientSeed     string     `json:"client_seed"`
	Nonce          uint64     `json:"nonce"`
	Stake          int64      `json:"stake"`
	Selection      Selection  `json:"selection"`
	Outcome        *Outcome   `json:"outcome,omitempty"`
	Payout         int64      `json:"payout"`
	RevealedSecret string     `json:"revealed_secret,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

// Selection is the caller's pick, interpreted per game type. Unused fields
// stay zero.
type Selection struct {
	Target int    `json:"target,omitempty"` // dice face or wheel pocket
	Kind   string `json:"kind,omitempty"`   // wheel: "pocket", "color" or "parity"
	Value  string `json:"value,omitempty"`  // wheel color/parity value
}

// Outcome is the structured game result derived from raw randomness.
type Outcome struct {
	GameType   GameType  `json:"game_type"`
	Multiplier float64   `json:"multiplier"`
	Win        bool      `json:"win"`
	DiceFace   int       `json:"dice_face,omitempty"`
	CrashPoint float64   `json:"crash_point,omitempty"`
	ReelStops  []int     `json:"reel_stops,omitempty"`
	Pocket     int       `json:"pocket,omitempty"`
	Color      string    `json:"color,omitempty"`
	Parity     string    `json:"parity,omitempty"`
	Raw        []float64 `json:"raw,omitempty"`
}

// SeedGeneration is one lifetime of the operator secret. The secret stays
// private until every round referencing the generation has revealed.
type SeedGeneration struct {
	ID             string     `json:"id"`
	Secret         string     `json:"-"`
	CommitmentHash string     `json:"commitment_hash"`
	CreatedAt      time.Time  `json:"created_at"`
	RetiredAt      *time.Time `json:"retired_at,omitempty"`
}

// VerificationRecord is the public tuple sufficient to recompute a settled
// round's outcome with no access to engine storage.
type VerificationRecord struct {
	RoundID    string    `json:"round_id"`
	Secret     string    `json:"secret"`
	ClientSeed string    `json:"client_seed"`
	Nonce      uint64    `json:"nonce"`
	GameType   GameType  `json:"game_type"`
	Selection  Selection `json:"selection"`
	Outcome    Outcome   `json:"outcome"`
	RevealedAt time.Time `json:"revealed_at"`
}

type OpenRequest struct {
	AccountID  string    `json:"account_id"`
	GameType   GameType  `json:"game_type"`
	Stake      int64     `json:"stake"`
	Selection  Selection `json:"selection"`
	ClientSeed string    `json:"client_seed,omitempty"`
	Nonce      *uint64   `json:"nonce,omitempty"`
}

type OpenResponse struct {
	RoundID        string `json:"round_id"`
	CommitmentHash string `json:"commitment_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
	Balance        int64  `json:"balance"`
}

type SettleResponse struct {
	RoundID        string     `json:"round_id"`
	State          RoundState `json:"state"`
	Outcome        Outcome    `json:"outcome"`
	Payout         int64      `json:"payout"`
	RevealedSecret string     `json:"revealed_secret,omitempty"`
}

// RevealEvent is broadcast on the audit feed once a round's secret is public.
type RevealEvent struct {
	Type   string             `json:"type"`
	Record VerificationRecord `json:"data"`
}
