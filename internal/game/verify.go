package game

import (
	"fmt"
	"math"
)

// VerifyRequest is the public tuple plus the outcome being checked.
type VerifyRequest struct {
	Secret     string    `json:"secret"`
	ClientSeed string    `json:"client_seed"`
	Nonce      uint64    `json:"nonce"`
	GameType   GameType  `json:"game_type"`
	Selection  Selection `json:"selection"`
	Outcome    Outcome   `json:"declared_outcome"`
}

// VerifyStep is one line of the recomputation trace.
type VerifyStep struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type VerifyResult struct {
	Valid      bool         `json:"valid"`
	Recomputed Outcome      `json:"recomputed_outcome"`
	Steps      []VerifyStep `json:"steps"`
}

// Verify re-executes derivation and outcome mapping from revealed data
// alone. It needs no access to seed or round storage, so any third party can
// run the same check against a settled round.
func Verify(cfg Config, req VerifyRequest) (VerifyResult, error) {
	recomputed, err := DeriveOutcome(cfg, req.GameType, req.Secret, req.ClientSeed, req.Nonce, req.Selection)
	if err != nil {
		return VerifyResult{}, err
	}

	steps := []VerifyStep{
		{Name: "commitment", Value: HashCommitment(req.Secret)},
		{Name: "message", Value: deriveMessage(req.ClientSeed, req.Nonce, 0)},
		{Name: "digest", Value: DigestHex(req.Secret, req.ClientSeed, req.Nonce)},
		{Name: "values", Value: fmt.Sprintf("%v", recomputed.Raw)},
		{Name: "outcome", Value: describeOutcome(recomputed)},
	}

	return VerifyResult{
		Valid:      outcomesMatch(recomputed, req.Outcome),
		Recomputed: recomputed,
		Steps:      steps,
	}, nil
}

func describeOutcome(o Outcome) string {
	switch o.GameType {
	case GameTypeDice:
		return fmt.Sprintf("face=%d multiplier=%.2f", o.DiceFace, o.Multiplier)
	case GameTypeCrash:
		return fmt.Sprintf("crash_point=%.2f", o.CrashPoint)
	case GameTypeReels:
		return fmt.Sprintf("stops=%v multiplier=%.2f", o.ReelStops, o.Multiplier)
	case GameTypeWheel:
		return fmt.Sprintf("pocket=%d color=%s parity=%s multiplier=%.2f", o.Pocket, o.Color, o.Parity, o.Multiplier)
	default:
		return fmt.Sprintf("multiplier=%.2f", o.Multiplier)
	}
}

// outcomesMatch compares the fields that define a result. Multipliers are
// exact to the cent since both sides round identically.
func outcomesMatch(a, b Outcome) bool {
	if a.GameType != b.GameType || a.Win != b.Win {
		return false
	}
	if math.Abs(a.Multiplier-b.Multiplier) > 1e-9 {
		return false
	}
	switch a.GameType {
	case GameTypeDice:
		return a.DiceFace == b.DiceFace
	case GameTypeCrash:
		return math.Abs(a.CrashPoint-b.CrashPoint) <= 1e-9
	case GameTypeReels:
		if len(a.ReelStops) != len(b.ReelStops) {
			return false
		}
		for i := range a.ReelStops {
			if a.ReelStops[i] != b.ReelStops[i] {
				return false
			}
		}
		return true
	case GameTypeWheel:
		return a.Pocket == b.Pocket && a.Color == b.Color && a.Parity == b.Parity
	}
	return true
}
