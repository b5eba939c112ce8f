package game

import (
	"fmt"
	"math"
)

const (
	DefaultHouseEdge = 0.04
	DefaultDiceSides = 6
	DefaultReelCount = 3
	WheelPockets     = 37 // 0..36
)

// DefaultReelSymbols is the symbol strip shared by every reel.
var DefaultReelSymbols = []string{"cherry", "lemon", "orange", "plum", "bell", "grape", "star", "seven"}

// Paytable maps reel combinations to payout multipliers. Triple is indexed
// by symbol; any two matching symbols pay Pair.
type Paytable struct {
	Triple []float64 `json:"triple"`
	Pair   float64   `json:"pair"`
}

var DefaultPaytable = Paytable{
	Triple: []float64{25, 2, 3, 4, 8, 6, 12, 50},
	Pair:   1.5,
}

// Config carries the tunables that shape outcome derivation. A config is
// fixed for the lifetime of a deployment; changing it invalidates published
// paytables, not settled rounds.
type Config struct {
	HouseEdge   float64
	DiceSides   int
	ReelCount   int
	ReelSymbols []string
	Paytable    Paytable
	MinStake    int64
	MaxStake    int64
}

func DefaultConfig() Config {
	return Config{
		HouseEdge:   DefaultHouseEdge,
		DiceSides:   DefaultDiceSides,
		ReelCount:   DefaultReelCount,
		ReelSymbols: DefaultReelSymbols,
		Paytable:    DefaultPaytable,
		MinStake:    100,      // cents
		MaxStake:    10000000, // cents
	}
}

// wheelRedPockets is the fixed European layout; 0 is green.
var wheelRedPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DeriveOutcome dispatches over the closed set of game types. Adding a game
// type is a deliberate change to the verification contract, so there is no
// open registry here.
func DeriveOutcome(cfg Config, gameType GameType, secret, clientSeed string, nonce uint64, sel Selection) (Outcome, error) {
	switch gameType {
	case GameTypeDice:
		return deriveDice(cfg, secret, clientSeed, nonce, sel), nil
	case GameTypeCrash:
		return deriveCrash(cfg, secret, clientSeed, nonce), nil
	case GameTypeReels:
		return deriveReels(cfg, secret, clientSeed, nonce), nil
	case GameTypeWheel:
		return deriveWheel(cfg, secret, clientSeed, nonce, sel), nil
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidGameType, gameType)
	}
}

// ValidateSelection rejects selections outside the game's domain before any
// state is touched.
func ValidateSelection(cfg Config, gameType GameType, sel Selection) error {
	switch gameType {
	case GameTypeDice:
		if sel.Target < 1 || sel.Target > cfg.DiceSides {
			return fmt.Errorf("%w: dice target %d", ErrInvalidSelection, sel.Target)
		}
	case GameTypeCrash, GameTypeReels:
		// no selection: crash pays the derived multiplier, reels pay the paytable
	case GameTypeWheel:
		switch sel.Kind {
		case "pocket":
			if sel.Target < 0 || sel.Target >= WheelPockets {
				return fmt.Errorf("%w: wheel pocket %d", ErrInvalidSelection, sel.Target)
			}
		case "color":
			if sel.Value != "red" && sel.Value != "black" {
				return fmt.Errorf("%w: wheel color %q", ErrInvalidSelection, sel.Value)
			}
		case "parity":
			if sel.Value != "even" && sel.Value != "odd" {
				return fmt.Errorf("%w: wheel parity %q", ErrInvalidSelection, sel.Value)
			}
		default:
			return fmt.Errorf("%w: wheel bet kind %q", ErrInvalidSelection, sel.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidGameType, gameType)
	}
	return nil
}

func deriveDice(cfg Config, secret, clientSeed string, nonce uint64, sel Selection) Outcome {
	v := DeriveFloats(secret, clientSeed, nonce, 1)[0]
	face := 1 + int(v*float64(cfg.DiceSides))
	win := face == sel.Target
	mult := 0.0
	if win {
		mult = round2(float64(cfg.DiceSides) * (1 - cfg.HouseEdge))
	}
	return Outcome{
		GameType:   GameTypeDice,
		Multiplier: mult,
		Win:        win,
		DiceFace:   face,
		Raw:        []float64{v},
	}
}

// deriveCrash maps one uniform value to a multiplier through the
// inverse-exponential curve that encodes the house edge. The exact shape and
// the 2-decimal rounding are part of the public verification contract.
func deriveCrash(cfg Config, secret, clientSeed string, nonce uint64) Outcome {
	v := DeriveFloats(secret, clientSeed, nonce, 1)[0]
	point := math.Exp(v * math.Log(1/(1-cfg.HouseEdge)))
	point = round2(point)
	if point < 1.0 {
		point = 1.0
	}
	return Outcome{
		GameType:   GameTypeCrash,
		Multiplier: point,
		Win:        point > 1.0,
		CrashPoint: point,
		Raw:        []float64{v},
	}
}

func deriveReels(cfg Config, secret, clientSeed string, nonce uint64) Outcome {
	stops := DeriveInts(secret, clientSeed, nonce, cfg.ReelCount, uint32(len(cfg.ReelSymbols)))
	floats := DeriveFloats(secret, clientSeed, nonce, cfg.ReelCount)
	mult := cfg.Paytable.multiplier(stops)
	return Outcome{
		GameType:   GameTypeReels,
		Multiplier: mult,
		Win:        mult > 0,
		ReelStops:  stops,
		Raw:        floats,
	}
}

func (p Paytable) multiplier(stops []int) float64 {
	counts := make(map[int]int, len(stops))
	for _, s := range stops {
		counts[s]++
	}
	for s, n := range counts {
		if n == len(stops) && len(stops) > 1 {
			if s < len(p.Triple) {
				return p.Triple[s]
			}
			return 0
		}
		if n >= 2 && len(stops) > 2 {
			return p.Pair
		}
	}
	return 0
}

func deriveWheel(cfg Config, secret, clientSeed string, nonce uint64, sel Selection) Outcome {
	v := DeriveFloats(secret, clientSeed, nonce, 1)[0]
	pocket := int(v * WheelPockets)

	color := "green"
	parity := ""
	if pocket != 0 {
		if wheelRedPockets[pocket] {
			color = "red"
		} else {
			color = "black"
		}
		if pocket%2 == 0 {
			parity = "even"
		} else {
			parity = "odd"
		}
	}

	win := false
	mult := 0.0
	switch sel.Kind {
	case "pocket":
		if pocket == sel.Target {
			win = true
			mult = round2(float64(WheelPockets-1) * (1 - cfg.HouseEdge))
		}
	case "color":
		if color == sel.Value {
			win = true
			mult = round2(2 * (1 - cfg.HouseEdge))
		}
	case "parity":
		if parity == sel.Value {
			win = true
			mult = round2(2 * (1 - cfg.HouseEdge))
		}
	}

	return Outcome{
		GameType:   GameTypeWheel,
		Multiplier: mult,
		Win:        win,
		Pocket:     pocket,
		Color:      color,
		Parity:     parity,
		Raw:        []float64{v},
	}
}

// PayoutFor converts a stake in cents through an outcome multiplier,
// rounding half away from zero to whole cents.
func PayoutFor(stake int64, o Outcome) int64 {
	if !o.Win && o.Multiplier == 0 {
		return 0
	}
	return int64(math.Round(float64(stake) * o.Multiplier))
}
