package game

import (
	"time"

	"github.com/shopspring/decimal"

	"flipzone/internal/config"
)

// Rules is the payout curve and the limits of a session.
type Rules struct {
	BaseRate         decimal.Decimal
	MaxMultiplier    decimal.Decimal
	MaxRounds        int
	MinBet           decimal.Decimal
	MaxBet           decimal.Decimal
	AnimationTimeout time.Duration
}

func DefaultRules() Rules {
	return Rules{
		BaseRate:         decimal.RequireFromString("1.2"),
		MaxMultiplier:    decimal.NewFromInt(4),
		MaxRounds:        15,
		MinBet:           decimal.RequireFromString("0.1"),
		MaxBet:           decimal.NewFromInt(10),
		AnimationTimeout: 5 * time.Second,
	}
}

func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		BaseRate:         cfg.BaseRate,
		MaxMultiplier:    cfg.MaxMultiplier,
		MaxRounds:        cfg.MaxRounds,
		MinBet:           cfg.MinBet,
		MaxBet:           cfg.MaxBet,
		AnimationTimeout: cfg.AnimationTimeout,
	}
}

// Multiplier returns base^wins, capped at MaxMultiplier. Repeated multiplication keeps it exact.
func (r Rules) Multiplier(wins int) decimal.Decimal {
	m := decimal.NewFromInt(1)
	for i := 0; i < wins; i++ {
		m = m.Mul(r.BaseRate)
		if m.GreaterThanOrEqual(r.MaxMultiplier) {
			return r.MaxMultiplier
		}
	}
	return m
}

// MaxPayout is the most a bet can return under the cap.
func (r Rules) MaxPayout(bet decimal.Decimal) decimal.Decimal {
	return bet.Mul(r.MaxMultiplier)
}

func (r Rules) validBet(bet decimal.Decimal) bool {
	return bet.GreaterThanOrEqual(r.MinBet) && bet.LessThanOrEqual(r.MaxBet)
}
