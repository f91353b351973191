package game

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StateWon     State = "won"
	StateLost    State = "lost"
)

// Session is the committed view of a play session. Presentation code only ever sees copies.
type Session struct {
	State           State           `json:"state"`
	SessionID       *big.Int        `json:"session_id,omitempty"`
	Commitment      string          `json:"commitment,omitempty"`
	BetAmount       decimal.Decimal `json:"bet_amount"`
	RoundIndex      int             `json:"round_index"`
	MaxRounds       int             `json:"max_rounds"`
	ConsecutiveWins int             `json:"consecutive_wins"`
	Multiplier      decimal.Decimal `json:"multiplier"`
	PotentialWin    decimal.Decimal `json:"potential_win"`
	LastOutcome     *fairness.Side  `json:"last_outcome,omitempty"`
	LastPayout      decimal.Decimal `json:"last_payout"`
	FlipPending     bool            `json:"flip_pending"`
}

func (s Session) clone() Session {
	c := s
	if s.SessionID != nil {
		c.SessionID = new(big.Int).Set(s.SessionID)
	}
	if s.LastOutcome != nil {
		side := *s.LastOutcome
		c.LastOutcome = &side
	}
	return c
}

// RoundResult is what a ticket resolves to once its round is committed.
type RoundResult struct {
	Token   string        `json:"token"`
	Round   int           `json:"round"`
	Chosen  fairness.Side `json:"chosen"`
	Outcome fairness.Side `json:"outcome"`
	Won     bool          `json:"won"`
	Forced  bool          `json:"forced"`
	Session Session       `json:"session"`
}

// Settlement is the realized payout of a cash-out, with the proof bundle for the session.
type Settlement struct {
	SessionID *big.Int        `json:"session_id"`
	TxHash    string          `json:"tx_hash"`
	Amount    decimal.Decimal `json:"amount"`
	Rounds    int             `json:"rounds"`
	Proof     fairness.Bundle `json:"proof"`
}

// SavedSession is the state needed to resume a session after a restart.
type SavedSession struct {
	SessionID  string                `json:"session_id"`
	Secret     string                `json:"client_seed"`
	Commitment string                `json:"client_seed_hash"`
	BetAmount  decimal.Decimal       `json:"bet_amount"`
	History    []fairness.RoundProof `json:"history"`
	SavedAt    time.Time             `json:"saved_at"`
}

// FlipRecord is one resolved round for the audit trail.
type FlipRecord struct {
	SessionID string
	Round     int
	Chosen    fairness.Side
	Outcome   fairness.Side
	Won       bool
	Streak    uint64
	Entropy   fairness.Entropy
	TxHash    string
	Verified  bool
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type FlipPendingMessage struct {
	Token   string        `json:"token"`
	Round   int           `json:"round"`
	Outcome fairness.Side `json:"outcome"`
	Won     bool          `json:"won"`
}
