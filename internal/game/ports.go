package game

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
	"flipzone/internal/ledger"
)

// Gateway is the subset of the ledger the engine drives. *ledger.Gateway implements it.
type Gateway interface {
	StartRound(ctx context.Context, bet decimal.Decimal, commitment common.Hash) (*ledger.StartReceipt, error)
	SubmitFlip(ctx context.Context, sessionID *big.Int, secret string, side fairness.Side) (*ledger.FlipReceipt, error)
	CashOut(ctx context.Context, sessionID *big.Int, secret string) (*ledger.CashOutReceipt, error)
	QueryRound(ctx context.Context, sessionID *big.Int) (*ledger.RoundInfo, error)
}

// Preconditions reports whether a session may be started at all.
type Preconditions interface {
	Ready(ctx context.Context) error
}

// SessionStore keeps the resumable part of an in-progress session.
type SessionStore interface {
	Save(ctx context.Context, s SavedSession) error
	Load(ctx context.Context) (*SavedSession, error)
	Clear(ctx context.Context) error
}

// Recorder writes the audit trail.
type Recorder interface {
	OpenSession(ctx context.Context, sessionID string, commitment common.Hash, bet decimal.Decimal, txHash string) error
	RecordFlip(ctx context.Context, rec FlipRecord) error
	CloseSession(ctx context.Context, sessionID string, state State, secret string, payout decimal.Decimal) error
}

type Notifier interface {
	Broadcast(message interface{})
}

type Option func(*Engine)

func WithStore(s SessionStore) Option {
	return func(e *Engine) { e.store = s }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}
