package database

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
	"flipzone/internal/game"
)

var ErrSessionNotFound = errors.New("session not found")

// Recorder writes the audit trail of sessions and rounds. It satisfies game.Recorder.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

func (r *Recorder) OpenSession(ctx context.Context, sessionID string, commitment common.Hash, bet decimal.Decimal, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO flip_sessions (session_id, commitment, bet_amount, start_tx)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, commitment.Hex(), bet.String(), txHash)
	return errors.Wrapf(err, "insert session %s", sessionID)
}

func (r *Recorder) RecordFlip(ctx context.Context, rec game.FlipRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO flip_rounds (session_id, round, chosen, outcome, won, streak, server_seed, block_number, nonce, tx_hash, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, round) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			won = EXCLUDED.won,
			streak = EXCLUDED.streak,
			server_seed = EXCLUDED.server_seed,
			block_number = EXCLUDED.block_number,
			nonce = EXCLUDED.nonce,
			tx_hash = EXCLUDED.tx_hash,
			verified = EXCLUDED.verified`,
		rec.SessionID, rec.Round, rec.Chosen.String(), rec.Outcome.String(), rec.Won, int64(rec.Streak),
		rec.Entropy.ServerSeed.Hex(), int64(rec.Entropy.BlockNumber), strconv.FormatUint(rec.Entropy.Nonce, 10),
		rec.TxHash, rec.Verified)
	return errors.Wrapf(err, "insert round %d of session %s", rec.Round, rec.SessionID)
}

// CloseSession marks the session finished and stores the revealed client seed.
func (r *Recorder) CloseSession(ctx context.Context, sessionID string, state game.State, secret string, payout decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE flip_sessions
		SET state = $2, client_seed = $3, payout = $4, closed_at = NOW()
		WHERE session_id = $1`,
		sessionID, string(state), secret, payout.String())
	if err != nil {
		return errors.Wrapf(err, "close session %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrSessionNotFound, "close session %s", sessionID)
	}
	return nil
}

// SessionAudit is everything recorded about one session.
type SessionAudit struct {
	SessionID  string                `json:"session_id"`
	Commitment string                `json:"commitment"`
	BetAmount  decimal.Decimal       `json:"bet_amount"`
	StartTx    string                `json:"start_tx"`
	State      string                `json:"state"`
	Secret     string                `json:"client_seed,omitempty"`
	Payout     decimal.Decimal       `json:"payout"`
	CreatedAt  time.Time             `json:"created_at"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
	Rounds     []fairness.RoundProof `json:"rounds"`
}

// Bundle builds a verification bundle once the client seed has been revealed.
func (a SessionAudit) Bundle() (fairness.Bundle, bool) {
	if a.Secret == "" {
		return fairness.Bundle{}, false
	}
	b := fairness.NewBundle(a.Secret, common.HexToHash(a.Commitment), a.Rounds)
	if a.ClosedAt != nil {
		b.Timestamp = a.ClosedAt.UnixMilli()
	}
	return b, true
}

func (r *Recorder) SessionAudit(ctx context.Context, sessionID string) (*SessionAudit, error) {
	var (
		a      SessionAudit
		bet    string
		secret *string
		payout *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, commitment, bet_amount::text, start_tx, state, client_seed, payout::text, created_at, closed_at
		FROM flip_sessions WHERE session_id = $1`, sessionID).
		Scan(&a.SessionID, &a.Commitment, &bet, &a.StartTx, &a.State, &secret, &payout, &a.CreatedAt, &a.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", sessionID)
	}

	if a.BetAmount, err = decimal.NewFromString(bet); err != nil {
		return nil, errors.Wrap(err, "parse bet amount")
	}
	if secret != nil {
		a.Secret = *secret
	}
	if payout != nil {
		if a.Payout, err = decimal.NewFromString(*payout); err != nil {
			return nil, errors.Wrap(err, "parse payout")
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT round, outcome, server_seed, block_number, nonce::text
		FROM flip_rounds WHERE session_id = $1 ORDER BY round`, sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "load rounds of session %s", sessionID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p          fairness.RoundProof
			outcome    string
			serverSeed string
			block      int64
			nonce      string
		)
		if err := rows.Scan(&p.Round, &outcome, &serverSeed, &block, &nonce); err != nil {
			return nil, errors.Wrap(err, "scan round")
		}
		if p.Result, err = fairness.ParseSide(outcome); err != nil {
			return nil, errors.Wrapf(err, "round %d", p.Round)
		}
		if p.Entropy.Nonce, err = strconv.ParseUint(nonce, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "round %d nonce", p.Round)
		}
		p.Entropy.ServerSeed = common.HexToHash(serverSeed)
		p.Entropy.BlockNumber = uint64(block)
		a.Rounds = append(a.Rounds, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rounds")
	}
	return &a, nil
}
