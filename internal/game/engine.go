package game

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
	"flipzone/internal/gameerr"
)

// SIDE_EFFECT_TIMEOUT bounds cache and audit writes that run after a transition commits.
const SIDE_EFFECT_TIMEOUT = 5 * time.Second

type seedCommitment struct {
	secret string
	hash   common.Hash
}

// Engine owns the lifecycle of a single play session. The mutex guards memory only and is
// never held across a ledger call; ordering between operations is enforced by state.
type Engine struct {
	rules    Rules
	gateway  Gateway
	ready    Preconditions
	store    SessionStore
	recorder Recorder
	notifier Notifier

	mu       sync.Mutex
	session  Session
	seed     *seedCommitment
	history  []fairness.RoundProof
	pending  *pendingRound
	inFlight string
	epoch    uint64
	proof    *fairness.Bundle
}

func NewEngine(gateway Gateway, ready Preconditions, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		rules:   rules,
		gateway: gateway,
		ready:   ready,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = e.idleSession()
	return e
}

func (e *Engine) Rules() Rules { return e.rules }

func (e *Engine) idleSession() Session {
	return Session{
		State:        StateIdle,
		MaxRounds:    e.rules.MaxRounds,
		Multiplier:   decimal.NewFromInt(1),
		PotentialWin: decimal.Zero,
		LastPayout:   decimal.Zero,
	}
}

// Snapshot returns a copy of the committed session. A round awaiting presentation is not
// reflected until it is completed.
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Session {
	s := e.session.clone()
	s.FlipPending = e.pending != nil
	return s
}

// Proof returns the verification bundle of the last finished session.
func (e *Engine) Proof() (fairness.Bundle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proof == nil {
		return fairness.Bundle{}, false
	}
	b := *e.proof
	b.Rounds = append([]fairness.RoundProof(nil), e.proof.Rounds...)
	return b, true
}

func (e *Engine) Start(ctx context.Context, bet decimal.Decimal) (Session, error) {
	const op = "start"

	if err := e.ready.Ready(ctx); err != nil {
		var pe *gameerr.PreconditionError
		if !errors.As(err, &pe) {
			err = &gameerr.PreconditionError{Reason: err.Error()}
		}
		return Session{}, err
	}
	if !e.rules.validBet(bet) {
		return Session{}, errors.Wrapf(gameerr.ErrInvalidBet, "%s not in [%s, %s]", bet, e.rules.MinBet, e.rules.MaxBet)
	}

	secret, err := fairness.GenerateSeed()
	if err != nil {
		return Session{}, errors.Wrap(err, "generate client seed")
	}
	commitment := fairness.Commit(secret)

	e.mu.Lock()
	switch e.session.State {
	case StateIdle, StateWon, StateLost:
	default:
		state := e.session.State
		e.mu.Unlock()
		return Session{}, &gameerr.InvalidStateError{Op: op, State: string(state), Reason: "a session is already active"}
	}
	if e.inFlight != "" {
		busy := e.inFlight
		e.mu.Unlock()
		return Session{}, &gameerr.InvalidStateError{Op: op, Reason: busy + " is still in flight"}
	}
	e.epoch++
	epoch := e.epoch
	e.inFlight = op
	e.seed, e.history = nil, nil
	e.session = e.idleSession()
	e.session.State = StateLoading
	e.session.BetAmount = bet
	loading := e.snapshotLocked()
	e.mu.Unlock()
	e.publish(loading)

	receipt, err := e.gateway.StartRound(ctx, bet, commitment)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		if err == nil {
			log.Printf("[ENGINE] Dropping session %s: engine was reset while it started", receipt.SessionID)
		}
		return Session{}, gameerr.ErrRoundDiscarded
	}
	e.inFlight = ""
	if err != nil {
		e.session = e.idleSession()
		idle := e.snapshotLocked()
		e.mu.Unlock()
		log.Printf("[ENGINE] Start failed: %v", err)
		e.publish(idle)
		return Session{}, err
	}

	e.seed = &seedCommitment{secret: secret, hash: commitment}
	e.proof = nil
	e.session = Session{
		State:        StatePlaying,
		SessionID:    new(big.Int).Set(receipt.SessionID),
		Commitment:   commitment.Hex(),
		BetAmount:    bet,
		MaxRounds:    e.rules.MaxRounds,
		Multiplier:   decimal.NewFromInt(1),
		PotentialWin: e.rules.MaxPayout(bet),
		LastPayout:   decimal.Zero,
	}
	started := e.snapshotLocked()
	saved := e.savedLocked()
	e.mu.Unlock()

	log.Printf("[ENGINE] Session %s started: bet=%s commitment=%s", receipt.SessionID, bet, commitment.Hex())

	e.persist(saved)
	if e.recorder != nil {
		e.sideEffect("open session", func(ctx context.Context) error {
			return e.recorder.OpenSession(ctx, receipt.SessionID.String(), commitment, bet, receipt.TxHash.Hex())
		})
	}
	e.publish(started)
	return started, nil
}

// Flip submits a guess and returns once the ledger outcome has been confirmed and verified.
// The session does not change until the returned ticket is completed.
func (e *Engine) Flip(ctx context.Context, side fairness.Side) (*Ticket, error) {
	const op = "flip"

	e.mu.Lock()
	if err := e.checkPlayLocked(op); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	// After the last allowed win the session stays in playing with RoundIndex == MaxRounds;
	// the only ways out are cash out and reset.
	if e.session.RoundIndex >= e.session.MaxRounds {
		e.mu.Unlock()
		return nil, &gameerr.InvalidStateError{Op: op, State: string(StatePlaying), Reason: "maximum rounds reached, cash out or reset"}
	}
	e.inFlight = op
	epoch := e.epoch
	sessionID := new(big.Int).Set(e.session.SessionID)
	seed := *e.seed
	round := e.session.RoundIndex + 1
	e.mu.Unlock()

	receipt, err := e.gateway.SubmitFlip(ctx, sessionID, seed.secret, side)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil, gameerr.ErrRoundDiscarded
	}
	e.inFlight = ""
	if err != nil {
		e.mu.Unlock()
		log.Printf("[ENGINE] Session %s round %d flip failed: %v", sessionID, round, err)
		return nil, err
	}

	report := fairness.Inspect(seed.secret, seed.hash, receipt.Entropy, receipt.Outcome)
	rec := FlipRecord{
		SessionID: sessionID.String(),
		Round:     round,
		Chosen:    side,
		Outcome:   receipt.Outcome,
		Won:       receipt.Won,
		Streak:    receipt.Streak,
		Entropy:   receipt.Entropy,
		TxHash:    receipt.TxHash.Hex(),
		Verified:  report.Valid(),
	}

	var mismatch error
	switch {
	case !report.CommitmentOK:
		mismatch = &gameerr.CommitmentMismatchError{Kind: gameerr.MismatchCommitment, Round: round}
	case !report.OutcomeOK, receipt.Won != (receipt.Outcome == side):
		mismatch = &gameerr.CommitmentMismatchError{Kind: gameerr.MismatchOutcome, Round: round}
	}
	if mismatch != nil {
		e.mu.Unlock()
		log.Printf("[ENGINE] Session %s round %d failed verification: %v", sessionID, round, mismatch)
		e.recordFlip(rec)
		return nil, mismatch
	}

	if receipt.Won && receipt.Streak != uint64(e.session.ConsecutiveWins+1) {
		log.Printf("[ENGINE] Session %s: ledger streak %d differs from local %d", sessionID, receipt.Streak, e.session.ConsecutiveWins+1)
	}
	p := e.holdLocked(round, side, receipt.Outcome, receipt.Won, receipt.Entropy, receipt.TxHash.Hex())
	ticket := p.ticket
	e.mu.Unlock()

	e.recordFlip(rec)
	e.notify(WSMessage{Type: "flip_pending", Data: FlipPendingMessage{
		Token:   ticket.Token,
		Round:   round,
		Outcome: receipt.Outcome,
		Won:     receipt.Won,
	}})
	return ticket, nil
}

func (e *Engine) CashOut(ctx context.Context) (*Settlement, error) {
	const op = "cashOut"

	e.mu.Lock()
	if err := e.checkPlayLocked(op); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.session.ConsecutiveWins == 0 {
		e.mu.Unlock()
		return nil, &gameerr.InvalidStateError{Op: op, State: string(StatePlaying), Reason: "no rounds won"}
	}
	e.inFlight = op
	epoch := e.epoch
	sessionID := new(big.Int).Set(e.session.SessionID)
	seed := *e.seed
	e.mu.Unlock()

	receipt, err := e.gateway.CashOut(ctx, sessionID, seed.secret)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil, gameerr.ErrRoundDiscarded
	}
	e.inFlight = ""
	if err != nil {
		e.mu.Unlock()
		log.Printf("[ENGINE] Session %s cash-out failed: %v", sessionID, err)
		return nil, err
	}

	rounds := e.session.RoundIndex
	bundle := fairness.NewBundle(seed.secret, seed.hash, append([]fairness.RoundProof(nil), e.history...))
	e.proof = &bundle
	e.seed = nil
	e.session = e.idleSession()
	e.session.State = StateWon
	e.session.LastPayout = receipt.Amount
	won := e.snapshotLocked()
	e.mu.Unlock()

	log.Printf("[ENGINE] Session %s cashed out %s after %d rounds", sessionID, receipt.Amount, rounds)

	e.clearStore()
	e.closeSession(sessionID.String(), StateWon, seed.secret, receipt.Amount)
	e.publish(won)

	return &Settlement{
		SessionID: sessionID,
		TxHash:    receipt.TxHash.Hex(),
		Amount:    receipt.Amount,
		Rounds:    rounds,
		Proof:     bundle,
	}, nil
}

// Reset returns to idle from any state. A pending round is discarded and results of ledger
// calls still in flight are ignored when they arrive.
func (e *Engine) Reset() Session {
	e.mu.Lock()
	e.discardLocked()
	e.epoch++
	e.inFlight = ""
	e.seed, e.history, e.proof = nil, nil, nil
	e.session = e.idleSession()
	idle := e.snapshotLocked()
	e.mu.Unlock()

	e.clearStore()
	e.publish(idle)
	return idle
}

// Restore resumes a saved session if the ledger still considers it active.
func (e *Engine) Restore(ctx context.Context) (Session, error) {
	const op = "restore"
	if e.store == nil {
		return e.Snapshot(), nil
	}

	e.mu.Lock()
	if e.session.State != StateIdle || e.inFlight != "" {
		state := e.session.State
		e.mu.Unlock()
		return Session{}, &gameerr.InvalidStateError{Op: op, State: string(state), Reason: "restore is only possible from idle"}
	}
	epoch := e.epoch
	e.mu.Unlock()

	saved, err := e.store.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	if saved == nil {
		return e.Snapshot(), nil
	}

	sessionID, ok := new(big.Int).SetString(saved.SessionID, 10)
	if !ok {
		log.Printf("[ENGINE] Discarding saved session with malformed id %q", saved.SessionID)
		e.clearStore()
		return e.Snapshot(), nil
	}

	info, err := e.gateway.QueryRound(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}

	commitment := fairness.Commit(saved.Secret)
	if !info.Active || info.Commitment != commitment || int(info.RoundIndex) > e.rules.MaxRounds {
		log.Printf("[ENGINE] Saved session %s is no longer resumable (active=%v)", sessionID, info.Active)
		e.clearStore()
		return e.Snapshot(), nil
	}

	e.mu.Lock()
	if e.epoch != epoch || e.session.State != StateIdle {
		e.mu.Unlock()
		return Session{}, gameerr.ErrRoundDiscarded
	}
	e.epoch++
	wins := int(info.Streak)
	e.seed = &seedCommitment{secret: saved.Secret, hash: commitment}
	e.history = append([]fairness.RoundProof(nil), saved.History...)
	e.proof = nil
	e.session = Session{
		State:           StatePlaying,
		SessionID:       sessionID,
		Commitment:      commitment.Hex(),
		BetAmount:       saved.BetAmount,
		RoundIndex:      int(info.RoundIndex),
		MaxRounds:       e.rules.MaxRounds,
		ConsecutiveWins: wins,
		Multiplier:      e.rules.Multiplier(wins),
		PotentialWin:    saved.BetAmount.Mul(e.rules.Multiplier(wins)),
		LastPayout:      decimal.Zero,
	}
	if wins == 0 {
		e.session.PotentialWin = e.rules.MaxPayout(saved.BetAmount)
	}
	restored := e.snapshotLocked()
	e.mu.Unlock()

	log.Printf("[ENGINE] Session %s restored at round %d with %d wins", sessionID, restored.RoundIndex, wins)
	e.publish(restored)
	return restored, nil
}

func (e *Engine) checkPlayLocked(op string) error {
	if e.session.State != StatePlaying {
		return &gameerr.InvalidStateError{Op: op, State: string(e.session.State), Reason: "no session in play"}
	}
	if e.pending != nil {
		return &gameerr.InvalidStateError{Op: op, State: string(StatePlaying), Reason: "previous flip is awaiting completion"}
	}
	if e.inFlight != "" {
		return &gameerr.InvalidStateError{Op: op, State: string(StatePlaying), Reason: e.inFlight + " is still in flight"}
	}
	return nil
}

func (e *Engine) savedLocked() SavedSession {
	return SavedSession{
		SessionID:  e.session.SessionID.String(),
		Secret:     e.seed.secret,
		Commitment: e.seed.hash.Hex(),
		BetAmount:  e.session.BetAmount,
		History:    append([]fairness.RoundProof(nil), e.history...),
		SavedAt:    time.Now(),
	}
}

func (e *Engine) sideEffect(what string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), SIDE_EFFECT_TIMEOUT)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("[ENGINE] %s failed: %v", what, err)
	}
}

func (e *Engine) persist(saved SavedSession) {
	if e.store == nil {
		return
	}
	e.sideEffect("save session", func(ctx context.Context) error {
		return e.store.Save(ctx, saved)
	})
}

func (e *Engine) clearStore() {
	if e.store == nil {
		return
	}
	e.sideEffect("clear session", e.store.Clear)
}

func (e *Engine) recordFlip(rec FlipRecord) {
	if e.recorder == nil {
		return
	}
	e.sideEffect("record flip", func(ctx context.Context) error {
		return e.recorder.RecordFlip(ctx, rec)
	})
}

func (e *Engine) closeSession(sessionID string, state State, secret string, payout decimal.Decimal) {
	if e.recorder == nil {
		return
	}
	e.sideEffect("close session", func(ctx context.Context) error {
		return e.recorder.CloseSession(ctx, sessionID, state, secret, payout)
	})
}

func (e *Engine) publish(s Session) {
	e.notify(WSMessage{Type: "session", Data: s})
}

func (e *Engine) notify(msg WSMessage) {
	if e.notifier != nil {
		e.notifier.Broadcast(msg)
	}
}
