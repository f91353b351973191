package game

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
	"flipzone/internal/gameerr"
)

// pendingRound is a confirmed flip held back until the presentation has shown it.
type pendingRound struct {
	token   string
	round   int
	chosen  fairness.Side
	outcome fairness.Side
	won     bool
	entropy fairness.Entropy
	timer   *time.Timer
	ticket  *Ticket
}

// Ticket hands a confirmed flip to the presentation. Token must be passed back to
// Engine.Complete once the outcome has been shown.
type Ticket struct {
	Token   string        `json:"token"`
	Round   int           `json:"round"`
	Chosen  fairness.Side `json:"chosen"`
	Outcome fairness.Side `json:"outcome"`
	Won     bool          `json:"won"`
	TxHash  string        `json:"tx_hash"`

	done   chan struct{}
	result RoundResult
	err    error
}

// Settled is closed once the round is committed or discarded.
func (t *Ticket) Settled() <-chan struct{} { return t.done }

func (t *Ticket) Wait(ctx context.Context) (RoundResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return RoundResult{}, ctx.Err()
	}
}

func (t *Ticket) settle(res RoundResult, err error) {
	t.result = res
	t.err = err
	close(t.done)
}

func (e *Engine) holdLocked(round int, chosen, outcome fairness.Side, won bool, entropy fairness.Entropy, txHash string) *pendingRound {
	token := uuid.NewString()
	p := &pendingRound{
		token:   token,
		round:   round,
		chosen:  chosen,
		outcome: outcome,
		won:     won,
		entropy: entropy,
		ticket: &Ticket{
			Token:   token,
			Round:   round,
			Chosen:  chosen,
			Outcome: outcome,
			Won:     won,
			TxHash:  txHash,
			done:    make(chan struct{}),
		},
	}
	p.timer = time.AfterFunc(e.rules.AnimationTimeout, func() {
		if res, ok := e.settle(token, true); ok {
			log.Printf("[GATE] Round %d was not confirmed within %v, committed %s", res.Round, e.rules.AnimationTimeout, res.Outcome)
		}
	})
	e.pending = p
	return p
}

// Complete commits the pending round identified by token. It reports false for unknown
// tokens and for rounds that were already committed or discarded.
func (e *Engine) Complete(token string) (RoundResult, bool) {
	return e.settle(token, false)
}

func (e *Engine) settle(token string, forced bool) (RoundResult, bool) {
	e.mu.Lock()
	p := e.pending
	if p == nil || p.token != token {
		e.mu.Unlock()
		return RoundResult{}, false
	}
	p.timer.Stop()
	e.pending = nil

	s := &e.session
	s.RoundIndex = p.round
	outcome := p.outcome
	s.LastOutcome = &outcome
	if p.won {
		s.ConsecutiveWins++
		s.Multiplier = e.rules.Multiplier(s.ConsecutiveWins)
		s.PotentialWin = s.BetAmount.Mul(s.Multiplier)
	} else {
		s.State = StateLost
		s.ConsecutiveWins = 0
		s.Multiplier = decimal.Zero
		s.PotentialWin = decimal.Zero
	}
	e.history = append(e.history, fairness.RoundProof{Round: p.round, Entropy: p.entropy, Result: p.outcome})

	res := RoundResult{
		Token:   p.token,
		Round:   p.round,
		Chosen:  p.chosen,
		Outcome: p.outcome,
		Won:     p.won,
		Forced:  forced,
		Session: e.snapshotLocked(),
	}

	var (
		saved     SavedSession
		sessionID = s.SessionID.String()
		secret    = e.seed.secret
	)
	if p.won {
		saved = e.savedLocked()
	} else {
		bundle := fairness.NewBundle(e.seed.secret, e.seed.hash, append([]fairness.RoundProof(nil), e.history...))
		e.proof = &bundle
	}
	e.mu.Unlock()

	p.ticket.settle(res, nil)

	if p.won {
		e.persist(saved)
	} else {
		log.Printf("[ENGINE] Session %s lost on round %d", sessionID, p.round)
		e.clearStore()
		e.closeSession(sessionID, StateLost, secret, decimal.Zero)
	}
	e.notify(WSMessage{Type: "flip_settled", Data: res})
	e.publish(res.Session)
	return res, true
}

// discardLocked drops the pending round, if any, without applying it.
func (e *Engine) discardLocked() {
	if e.pending == nil {
		return
	}
	p := e.pending
	e.pending = nil
	p.timer.Stop()
	p.ticket.settle(RoundResult{Token: p.token, Round: p.round}, gameerr.ErrRoundDiscarded)
	log.Printf("[GATE] Discarded pending round %d", p.round)
}
