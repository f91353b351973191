package ledger

import (
	"context"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
	"flipzone/internal/gameerr"
)

const WEI_DECIMALS = 18

var errEventMissing = errors.New("event not found in transaction logs")

type StartReceipt struct {
	SessionID   *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

type FlipReceipt struct {
	SessionID *big.Int
	Outcome   fairness.Side
	Won       bool
	Streak    uint64
	Entropy   fairness.Entropy
	TxHash    common.Hash
}

type CashOutReceipt struct {
	TxHash common.Hash
	Amount decimal.Decimal
}

// RoundInfo mirrors the contract's queryRound tuple.
type RoundInfo struct {
	Player     common.Address
	BetAmount  decimal.Decimal
	Commitment common.Hash
	RoundIndex uint64
	Streak     uint64
	Active     bool
}

type Options struct {
	ChainID          uint64
	ConfirmTimeout   time.Duration
	RecoveryAttempts int
	RecoveryBackoff  time.Duration
}

// Gateway turns contract transactions and their event logs into typed receipts.
type Gateway struct {
	backend Backend
	opts    Options
}

func NewGateway(backend Backend, opts Options) *Gateway {
	if opts.RecoveryAttempts <= 0 {
		opts.RecoveryAttempts = 3
	}
	return &Gateway{backend: backend, opts: opts}
}

// Ready reports whether a player key is loaded and the backend is on the expected chain.
func (g *Gateway) Ready(ctx context.Context) error {
	if g.backend == nil || g.backend.Player() == (common.Address{}) {
		return &gameerr.PreconditionError{Reason: "wallet not connected"}
	}
	if err := g.checkNetwork(ctx, "ready"); err != nil {
		var wrong *gameerr.WrongNetworkError
		if errors.As(err, &wrong) {
			return &gameerr.PreconditionError{Reason: wrong.Error()}
		}
		return &gameerr.PreconditionError{Reason: err.Error()}
	}
	return nil
}

func (g *Gateway) StartRound(ctx context.Context, bet decimal.Decimal, commitment common.Hash) (*StartReceipt, error) {
	const op = "startRound"
	if err := g.checkNetwork(ctx, op); err != nil {
		return nil, err
	}

	receipt, err := g.transact(ctx, op, ToWei(bet), METHOD_START_ROUND, [32]byte(commitment))
	if err != nil {
		return nil, err
	}

	player := g.backend.Player()
	l, err := g.recoverLog(ctx, op, receipt, EVENT_ROUND_STARTED, func(l types.Log) bool {
		return len(l.Topics) == 3 && common.BytesToAddress(l.Topics[2].Bytes()) == player
	})
	if err != nil {
		return nil, err
	}

	id := new(big.Int).SetBytes(l.Topics[1].Bytes())
	log.Printf("[LEDGER] Session %s started (tx %s)", id, receipt.TxHash.Hex())
	return &StartReceipt{SessionID: id, TxHash: receipt.TxHash, BlockNumber: l.BlockNumber}, nil
}

func (g *Gateway) SubmitFlip(ctx context.Context, sessionID *big.Int, secret string, side fairness.Side) (*FlipReceipt, error) {
	const op = "flip"
	if err := g.checkNetwork(ctx, op); err != nil {
		return nil, err
	}

	receipt, err := g.transact(ctx, op, nil, METHOD_FLIP, sessionID, secret, side.IsHeads())
	if err != nil {
		return nil, err
	}

	l, err := g.recoverLog(ctx, op, receipt, EVENT_FLIP_RESOLVED, matchSession(sessionID))
	if err != nil {
		return nil, err
	}

	var ev struct {
		Heads      bool
		Won        bool
		Streak     *big.Int
		ServerSeed [32]byte
		Nonce      *big.Int
	}
	if err := parsedABI.UnpackIntoInterface(&ev, EVENT_FLIP_RESOLVED, l.Data); err != nil {
		return nil, &gameerr.StateRecoveryError{Op: op, TxHash: receipt.TxHash.Hex(), Attempts: 1, Err: errors.Wrap(err, "decode FlipResolved")}
	}

	return &FlipReceipt{
		SessionID: sessionID,
		Outcome:   fairness.SideFromHeads(ev.Heads),
		Won:       ev.Won,
		Streak:    ev.Streak.Uint64(),
		Entropy: fairness.Entropy{
			ServerSeed:  common.Hash(ev.ServerSeed),
			BlockNumber: l.BlockNumber,
			Nonce:       ev.Nonce.Uint64(),
		},
		TxHash: receipt.TxHash,
	}, nil
}

func (g *Gateway) CashOut(ctx context.Context, sessionID *big.Int, secret string) (*CashOutReceipt, error) {
	const op = "cashOut"
	if err := g.checkNetwork(ctx, op); err != nil {
		return nil, err
	}

	info, err := g.QueryRound(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, &gameerr.InvalidStateError{Op: op, Reason: "session is not active on the ledger"}
	}
	if info.Streak == 0 {
		return nil, &gameerr.InvalidStateError{Op: op, Reason: "no rounds won"}
	}

	receipt, err := g.transact(ctx, op, nil, METHOD_CASH_OUT, sessionID, secret)
	if err != nil {
		return nil, err
	}

	l, err := g.recoverLog(ctx, op, receipt, EVENT_CASHED_OUT, matchSession(sessionID))
	if err != nil {
		return nil, err
	}

	var ev struct {
		Amount *big.Int
	}
	if err := parsedABI.UnpackIntoInterface(&ev, EVENT_CASHED_OUT, l.Data); err != nil {
		return nil, &gameerr.StateRecoveryError{Op: op, TxHash: receipt.TxHash.Hex(), Attempts: 1, Err: errors.Wrap(err, "decode CashedOut")}
	}

	amount := FromWei(ev.Amount)
	log.Printf("[LEDGER] Session %s cashed out %s (tx %s)", sessionID, amount, receipt.TxHash.Hex())
	return &CashOutReceipt{TxHash: receipt.TxHash, Amount: amount}, nil
}

func (g *Gateway) QueryRound(ctx context.Context, sessionID *big.Int) (*RoundInfo, error) {
	const op = "queryRound"
	out, err := g.backend.Call(ctx, METHOD_QUERY_ROUND, sessionID)
	if err != nil {
		if isRevert(err) {
			return nil, &gameerr.RejectedError{Op: op, Reason: err.Error()}
		}
		return nil, &gameerr.NetworkError{Op: op, Err: err}
	}
	return decodeRoundInfo(out)
}

func decodeRoundInfo(out []interface{}) (*RoundInfo, error) {
	if len(out) != 6 {
		return nil, errors.Errorf("queryRound: expected 6 values, got %d", len(out))
	}
	player, ok1 := out[0].(common.Address)
	bet, ok2 := out[1].(*big.Int)
	commitment, ok3 := out[2].([32]byte)
	roundIndex, ok4 := out[3].(*big.Int)
	streak, ok5 := out[4].(*big.Int)
	active, ok6 := out[5].(bool)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, errors.New("queryRound: unexpected return types")
	}
	return &RoundInfo{
		Player:     player,
		BetAmount:  FromWei(bet),
		Commitment: common.Hash(commitment),
		RoundIndex: roundIndex.Uint64(),
		Streak:     streak.Uint64(),
		Active:     active,
	}, nil
}

func (g *Gateway) checkNetwork(ctx context.Context, op string) error {
	id, err := g.backend.ChainID(ctx)
	if err != nil {
		return &gameerr.NetworkError{Op: op, Err: errors.Wrap(err, "read chain id")}
	}
	if !id.IsUint64() || id.Uint64() != g.opts.ChainID {
		return &gameerr.WrongNetworkError{Want: g.opts.ChainID, Got: id.Uint64()}
	}
	return nil
}

func (g *Gateway) transact(ctx context.Context, op string, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	tctx := ctx
	if g.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, g.opts.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := g.backend.Transact(tctx, value, method, args...)
	if err != nil {
		if isRevert(err) {
			return nil, &gameerr.RejectedError{Op: op, Reason: err.Error()}
		}
		return nil, &gameerr.NetworkError{Op: op, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := g.backend.RevertReason(ctx, receipt)
		log.Printf("[LEDGER] %s reverted (tx %s): %s", op, receipt.TxHash.Hex(), reason)
		return nil, &gameerr.RejectedError{Op: op, TxHash: receipt.TxHash.Hex(), Reason: reason}
	}
	return receipt, nil
}

// recoverLog finds the expected event in the receipt, falling back to re-reading the
// block's logs a bounded number of times.
func (g *Gateway) recoverLog(ctx context.Context, op string, receipt *types.Receipt, event string, match func(types.Log) bool) (types.Log, error) {
	topic := parsedABI.Events[event].ID
	contract := g.backend.Contract()

	find := func(logs []types.Log) (types.Log, bool) {
		for _, l := range logs {
			if l.Address != contract || len(l.Topics) == 0 || l.Topics[0] != topic {
				continue
			}
			if l.TxHash != (common.Hash{}) && l.TxHash != receipt.TxHash {
				continue
			}
			if match(l) {
				return l, true
			}
		}
		return types.Log{}, false
	}

	logs := make([]types.Log, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		logs = append(logs, *l)
	}
	if l, ok := find(logs); ok {
		return l, nil
	}

	log.Printf("[LEDGER] %s: %s missing from receipt %s, reading block logs", op, event, receipt.TxHash.Hex())

	blockHash := receipt.BlockHash
	query := ethereum.FilterQuery{
		BlockHash: &blockHash,
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{topic}},
	}

	lastErr := errEventMissing
	tried := 0
	for attempt := range Attempts(ctx, g.opts.RecoveryAttempts, g.opts.RecoveryBackoff) {
		tried = attempt
		logs, err := g.backend.FilterLogs(ctx, query)
		if err != nil {
			lastErr = err
			log.Printf("[LEDGER] %s: log read attempt %d/%d failed: %v", op, attempt, g.opts.RecoveryAttempts, err)
			continue
		}
		if l, ok := find(logs); ok {
			log.Printf("[LEDGER] %s: recovered %s on attempt %d", op, event, attempt)
			return l, nil
		}
		lastErr = errEventMissing
	}
	if ctx.Err() != nil {
		lastErr = ctx.Err()
	}

	return types.Log{}, &gameerr.StateRecoveryError{Op: op, TxHash: receipt.TxHash.Hex(), Attempts: tried, Err: lastErr}
}

func matchSession(sessionID *big.Int) func(types.Log) bool {
	return func(l types.Log) bool {
		return len(l.Topics) >= 2 && new(big.Int).SetBytes(l.Topics[1].Bytes()).Cmp(sessionID) == 0
	}
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(WEI_DECIMALS).BigInt()
}

func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -WEI_DECIMALS)
}
