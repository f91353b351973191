package ledger

import (
	"context"
	"crypto/ecdsa"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Backend is the transport the Gateway drives. Transact submits a transaction and
// blocks until it is mined; a mined but reverted transaction is not an error here.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Receipt, error)
	Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	RevertReason(ctx context.Context, receipt *types.Receipt) string
	Contract() common.Address
	Player() common.Address
}

// EthBackend talks to the contract over JSON-RPC with go-ethereum.
type EthBackend struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	player   common.Address
	chainID  *big.Int
	gasLimit uint64
}

type EthConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         uint64
	GasLimit        uint64
}

func DialEth(ctx context.Context, cfg EthConfig) (*EthBackend, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, errors.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse player key")
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.RPCURL)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	b := &EthBackend{
		client:   client,
		contract: bind.NewBoundContract(address, parsedABI, client, client, client),
		address:  address,
		key:      key,
		player:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  new(big.Int).SetUint64(cfg.ChainID),
		gasLimit: cfg.GasLimit,
	}
	log.Printf("[LEDGER] Connected to %s as %s (contract %s)", cfg.RPCURL, b.player.Hex(), address.Hex())
	return b, nil
}

func (b *EthBackend) Close() {
	b.client.Close()
}

func (b *EthBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.client.ChainID(ctx)
}

func (b *EthBackend) Transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(b.key, b.chainID)
	if err != nil {
		return nil, errors.Wrap(err, "build transactor")
	}
	opts.Context = ctx
	opts.Value = value
	opts.GasLimit = b.gasLimit

	tx, err := b.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "send %s", method)
	}
	log.Printf("[LEDGER] %s sent: %s", method, tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, b.client, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "wait for %s", tx.Hash().Hex())
	}
	return receipt, nil
}

func (b *EthBackend) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx, From: b.player}, &out, method, args...); err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	return out, nil
}

func (b *EthBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return b.client.FilterLogs(ctx, q)
}

// RevertReason replays a reverted transaction at its block to read the revert message.
func (b *EthBackend) RevertReason(ctx context.Context, receipt *types.Receipt) string {
	tx, _, err := b.client.TransactionByHash(ctx, receipt.TxHash)
	if err != nil {
		return ""
	}
	_, err = b.client.CallContract(ctx, ethereum.CallMsg{
		From:  b.player,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	return err.Error()
}

func (b *EthBackend) Contract() common.Address { return b.address }

func (b *EthBackend) Player() common.Address { return b.player }
