package fairness

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const SEED_BYTES = 32

// Side is one face of the coin.
type Side uint8

const (
	Heads Side = iota
	Tails
)

func (s Side) String() string {
	if s == Heads {
		return "heads"
	}
	return "tails"
}

// IsHeads maps a side to the ledger's boolean encoding.
func (s Side) IsHeads() bool { return s == Heads }

// SideFromHeads maps the ledger's boolean encoding back to a side.
func SideFromHeads(heads bool) Side {
	if heads {
		return Heads
	}
	return Tails
}

// ParseSide accepts "heads" or "tails" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heads":
		return Heads, nil
	case "tails":
		return Tails, nil
	}
	return Heads, fmt.Errorf("unknown side %q", s)
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	side, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// GenerateSeed creates a 0x-prefixed hex secret from 32 bytes of crypto/rand.
func GenerateSeed() (string, error) {
	b := make([]byte, SEED_BYTES)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	return hexutil.Encode(b), nil
}

// Commit returns keccak256 over the UTF-8 bytes of the secret string.
// The ledger contract computes keccak256(bytes(secret)) the same way.
func Commit(secret string) common.Hash {
	return crypto.Keccak256Hash([]byte(secret))
}

// Entropy is everything the ledger confirms for a single round.
type Entropy struct {
	ServerSeed  common.Hash `json:"server_seed"`
	BlockNumber uint64      `json:"block_number"`
	Nonce       uint64      `json:"nonce"`
}

// pack mirrors abi.encodePacked(string, bytes32, uint256, uint256).
func pack(secret string, e Entropy) []byte {
	buf := make([]byte, 0, len(secret)+3*common.HashLength)
	buf = append(buf, secret...)
	buf = append(buf, e.ServerSeed.Bytes()...)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetUint64(e.BlockNumber).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetUint64(e.Nonce).Bytes(), 32)...)
	return buf
}

// CombinedHash digests every entropy source for a round.
func CombinedHash(secret string, e Entropy) common.Hash {
	return crypto.Keccak256Hash(pack(secret, e))
}

// DeriveOutcome maps the last byte of the combined hash to a side: even is heads, odd is tails.
func DeriveOutcome(secret string, e Entropy) Side {
	h := CombinedHash(secret, e)
	return sideOf(h)
}

func sideOf(h common.Hash) Side {
	if h[common.HashLength-1]%2 == 0 {
		return Heads
	}
	return Tails
}

// Verify reports whether both the commitment and the claimed outcome check out.
func Verify(secret string, commitment common.Hash, e Entropy, claimed Side) bool {
	return Inspect(secret, commitment, e, claimed).Valid()
}
