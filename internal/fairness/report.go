package fairness

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const BUNDLE_VERSION = "1.0"

// Report is the full breakdown of one round's verification.
type Report struct {
	Commitment   common.Hash `json:"commitment"`
	CommitmentOK bool        `json:"commitment_ok"`
	Entropy      Entropy     `json:"entropy"`
	CombinedHash common.Hash `json:"combined_hash"`
	LastByte     uint8       `json:"last_byte"`
	Derived      Side        `json:"derived"`
	Claimed      Side        `json:"claimed"`
	OutcomeOK    bool        `json:"outcome_ok"`
	Calculation  string      `json:"calculation"`
}

// Valid is true only when both checks passed.
func (r Report) Valid() bool { return r.CommitmentOK && r.OutcomeOK }

// Inspect recomputes the commitment and the outcome of a round. It never fails: mismatches
// are reported through CommitmentOK and OutcomeOK.
func Inspect(secret string, commitment common.Hash, e Entropy, claimed Side) Report {
	h := CombinedHash(secret, e)
	last := h[common.HashLength-1]
	derived := sideOf(h)

	parity := "Odd = Tails"
	if derived == Heads {
		parity = "Even = Heads"
	}

	return Report{
		Commitment:   commitment,
		CommitmentOK: Commit(secret) == commitment,
		Entropy:      e,
		CombinedHash: h,
		LastByte:     last,
		Derived:      derived,
		Claimed:      claimed,
		OutcomeOK:    derived == claimed,
		Calculation:  fmt.Sprintf("%d %% 2 = %d (%s)", last, last%2, parity),
	}
}

// RoundProof is one flip inside a verification bundle.
type RoundProof struct {
	Round   int     `json:"round"`
	Entropy Entropy `json:"entropy"`
	Result  Side    `json:"result"`
}

// Bundle is a shareable record of a whole session that anyone can re-verify
// once the secret has been revealed.
type Bundle struct {
	Version    string       `json:"version"`
	Timestamp  int64        `json:"timestamp"`
	Secret     string       `json:"client_seed"`
	Commitment common.Hash  `json:"client_seed_hash"`
	Rounds     []RoundProof `json:"rounds"`
}

// NewBundle stamps a bundle with the current time.
func NewBundle(secret string, commitment common.Hash, rounds []RoundProof) Bundle {
	return Bundle{
		Version:    BUNDLE_VERSION,
		Timestamp:  time.Now().UnixMilli(),
		Secret:     secret,
		Commitment: commitment,
		Rounds:     rounds,
	}
}

// CommitmentOK checks the revealed secret against the published hash. It is checked once
// for the whole bundle so that a bundle without rounds still proves its commitment.
func (b Bundle) CommitmentOK() bool { return Commit(b.Secret) == b.Commitment }

// Valid is true when the commitment holds and every round verifies.
func (b Bundle) Valid(reports []Report) bool {
	if !b.CommitmentOK() {
		return false
	}
	for _, r := range reports {
		if !r.Valid() {
			return false
		}
	}
	return true
}

// Verify inspects every round of the bundle.
func (b Bundle) Verify() []Report {
	reports := make([]Report, 0, len(b.Rounds))
	for _, r := range b.Rounds {
		reports = append(reports, Inspect(b.Secret, b.Commitment, r.Entropy, r.Result))
	}
	return reports
}

// ParseBundle decodes a bundle from JSON.
func ParseBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Version != BUNDLE_VERSION {
		return Bundle{}, fmt.Errorf("unsupported bundle version %q", b.Version)
	}
	return b, nil
}
