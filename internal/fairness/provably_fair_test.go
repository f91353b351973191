package fairness

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func testEntropy(nonce uint64) Entropy {
	return Entropy{
		ServerSeed:  crypto.Keccak256Hash([]byte("server_seed")),
		BlockNumber: 1234567,
		Nonce:       nonce,
	}
}

func TestGenerateSeed(t *testing.T) {
	seed1, err := GenerateSeed()
	if err != nil {
		t.Fatalf("GenerateSeed() error = %v", err)
	}
	seed2, err := GenerateSeed()
	if err != nil {
		t.Fatalf("GenerateSeed() error = %v", err)
	}

	if seed1 == seed2 {
		t.Error("GenerateSeed() produced duplicate seeds")
	}
	if !strings.HasPrefix(seed1, "0x") {
		t.Errorf("GenerateSeed() = %q, want 0x prefix", seed1)
	}
	if len(seed1) != 2+2*SEED_BYTES {
		t.Errorf("GenerateSeed() length = %v, want %v", len(seed1), 2+2*SEED_BYTES)
	}
}

func TestCommit(t *testing.T) {
	seed := "0xabc123"

	if Commit(seed) != Commit(seed) {
		t.Error("Commit() is not deterministic")
	}
	if Commit(seed) == Commit("0xabc124") {
		t.Error("Commit() collided on different seeds")
	}
	if Commit(seed) != crypto.Keccak256Hash([]byte(seed)) {
		t.Error("Commit() must hash the UTF-8 bytes of the seed string")
	}
}

func TestDeriveOutcome_Encoding(t *testing.T) {
	secret := "0x" + strings.Repeat("11", 32)
	e := testEntropy(7)

	// abi.encodePacked(string, bytes32, uint256, uint256)
	var packed []byte
	packed = append(packed, []byte(secret)...)
	packed = append(packed, e.ServerSeed.Bytes()...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(int64(e.BlockNumber)).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(int64(e.Nonce)).Bytes(), 32)...)
	want := crypto.Keccak256Hash(packed)

	if got := CombinedHash(secret, e); got != want {
		t.Fatalf("CombinedHash() = %s, want %s", got.Hex(), want.Hex())
	}

	wantSide := Heads
	if want[31]%2 == 1 {
		wantSide = Tails
	}
	if got := DeriveOutcome(secret, e); got != wantSide {
		t.Errorf("DeriveOutcome() = %v, want %v", got, wantSide)
	}
}

func TestDeriveOutcome_Deterministic(t *testing.T) {
	secret := "0xdeterministic"
	e := testEntropy(42)

	result1 := DeriveOutcome(secret, e)
	result2 := DeriveOutcome(secret, e)
	result3 := DeriveOutcome(secret, e)

	if result1 != result2 || result2 != result3 {
		t.Errorf("DeriveOutcome() is not deterministic: got %v, %v, %v", result1, result2, result3)
	}
}

func TestDeriveOutcome_BothSidesReachable(t *testing.T) {
	secret := "0xcoverage"
	seen := map[Side]int{}
	for i := uint64(0); i < 64; i++ {
		seen[DeriveOutcome(secret, testEntropy(i))]++
	}
	if seen[Heads] == 0 || seen[Tails] == 0 {
		t.Errorf("DeriveOutcome() never produced one side over 64 nonces: %v", seen)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		secret, err := GenerateSeed()
		if err != nil {
			t.Fatal(err)
		}
		e := testEntropy(uint64(i))
		if !Verify(secret, Commit(secret), e, DeriveOutcome(secret, e)) {
			t.Fatalf("Verify() = false for honest round %d", i)
		}
	}
}

func TestInspect(t *testing.T) {
	secret := "0xinspect_secret"
	commitment := Commit(secret)
	e := testEntropy(3)
	actual := DeriveOutcome(secret, e)
	other := Tails
	if actual == Tails {
		other = Heads
	}

	tests := []struct {
		name           string
		secret         string
		commitment     common.Hash
		claimed        Side
		wantCommitment bool
		wantOutcome    bool
	}{
		{
			name:           "Valid round",
			secret:         secret,
			commitment:     commitment,
			claimed:        actual,
			wantCommitment: true,
			wantOutcome:    true,
		},
		{
			name:           "Wrong claimed side",
			secret:         secret,
			commitment:     commitment,
			claimed:        other,
			wantCommitment: true,
			wantOutcome:    false,
		},
		{
			name:           "Commitment for another seed",
			secret:         secret,
			commitment:     Commit("0xsomething_else"),
			claimed:        actual,
			wantCommitment: false,
			wantOutcome:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Inspect(tt.secret, tt.commitment, e, tt.claimed)
			if r.CommitmentOK != tt.wantCommitment {
				t.Errorf("CommitmentOK = %v, want %v", r.CommitmentOK, tt.wantCommitment)
			}
			if r.OutcomeOK != tt.wantOutcome {
				t.Errorf("OutcomeOK = %v, want %v", r.OutcomeOK, tt.wantOutcome)
			}
			if r.Valid() != (tt.wantCommitment && tt.wantOutcome) {
				t.Errorf("Valid() = %v", r.Valid())
			}
			if !strings.Contains(r.Calculation, "% 2 =") {
				t.Errorf("Calculation = %q, want parity breakdown", r.Calculation)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{in: "heads", want: Heads},
		{in: " TAILS ", want: Tails},
		{in: "edge", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSide(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSide(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBundle_Verify(t *testing.T) {
	secret, _ := GenerateSeed()
	var rounds []RoundProof
	for i := 0; i < 3; i++ {
		e := testEntropy(uint64(i))
		rounds = append(rounds, RoundProof{Round: i, Entropy: e, Result: DeriveOutcome(secret, e)})
	}

	data, err := json.Marshal(NewBundle(secret, Commit(secret), rounds))
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	bundle, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("ParseBundle() error = %v", err)
	}

	for i, r := range bundle.Verify() {
		if !r.Valid() {
			t.Errorf("round %d failed verification: %+v", i, r)
		}
	}

	if !bundle.Valid(bundle.Verify()) {
		t.Error("Valid() = false for an honest bundle")
	}

	if _, err := ParseBundle([]byte(`{"version":"0.1"}`)); err == nil {
		t.Error("ParseBundle() accepted an unknown version")
	}
}

func BenchmarkDeriveOutcome(b *testing.B) {
	e := testEntropy(1)
	for i := 0; i < b.N; i++ {
		e.Nonce = uint64(i)
		DeriveOutcome("0xbenchmark_seed", e)
	}
}

func BenchmarkCommit(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Commit("0xbenchmark_seed")
	}
}

func TestBundle_CommitmentWithoutRounds(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		hash   string
		want   bool
	}{
		{"matching seed", "0xseed", Commit("0xseed").Hex(), true},
		{"wrong seed", "not-the-seed", "0x1111111111111111111111111111111111111111111111111111111111111111", false},
		{"empty seed", "", Commit("0xseed").Hex(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBundle(tt.secret, common.HexToHash(tt.hash), nil)
			if got := b.CommitmentOK(); got != tt.want {
				t.Errorf("CommitmentOK() = %v, want %v", got, tt.want)
			}
			if got := b.Valid(b.Verify()); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
