package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipzone/internal/fairness"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testBundle(t *testing.T) fairness.Bundle {
	t.Helper()
	secret := "0xfeedface"
	rounds := make([]fairness.RoundProof, 0, 3)
	for i := 0; i < 3; i++ {
		e := fairness.Entropy{
			ServerSeed:  common.BigToHash(common.Big1),
			BlockNumber: uint64(100 + i),
			Nonce:       uint64(i),
		}
		rounds = append(rounds, fairness.RoundProof{Round: i, Entropy: e, Result: fairness.DeriveOutcome(secret, e)})
	}
	return fairness.NewBundle(secret, fairness.Commit(secret), rounds)
}

func TestSeedCmd(t *testing.T) {
	out, err := run(t, "", "seed")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, strings.HasPrefix(got["client_seed"], "0x"))
	assert.Equal(t, fairness.Commit(got["client_seed"]).Hex(), got["client_seed_hash"])
}

func TestSeedCmd_Existing(t *testing.T) {
	out, err := run(t, "", "seed", "-s", "hello")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "hello", got["client_seed"])
	assert.Equal(t, fairness.Commit("hello").Hex(), got["client_seed_hash"])
}

func TestOutcomeCmd(t *testing.T) {
	e := fairness.Entropy{ServerSeed: common.HexToHash("0x01"), BlockNumber: 7, Nonce: 3}
	want := fairness.DeriveOutcome("abc", e)

	out, err := run(t, "", "outcome", "-s", "abc", "--server_seed", "0x01", "--block", "7", "--nonce", "3")
	require.NoError(t, err)

	var report fairness.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, want, report.Derived)
	assert.True(t, report.Valid())
	assert.NotEmpty(t, report.Calculation)

	wrong := fairness.Tails
	if want == fairness.Tails {
		wrong = fairness.Heads
	}
	_, err = run(t, "", "outcome", "-s", "abc", "--server_seed", "0x01", "--block", "7", "--nonce", "3", "--claimed", wrong.String())
	assert.ErrorIs(t, err, errVerificationFailed)
}

func TestOutcomeCmd_RequiresSeed(t *testing.T) {
	_, err := run(t, "", "outcome", "--server_seed", "0x01")
	assert.Error(t, err)
}

func TestVerifyCmd_File(t *testing.T) {
	data, err := json.Marshal(testBundle(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, err := run(t, "", "verify", path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "ok "))
	assert.Contains(t, out, "3 rounds, 0 failed")
}

func TestVerifyCmd_Stdin(t *testing.T) {
	b := testBundle(t)
	if b.Rounds[1].Result == fairness.Heads {
		b.Rounds[1].Result = fairness.Tails
	} else {
		b.Rounds[1].Result = fairness.Heads
	}
	data, err := json.Marshal(b)
	require.NoError(t, err)

	out, err := run(t, string(data), "verify", "-q")
	assert.ErrorIs(t, err, errVerificationFailed)
	assert.NotContains(t, out, "MISMATCH")
	assert.Contains(t, out, "3 rounds, 1 failed")
}

func TestVerifyCmd_BadInput(t *testing.T) {
	_, err := run(t, "not json", "verify")
	assert.Error(t, err)

	_, err = run(t, "", "verify", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestVerifyCmd_WrongSeedNoRounds(t *testing.T) {
	b := fairness.NewBundle("not-the-seed", common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"), nil)
	data, err := json.Marshal(b)
	require.NoError(t, err)

	out, err := run(t, string(data), "verify")
	assert.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, "client seed does not hash to")
	assert.Contains(t, out, "0 rounds, 0 failed")
}
