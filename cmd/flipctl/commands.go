package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flipzone/internal/fairness"
)

var errVerificationFailed = errors.New("verification failed")

// RootCmd is the offline fairness toolbox.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "flipctl",
		Short:         "Generate and verify FlipZone fairness proofs offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		SeedCmd(),
		OutcomeCmd(),
		VerifyCmd(),
	)
	return cmd
}

// SeedCmd prints a fresh client seed and its commitment
func SeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a client seed and its commitment, or commit an existing one",
		RunE:  seed,
	}
	cmd.Flags().StringP("seed", "s", "", "existing client seed to commit")
	return cmd
}

func seed(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("seed")
	if secret == "" {
		var err error
		if secret, err = fairness.GenerateSeed(); err != nil {
			return errors.Wrap(err, "generate seed")
		}
	}
	return writeJSON(cmd.OutOrStdout(), map[string]string{
		"client_seed":      secret,
		"client_seed_hash": fairness.Commit(secret).Hex(),
	})
}

// OutcomeCmd recomputes a single round
func OutcomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Derive the outcome of one round and show the calculation",
		RunE:  outcome,
	}
	cmd.Flags().StringP("seed", "s", "", "revealed client seed")
	cmd.MarkFlagRequired("seed")
	cmd.Flags().StringP("commitment", "c", "", "published client seed hash (defaults to the hash of --seed)")
	cmd.Flags().String("server_seed", "", "server seed from the FlipResolved event")
	cmd.MarkFlagRequired("server_seed")
	cmd.Flags().Uint64("block", 0, "block number of the flip")
	cmd.Flags().Uint64("nonce", 0, "nonce from the FlipResolved event")
	cmd.Flags().String("claimed", "", "outcome reported by the ledger (heads|tails)")
	return cmd
}

func outcome(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("seed")
	commitHex, _ := cmd.Flags().GetString("commitment")
	serverSeed, _ := cmd.Flags().GetString("server_seed")
	block, _ := cmd.Flags().GetUint64("block")
	nonce, _ := cmd.Flags().GetUint64("nonce")
	claimedStr, _ := cmd.Flags().GetString("claimed")

	commitment := fairness.Commit(secret)
	if commitHex != "" {
		commitment = common.HexToHash(commitHex)
	}
	e := fairness.Entropy{
		ServerSeed:  common.HexToHash(serverSeed),
		BlockNumber: block,
		Nonce:       nonce,
	}

	claimed := fairness.DeriveOutcome(secret, e)
	if claimedStr != "" {
		var err error
		if claimed, err = fairness.ParseSide(claimedStr); err != nil {
			return err
		}
	}

	report := fairness.Inspect(secret, commitment, e, claimed)
	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Valid() {
		return errVerificationFailed
	}
	return nil
}

// VerifyCmd checks a shared verification bundle
func VerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [bundle.json]",
		Short: "Verify every round of a bundle; reads stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  verify,
	}
	cmd.Flags().BoolP("quiet", "q", false, "only report the overall result")
	return cmd
}

func verify(cmd *cobra.Command, args []string) error {
	quiet, _ := cmd.Flags().GetBool("quiet")

	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return errors.Wrap(err, "read bundle")
	}

	bundle, err := fairness.ParseBundle(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !bundle.CommitmentOK() {
		fmt.Fprintf(out, "MISMATCH client seed does not hash to %s\n", bundle.Commitment.Hex())
	}

	reports := bundle.Verify()
	failed := 0
	for _, r := range reports {
		if !r.Valid() {
			failed++
		}
		if quiet {
			continue
		}
		status := "ok"
		if !r.Valid() {
			status = "MISMATCH"
		}
		fmt.Fprintf(out, "%-8s %s  derived=%s claimed=%s  %s\n", status, r.CombinedHash.Hex(), r.Derived, r.Claimed, r.Calculation)
	}

	fmt.Fprintf(out, "%d rounds, %d failed\n", len(bundle.Rounds), failed)
	if !bundle.Valid(reports) {
		return errVerificationFailed
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
