package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/consensys/lasso"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [execution.proof]",
	Short: "verify an execution proof",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}
	encoded, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var proof lasso.Proof
	if err := proof.UnmarshalBinary(encoded); err != nil {
		return err
	}
	if err := sys.Verify(&proof); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "proof verified")
	return nil
}
