package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var proveCmd = &cobra.Command{
	Use:   "prove [trace.json]",
	Short: "prove an execution trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runProve,
}

var fProofPath string

func init() {
	rootCmd.AddCommand(proveCmd)
	proveCmd.Flags().StringVar(&fProofPath, "proof", "", "output path, defaults to the trace path with a .proof extension")
}

func runProve(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}
	tr, err := readTrace(args[0])
	if err != nil {
		return err
	}

	proof, err := sys.Prove(tr)
	if err != nil {
		return err
	}
	encoded, err := proof.MarshalBinary()
	if err != nil {
		return err
	}

	out := fProofPath
	if out == "" {
		out = strings.TrimSuffix(args[0], ".json") + ".proof"
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(encoded))
	return nil
}
