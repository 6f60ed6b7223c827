// The lasso command proves and verifies VM execution traces from the
// command line. Traces are JSON files; proofs are CBOR.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/consensys/lasso"
	"github.com/consensys/lasso/instruction"
)

var rootCmd = &cobra.Command{
	Use:          "lasso",
	Short:        "prove and verify lookup-VM execution traces",
	SilenceUsage: true,
}

var (
	fC       int
	fLogM    int
	fKinds   string
	fMemSize int
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVar(&fC, "c", 4, "operand chunk count")
	pf.IntVar(&fLogM, "log-m", 16, "log2 of the subtable size")
	pf.StringVar(&fKinds, "kinds", "eq,ltu,and,or,xor", "comma-separated instruction kinds")
	pf.IntVar(&fMemSize, "mem-size", 0, "RAM cell count (power of two, 0 disables RAM)")
}

func buildSystem() (*lasso.System, error) {
	var kinds []instruction.Kind
	for _, name := range strings.Split(fKinds, ",") {
		k, err := instruction.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	reg, err := instruction.NewRegistry(fC, fLogM, kinds...)
	if err != nil {
		return nil, err
	}
	return &lasso.System{Registry: reg, MemorySize: fMemSize}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
