package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/consensys/lasso"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/memory"
)

// traceFile is the on-disk trace format.
type traceFile struct {
	Instructions []instructionRow `json:"instructions"`
	Memory       []memoryRow      `json:"memory,omitempty"`
}

type instructionRow struct {
	Kind string `json:"kind"`
	X    uint64 `json:"x"`
	Y    uint64 `json:"y"`
}

type memoryRow struct {
	Op    string `json:"op"`
	Addr  uint64 `json:"addr"`
	Value uint64 `json:"value"`
}

func readTrace(path string) (lasso.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lasso.Trace{}, err
	}
	var tf traceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return lasso.Trace{}, fmt.Errorf("decoding trace %s: %w", path, err)
	}

	var tr lasso.Trace
	for _, row := range tf.Instructions {
		k, err := instruction.ParseKind(row.Kind)
		if err != nil {
			return lasso.Trace{}, err
		}
		tr.Instructions = append(tr.Instructions, instruction.Lookup{Kind: k, X: row.X, Y: row.Y})
	}
	for i, row := range tf.Memory {
		var kind memory.OpKind
		switch row.Op {
		case "read":
			kind = memory.Read
		case "write":
			kind = memory.Write
		default:
			return lasso.Trace{}, fmt.Errorf("%w: step %d op %q", memory.ErrMalformedTrace, i, row.Op)
		}
		tr.MemoryOps = append(tr.MemoryOps, memory.Op{Kind: kind, Addr: row.Addr, Value: row.Value})
	}
	return tr, nil
}
