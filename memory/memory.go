// Package memory implements the read-write memory argument: offline memory
// checking over a RAM trace with read-then-write semantics, plus timestamp
// validity established by two range checks per trace.
package memory

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/poly"
)

// ErrMalformedTrace is returned when a RAM trace is internally inconsistent:
// an address out of bounds, a read returning a value the cell does not hold,
// or a non-power-of-two length.
var ErrMalformedTrace = errors.New("malformed memory trace")

// OpKind distinguishes reads from writes.
type OpKind uint8

const (
	Read OpKind = iota
	Write
)

func (k OpKind) String() string {
	if k == Read {
		return "read"
	}
	return "write"
}

// Op is one RAM access. For reads, Value is the value the access claims to
// observe; for writes, the value stored.
type Op struct {
	Kind  OpKind
	Addr  uint64
	Value uint64
}

// Memory is the proving session for one RAM trace. Every step both reads and
// writes its cell: a read writes back the observed value, a write replaces
// it. The step at index j writes with timestamp j+1.
type Memory struct {
	size int
	init []uint64
	ops  []Op

	// per-step columns derived during replay
	readValues []uint64
	writeVals  []uint64
	readTs     []uint64

	// per-cell columns after replay
	finalValues []uint64
	finalTs     []uint64
}

// New replays a trace against a memory of the given power-of-two size and
// initial contents (nil means all zeros). Replay rejects inconsistent
// traces: out-of-range addresses, reads observing stale values, and
// non-power-of-two trace lengths.
func New(size int, init []uint64, ops []Op) (*Memory, error) {
	if size <= 0 || !utils.IsPowerOfTwo(uint64(size)) {
		return nil, fmt.Errorf("%w: memory size %d is not a power of two", ErrMalformedTrace, size)
	}
	if len(init) > size {
		return nil, fmt.Errorf("%w: %d initial values for %d cells", ErrMalformedTrace, len(init), size)
	}
	if len(ops) < 2 || !utils.IsPowerOfTwo(uint64(len(ops))) {
		return nil, fmt.Errorf("%w: trace length %d is not a power of two at least 2", ErrMalformedTrace, len(ops))
	}

	cells := make([]uint64, size)
	copy(cells, init)
	ts := make([]uint64, size)

	m := &Memory{
		size:       size,
		init:       append([]uint64(nil), init...),
		ops:        ops,
		readValues: make([]uint64, len(ops)),
		writeVals:  make([]uint64, len(ops)),
		readTs:     make([]uint64, len(ops)),
	}
	for j, op := range ops {
		if op.Addr >= uint64(size) {
			return nil, fmt.Errorf("%w: step %d address %d out of bounds", ErrMalformedTrace, j, op.Addr)
		}
		m.readValues[j] = cells[op.Addr]
		m.readTs[j] = ts[op.Addr]
		switch op.Kind {
		case Read:
			if op.Value != cells[op.Addr] {
				return nil, fmt.Errorf("%w: step %d reads %d from cell %d holding %d",
					ErrMalformedTrace, j, op.Value, op.Addr, cells[op.Addr])
			}
			m.writeVals[j] = cells[op.Addr]
		case Write:
			m.writeVals[j] = op.Value
			cells[op.Addr] = op.Value
		default:
			return nil, fmt.Errorf("%w: step %d has unknown op kind %d", ErrMalformedTrace, j, op.Kind)
		}
		ts[op.Addr] = uint64(j) + 1
	}
	m.finalValues = cells
	m.finalTs = ts
	return m, nil
}

// NumSteps returns the trace length.
func (m *Memory) NumSteps() int { return len(m.ops) }

// Size returns the cell count.
func (m *Memory) Size() int { return m.size }

// Polynomials are the committed columns of the memory argument.
type Polynomials struct {
	// length m columns
	Addr       polynomial.MultiLin
	ReadValue  polynomial.MultiLin
	WriteValue polynomial.MultiLin
	ReadTs     polynomial.MultiLin
	// length size columns
	FinalValue polynomial.MultiLin
	FinalTs    polynomial.MultiLin
}

func (m *Memory) polynomialize() *Polynomials {
	p := &Polynomials{
		Addr:       make(polynomial.MultiLin, len(m.ops)),
		ReadValue:  poly.FromUint64s(m.readValues),
		WriteValue: poly.FromUint64s(m.writeVals),
		ReadTs:     poly.FromUint64s(m.readTs),
		FinalValue: poly.FromUint64s(m.finalValues),
		FinalTs:    poly.FromUint64s(m.finalTs),
	}
	for j, op := range m.ops {
		p.Addr[j].SetUint64(op.Addr)
	}
	return p
}

// InitValuesMLE evaluates the MLE of the public initial contents at a point.
func InitValuesMLE(size int, init []uint64, point []fr.Element) fr.Element {
	vals := make([]uint64, size)
	copy(vals, init)
	col := poly.FromUint64s(vals)
	return col.Evaluate(point, nil)
}
