// Package lookup implements the instruction-lookup argument: per-step
// instruction flags, subtable decomposition into per-memory E polynomials,
// the primary collation sumcheck, and offline memory checking with toggled
// leaves showing that every E polynomial is consistent with its static
// subtable.
package lookup

import (
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
	"golang.org/x/sync/errgroup"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/logger"
)

// ErrMalformedTrace is returned when a trace violates the mutual-exclusivity
// invariant: every step must select exactly one instruction kind.
var ErrMalformedTrace = errors.New("malformed trace")

// TraceRow is one raw execution step as emitted by the trace producer: a
// selector bit per declared instruction kind plus the two operands.
type TraceRow struct {
	// Selectors has one bit per declared kind, in declaration order.
	Selectors *bitset.BitSet
	X, Y      uint64
}

// InstructionLookups is the proving session state for one trace. It owns the
// materialized subtables and the (immutable) operation sequence; everything
// derived during proving is discarded with the session.
type InstructionLookups struct {
	reg     *instruction.Registry
	ops     []instruction.Lookup
	kindIdx []int // declaration position of each op's kind

	materialized []polynomial.MultiLin // per subtable, M entries
}

// New ingests raw trace rows, enforcing mutual exclusivity: a row with zero
// or several selector bits set is rejected with ErrMalformedTrace.
func New(reg *instruction.Registry, rows []TraceRow) (*InstructionLookups, error) {
	kinds := reg.Kinds()
	ops := make([]instruction.Lookup, len(rows))
	for j, row := range rows {
		if row.Selectors == nil || row.Selectors.Count() != 1 {
			return nil, fmt.Errorf("%w: step %d selects %d instruction kinds, want exactly 1",
				ErrMalformedTrace, j, selectorCount(row.Selectors))
		}
		pos, _ := row.Selectors.NextSet(0)
		if int(pos) >= len(kinds) {
			return nil, fmt.Errorf("%w: step %d selector out of range", ErrMalformedTrace, j)
		}
		ops[j] = instruction.Lookup{Kind: kinds[pos], X: row.X, Y: row.Y}
	}
	return NewFromOps(reg, ops)
}

func selectorCount(s *bitset.BitSet) uint {
	if s == nil {
		return 0
	}
	return s.Count()
}

// NewFromOps builds a session from decoded operations. Mutual exclusivity is
// structural here; kinds are still checked against the registry, and the
// trace length must be a power of two (the producer pads with a no-op of its
// choosing).
func NewFromOps(reg *instruction.Registry, ops []instruction.Lookup) (*InstructionLookups, error) {
	if len(ops) < 2 || !utils.IsPowerOfTwo(uint64(len(ops))) {
		return nil, fmt.Errorf("%w: trace length %d is not a power of two at least 2", ErrMalformedTrace, len(ops))
	}
	kindIdx := make([]int, len(ops))
	for j, op := range ops {
		i, err := reg.KindIndex(op.Kind)
		if err != nil {
			return nil, err
		}
		kindIdx[j] = i
	}

	subtables := reg.Subtables()
	materialized := make([]polynomial.MultiLin, len(subtables))
	for s, st := range subtables {
		materialized[s] = st.Materialize(reg.M())
	}

	return &InstructionLookups{
		reg:          reg,
		ops:          ops,
		kindIdx:      kindIdx,
		materialized: materialized,
	}, nil
}

// NumSteps returns the trace length m.
func (l *InstructionLookups) NumSteps() int { return len(l.ops) }

// Polynomials are the session's derived multilinear polynomials.
type Polynomials struct {
	// Dim[c][j] is the subtable index of step j's chunk c. C polynomials of
	// length m.
	Dim []polynomial.MultiLin
	// ReadCts[i][j] is the access count of the address step j reads in
	// memory i, before the read. NumMemories polynomials of length m.
	ReadCts []polynomial.MultiLin
	// FinalCts[i][a] is the total access count of address a in memory i.
	// NumMemories polynomials of length M.
	FinalCts []polynomial.MultiLin
	// E[i][j] is the value step j reads from memory i (0 on unused steps).
	// NumMemories polynomials of length m.
	E []polynomial.MultiLin
	// Flags[f][j] is 1 iff step j executes the f'th declared kind.
	Flags []polynomial.MultiLin
	// SubtableFlags[s] = Σ Flags[f] over kinds f referencing subtable s.
	// Derived, never committed: the verifier recomputes its evaluations from
	// instruction flag openings.
	SubtableFlags []polynomial.MultiLin
}

// Polynomialize constructs all session polynomials. Per-memory construction
// is independent and runs concurrently.
func (l *InstructionLookups) Polynomialize() (*Polynomials, error) {
	log := logger.Logger().With().Str("component", "lookup").Logger()
	start := time.Now()

	reg := l.reg
	m := len(l.ops)
	c, numMem, numKinds, numSub := reg.C(), reg.NumMemories(), reg.NumKinds(), reg.NumSubtables()

	// chunk index sequences, one per dimension
	indices := make([][]int, m)
	for j, op := range l.ops {
		var err error
		if indices[j], err = reg.Indices(op); err != nil {
			return nil, err
		}
	}

	p := &Polynomials{
		Dim:      make([]polynomial.MultiLin, c),
		ReadCts:  make([]polynomial.MultiLin, numMem),
		FinalCts: make([]polynomial.MultiLin, numMem),
		E:        make([]polynomial.MultiLin, numMem),
		Flags:    make([]polynomial.MultiLin, numKinds),
	}

	for dim := 0; dim < c; dim++ {
		p.Dim[dim] = make(polynomial.MultiLin, m)
		for j := 0; j < m; j++ {
			p.Dim[dim][j].SetUint64(uint64(indices[j][dim]))
		}
	}

	// usedBy[f][i]: does the f'th declared kind read memory i
	usedBy := make([]*bitset.BitSet, numKinds)
	for f := 0; f < numKinds; f++ {
		usedBy[f] = bitset.New(uint(numMem))
		for _, mi := range reg.MemoryIndicesAt(f) {
			usedBy[f].Set(uint(mi))
		}
	}

	var g errgroup.Group
	for i := 0; i < numMem; i++ {
		i := i
		g.Go(func() error {
			chunk := reg.MemoryToChunk(i)
			s := reg.MemoryToSubtable(i)

			readCts := make(polynomial.MultiLin, m)
			ePoly := make(polynomial.MultiLin, m)
			finalCts := make(polynomial.MultiLin, reg.M())
			counters := make([]uint64, reg.M())

			for j := 0; j < m; j++ {
				if !usedBy[l.kindIdx[j]].Test(uint(i)) {
					continue
				}
				addr := indices[j][chunk]
				readCts[j].SetUint64(counters[addr])
				counters[addr]++
				ePoly[j] = l.materialized[s][addr]
			}
			for a, cnt := range counters {
				finalCts[a].SetUint64(cnt)
			}

			p.ReadCts[i] = readCts
			p.FinalCts[i] = finalCts
			p.E[i] = ePoly
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for f := 0; f < numKinds; f++ {
		p.Flags[f] = make(polynomial.MultiLin, m)
	}
	for j := 0; j < m; j++ {
		p.Flags[l.kindIdx[j]][j].SetOne()
	}

	p.SubtableFlags = make([]polynomial.MultiLin, numSub)
	for s := 0; s < numSub; s++ {
		p.SubtableFlags[s] = make(polynomial.MultiLin, m)
		for _, f := range reg.KindsUsingSubtable(s) {
			for j := 0; j < m; j++ {
				p.SubtableFlags[s][j].Add(&p.SubtableFlags[s][j], &p.Flags[f][j])
			}
		}
	}

	log.Debug().Dur("took", time.Since(start)).Int("memories", numMem).Msg("polynomialize")
	return p, nil
}

// Commitments binds every committed session polynomial.
type Commitments struct {
	Dim      []commitment.Commitment
	ReadCts  []commitment.Commitment
	FinalCts []commitment.Commitment
	E        []commitment.Commitment
	Flags    []commitment.Commitment
}

// Commit commits to every polynomial the verifier will ask openings for.
// Subtable flags are excluded: they are linear in the instruction flags.
func (p *Polynomials) Commit(scheme commitment.Scheme) (*Commitments, error) {
	commitAll := func(polys []polynomial.MultiLin) ([]commitment.Commitment, error) {
		res := make([]commitment.Commitment, len(polys))
		for i := range polys {
			var err error
			if res[i], err = scheme.Commit(polys[i]); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	var (
		c   Commitments
		err error
	)
	if c.Dim, err = commitAll(p.Dim); err != nil {
		return nil, err
	}
	if c.ReadCts, err = commitAll(p.ReadCts); err != nil {
		return nil, err
	}
	if c.FinalCts, err = commitAll(p.FinalCts); err != nil {
		return nil, err
	}
	if c.E, err = commitAll(p.E); err != nil {
		return nil, err
	}
	if c.Flags, err = commitAll(p.Flags); err != nil {
		return nil, err
	}
	return &c, nil
}
