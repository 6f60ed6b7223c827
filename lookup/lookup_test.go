package lookup

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/transcript"
)

func testRegistry(t *testing.T) *instruction.Registry {
	t.Helper()
	reg, err := instruction.NewRegistry(2, 4, instruction.EQ, instruction.LTU, instruction.AND, instruction.OR, instruction.XOR)
	require.NoError(t, err)
	return reg
}

func selector(reg *instruction.Registry, k instruction.Kind) *bitset.BitSet {
	s := bitset.New(uint(reg.NumKinds()))
	for i, kind := range reg.Kinds() {
		if kind == k {
			s.Set(uint(i))
		}
	}
	return s
}

func TestIngestTraceRows(t *testing.T) {
	reg := testRegistry(t)
	rows := []TraceRow{
		{Selectors: selector(reg, instruction.EQ), X: 5, Y: 5},
		{Selectors: selector(reg, instruction.LTU), X: 3, Y: 9},
		{Selectors: selector(reg, instruction.AND), X: 12, Y: 10},
		{Selectors: selector(reg, instruction.XOR), X: 6, Y: 3},
	}
	l, err := New(reg, rows)
	require.NoError(t, err)
	require.Equal(t, 4, l.NumSteps())
}

func TestRejectsDoubleSelector(t *testing.T) {
	reg := testRegistry(t)
	double := selector(reg, instruction.EQ).Union(selector(reg, instruction.AND))

	rows := []TraceRow{
		{Selectors: selector(reg, instruction.EQ), X: 1, Y: 1},
		{Selectors: double, X: 2, Y: 2},
	}
	_, err := New(reg, rows)
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestRejectsEmptySelector(t *testing.T) {
	reg := testRegistry(t)
	rows := []TraceRow{
		{Selectors: bitset.New(uint(reg.NumKinds())), X: 1, Y: 1},
	}
	_, err := New(reg, rows)
	require.ErrorIs(t, err, ErrMalformedTrace)

	_, err = New(reg, []TraceRow{{X: 1, Y: 1}})
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestRejectsNonPowerOfTwoTrace(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 1, Y: 1},
		{Kind: instruction.EQ, X: 2, Y: 2},
		{Kind: instruction.EQ, X: 3, Y: 3},
	}
	_, err := NewFromOps(reg, ops)
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestPolynomializeInvariants(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 5, Y: 5},
		{Kind: instruction.LTU, X: 3, Y: 9},
		{Kind: instruction.EQ, X: 7, Y: 2},
		{Kind: instruction.AND, X: 12, Y: 10},
	}
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	p, err := l.Polynomialize()
	require.NoError(t, err)

	// exactly one flag set per step
	var one fr.Element
	one.SetOne()
	for j := range ops {
		var sum fr.Element
		for f := range p.Flags {
			sum.Add(&sum, &p.Flags[f][j])
		}
		require.True(t, sum.Equal(&one), "step %d", j)
	}

	// final counts tally the reads of each memory
	for i := range p.FinalCts {
		var total fr.Element
		for j := range ops {
			if !p.E[i][j].IsZero() || !p.ReadCts[i][j].IsZero() {
				// step touches memory i only if its kind references it
				ki, err := reg.KindIndex(ops[j].Kind)
				require.NoError(t, err)
				found := false
				for _, mi := range reg.MemoryIndicesAt(ki) {
					if mi == i {
						found = true
					}
				}
				require.True(t, found)
			}
		}
		for a := range p.FinalCts[i] {
			total.Add(&total, &p.FinalCts[i][a])
		}
		// total accesses of memory i = number of steps whose kind uses it
		var expected fr.Element
		for j := range ops {
			ki, err := reg.KindIndex(ops[j].Kind)
			require.NoError(t, err)
			for _, mi := range reg.MemoryIndicesAt(ki) {
				if mi == i {
					expected.Add(&expected, &one)
				}
			}
		}
		require.True(t, expected.Equal(&total), "memory %d", i)
	}
}

// Each step's flagged collation of E values must reproduce the instruction
// output.
func TestCollatedRowsMatchOutputs(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.LTU, X: 3, Y: 9},
		{Kind: instruction.EQ, X: 7, Y: 7},
		{Kind: instruction.OR, X: 8, Y: 1},
		{Kind: instruction.XOR, X: 15, Y: 15},
	}
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	p, err := l.Polynomialize()
	require.NoError(t, err)

	for j, op := range ops {
		ki, err := reg.KindIndex(op.Kind)
		require.NoError(t, err)
		var terms []fr.Element
		for _, mi := range reg.MemoryIndicesAt(ki) {
			terms = append(terms, p.E[mi][j])
		}
		collated := reg.CollateAt(ki, terms)
		expected, err := reg.Output(op)
		require.NoError(t, err)
		require.True(t, expected.Equal(&collated), "step %d", j)
	}
}

func proveVerify(t *testing.T, reg *instruction.Registry, ops []instruction.Lookup) (*Proof, *Commitments, error) {
	t.Helper()
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	scheme := commitment.MiMC{}
	proof, comm, err := l.Prove(scheme, transcript.New("test"))
	require.NoError(t, err)
	return proof, comm, Verify(reg, proof, comm, scheme, transcript.New("test"))
}

func TestProveVerifyRoundtrip(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 5, Y: 5},
		{Kind: instruction.LTU, X: 3, Y: 9},
		{Kind: instruction.EQ, X: 7, Y: 2},
		{Kind: instruction.LTU, X: 9, Y: 3},
		{Kind: instruction.AND, X: 12, Y: 10},
		{Kind: instruction.OR, X: 8, Y: 1},
		{Kind: instruction.XOR, X: 15, Y: 15},
		{Kind: instruction.EQ, X: 0, Y: 0},
	}
	_, _, err := proveVerify(t, reg, ops)
	require.NoError(t, err)
}

func TestProveVerifySingleKind(t *testing.T) {
	reg, err := instruction.NewRegistry(2, 4, instruction.EQ)
	require.NoError(t, err)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 1, Y: 1},
		{Kind: instruction.EQ, X: 2, Y: 3},
		{Kind: instruction.EQ, X: 9, Y: 9},
		{Kind: instruction.EQ, X: 15, Y: 0},
	}
	_, _, err = proveVerify(t, reg, ops)
	require.NoError(t, err)
}

// A kind the trace never executes leaves its subtable's memories untouched:
// every toggled leaf collapses to 1, the product hashes are 1, and the proof
// still verifies.
func TestProveVerifyUnusedKind(t *testing.T) {
	reg, err := instruction.NewRegistry(2, 4, instruction.EQ, instruction.LTU)
	require.NoError(t, err)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 5, Y: 5},
		{Kind: instruction.EQ, X: 3, Y: 9},
		{Kind: instruction.EQ, X: 7, Y: 7},
		{Kind: instruction.EQ, X: 0, Y: 2},
	}
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	scheme := commitment.MiMC{}
	proof, comm, err := l.Prove(scheme, transcript.New("test"))
	require.NoError(t, err)

	ltu := -1
	for s, st := range reg.Subtables() {
		if st.String() == "ltu" {
			ltu = s
		}
	}
	require.GreaterOrEqual(t, ltu, 0)

	var one fr.Element
	one.SetOne()
	for i := 0; i < reg.NumMemories(); i++ {
		if reg.MemoryToSubtable(i) != ltu {
			continue
		}
		require.True(t, proof.MemoryChecking.Hashes.Read[i].Equal(&one), "memory %d", i)
		require.True(t, proof.MemoryChecking.Hashes.Write[i].Equal(&one), "memory %d", i)
	}

	require.NoError(t, Verify(reg, proof, comm, scheme, transcript.New("test")))
}

// Openings missing from a decoded proof must reject, not panic.
func TestVerifyRejectsMissingOpenings(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 5, Y: 5},
		{Kind: instruction.LTU, X: 3, Y: 9},
		{Kind: instruction.AND, X: 7, Y: 2},
		{Kind: instruction.XOR, X: 9, Y: 3},
	}
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	scheme := commitment.MiMC{}
	proof, comm, err := l.Prove(scheme, transcript.New("test"))
	require.NoError(t, err)

	flagOps := proof.Primary.FlagOpenings
	proof.Primary.FlagOpenings = nil
	require.ErrorIs(t, Verify(reg, proof, comm, scheme, transcript.New("test")), ErrCollation)
	proof.Primary.FlagOpenings = flagOps

	dimOps := proof.MemoryChecking.DimOpenings
	proof.MemoryChecking.DimOpenings = dimOps[:0]
	require.ErrorIs(t, Verify(reg, proof, comm, scheme, transcript.New("test")), ErrToggleCheck)
	proof.MemoryChecking.DimOpenings = dimOps

	finalOps := proof.MemoryChecking.FinalCtsOpenings
	proof.MemoryChecking.FinalCtsOpenings = nil
	require.ErrorIs(t, Verify(reg, proof, comm, scheme, transcript.New("test")), ErrInitFinalCheck)
	proof.MemoryChecking.FinalCtsOpenings = finalOps

	require.NoError(t, Verify(reg, proof, comm, scheme, transcript.New("test")))
}

func TestVerifyRejectsTamperedClaim(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 5, Y: 5},
		{Kind: instruction.AND, X: 3, Y: 9},
		{Kind: instruction.OR, X: 7, Y: 2},
		{Kind: instruction.XOR, X: 9, Y: 3},
	}
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	scheme := commitment.MiMC{}
	proof, comm, err := l.Prove(scheme, transcript.New("test"))
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()
	proof.Primary.Claim.Add(&proof.Primary.Claim, &one)
	require.Error(t, Verify(reg, proof, comm, scheme, transcript.New("test")))
}

func TestVerifyRejectsTamperedHashes(t *testing.T) {
	reg := testRegistry(t)
	ops := []instruction.Lookup{
		{Kind: instruction.EQ, X: 5, Y: 5},
		{Kind: instruction.LTU, X: 3, Y: 9},
		{Kind: instruction.EQ, X: 1, Y: 2},
		{Kind: instruction.LTU, X: 2, Y: 1},
	}
	l, err := NewFromOps(reg, ops)
	require.NoError(t, err)
	scheme := commitment.MiMC{}
	proof, comm, err := l.Prove(scheme, transcript.New("test"))
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()
	proof.MemoryChecking.Hashes.Read[0].Add(&proof.MemoryChecking.Hashes.Read[0], &one)
	require.Error(t, Verify(reg, proof, comm, scheme, transcript.New("test")))
}

func TestFlagSumProperty(t *testing.T) {
	reg := testRegistry(t)
	kinds := reg.Kinds()
	mask := uint64(1)<<reg.OperandBits() - 1

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("one flag per step", prop.ForAll(
		func(raw []uint64) bool {
			ops := make([]instruction.Lookup, 4)
			for j := range ops {
				ops[j] = instruction.Lookup{
					Kind: kinds[raw[j]%uint64(len(kinds))],
					X:    raw[j] % mask,
					Y:    raw[j] / 7 % mask,
				}
			}
			l, err := NewFromOps(reg, ops)
			if err != nil {
				return false
			}
			p, err := l.Polynomialize()
			if err != nil {
				return false
			}
			var one fr.Element
			one.SetOne()
			for j := range ops {
				var sum fr.Element
				for f := range p.Flags {
					sum.Add(&sum, &p.Flags[f][j])
				}
				if !sum.Equal(&one) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.UInt64()),
	))

	properties.TestingRun(t)
}
