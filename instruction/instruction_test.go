package instruction

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(2, 4, EQ, LTU, AND, OR, XOR)
	require.NoError(t, err)
	return reg
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(0, 4, EQ)
	require.Error(t, err)
	_, err = NewRegistry(2, 3, EQ)
	require.Error(t, err)
	_, err = NewRegistry(2, 4, EQ, EQ)
	require.Error(t, err)
	_, err = NewRegistry(2, 4)
	require.Error(t, err)
}

func TestRegistryLayout(t *testing.T) {
	reg := testRegistry(t)
	require.Equal(t, 2, reg.C())
	require.Equal(t, 16, reg.M())
	require.Equal(t, 4, reg.OperandBits())
	require.Equal(t, 5, reg.NumKinds())
	// EQ: eq; LTU: ltu+eq; AND/OR/XOR: one each
	require.Equal(t, 5, reg.NumSubtables())
	require.Equal(t, 10, reg.NumMemories())

	for i := 0; i < reg.NumMemories(); i++ {
		require.Equal(t, i, reg.MemoryToSubtable(i)*reg.C()+reg.MemoryToChunk(i))
	}
}

func TestMemoryIndicesDisjointPerSubtable(t *testing.T) {
	reg := testRegistry(t)
	for f := 0; f < reg.NumKinds(); f++ {
		seen := map[int]bool{}
		for _, mi := range reg.MemoryIndicesAt(f) {
			require.False(t, seen[mi])
			seen[mi] = true
			require.Less(t, mi, reg.NumMemories())
		}
	}
}

func TestUnknownKind(t *testing.T) {
	reg := testRegistry(t)
	_, err := reg.KindIndex(Kind(200))
	require.ErrorIs(t, err, ErrUnknownInstruction)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{EQ, LTU, AND, OR, XOR} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	_, err := ParseKind("mul")
	require.ErrorIs(t, err, ErrUnknownInstruction)
}

// The collation of subtable entries at a lookup's chunk indices must equal
// the instruction's direct evaluation on the operands.
func TestCollationMatchesDirectEval(t *testing.T) {
	reg := testRegistry(t)
	mask := uint64(1)<<reg.OperandBits() - 1

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	for _, k := range reg.Kinds() {
		k := k
		properties.Property(k.String(), prop.ForAll(
			func(x, y uint64) bool {
				lk := Lookup{Kind: k, X: x, Y: y}
				indices, err := reg.Indices(lk)
				if err != nil {
					return false
				}

				subtables, err := reg.SubtablesOf(k)
				if err != nil {
					return false
				}
				var terms []fr.Element
				for _, st := range subtables {
					table := st.Materialize(reg.M())
					for _, idx := range indices {
						terms = append(terms, table[idx])
					}
				}

				collated, err := reg.Collate(k, terms)
				if err != nil {
					return false
				}
				expected, err := reg.Output(lk)
				if err != nil {
					return false
				}
				return collated.Equal(&expected)
			},
			gen.UInt64Range(0, mask),
			gen.UInt64Range(0, mask),
		))
	}

	properties.TestingRun(t)
}

func TestGDegreeBounds(t *testing.T) {
	reg := testRegistry(t)
	for _, k := range reg.Kinds() {
		d, err := reg.GDegree(k)
		require.NoError(t, err)
		require.Greater(t, d, 0)
		require.LessOrEqual(t, d, reg.MaxGDegree())
	}
	// bitwise collations are linear in the terms, comparisons are not
	d, err := reg.GDegree(AND)
	require.NoError(t, err)
	require.Equal(t, 1, d)
	d, err = reg.GDegree(EQ)
	require.NoError(t, err)
	require.Equal(t, reg.C(), d)
}
