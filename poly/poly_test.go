package poly

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

// boolPoint returns the hypercube vertex for idx, most significant bit first.
func boolPoint(idx, n int) []fr.Element {
	point := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		if idx>>(n-1-i)&1 == 1 {
			point[i].SetOne()
		}
	}
	return point
}

func randomVector(t *testing.T, n int) []fr.Element {
	t.Helper()
	v := make([]fr.Element, n)
	for i := range v {
		_, err := v[i].SetRandom()
		require.NoError(t, err)
	}
	return v
}

func TestEqTableMatchesEvalEq(t *testing.T) {
	const n = 3
	r := randomVector(t, n)
	table := EqTable(r)
	require.Len(t, table, 1<<n)

	for idx := 0; idx < 1<<n; idx++ {
		expected := EvalEq(r, boolPoint(idx, n))
		require.True(t, expected.Equal(&table[idx]), "index %d", idx)
	}
}

func TestEqTableSumsToOne(t *testing.T) {
	r := randomVector(t, 4)
	table := EqTable(r)

	var sum, one fr.Element
	one.SetOne()
	for i := range table {
		sum.Add(&sum, &table[i])
	}
	require.True(t, sum.Equal(&one))
}

func TestEvalIdentityOnHypercube(t *testing.T) {
	const n = 4
	for idx := 0; idx < 1<<n; idx++ {
		got := EvalIdentity(boolPoint(idx, n))
		var expected fr.Element
		expected.SetUint64(uint64(idx))
		require.True(t, expected.Equal(&got), "index %d", idx)
	}
}

func TestEvalIdentityMatchesMLE(t *testing.T) {
	const n = 3
	ids := make([]int, 1<<n)
	for i := range ids {
		ids[i] = i
	}
	col := FromInts(ids)

	r := randomVector(t, n)
	direct := EvalIdentity(r)
	viaMLE := col.Evaluate(r, nil)
	require.True(t, direct.Equal(&viaMLE))
}

func TestFromUint64s(t *testing.T) {
	col := FromUint64s([]uint64{3, 1, 4, 1})
	var e fr.Element
	e.SetUint64(4)
	require.True(t, e.Equal(&col[2]))
}
