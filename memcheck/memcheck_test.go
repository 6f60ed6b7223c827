package memcheck

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
	"github.com/stretchr/testify/require"
)

func randomElement(t *testing.T) fr.Element {
	t.Helper()
	var e fr.Element
	_, err := e.SetRandom()
	require.NoError(t, err)
	return e
}

func TestFingerprintIsRLC(t *testing.T) {
	gamma, tau := randomElement(t), randomElement(t)
	var a, v, ts fr.Element
	a.SetUint64(3)
	v.SetUint64(7)
	ts.SetUint64(2)

	got := Fingerprint(&a, &v, &ts, &gamma, &tau)

	var expected, term fr.Element
	expected.Square(&gamma).Mul(&expected, &ts)
	term.Mul(&v, &gamma)
	expected.Add(&expected, &term).Add(&expected, &a).Sub(&expected, &tau)
	require.True(t, expected.Equal(&got))
}

func TestShiftTimestamp(t *testing.T) {
	gamma, tau := randomElement(t), randomElement(t)
	var a, v, ts, tsNext fr.Element
	a.SetUint64(5)
	v.SetUint64(9)
	ts.SetUint64(4)
	tsNext.SetUint64(5)

	read := FingerprintLeaves(
		polynomial.MultiLin{a}, polynomial.MultiLin{v}, polynomial.MultiLin{ts},
		&gamma, &tau)
	write := ShiftTimestamp(read, &gamma)

	expected := Fingerprint(&a, &v, &tsNext, &gamma, &tau)
	require.True(t, expected.Equal(&write[0]))
}

func TestToggleLeaves(t *testing.T) {
	fps := polynomial.MultiLin{randomElement(t), randomElement(t)}
	var flags polynomial.MultiLin = make([]fr.Element, 2)
	flags[0].SetOne() // entry 1 stays zero

	leaves := ToggleLeaves(flags, fps)

	var one fr.Element
	one.SetOne()
	require.True(t, leaves[0].Equal(&fps[0]))
	require.True(t, leaves[1].Equal(&one))
}

// A replayed access sequence must satisfy Init·Write == Read·Final.
func TestMultisetRelation(t *testing.T) {
	gamma, tau := randomElement(t), randomElement(t)

	// two cells holding values 10, 20; access cell 0 twice, cell 1 once
	type tuple struct{ a, v, ts uint64 }
	reads := []tuple{{0, 10, 0}, {0, 10, 1}, {1, 20, 0}}
	writes := []tuple{{0, 10, 1}, {0, 10, 2}, {1, 20, 1}}
	inits := []tuple{{0, 10, 0}, {1, 20, 0}}
	finals := []tuple{{0, 10, 2}, {1, 20, 1}}

	product := func(tuples []tuple) fr.Element {
		var res fr.Element
		res.SetOne()
		for _, tp := range tuples {
			var a, v, ts fr.Element
			a.SetUint64(tp.a)
			v.SetUint64(tp.v)
			ts.SetUint64(tp.ts)
			fp := Fingerprint(&a, &v, &ts, &gamma, &tau)
			res.Mul(&res, &fp)
		}
		return res
	}

	h := MultisetHashes{
		Read:  []fr.Element{product(reads)},
		Write: []fr.Element{product(writes)},
		Init:  []fr.Element{product(inits)},
		Final: []fr.Element{product(finals)},
	}
	require.NoError(t, h.Check(func(i int) int { return i }))

	// a forged read timestamp breaks the relation
	forged := reads
	forged[1].ts = 5
	h.Read[0] = product(forged)
	require.ErrorIs(t, h.Check(func(i int) int { return i }), ErrMultisetMismatch)
}

func TestCheckRejectsInconsistentCounts(t *testing.T) {
	h := MultisetHashes{
		Read:  make([]fr.Element, 2),
		Write: make([]fr.Element, 1),
		Init:  make([]fr.Element, 2),
		Final: make([]fr.Element, 2),
	}
	require.ErrorIs(t, h.Check(func(i int) int { return i }), ErrMultisetMismatch)
}
