// Package subtable defines the static lookup tables ("subtables") that
// instructions decompose into. A subtable is a function on log₂(M) bits,
// materializable as an M-entry table for the prover and evaluable as a
// multilinear extension at an arbitrary field point for the verifier.
//
// Two-operand subtables interpret a table index as the concatenation (x ∥ y)
// of two operand chunks of logM/2 bits each, x in the high bits.
package subtable

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/internal/utils"
)

// Subtable is one independent lookup table.
type Subtable interface {
	// String names the subtable; names are unique and used as registry keys.
	String() string
	// Materialize returns the m evaluations of the subtable over [0, m).
	Materialize(m int) polynomial.MultiLin
	// EvaluateMLE evaluates the subtable's multilinear extension; the point
	// has log₂(m) coordinates, first variable most significant.
	EvaluateMLE(point []fr.Element) fr.Element
}

// splitPoint splits an MLE point into its x (high) and y (low) operand halves.
func splitPoint(point []fr.Element) (x, y []fr.Element) {
	if len(point)%2 != 0 {
		panic("two-operand subtable requires an even number of variables")
	}
	return point[:len(point)/2], point[len(point)/2:]
}

// Eq is the equality table: 1 at indices (x ∥ y) with x == y, 0 elsewhere.
type Eq struct{}

func (Eq) String() string { return "eq" }

func (Eq) Materialize(m int) polynomial.MultiLin {
	entries := make(polynomial.MultiLin, m)
	bits := utils.Log2Exact(uint64(m)) / 2
	for i := range entries {
		if x, y := utils.SplitBits(i, bits); x == y {
			entries[i].SetOne()
		}
	}
	return entries
}

func (Eq) EvaluateMLE(point []fr.Element) fr.Element {
	x, y := splitPoint(point)
	return evalEqBits(x, y)
}

// evalEqBits returns Π xᵢyᵢ + (1−xᵢ)(1−yᵢ).
func evalEqBits(x, y []fr.Element) fr.Element {
	var res, term, t, one fr.Element
	res.SetOne()
	one.SetOne()
	for i := range x {
		term.Mul(&x[i], &y[i]).Double(&term)
		t.Add(&x[i], &y[i])
		term.Sub(&term, &t).Add(&term, &one)
		res.Mul(&res, &term)
	}
	return res
}

// Ltu is the unsigned less-than table: 1 at indices (x ∥ y) with x < y.
type Ltu struct{}

func (Ltu) String() string { return "ltu" }

func (Ltu) Materialize(m int) polynomial.MultiLin {
	entries := make(polynomial.MultiLin, m)
	bits := utils.Log2Exact(uint64(m)) / 2
	for i := range entries {
		if x, y := utils.SplitBits(i, bits); x < y {
			entries[i].SetOne()
		}
	}
	return entries
}

func (Ltu) EvaluateMLE(point []fr.Element) fr.Element {
	// LTU(x,y) = Σᵢ (1−xᵢ)·yᵢ·Π_{j<i} eq(xⱼ,yⱼ), scanning from the most
	// significant bit
	x, y := splitPoint(point)
	var res, term, eqAcc, t, one fr.Element
	one.SetOne()
	eqAcc.SetOne()
	for i := range x {
		term.Sub(&one, &x[i]).Mul(&term, &y[i]).Mul(&term, &eqAcc)
		res.Add(&res, &term)

		t.Mul(&x[i], &y[i]).Double(&t)
		var s fr.Element
		s.Add(&x[i], &y[i])
		t.Sub(&t, &s).Add(&t, &one)
		eqAcc.Mul(&eqAcc, &t)
	}
	return res
}

// Identity is the table i ↦ i. It doubles as the digit table of the range
// check, which constrains digits to [0, m).
type Identity struct{}

func (Identity) String() string { return "identity" }

func (Identity) Materialize(m int) polynomial.MultiLin {
	entries := make(polynomial.MultiLin, m)
	for i := range entries {
		entries[i].SetUint64(uint64(i))
	}
	return entries
}

func (Identity) EvaluateMLE(point []fr.Element) fr.Element {
	var res fr.Element
	for i := range point {
		res.Double(&res)
		res.Add(&res, &point[i])
	}
	return res
}
