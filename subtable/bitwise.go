package subtable

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/internal/utils"
)

// And is the bitwise-and table: (x ∥ y) ↦ x & y.
type And struct{}

func (And) String() string { return "and" }

func (And) Materialize(m int) polynomial.MultiLin {
	entries := make(polynomial.MultiLin, m)
	bits := utils.Log2Exact(uint64(m)) / 2
	for i := range entries {
		x, y := utils.SplitBits(i, bits)
		entries[i].SetUint64(uint64(x & y))
	}
	return entries
}

func (And) EvaluateMLE(point []fr.Element) fr.Element {
	x, y := splitPoint(point)
	var res, term fr.Element
	for i := range x {
		res.Double(&res)
		term.Mul(&x[i], &y[i])
		res.Add(&res, &term)
	}
	return res
}

// Or is the bitwise-or table: (x ∥ y) ↦ x | y.
type Or struct{}

func (Or) String() string { return "or" }

func (Or) Materialize(m int) polynomial.MultiLin {
	entries := make(polynomial.MultiLin, m)
	bits := utils.Log2Exact(uint64(m)) / 2
	for i := range entries {
		x, y := utils.SplitBits(i, bits)
		entries[i].SetUint64(uint64(x | y))
	}
	return entries
}

func (Or) EvaluateMLE(point []fr.Element) fr.Element {
	// xᵢ + yᵢ − xᵢyᵢ per bit
	x, y := splitPoint(point)
	var res, term, t fr.Element
	for i := range x {
		res.Double(&res)
		term.Add(&x[i], &y[i])
		t.Mul(&x[i], &y[i])
		term.Sub(&term, &t)
		res.Add(&res, &term)
	}
	return res
}

// Xor is the bitwise-xor table: (x ∥ y) ↦ x ^ y.
type Xor struct{}

func (Xor) String() string { return "xor" }

func (Xor) Materialize(m int) polynomial.MultiLin {
	entries := make(polynomial.MultiLin, m)
	bits := utils.Log2Exact(uint64(m)) / 2
	for i := range entries {
		x, y := utils.SplitBits(i, bits)
		entries[i].SetUint64(uint64(x ^ y))
	}
	return entries
}

func (Xor) EvaluateMLE(point []fr.Element) fr.Element {
	// xᵢ + yᵢ − 2xᵢyᵢ per bit
	x, y := splitPoint(point)
	var res, term, t fr.Element
	for i := range x {
		res.Double(&res)
		term.Add(&x[i], &y[i])
		t.Mul(&x[i], &y[i]).Double(&t)
		term.Sub(&term, &t)
		res.Add(&res, &term)
	}
	return res
}
