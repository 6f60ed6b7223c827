// Package poly complements gnark-crypto's fr/polynomial package with the
// multilinear helpers the lookup argument needs: eq-table expansion, lifting
// integer vectors to field polynomials, and a few structured MLE evaluations.
package poly

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
)

// EqTable returns the 2^len(r) evaluations of eq̃(r, x) over the boolean
// hypercube. Indexing matches polynomial.MultiLin: the first variable is the
// most significant index bit.
func EqTable(r []fr.Element) polynomial.MultiLin {
	evals := make(polynomial.MultiLin, 1<<len(r))
	evals[0].SetOne()
	size := 1
	// introduce variables last-to-first so that r[0] ends up as the most
	// significant index bit
	for i := len(r) - 1; i >= 0; i-- {
		for j := size - 1; j >= 0; j-- {
			evals[j+size].Mul(&evals[j], &r[i])
			evals[j].Sub(&evals[j], &evals[j+size])
		}
		size <<= 1
	}
	return evals
}

// EvalEq returns eq̃(q, h) = Π qᵢhᵢ + (1−qᵢ)(1−hᵢ). Assumes len(q) == len(h).
func EvalEq(q, h []fr.Element) fr.Element {
	var res, acc, t, one fr.Element
	res.SetOne()
	one.SetOne()
	for i := range q {
		acc.Mul(&q[i], &h[i]).Double(&acc) // 2qᵢhᵢ
		t.Add(&q[i], &h[i])
		acc.Sub(&acc, &t).Add(&acc, &one) // 1 + 2qᵢhᵢ − qᵢ − hᵢ
		res.Mul(&res, &acc)
	}
	return res
}

// FromInts lifts integer evaluations to a multilinear polynomial.
func FromInts(values []int) polynomial.MultiLin {
	res := make(polynomial.MultiLin, len(values))
	for i, v := range values {
		res[i].SetUint64(uint64(v))
	}
	return res
}

// FromUint64s lifts uint64 evaluations to a multilinear polynomial.
func FromUint64s(values []uint64) polynomial.MultiLin {
	res := make(polynomial.MultiLin, len(values))
	for i, v := range values {
		res[i].SetUint64(v)
	}
	return res
}

// EvalIdentity evaluates the MLE of the address index i ↦ i at the given
// point: Σᵢ 2^(n-1-i)·rᵢ with the first variable most significant.
func EvalIdentity(point []fr.Element) fr.Element {
	var res fr.Element
	for i := range point {
		res.Double(&res)
		res.Add(&res, &point[i])
	}
	return res
}
