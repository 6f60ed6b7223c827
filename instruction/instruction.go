// Package instruction declares the closed set of lookup instructions and the
// static decomposition table mapping each instruction kind to its subtables
// and collation function.
//
// The decomposition is fixed per VM configuration: a Registry is built once
// from the declared kinds and is immutable afterwards, so it may be shared by
// any number of concurrent proving sessions.
package instruction

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/lasso/subtable"
)

// ErrUnknownInstruction is returned when a kind is looked up that the registry
// does not declare.
var ErrUnknownInstruction = errors.New("unknown instruction kind")

// Kind identifies a lookup instruction.
type Kind uint8

const (
	EQ Kind = iota
	LTU
	AND
	OR
	XOR
	numKinds
)

func (k Kind) String() string {
	switch k {
	case EQ:
		return "eq"
	case LTU:
		return "ltu"
	case AND:
		return "and"
	case OR:
		return "or"
	case XOR:
		return "xor"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := EQ; k < numKinds; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownInstruction, s)
}

// Lookup is one executed instruction: a kind and its two operands.
type Lookup struct {
	Kind Kind
	X, Y uint64
}

// kindSpec is the static decomposition of one instruction kind.
type kindSpec struct {
	subtables []subtable.Subtable
	// collate combines the α·C subtable terms, ordered subtable-major then
	// chunk (most significant chunk first)
	collate func(terms []fr.Element, c, logM int) fr.Element
	// gDegree bounds the total degree of collate as a polynomial in the terms
	gDegree func(c int) int
	// eval computes the instruction output directly on W-bit operands
	eval func(x, y, mask uint64) uint64
}

func specOf(k Kind) (kindSpec, error) {
	switch k {
	case EQ:
		return kindSpec{
			subtables: []subtable.Subtable{subtable.Eq{}},
			collate:   collateProduct,
			gDegree:   func(c int) int { return c },
			eval: func(x, y, mask uint64) uint64 {
				if x&mask == y&mask {
					return 1
				}
				return 0
			},
		}, nil
	case LTU:
		return kindSpec{
			subtables: []subtable.Subtable{subtable.Ltu{}, subtable.Eq{}},
			collate:   collateLtu,
			gDegree:   func(c int) int { return c },
			eval: func(x, y, mask uint64) uint64 {
				if x&mask < y&mask {
					return 1
				}
				return 0
			},
		}, nil
	case AND:
		return kindSpec{
			subtables: []subtable.Subtable{subtable.And{}},
			collate:   collateConcat,
			gDegree:   func(int) int { return 1 },
			eval:      func(x, y, mask uint64) uint64 { return x & y & mask },
		}, nil
	case OR:
		return kindSpec{
			subtables: []subtable.Subtable{subtable.Or{}},
			collate:   collateConcat,
			gDegree:   func(int) int { return 1 },
			eval:      func(x, y, mask uint64) uint64 { return (x | y) & mask },
		}, nil
	case XOR:
		return kindSpec{
			subtables: []subtable.Subtable{subtable.Xor{}},
			collate:   collateConcat,
			gDegree:   func(int) int { return 1 },
			eval:      func(x, y, mask uint64) uint64 { return (x ^ y) & mask },
		}, nil
	default:
		return kindSpec{}, fmt.Errorf("%w: %s", ErrUnknownInstruction, k)
	}
}

// collateProduct: g(t₀,…) = Π tᵢ. Used by EQ; degree C.
func collateProduct(terms []fr.Element, _, _ int) fr.Element {
	var res fr.Element
	res.SetOne()
	for i := range terms {
		res.Mul(&res, &terms[i])
	}
	return res
}

// collateLtu: terms = [ltu₀..ltu_{C-1}, eq₀..eq_{C-1}],
// g = Σᵢ ltuᵢ · Π_{j<i} eqⱼ. Degree C.
func collateLtu(terms []fr.Element, c, _ int) fr.Element {
	ltu, eq := terms[:c], terms[c:]
	var res, term, eqAcc fr.Element
	eqAcc.SetOne()
	for i := 0; i < c; i++ {
		term.Mul(&ltu[i], &eqAcc)
		res.Add(&res, &term)
		eqAcc.Mul(&eqAcc, &eq[i])
	}
	return res
}

// collateConcat: g = Σᵢ tᵢ · 2^{w·(C-1-i)} with w = logM/2 the chunk output
// width. Degree 1.
func collateConcat(terms []fr.Element, c, logM int) fr.Element {
	w := logM / 2
	var res, term fr.Element
	for i := range terms {
		term.Set(&terms[i])
		for s := 0; s < w*(c-1-i); s++ {
			term.Double(&term)
		}
		res.Add(&res, &term)
	}
	return res
}
