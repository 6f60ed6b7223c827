// Package memcheck provides the offline memory-checking primitives shared by
// the instruction-lookup and read-write-memory arguments: random-linear-
// combination fingerprints of (address, value, timestamp) tuples, and the
// multiset-equality relation Init·Write == Read·Final over fingerprint
// products.
package memcheck

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
)

// ErrMultisetMismatch is returned when the read/write/init/final product
// hashes fail the multiset-equality relation.
var ErrMultisetMismatch = errors.New("memory checking multiset mismatch")

// Fingerprint returns h(a, v, t) = t·γ² + v·γ + a − τ. The fingerprinting
// function is a random linear combination over transcript challenges γ, τ;
// two multisets of tuples have equal fingerprint products with overwhelming
// probability only if they are equal.
func Fingerprint(a, v, t, gamma, tau *fr.Element) fr.Element {
	var res, acc fr.Element
	res.Square(gamma).Mul(&res, t)
	acc.Mul(v, gamma)
	res.Add(&res, &acc).Add(&res, a).Sub(&res, tau)
	return res
}

// FingerprintLeaves fingerprints the (a, v, t) columns pointwise.
func FingerprintLeaves(a, v, t polynomial.MultiLin, gamma, tau *fr.Element) polynomial.MultiLin {
	leaves := make(polynomial.MultiLin, len(a))
	for i := range leaves {
		leaves[i] = Fingerprint(&a[i], &v[i], &t[i], gamma, tau)
	}
	return leaves
}

// ShiftTimestamp returns a copy of leaves with γ² added to every entry,
// turning read fingerprints h(a, v, t) into write fingerprints h(a, v, t+1).
func ShiftTimestamp(leaves polynomial.MultiLin, gamma *fr.Element) polynomial.MultiLin {
	var gammaSq fr.Element
	gammaSq.Square(gamma)
	shifted := make(polynomial.MultiLin, len(leaves))
	for i := range leaves {
		shifted[i].Add(&leaves[i], &gammaSq)
	}
	return shifted
}

// ToggleLeaves applies the toggled-leaf formula flag·fp + (1 − flag)
// pointwise: unused steps collapse to the multiplicative identity so the
// product tree only "sees" steps that actually touched the memory.
func ToggleLeaves(flags, fps polynomial.MultiLin) polynomial.MultiLin {
	var one fr.Element
	one.SetOne()
	leaves := make(polynomial.MultiLin, len(fps))
	for i := range leaves {
		leaves[i].Mul(&flags[i], &fps[i]).
			Add(&leaves[i], &one).
			Sub(&leaves[i], &flags[i])
	}
	return leaves
}

// MultisetHashes carries the grand product of each fingerprint multiset, one
// entry per memory for Read, Write and Final; Init is indexed separately
// since several memories may share one init multiset.
type MultisetHashes struct {
	Read  []fr.Element
	Write []fr.Element
	Init  []fr.Element
	Final []fr.Element
}

// Check verifies Init·Write == Read·Final per memory. initIndex maps a memory
// index to its init multiset (identity for read-write memories; the
// subtable index for instruction lookups, where the C chunk memories of a
// subtable share its init set).
func (m MultisetHashes) Check(initIndex func(memory int) int) error {
	if len(m.Write) != len(m.Read) || len(m.Final) != len(m.Read) {
		return fmt.Errorf("%w: inconsistent hash counts", ErrMultisetMismatch)
	}
	var lhs, rhs fr.Element
	for i := range m.Read {
		lhs.Mul(&m.Init[initIndex(i)], &m.Write[i])
		rhs.Mul(&m.Read[i], &m.Final[i])
		if !lhs.Equal(&rhs) {
			return fmt.Errorf("%w: memory %d", ErrMultisetMismatch, i)
		}
	}
	return nil
}
