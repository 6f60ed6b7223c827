// Package rangecheck proves that committed values lie in [0, bound] by digit
// decomposition: each value v and its complement bound−v are split into
// base-2^k digits, every digit is looked up in the identity table via offline
// memory checking, and a recomposition identity ties the digit polynomials
// back to the value polynomial at a random point.
package rangecheck

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/grandproduct"
	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/memcheck"
	"github.com/consensys/lasso/poly"
	"github.com/consensys/lasso/subtable"
	"github.com/consensys/lasso/transcript"
)

// ErrRangeViolation is returned when a value exceeds the checker's bound, at
// proving time, or when a proof fails the recomposition identity.
var ErrRangeViolation = errors.New("range violation")

// Checker proves membership in [0, bound] for batches of values, using
// base-2^k digits looked up in the identity table.
type Checker struct {
	k         int
	bound     uint64
	numDigits int
	table     polynomial.MultiLin
}

// NewChecker builds a checker for [0, bound] with digit width k bits.
func NewChecker(k int, bound uint64) (*Checker, error) {
	if k <= 0 || k >= 64 {
		return nil, fmt.Errorf("rangecheck: digit width %d out of range", k)
	}
	numDigits := 1
	for b := bound >> k; b != 0; b >>= k {
		numDigits++
	}
	return &Checker{
		k:         k,
		bound:     bound,
		numDigits: numDigits,
		table:     subtable.Identity{}.Materialize(1 << k),
	}, nil
}

// NumDigits returns the digit count per decomposition.
func (c *Checker) NumDigits() int { return c.numDigits }

// Proof attests that every committed value lies in [0, bound]. Both the
// value digits and the complement digits appear as digit columns; column j
// holds digit j of the values, column numDigits+j digit j of the
// complements.
type Proof struct {
	NumValues int

	Hashes    memcheck.MultisetHashes
	ReadWrite grandproduct.Proof
	InitFinal grandproduct.Proof

	// Openings at the read/write grand product's point.
	ValueEval       fr.Element
	DigitEvals      []fr.Element
	ReadCtsEvals    []fr.Element
	ValueOpening    commitment.OpeningProof
	DigitOpenings   []commitment.OpeningProof
	ReadCtsOpenings []commitment.OpeningProof

	// Openings at the init/final grand product's point.
	FinalCtsEvals    []fr.Element
	FinalCtsOpenings []commitment.OpeningProof
}

// Commitments binds the value polynomial and every digit column.
type Commitments struct {
	Values   commitment.Commitment
	Digits   []commitment.Commitment
	ReadCts  []commitment.Commitment
	FinalCts []commitment.Commitment
}

func (cm *Commitments) appendTo(ts *transcript.Transcript) {
	ts.Append("rangecheck.commitment", cm.Values)
	for _, groups := range [][]commitment.Commitment{cm.Digits, cm.ReadCts, cm.FinalCts} {
		for _, c := range groups {
			ts.Append("rangecheck.commitment", c)
		}
	}
}

// Prove checks every value against the bound and produces the argument. The
// value count is padded to a power of two with zeros. The returned point is
// where the value polynomial was opened; callers embedding the check bind
// their own value claims at that point.
func (c *Checker) Prove(values []uint64, scheme commitment.Scheme, ts *transcript.Transcript) (*Proof, *Commitments, []fr.Element, error) {
	if len(values) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty value batch", ErrRangeViolation)
	}
	n := int(utils.NextPowerOfTwo(uint64(len(values))))
	if n < 2 {
		n = 2
	}
	padded := make([]uint64, n)
	copy(padded, values)

	for j, v := range padded {
		if v > c.bound {
			return nil, nil, nil, fmt.Errorf("%w: value %d at index %d exceeds bound %d", ErrRangeViolation, v, j, c.bound)
		}
	}

	d := c.numDigits
	mask := uint64(1)<<c.k - 1
	vPoly := poly.FromUint64s(padded)
	digits := make([]polynomial.MultiLin, 2*d)
	for col := range digits {
		digits[col] = make(polynomial.MultiLin, n)
	}
	for j, v := range padded {
		comp := c.bound - v
		for dig := 0; dig < d; dig++ {
			digits[dig][j].SetUint64(v >> (dig * c.k) & mask)
			digits[d+dig][j].SetUint64(comp >> (dig * c.k) & mask)
		}
	}

	// Access counters per digit column against the identity table.
	tableSize := 1 << c.k
	readCts := make([]polynomial.MultiLin, 2*d)
	finalCts := make([]polynomial.MultiLin, 2*d)
	for col := range digits {
		readCts[col] = make(polynomial.MultiLin, n)
		finalCts[col] = make(polynomial.MultiLin, tableSize)
		counters := make([]uint64, tableSize)
		for j, v := range padded {
			var addr uint64
			if col < d {
				addr = v >> (col * c.k) & mask
			} else {
				addr = (c.bound - v) >> ((col - d) * c.k) & mask
			}
			readCts[col][j].SetUint64(counters[addr])
			counters[addr]++
		}
		for a, cnt := range counters {
			finalCts[col][a].SetUint64(cnt)
		}
	}

	comm := &Commitments{
		Digits:   make([]commitment.Commitment, 2*d),
		ReadCts:  make([]commitment.Commitment, 2*d),
		FinalCts: make([]commitment.Commitment, 2*d),
	}
	var err error
	if comm.Values, err = scheme.Commit(vPoly); err != nil {
		return nil, nil, nil, err
	}
	for col := 0; col < 2*d; col++ {
		if comm.Digits[col], err = scheme.Commit(digits[col]); err != nil {
			return nil, nil, nil, err
		}
		if comm.ReadCts[col], err = scheme.Commit(readCts[col]); err != nil {
			return nil, nil, nil, err
		}
		if comm.FinalCts[col], err = scheme.Commit(finalCts[col]); err != nil {
			return nil, nil, nil, err
		}
	}
	comm.appendTo(ts)

	gamma := ts.ChallengeScalar("rangecheck.gamma")
	tau := ts.ChallengeScalar("rangecheck.tau")

	// For the identity table, address and value columns coincide.
	rwCircuits := make([]*grandproduct.Circuit, 4*d)
	for col := 0; col < 2*d; col++ {
		readFps := memcheck.FingerprintLeaves(digits[col], digits[col], readCts[col], &gamma, &tau)
		rwCircuits[col] = grandproduct.New(readFps)
		rwCircuits[2*d+col] = grandproduct.New(memcheck.ShiftTimestamp(readFps, &gamma))
	}
	addr := c.table
	zeros := make(polynomial.MultiLin, tableSize)
	ifCircuits := make([]*grandproduct.Circuit, 1+2*d)
	ifCircuits[0] = grandproduct.New(memcheck.FingerprintLeaves(addr, addr, zeros, &gamma, &tau))
	for col := 0; col < 2*d; col++ {
		ifCircuits[1+col] = grandproduct.New(memcheck.FingerprintLeaves(addr, addr, finalCts[col], &gamma, &tau))
	}

	proof := &Proof{NumValues: len(values)}
	proof.Hashes = memcheck.MultisetHashes{
		Read:  make([]fr.Element, 2*d),
		Write: make([]fr.Element, 2*d),
		Init:  []fr.Element{ifCircuits[0].Eval()},
		Final: make([]fr.Element, 2*d),
	}
	for col := 0; col < 2*d; col++ {
		proof.Hashes.Read[col] = rwCircuits[col].Eval()
		proof.Hashes.Write[col] = rwCircuits[2*d+col].Eval()
		proof.Hashes.Final[col] = ifCircuits[1+col].Eval()
	}
	if err := proof.Hashes.Check(func(int) int { return 0 }); err != nil {
		return nil, nil, nil, err
	}
	absorbHashes(ts, proof.Hashes)

	var rwRand []fr.Element
	proof.ReadWrite, _, rwRand = grandproduct.ProveBatched(rwCircuits, ts)

	// Untoggled fingerprints are linear in the columns, so the leaf claims
	// resolve from plain openings at the grand product's point.
	if proof.ValueEval, proof.ValueOpening, err = scheme.Open(vPoly, rwRand); err != nil {
		return nil, nil, nil, err
	}
	proof.DigitEvals = make([]fr.Element, 2*d)
	proof.DigitOpenings = make([]commitment.OpeningProof, 2*d)
	proof.ReadCtsEvals = make([]fr.Element, 2*d)
	proof.ReadCtsOpenings = make([]commitment.OpeningProof, 2*d)
	for col := 0; col < 2*d; col++ {
		if proof.DigitEvals[col], proof.DigitOpenings[col], err = scheme.Open(digits[col], rwRand); err != nil {
			return nil, nil, nil, err
		}
		if proof.ReadCtsEvals[col], proof.ReadCtsOpenings[col], err = scheme.Open(readCts[col], rwRand); err != nil {
			return nil, nil, nil, err
		}
	}
	ts.AppendScalar("rangecheck.value_eval", &proof.ValueEval)
	ts.AppendScalars("rangecheck.digit_evals", proof.DigitEvals)
	ts.AppendScalars("rangecheck.read_cts_evals", proof.ReadCtsEvals)

	var ifRand []fr.Element
	proof.InitFinal, _, ifRand = grandproduct.ProveBatched(ifCircuits, ts)

	proof.FinalCtsEvals = make([]fr.Element, 2*d)
	proof.FinalCtsOpenings = make([]commitment.OpeningProof, 2*d)
	for col := 0; col < 2*d; col++ {
		if proof.FinalCtsEvals[col], proof.FinalCtsOpenings[col], err = scheme.Open(finalCts[col], ifRand); err != nil {
			return nil, nil, nil, err
		}
	}
	ts.AppendScalars("rangecheck.final_cts_evals", proof.FinalCtsEvals)

	return proof, comm, rwRand, nil
}

func absorbHashes(ts *transcript.Transcript, h memcheck.MultisetHashes) {
	ts.AppendScalars("rangecheck.hash_read", h.Read)
	ts.AppendScalars("rangecheck.hash_write", h.Write)
	ts.AppendScalars("rangecheck.hash_init", h.Init)
	ts.AppendScalars("rangecheck.hash_final", h.Final)
}

// Verify checks the argument and returns the point at which the value
// polynomial's opening was checked. The opening must recompose from the
// digit openings, for both the values and their complements against the
// bound.
func (c *Checker) Verify(proof *Proof, comm *Commitments, scheme commitment.Scheme, ts *transcript.Transcript) ([]fr.Element, error) {
	d := c.numDigits
	if proof.NumValues <= 0 {
		return nil, fmt.Errorf("%w: empty value batch", ErrRangeViolation)
	}
	n := int(utils.NextPowerOfTwo(uint64(proof.NumValues)))
	if n < 2 {
		n = 2
	}
	logn := utils.Log2Exact(uint64(n))

	if len(comm.Digits) != 2*d || len(comm.ReadCts) != 2*d || len(comm.FinalCts) != 2*d {
		return nil, fmt.Errorf("%w: commitment counts do not match checker", ErrRangeViolation)
	}
	if len(proof.Hashes.Read) != 2*d || len(proof.Hashes.Write) != 2*d ||
		len(proof.Hashes.Init) != 1 || len(proof.Hashes.Final) != 2*d {
		return nil, fmt.Errorf("%w: wrong hash counts", memcheck.ErrMultisetMismatch)
	}
	comm.appendTo(ts)

	gamma := ts.ChallengeScalar("rangecheck.gamma")
	tau := ts.ChallengeScalar("rangecheck.tau")

	if err := proof.Hashes.Check(func(int) int { return 0 }); err != nil {
		return nil, err
	}
	absorbHashes(ts, proof.Hashes)

	rwRoots := make([]fr.Element, 0, 4*d)
	rwRoots = append(rwRoots, proof.Hashes.Read...)
	rwRoots = append(rwRoots, proof.Hashes.Write...)
	rwLeafClaims, rwRand, err := proof.ReadWrite.Verify(rwRoots, logn, ts)
	if err != nil {
		return nil, fmt.Errorf("read/write grand product: %w", err)
	}

	if len(proof.DigitEvals) != 2*d || len(proof.ReadCtsEvals) != 2*d ||
		len(proof.DigitOpenings) != 2*d || len(proof.ReadCtsOpenings) != 2*d {
		return nil, fmt.Errorf("%w: wrong number of openings", ErrRangeViolation)
	}

	// Leaf MLE claims: read_col = γ²·cts + (γ+1)·digit − τ, write = read + γ².
	var gammaSq fr.Element
	gammaSq.Square(&gamma)
	for col := 0; col < 2*d; col++ {
		fp := memcheck.Fingerprint(&proof.DigitEvals[col], &proof.DigitEvals[col], &proof.ReadCtsEvals[col], &gamma, &tau)
		if !fp.Equal(&rwLeafClaims[col]) {
			return nil, fmt.Errorf("%w: read leaves of digit column %d", ErrRangeViolation, col)
		}
		fp.Add(&fp, &gammaSq)
		if !fp.Equal(&rwLeafClaims[2*d+col]) {
			return nil, fmt.Errorf("%w: write leaves of digit column %d", ErrRangeViolation, col)
		}
	}

	// Recomposition at rwRand: Σ 2^{jk}·digit_j must give the value opening
	// for the low columns and bound − value for the complement columns.
	var lo, hi, pow, t fr.Element
	for dig := 0; dig < d; dig++ {
		pow.SetUint64(1)
		for s := 0; s < dig*c.k; s++ {
			pow.Double(&pow)
		}
		t.Mul(&pow, &proof.DigitEvals[dig])
		lo.Add(&lo, &t)
		t.Mul(&pow, &proof.DigitEvals[d+dig])
		hi.Add(&hi, &t)
	}
	if !lo.Equal(&proof.ValueEval) {
		return nil, fmt.Errorf("%w: digit recomposition mismatch", ErrRangeViolation)
	}
	// value + complement = bound holds pointwise on every row, padding rows
	// included, so it holds for the MLEs at any point.
	var bound fr.Element
	bound.SetUint64(c.bound)
	t.Add(&hi, &proof.ValueEval)
	if !t.Equal(&bound) {
		return nil, fmt.Errorf("%w: complement recomposition mismatch", ErrRangeViolation)
	}

	if err := scheme.Verify(comm.Values, rwRand, proof.ValueEval, proof.ValueOpening); err != nil {
		return nil, fmt.Errorf("values: %w", err)
	}
	for col := 0; col < 2*d; col++ {
		if err := scheme.Verify(comm.Digits[col], rwRand, proof.DigitEvals[col], proof.DigitOpenings[col]); err != nil {
			return nil, fmt.Errorf("digit column %d: %w", col, err)
		}
		if err := scheme.Verify(comm.ReadCts[col], rwRand, proof.ReadCtsEvals[col], proof.ReadCtsOpenings[col]); err != nil {
			return nil, fmt.Errorf("read counts %d: %w", col, err)
		}
	}
	ts.AppendScalar("rangecheck.value_eval", &proof.ValueEval)
	ts.AppendScalars("rangecheck.digit_evals", proof.DigitEvals)
	ts.AppendScalars("rangecheck.read_cts_evals", proof.ReadCtsEvals)

	ifRoots := make([]fr.Element, 0, 1+2*d)
	ifRoots = append(ifRoots, proof.Hashes.Init...)
	ifRoots = append(ifRoots, proof.Hashes.Final...)
	ifLeafClaims, ifRand, err := proof.InitFinal.Verify(ifRoots, c.k, ts)
	if err != nil {
		return nil, fmt.Errorf("init/final grand product: %w", err)
	}

	if len(proof.FinalCtsEvals) != 2*d || len(proof.FinalCtsOpenings) != 2*d {
		return nil, fmt.Errorf("%w: wrong number of final count openings", ErrRangeViolation)
	}
	idEval := poly.EvalIdentity(ifRand)
	var zero fr.Element
	fp := memcheck.Fingerprint(&idEval, &idEval, &zero, &gamma, &tau)
	if !fp.Equal(&ifLeafClaims[0]) {
		return nil, fmt.Errorf("%w: init leaves", ErrRangeViolation)
	}
	for col := 0; col < 2*d; col++ {
		fp = memcheck.Fingerprint(&idEval, &idEval, &proof.FinalCtsEvals[col], &gamma, &tau)
		if !fp.Equal(&ifLeafClaims[1+col]) {
			return nil, fmt.Errorf("%w: final leaves of digit column %d", ErrRangeViolation, col)
		}
		if err := scheme.Verify(comm.FinalCts[col], ifRand, proof.FinalCtsEvals[col], proof.FinalCtsOpenings[col]); err != nil {
			return nil, fmt.Errorf("final counts %d: %w", col, err)
		}
	}
	ts.AppendScalars("rangecheck.final_cts_evals", proof.FinalCtsEvals)

	return rwRand, nil
}
