package lookup

import (
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/grandproduct"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/logger"
	"github.com/consensys/lasso/memcheck"
	"github.com/consensys/lasso/poly"
	"github.com/consensys/lasso/sumcheck"
	"github.com/consensys/lasso/transcript"
)

// ErrToggleCheck is returned when the toggled-leaf discharge sumcheck
// contradicts the opened polynomial evaluations.
var ErrToggleCheck = errors.New("toggled leaf check failed")

// ErrInitFinalCheck is returned when an init or final leaf claim contradicts
// the static subtable MLEs or the opened final-count evaluations.
var ErrInitFinalCheck = errors.New("init/final leaf check failed")

// MemoryCheckingProof attests that every E polynomial was produced by honest
// reads against its static subtable. Read and write fingerprint products use
// toggled leaves so that steps whose instruction does not reference a memory
// contribute the multiplicative identity; the Toggle sumcheck discharges the
// resulting leaf-MLE claims down to openings of the committed polynomials.
type MemoryCheckingProof struct {
	Hashes    memcheck.MultisetHashes
	ReadWrite grandproduct.Proof
	InitFinal grandproduct.Proof

	Toggle sumcheck.Proof

	// Openings at the toggle sumcheck's point.
	DimEvals        []fr.Element
	ReadCtsEvals    []fr.Element
	EEvals          []fr.Element
	FlagEvals       []fr.Element
	DimOpenings     []commitment.OpeningProof
	ReadCtsOpenings []commitment.OpeningProof
	EOpenings       []commitment.OpeningProof
	FlagOpenings    []commitment.OpeningProof

	// Openings at the init/final grand product's point.
	FinalCtsEvals    []fr.Element
	FinalCtsOpenings []commitment.OpeningProof
}

// identityColumn is the address column 0, 1, ..., n-1.
func identityColumn(n int) polynomial.MultiLin {
	col := make(polynomial.MultiLin, n)
	for a := 0; a < n; a++ {
		col[a].SetUint64(uint64(a))
	}
	return col
}

func (l *InstructionLookups) proveMemoryChecking(p *Polynomials, scheme commitment.Scheme, ts *transcript.Transcript) (MemoryCheckingProof, error) {
	log := logger.Logger().With().Str("component", "lookup").Logger()
	start := time.Now()

	reg := l.reg
	numMem, numSub := reg.NumMemories(), reg.NumSubtables()

	gamma := ts.ChallengeScalar("lookup.memcheck_gamma")
	tau := ts.ChallengeScalar("lookup.memcheck_tau")

	// Raw fingerprint columns, kept for the toggle sumcheck, and toggled
	// copies that feed the product trees.
	readFps := make([]polynomial.MultiLin, numMem)
	writeFps := make([]polynomial.MultiLin, numMem)
	rwCircuits := make([]*grandproduct.Circuit, 2*numMem)
	for i := 0; i < numMem; i++ {
		chunk := reg.MemoryToChunk(i)
		s := reg.MemoryToSubtable(i)
		readFps[i] = memcheck.FingerprintLeaves(p.Dim[chunk], p.E[i], p.ReadCts[i], &gamma, &tau)
		writeFps[i] = memcheck.ShiftTimestamp(readFps[i], &gamma)
		rwCircuits[i] = grandproduct.New(memcheck.ToggleLeaves(p.SubtableFlags[s], readFps[i]))
		rwCircuits[numMem+i] = grandproduct.New(memcheck.ToggleLeaves(p.SubtableFlags[s], writeFps[i]))
	}

	addr := identityColumn(reg.M())
	zeros := make(polynomial.MultiLin, reg.M())
	ifCircuits := make([]*grandproduct.Circuit, numSub+numMem)
	for s := 0; s < numSub; s++ {
		ifCircuits[s] = grandproduct.New(memcheck.FingerprintLeaves(addr, l.materialized[s], zeros, &gamma, &tau))
	}
	for i := 0; i < numMem; i++ {
		s := reg.MemoryToSubtable(i)
		ifCircuits[numSub+i] = grandproduct.New(memcheck.FingerprintLeaves(addr, l.materialized[s], p.FinalCts[i], &gamma, &tau))
	}

	var proof MemoryCheckingProof
	proof.Hashes = memcheck.MultisetHashes{
		Read:  make([]fr.Element, numMem),
		Write: make([]fr.Element, numMem),
		Init:  make([]fr.Element, numSub),
		Final: make([]fr.Element, numMem),
	}
	for i := 0; i < numMem; i++ {
		proof.Hashes.Read[i] = rwCircuits[i].Eval()
		proof.Hashes.Write[i] = rwCircuits[numMem+i].Eval()
		proof.Hashes.Final[i] = ifCircuits[numSub+i].Eval()
	}
	for s := 0; s < numSub; s++ {
		proof.Hashes.Init[s] = ifCircuits[s].Eval()
	}
	if err := proof.Hashes.Check(reg.MemoryToSubtable); err != nil {
		return MemoryCheckingProof{}, err
	}
	absorbHashes(ts, proof.Hashes)

	rwProof, _, rwRand := grandproduct.ProveBatched(rwCircuits, ts)
	proof.ReadWrite = rwProof

	// Discharge the toggled rw leaf claims: a joint RLC of them equals
	// Σ_x eq(rwRand, x)·Σ_k coeff_k·(flag_k(x)·fp_k(x) + 1 − flag_k(x)).
	coeffs := ts.ChallengeVector("lookup.toggle_coeff", 2*numMem)
	togglePolys := make([]polynomial.MultiLin, 0, 1+numSub+2*numMem)
	togglePolys = append(togglePolys, poly.EqTable(rwRand))
	togglePolys = append(togglePolys, p.SubtableFlags...)
	togglePolys = append(togglePolys, readFps...)
	togglePolys = append(togglePolys, writeFps...)

	toggleProof, tPoint, _ := sumcheck.Prove(togglePolys, 3, toggleCombinator(reg, coeffs), ts)
	proof.Toggle = toggleProof

	openAll := func(polys []polynomial.MultiLin, point []fr.Element) ([]fr.Element, []commitment.OpeningProof, error) {
		evals := make([]fr.Element, len(polys))
		proofs := make([]commitment.OpeningProof, len(polys))
		for i := range polys {
			var err error
			if evals[i], proofs[i], err = scheme.Open(polys[i], point); err != nil {
				return nil, nil, err
			}
		}
		return evals, proofs, nil
	}

	var err error
	if proof.DimEvals, proof.DimOpenings, err = openAll(p.Dim, tPoint); err != nil {
		return MemoryCheckingProof{}, err
	}
	if proof.ReadCtsEvals, proof.ReadCtsOpenings, err = openAll(p.ReadCts, tPoint); err != nil {
		return MemoryCheckingProof{}, err
	}
	if proof.EEvals, proof.EOpenings, err = openAll(p.E, tPoint); err != nil {
		return MemoryCheckingProof{}, err
	}
	if proof.FlagEvals, proof.FlagOpenings, err = openAll(p.Flags, tPoint); err != nil {
		return MemoryCheckingProof{}, err
	}
	ts.AppendScalars("lookup.toggle_dim_evals", proof.DimEvals)
	ts.AppendScalars("lookup.toggle_read_cts_evals", proof.ReadCtsEvals)
	ts.AppendScalars("lookup.toggle_e_evals", proof.EEvals)
	ts.AppendScalars("lookup.toggle_flag_evals", proof.FlagEvals)

	ifProof, _, ifRand := grandproduct.ProveBatched(ifCircuits, ts)
	proof.InitFinal = ifProof

	if proof.FinalCtsEvals, proof.FinalCtsOpenings, err = openAll(p.FinalCts, ifRand); err != nil {
		return MemoryCheckingProof{}, err
	}
	ts.AppendScalars("lookup.final_cts_evals", proof.FinalCtsEvals)

	log.Debug().Dur("took", time.Since(start)).Msg("memory checking")
	return proof, nil
}

func absorbHashes(ts *transcript.Transcript, h memcheck.MultisetHashes) {
	ts.AppendScalars("lookup.hash_read", h.Read)
	ts.AppendScalars("lookup.hash_write", h.Write)
	ts.AppendScalars("lookup.hash_init", h.Init)
	ts.AppendScalars("lookup.hash_final", h.Final)
}

// toggleCombinator evaluates eq·Σ_k coeff_k·(flag_k·fp_k + 1 − flag_k), with
// the read fingerprints of all memories followed by the write ones. Scratch
// is local: the combinator runs concurrently.
func toggleCombinator(reg *instruction.Registry, coeffs []fr.Element) sumcheck.Combinator {
	numMem, numSub := reg.NumMemories(), reg.NumSubtables()
	return func(vals []fr.Element) fr.Element {
		flags := vals[1 : 1+numSub]
		fps := vals[1+numSub:]

		var acc, term, one fr.Element
		one.SetOne()
		for k := 0; k < 2*numMem; k++ {
			flag := &flags[reg.MemoryToSubtable(k%numMem)]
			term.Mul(flag, &fps[k]).
				Add(&term, &one).
				Sub(&term, flag).
				Mul(&term, &coeffs[k])
			acc.Add(&acc, &term)
		}
		acc.Mul(&acc, &vals[0])
		return acc
	}
}

// verifyMemoryChecking checks the multiset relation, both grand product
// arguments, the toggle discharge sumcheck and all openings.
func verifyMemoryChecking(reg *instruction.Registry, proof MemoryCheckingProof, comm *Commitments, scheme commitment.Scheme, logm int, ts *transcript.Transcript) error {
	numMem, numSub := reg.NumMemories(), reg.NumSubtables()

	gamma := ts.ChallengeScalar("lookup.memcheck_gamma")
	tau := ts.ChallengeScalar("lookup.memcheck_tau")

	if len(proof.Hashes.Read) != numMem || len(proof.Hashes.Write) != numMem ||
		len(proof.Hashes.Init) != numSub || len(proof.Hashes.Final) != numMem {
		return fmt.Errorf("%w: wrong hash counts", memcheck.ErrMultisetMismatch)
	}
	if err := proof.Hashes.Check(reg.MemoryToSubtable); err != nil {
		return err
	}
	absorbHashes(ts, proof.Hashes)

	rwRoots := make([]fr.Element, 0, 2*numMem)
	rwRoots = append(rwRoots, proof.Hashes.Read...)
	rwRoots = append(rwRoots, proof.Hashes.Write...)
	rwLeafClaims, rwRand, err := proof.ReadWrite.Verify(rwRoots, logm, ts)
	if err != nil {
		return fmt.Errorf("read/write grand product: %w", err)
	}

	coeffs := ts.ChallengeVector("lookup.toggle_coeff", 2*numMem)
	var joint, t fr.Element
	for k := range rwLeafClaims {
		t.Mul(&rwLeafClaims[k], &coeffs[k])
		joint.Add(&joint, &t)
	}
	finalClaim, tPoint, err := proof.Toggle.Verify(joint, logm, 3, ts)
	if err != nil {
		return fmt.Errorf("toggle sumcheck: %w", err)
	}

	if len(proof.DimEvals) != reg.C() || len(proof.ReadCtsEvals) != numMem ||
		len(proof.EEvals) != numMem || len(proof.FlagEvals) != reg.NumKinds() ||
		len(proof.DimOpenings) != reg.C() || len(proof.ReadCtsOpenings) != numMem ||
		len(proof.EOpenings) != numMem || len(proof.FlagOpenings) != reg.NumKinds() {
		return fmt.Errorf("%w: wrong number of openings", ErrToggleCheck)
	}

	// Resolve the final toggle claim from the openings: subtable flags are
	// sums of instruction flags, fingerprints are linear in the openings.
	subtableFlagEvals := make([]fr.Element, numSub)
	for s := 0; s < numSub; s++ {
		for _, f := range reg.KindsUsingSubtable(s) {
			subtableFlagEvals[s].Add(&subtableFlagEvals[s], &proof.FlagEvals[f])
		}
	}
	var gammaSq fr.Element
	gammaSq.Square(&gamma)
	var expected, term, one fr.Element
	one.SetOne()
	for k := 0; k < 2*numMem; k++ {
		i := k % numMem
		fp := memcheck.Fingerprint(&proof.DimEvals[reg.MemoryToChunk(i)], &proof.EEvals[i], &proof.ReadCtsEvals[i], &gamma, &tau)
		if k >= numMem {
			fp.Add(&fp, &gammaSq)
		}
		flag := &subtableFlagEvals[reg.MemoryToSubtable(i)]
		term.Mul(flag, &fp).
			Add(&term, &one).
			Sub(&term, flag).
			Mul(&term, &coeffs[k])
		expected.Add(&expected, &term)
	}
	eqEval := poly.EvalEq(rwRand, tPoint)
	expected.Mul(&expected, &eqEval)
	if !expected.Equal(&finalClaim) {
		return ErrToggleCheck
	}

	verifyAll := func(comms []commitment.Commitment, point []fr.Element, evals []fr.Element, proofs []commitment.OpeningProof, what string) error {
		for i := range comms {
			if err := scheme.Verify(comms[i], point, evals[i], proofs[i]); err != nil {
				return fmt.Errorf("%s %d: %w", what, i, err)
			}
		}
		return nil
	}
	if err := verifyAll(comm.Dim, tPoint, proof.DimEvals, proof.DimOpenings, "dim"); err != nil {
		return err
	}
	if err := verifyAll(comm.ReadCts, tPoint, proof.ReadCtsEvals, proof.ReadCtsOpenings, "read counts"); err != nil {
		return err
	}
	if err := verifyAll(comm.E, tPoint, proof.EEvals, proof.EOpenings, "memory"); err != nil {
		return err
	}
	if err := verifyAll(comm.Flags, tPoint, proof.FlagEvals, proof.FlagOpenings, "flag"); err != nil {
		return err
	}
	ts.AppendScalars("lookup.toggle_dim_evals", proof.DimEvals)
	ts.AppendScalars("lookup.toggle_read_cts_evals", proof.ReadCtsEvals)
	ts.AppendScalars("lookup.toggle_e_evals", proof.EEvals)
	ts.AppendScalars("lookup.toggle_flag_evals", proof.FlagEvals)

	ifRoots := make([]fr.Element, 0, numSub+numMem)
	ifRoots = append(ifRoots, proof.Hashes.Init...)
	ifRoots = append(ifRoots, proof.Hashes.Final...)
	ifLeafClaims, ifRand, err := proof.InitFinal.Verify(ifRoots, reg.LogM(), ts)
	if err != nil {
		return fmt.Errorf("init/final grand product: %w", err)
	}

	// Init and final leaves are untoggled, so their MLE claims resolve
	// directly: address and subtable value columns are public, only the
	// final counts need openings.
	if len(proof.FinalCtsEvals) != numMem || len(proof.FinalCtsOpenings) != numMem {
		return fmt.Errorf("%w: wrong number of final count openings", ErrInitFinalCheck)
	}
	idEval := poly.EvalIdentity(ifRand)
	subtableEvals := make([]fr.Element, numSub)
	for s, st := range reg.Subtables() {
		subtableEvals[s] = st.EvaluateMLE(ifRand)
	}
	var zero fr.Element
	for s := 0; s < numSub; s++ {
		fp := memcheck.Fingerprint(&idEval, &subtableEvals[s], &zero, &gamma, &tau)
		if !fp.Equal(&ifLeafClaims[s]) {
			return fmt.Errorf("%w: init leaves of subtable %d", ErrInitFinalCheck, s)
		}
	}
	for i := 0; i < numMem; i++ {
		s := reg.MemoryToSubtable(i)
		fp := memcheck.Fingerprint(&idEval, &subtableEvals[s], &proof.FinalCtsEvals[i], &gamma, &tau)
		if !fp.Equal(&ifLeafClaims[numSub+i]) {
			return fmt.Errorf("%w: final leaves of memory %d", ErrInitFinalCheck, i)
		}
	}
	if err := verifyAll(comm.FinalCts, ifRand, proof.FinalCtsEvals, proof.FinalCtsOpenings, "final counts"); err != nil {
		return err
	}
	ts.AppendScalars("lookup.final_cts_evals", proof.FinalCtsEvals)

	return nil
}
