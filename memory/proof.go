package memory

import (
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/grandproduct"
	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/logger"
	"github.com/consensys/lasso/memcheck"
	"github.com/consensys/lasso/poly"
	"github.com/consensys/lasso/rangecheck"
	"github.com/consensys/lasso/transcript"
)

// ErrMemoryCheck is returned when a leaf claim of the memory argument
// contradicts the opened column evaluations.
var ErrMemoryCheck = errors.New("memory consistency check failed")

// ErrTimestampCheck is returned when a range-check value claim does not bind
// to the read-timestamp column.
var ErrTimestampCheck = errors.New("timestamp validity check failed")

// tsDigitWidth is the digit width of the timestamp range checks.
const tsDigitWidth = 8

// Commitments binds the committed trace and cell columns.
type Commitments struct {
	Addr       commitment.Commitment
	ReadValue  commitment.Commitment
	WriteValue commitment.Commitment
	ReadTs     commitment.Commitment
	FinalValue commitment.Commitment
	FinalTs    commitment.Commitment
}

func (c *Commitments) appendTo(ts *transcript.Transcript) {
	for _, cm := range []commitment.Commitment{c.Addr, c.ReadValue, c.WriteValue, c.ReadTs, c.FinalValue, c.FinalTs} {
		ts.Append("memory.commitment", cm)
	}
}

// Proof is the full read-write memory argument: offline memory checking over
// the trace plus timestamp validity. Timestamp validity is two range checks
// against the trace length: readTs itself and the gap step − readTs, each
// bound to the committed read-timestamp column by an opening at the range
// check's point.
type Proof struct {
	NumSteps int

	Hashes    memcheck.MultisetHashes
	ReadWrite grandproduct.Proof
	InitFinal grandproduct.Proof

	// Openings at the read/write grand product's point.
	AddrEval          fr.Element
	ReadValueEval     fr.Element
	WriteValueEval    fr.Element
	ReadTsEval        fr.Element
	AddrOpening       commitment.OpeningProof
	ReadValueOpening  commitment.OpeningProof
	WriteValueOpening commitment.OpeningProof
	ReadTsOpening     commitment.OpeningProof

	// Openings at the init/final grand product's point.
	FinalValueEval    fr.Element
	FinalTsEval       fr.Element
	FinalValueOpening commitment.OpeningProof
	FinalTsOpening    commitment.OpeningProof

	// Timestamp validity sub-arguments and their bindings.
	ReadTsRange      *rangecheck.Proof
	ReadTsRangeComm  *rangecheck.Commitments
	StepGapRange     *rangecheck.Proof
	StepGapRangeComm *rangecheck.Commitments
	ReadTsAtRange    fr.Element
	ReadTsAtGap      fr.Element
	ReadTsAtRangeOp  commitment.OpeningProof
	ReadTsAtGapOp    commitment.OpeningProof
}

// Prove commits the trace columns and produces the memory argument.
func (m *Memory) Prove(scheme commitment.Scheme, ts *transcript.Transcript) (*Proof, *Commitments, error) {
	log := logger.Logger().With().Str("component", "memory").Logger()
	start := time.Now()

	p := m.polynomialize()
	var (
		comm Commitments
		err  error
	)
	if comm.Addr, err = scheme.Commit(p.Addr); err != nil {
		return nil, nil, err
	}
	if comm.ReadValue, err = scheme.Commit(p.ReadValue); err != nil {
		return nil, nil, err
	}
	if comm.WriteValue, err = scheme.Commit(p.WriteValue); err != nil {
		return nil, nil, err
	}
	if comm.ReadTs, err = scheme.Commit(p.ReadTs); err != nil {
		return nil, nil, err
	}
	if comm.FinalValue, err = scheme.Commit(p.FinalValue); err != nil {
		return nil, nil, err
	}
	if comm.FinalTs, err = scheme.Commit(p.FinalTs); err != nil {
		return nil, nil, err
	}
	comm.appendTo(ts)

	gamma := ts.ChallengeScalar("memory.gamma")
	tau := ts.ChallengeScalar("memory.tau")

	n := len(m.ops)
	writeTs := make(polynomial.MultiLin, n)
	for j := 0; j < n; j++ {
		writeTs[j].SetUint64(uint64(j) + 1)
	}
	addrCol := make(polynomial.MultiLin, m.size)
	initCol := make(polynomial.MultiLin, m.size)
	zeros := make(polynomial.MultiLin, m.size)
	for a := 0; a < m.size; a++ {
		addrCol[a].SetUint64(uint64(a))
		if a < len(m.init) {
			initCol[a].SetUint64(m.init[a])
		}
	}

	rwCircuits := []*grandproduct.Circuit{
		grandproduct.New(memcheck.FingerprintLeaves(p.Addr, p.ReadValue, p.ReadTs, &gamma, &tau)),
		grandproduct.New(memcheck.FingerprintLeaves(p.Addr, p.WriteValue, writeTs, &gamma, &tau)),
	}
	ifCircuits := []*grandproduct.Circuit{
		grandproduct.New(memcheck.FingerprintLeaves(addrCol, initCol, zeros, &gamma, &tau)),
		grandproduct.New(memcheck.FingerprintLeaves(addrCol, p.FinalValue, p.FinalTs, &gamma, &tau)),
	}

	proof := &Proof{NumSteps: n}
	proof.Hashes = memcheck.MultisetHashes{
		Read:  []fr.Element{rwCircuits[0].Eval()},
		Write: []fr.Element{rwCircuits[1].Eval()},
		Init:  []fr.Element{ifCircuits[0].Eval()},
		Final: []fr.Element{ifCircuits[1].Eval()},
	}
	if err := proof.Hashes.Check(func(i int) int { return i }); err != nil {
		return nil, nil, err
	}
	absorbHashes(ts, proof.Hashes)

	var rwRand []fr.Element
	proof.ReadWrite, _, rwRand = grandproduct.ProveBatched(rwCircuits, ts)

	if proof.AddrEval, proof.AddrOpening, err = scheme.Open(p.Addr, rwRand); err != nil {
		return nil, nil, err
	}
	if proof.ReadValueEval, proof.ReadValueOpening, err = scheme.Open(p.ReadValue, rwRand); err != nil {
		return nil, nil, err
	}
	if proof.WriteValueEval, proof.WriteValueOpening, err = scheme.Open(p.WriteValue, rwRand); err != nil {
		return nil, nil, err
	}
	if proof.ReadTsEval, proof.ReadTsOpening, err = scheme.Open(p.ReadTs, rwRand); err != nil {
		return nil, nil, err
	}
	ts.AppendScalar("memory.addr_eval", &proof.AddrEval)
	ts.AppendScalar("memory.read_value_eval", &proof.ReadValueEval)
	ts.AppendScalar("memory.write_value_eval", &proof.WriteValueEval)
	ts.AppendScalar("memory.read_ts_eval", &proof.ReadTsEval)

	var ifRand []fr.Element
	proof.InitFinal, _, ifRand = grandproduct.ProveBatched(ifCircuits, ts)

	if proof.FinalValueEval, proof.FinalValueOpening, err = scheme.Open(p.FinalValue, ifRand); err != nil {
		return nil, nil, err
	}
	if proof.FinalTsEval, proof.FinalTsOpening, err = scheme.Open(p.FinalTs, ifRand); err != nil {
		return nil, nil, err
	}
	ts.AppendScalar("memory.final_value_eval", &proof.FinalValueEval)
	ts.AppendScalar("memory.final_ts_eval", &proof.FinalTsEval)

	// Timestamp validity: readTs_j and j − readTs_j both lie in [0, n].
	checker, err := rangecheck.NewChecker(tsDigitWidth, uint64(n))
	if err != nil {
		return nil, nil, err
	}
	gaps := make([]uint64, n)
	for j := 0; j < n; j++ {
		gaps[j] = uint64(j) - m.readTs[j]
	}

	var rcPoint []fr.Element
	if proof.ReadTsRange, proof.ReadTsRangeComm, rcPoint, err = checker.Prove(m.readTs, scheme, ts); err != nil {
		return nil, nil, err
	}
	if proof.ReadTsAtRange, proof.ReadTsAtRangeOp, err = scheme.Open(p.ReadTs, rcPoint); err != nil {
		return nil, nil, err
	}
	ts.AppendScalar("memory.read_ts_at_range", &proof.ReadTsAtRange)

	if proof.StepGapRange, proof.StepGapRangeComm, rcPoint, err = checker.Prove(gaps, scheme, ts); err != nil {
		return nil, nil, err
	}
	if proof.ReadTsAtGap, proof.ReadTsAtGapOp, err = scheme.Open(p.ReadTs, rcPoint); err != nil {
		return nil, nil, err
	}
	ts.AppendScalar("memory.read_ts_at_gap", &proof.ReadTsAtGap)

	log.Debug().Dur("took", time.Since(start)).Int("steps", n).Msg("memory argument")
	return proof, &comm, nil
}

func absorbHashes(ts *transcript.Transcript, h memcheck.MultisetHashes) {
	ts.AppendScalars("memory.hash_read", h.Read)
	ts.AppendScalars("memory.hash_write", h.Write)
	ts.AppendScalars("memory.hash_init", h.Init)
	ts.AppendScalars("memory.hash_final", h.Final)
}

// Verify checks the memory argument against public parameters: the memory
// size, the initial contents, and the committed columns.
func Verify(size int, init []uint64, proof *Proof, comm *Commitments, scheme commitment.Scheme, ts *transcript.Transcript) error {
	if size <= 0 || !utils.IsPowerOfTwo(uint64(size)) {
		return fmt.Errorf("%w: memory size %d is not a power of two", ErrMalformedTrace, size)
	}
	if proof.NumSteps <= 0 || !utils.IsPowerOfTwo(uint64(proof.NumSteps)) {
		return fmt.Errorf("%w: proof trace length %d", ErrMalformedTrace, proof.NumSteps)
	}
	n := proof.NumSteps
	logn := utils.Log2Exact(uint64(n))

	if proof.ReadTsRange == nil || proof.ReadTsRangeComm == nil ||
		proof.StepGapRange == nil || proof.StepGapRangeComm == nil {
		return fmt.Errorf("%w: missing timestamp range checks", ErrTimestampCheck)
	}

	comm.appendTo(ts)

	gamma := ts.ChallengeScalar("memory.gamma")
	tau := ts.ChallengeScalar("memory.tau")

	if len(proof.Hashes.Read) != 1 || len(proof.Hashes.Write) != 1 ||
		len(proof.Hashes.Init) != 1 || len(proof.Hashes.Final) != 1 {
		return fmt.Errorf("%w: wrong hash counts", memcheck.ErrMultisetMismatch)
	}
	if err := proof.Hashes.Check(func(i int) int { return i }); err != nil {
		return err
	}
	absorbHashes(ts, proof.Hashes)

	rwRoots := []fr.Element{proof.Hashes.Read[0], proof.Hashes.Write[0]}
	rwLeafClaims, rwRand, err := proof.ReadWrite.Verify(rwRoots, logn, ts)
	if err != nil {
		return fmt.Errorf("read/write grand product: %w", err)
	}

	// Leaves are linear in the columns; the write timestamp column is the
	// public step index plus one.
	fp := memcheck.Fingerprint(&proof.AddrEval, &proof.ReadValueEval, &proof.ReadTsEval, &gamma, &tau)
	if !fp.Equal(&rwLeafClaims[0]) {
		return fmt.Errorf("%w: read leaves", ErrMemoryCheck)
	}
	var one, writeTsEval fr.Element
	one.SetOne()
	writeTsEval = poly.EvalIdentity(rwRand)
	writeTsEval.Add(&writeTsEval, &one)
	fp = memcheck.Fingerprint(&proof.AddrEval, &proof.WriteValueEval, &writeTsEval, &gamma, &tau)
	if !fp.Equal(&rwLeafClaims[1]) {
		return fmt.Errorf("%w: write leaves", ErrMemoryCheck)
	}
	if err := scheme.Verify(comm.Addr, rwRand, proof.AddrEval, proof.AddrOpening); err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	if err := scheme.Verify(comm.ReadValue, rwRand, proof.ReadValueEval, proof.ReadValueOpening); err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	if err := scheme.Verify(comm.WriteValue, rwRand, proof.WriteValueEval, proof.WriteValueOpening); err != nil {
		return fmt.Errorf("write value: %w", err)
	}
	if err := scheme.Verify(comm.ReadTs, rwRand, proof.ReadTsEval, proof.ReadTsOpening); err != nil {
		return fmt.Errorf("read ts: %w", err)
	}
	ts.AppendScalar("memory.addr_eval", &proof.AddrEval)
	ts.AppendScalar("memory.read_value_eval", &proof.ReadValueEval)
	ts.AppendScalar("memory.write_value_eval", &proof.WriteValueEval)
	ts.AppendScalar("memory.read_ts_eval", &proof.ReadTsEval)

	ifRoots := []fr.Element{proof.Hashes.Init[0], proof.Hashes.Final[0]}
	ifLeafClaims, ifRand, err := proof.InitFinal.Verify(ifRoots, utils.Log2Exact(uint64(size)), ts)
	if err != nil {
		return fmt.Errorf("init/final grand product: %w", err)
	}

	idEval := poly.EvalIdentity(ifRand)
	initEval := InitValuesMLE(size, init, ifRand)
	var zero fr.Element
	fp = memcheck.Fingerprint(&idEval, &initEval, &zero, &gamma, &tau)
	if !fp.Equal(&ifLeafClaims[0]) {
		return fmt.Errorf("%w: init leaves", ErrMemoryCheck)
	}
	fp = memcheck.Fingerprint(&idEval, &proof.FinalValueEval, &proof.FinalTsEval, &gamma, &tau)
	if !fp.Equal(&ifLeafClaims[1]) {
		return fmt.Errorf("%w: final leaves", ErrMemoryCheck)
	}
	if err := scheme.Verify(comm.FinalValue, ifRand, proof.FinalValueEval, proof.FinalValueOpening); err != nil {
		return fmt.Errorf("final value: %w", err)
	}
	if err := scheme.Verify(comm.FinalTs, ifRand, proof.FinalTsEval, proof.FinalTsOpening); err != nil {
		return fmt.Errorf("final ts: %w", err)
	}
	ts.AppendScalar("memory.final_value_eval", &proof.FinalValueEval)
	ts.AppendScalar("memory.final_ts_eval", &proof.FinalTsEval)

	checker, err := rangecheck.NewChecker(tsDigitWidth, uint64(n))
	if err != nil {
		return err
	}

	// readTs ∈ [0, n], bound to the committed column at the range point.
	rcPoint, err := checker.Verify(proof.ReadTsRange, proof.ReadTsRangeComm, scheme, ts)
	if err != nil {
		return fmt.Errorf("read ts range: %w", err)
	}
	if proof.ReadTsRange.NumValues != n {
		return fmt.Errorf("%w: range check covers %d values, want %d", ErrTimestampCheck, proof.ReadTsRange.NumValues, n)
	}
	if !proof.ReadTsAtRange.Equal(&proof.ReadTsRange.ValueEval) {
		return fmt.Errorf("%w: range values differ from read timestamps", ErrTimestampCheck)
	}
	if err := scheme.Verify(comm.ReadTs, rcPoint, proof.ReadTsAtRange, proof.ReadTsAtRangeOp); err != nil {
		return fmt.Errorf("read ts at range point: %w", err)
	}
	ts.AppendScalar("memory.read_ts_at_range", &proof.ReadTsAtRange)

	// step − readTs ∈ [0, n]: the gap column's MLE is the step-index MLE
	// minus the read-timestamp MLE.
	rcPoint, err = checker.Verify(proof.StepGapRange, proof.StepGapRangeComm, scheme, ts)
	if err != nil {
		return fmt.Errorf("step gap range: %w", err)
	}
	if proof.StepGapRange.NumValues != n {
		return fmt.Errorf("%w: gap check covers %d values, want %d", ErrTimestampCheck, proof.StepGapRange.NumValues, n)
	}
	var expected fr.Element
	expected = poly.EvalIdentity(rcPoint)
	expected.Sub(&expected, &proof.ReadTsAtGap)
	if !expected.Equal(&proof.StepGapRange.ValueEval) {
		return fmt.Errorf("%w: gap values differ from step minus read timestamp", ErrTimestampCheck)
	}
	if err := scheme.Verify(comm.ReadTs, rcPoint, proof.ReadTsAtGap, proof.ReadTsAtGapOp); err != nil {
		return fmt.Errorf("read ts at gap point: %w", err)
	}
	ts.AppendScalar("memory.read_ts_at_gap", &proof.ReadTsAtGap)

	return nil
}
