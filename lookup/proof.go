package lookup

import (
	"fmt"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/transcript"
)

// Proof is the full instruction-lookup argument for one trace.
type Proof struct {
	NumSteps       int
	Primary        PrimaryProof
	MemoryChecking MemoryCheckingProof
}

// Prove runs the full argument: polynomialize, commit, primary collation
// sumcheck, then memory checking. The returned commitments are what the
// verifier binds the proof against.
func (l *InstructionLookups) Prove(scheme commitment.Scheme, ts *transcript.Transcript) (*Proof, *Commitments, error) {
	polys, err := l.Polynomialize()
	if err != nil {
		return nil, nil, err
	}
	comm, err := polys.Commit(scheme)
	if err != nil {
		return nil, nil, err
	}
	comm.appendTo(ts)

	proof := &Proof{NumSteps: len(l.ops)}
	if proof.Primary, err = l.provePrimary(polys, scheme, ts); err != nil {
		return nil, nil, err
	}
	if proof.MemoryChecking, err = l.proveMemoryChecking(polys, scheme, ts); err != nil {
		return nil, nil, err
	}
	return proof, comm, nil
}

// Verify checks a lookup proof against the registry and commitments. The
// transcript must be fresh and seeded identically to the prover's.
func Verify(reg *instruction.Registry, proof *Proof, comm *Commitments, scheme commitment.Scheme, ts *transcript.Transcript) error {
	if proof.NumSteps <= 0 || !utils.IsPowerOfTwo(uint64(proof.NumSteps)) {
		return fmt.Errorf("%w: proof trace length %d", ErrMalformedTrace, proof.NumSteps)
	}
	logm := utils.Log2Exact(uint64(proof.NumSteps))

	if len(comm.Dim) != reg.C() || len(comm.ReadCts) != reg.NumMemories() ||
		len(comm.FinalCts) != reg.NumMemories() || len(comm.E) != reg.NumMemories() ||
		len(comm.Flags) != reg.NumKinds() {
		return fmt.Errorf("%w: commitment counts do not match registry", ErrMalformedTrace)
	}
	comm.appendTo(ts)

	if _, err := verifyPrimary(reg, proof.Primary, comm, scheme, logm, ts); err != nil {
		return err
	}
	return verifyMemoryChecking(reg, proof.MemoryChecking, comm, scheme, logm, ts)
}

func (c *Commitments) appendTo(ts *transcript.Transcript) {
	for _, group := range [][]commitment.Commitment{c.Dim, c.ReadCts, c.FinalCts, c.E, c.Flags} {
		for _, cm := range group {
			ts.Append("lookup.commitment", cm)
		}
	}
}
