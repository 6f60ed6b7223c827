// Package lasso proves and verifies executions of a lookup-based virtual
// machine core: instruction semantics are established by a sumcheck-based
// lookup argument against decomposable subtables, and RAM consistency by
// offline memory checking with range-checked timestamps.
package lasso

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/logger"
	"github.com/consensys/lasso/lookup"
	"github.com/consensys/lasso/memory"
	"github.com/consensys/lasso/transcript"
)

// ErrProofEncoding is returned when a serialized proof cannot be decoded.
var ErrProofEncoding = errors.New("proof encoding")

// transcriptLabel seeds the Fiat-Shamir transcript; prover and verifier must
// agree on it.
const transcriptLabel = "lasso.v1"

// System fixes the public parameters of a proving system instance.
type System struct {
	// Registry declares the instruction set and its subtable decomposition.
	Registry *instruction.Registry
	// MemorySize is the RAM cell count, a power of two. Zero disables the
	// memory argument.
	MemorySize int
	// MemoryInit holds the public initial RAM contents, padded with zeros.
	MemoryInit []uint64
	// Scheme commits to witness polynomials. Defaults to commitment.MiMC.
	Scheme commitment.Scheme
}

func (s *System) scheme() commitment.Scheme {
	if s.Scheme == nil {
		return commitment.MiMC{}
	}
	return s.Scheme
}

// Trace is one execution to prove: the instruction sequence and, if the
// system has RAM, the memory access sequence. Both must have power-of-two
// length; producers pad instruction traces with a no-op lookup of their
// choosing and memory traces with reads of cell 0.
type Trace struct {
	Instructions []instruction.Lookup
	MemoryOps    []memory.Op
}

// Proof is a complete execution proof with the witness commitments it binds.
type Proof struct {
	Lookup     *lookup.Proof
	LookupComm *lookup.Commitments
	Memory     *memory.Proof
	MemoryComm *memory.Commitments
}

// Prove runs the full argument over a trace.
func (s *System) Prove(tr Trace) (*Proof, error) {
	log := logger.Logger().With().Str("component", "lasso").Logger()
	start := time.Now()

	ts := transcript.New(transcriptLabel)
	scheme := s.scheme()

	session, err := lookup.NewFromOps(s.Registry, tr.Instructions)
	if err != nil {
		return nil, err
	}

	proof := &Proof{}
	if proof.Lookup, proof.LookupComm, err = session.Prove(scheme, ts); err != nil {
		return nil, err
	}

	if s.MemorySize > 0 {
		mem, err := memory.New(s.MemorySize, s.MemoryInit, tr.MemoryOps)
		if err != nil {
			return nil, err
		}
		if proof.Memory, proof.MemoryComm, err = mem.Prove(scheme, ts); err != nil {
			return nil, err
		}
	} else if len(tr.MemoryOps) > 0 {
		return nil, fmt.Errorf("%w: memory trace on a system without RAM", memory.ErrMalformedTrace)
	}

	log.Info().
		Dur("took", time.Since(start)).
		Int("steps", len(tr.Instructions)).
		Msg("proved execution")
	return proof, nil
}

// Verify checks an execution proof against the system's public parameters.
func (s *System) Verify(proof *Proof) error {
	log := logger.Logger().With().Str("component", "lasso").Logger()
	start := time.Now()

	ts := transcript.New(transcriptLabel)
	scheme := s.scheme()

	if proof.Lookup == nil || proof.LookupComm == nil {
		return fmt.Errorf("%w: missing lookup argument", ErrProofEncoding)
	}
	if err := lookup.Verify(s.Registry, proof.Lookup, proof.LookupComm, scheme, ts); err != nil {
		return err
	}

	if s.MemorySize > 0 {
		if proof.Memory == nil || proof.MemoryComm == nil {
			return fmt.Errorf("%w: missing memory argument", ErrProofEncoding)
		}
		if err := memory.Verify(s.MemorySize, s.MemoryInit, proof.Memory, proof.MemoryComm, scheme, ts); err != nil {
			return err
		}
	} else if proof.Memory != nil {
		return fmt.Errorf("%w: memory argument on a system without RAM", ErrProofEncoding)
	}

	log.Debug().Dur("took", time.Since(start)).Msg("verified execution")
	return nil
}

// MarshalBinary encodes the proof in canonical CBOR.
func (p *Proof) MarshalBinary() ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(p)
}

// UnmarshalBinary decodes a canonical CBOR proof.
func (p *Proof) UnmarshalBinary(data []byte) error {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return err
	}
	if err := dm.Unmarshal(data, p); err != nil {
		return fmt.Errorf("%w: %s", ErrProofEncoding, err)
	}
	return nil
}
