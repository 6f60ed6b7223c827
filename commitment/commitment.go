// Package commitment defines the polynomial commitment interface consumed by
// the proof system, together with a transparent MiMC-digest scheme used in
// tests and development.
//
// The core never inspects a commitment's internal representation; swapping in
// a succinct scheme (multilinear KZG, an IPA, ...) only requires implementing
// Scheme.
package commitment

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
)

// ErrOpeningVerification is returned when a commitment opening fails to verify.
var ErrOpeningVerification = errors.New("opening proof verification failed")

// Commitment is a binding commitment to a multilinear polynomial.
type Commitment []byte

// OpeningProof attests to the evaluation of a committed polynomial at a point.
type OpeningProof []byte

// Scheme is the commit/open/verify interface the proof system consumes.
type Scheme interface {
	// Commit commits to the evaluations of p over the boolean hypercube.
	Commit(p polynomial.MultiLin) (Commitment, error)
	// Open evaluates p at point and produces an opening proof.
	Open(p polynomial.MultiLin, point []fr.Element) (fr.Element, OpeningProof, error)
	// Verify checks that value is the evaluation at point of the polynomial
	// bound by c. Returns ErrOpeningVerification on mismatch.
	Verify(c Commitment, point []fr.Element, value fr.Element, proof OpeningProof) error
}

// MiMC is a transparent commitment scheme: the commitment is a MiMC digest of
// the evaluation vector and the opening proof is the vector itself. It is
// binding but neither hiding nor succinct; intended for tests and as a
// reference implementation of Scheme.
type MiMC struct{}

func (MiMC) Commit(p polynomial.MultiLin) (Commitment, error) {
	h := mimc.NewMiMC()
	for i := range p {
		if _, err := h.Write(p[i].Marshal()); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
	}
	return h.Sum(nil), nil
}

func (MiMC) Open(p polynomial.MultiLin, point []fr.Element) (fr.Element, OpeningProof, error) {
	var value fr.Element
	if len(p) != 1<<len(point) {
		return value, nil, fmt.Errorf("open: polynomial has %d evaluations, point has %d variables", len(p), len(point))
	}
	value = p.Clone().Evaluate(point, nil)
	proof := make([]byte, 0, len(p)*fr.Bytes)
	for i := range p {
		proof = append(proof, p[i].Marshal()...)
	}
	return value, proof, nil
}

func (m MiMC) Verify(c Commitment, point []fr.Element, value fr.Element, proof OpeningProof) error {
	if len(proof) != fr.Bytes<<len(point) {
		return fmt.Errorf("%w: malformed proof length", ErrOpeningVerification)
	}
	p := make(polynomial.MultiLin, len(proof)/fr.Bytes)
	for i := range p {
		p[i].SetBytes(proof[i*fr.Bytes : (i+1)*fr.Bytes])
	}
	digest, err := m.Commit(p)
	if err != nil {
		return err
	}
	if !bytes.Equal(digest, c) {
		return fmt.Errorf("%w: digest mismatch", ErrOpeningVerification)
	}
	if eval := p.Evaluate(point, nil); !eval.Equal(&value) {
		return fmt.Errorf("%w: evaluation mismatch", ErrOpeningVerification)
	}
	return nil
}
