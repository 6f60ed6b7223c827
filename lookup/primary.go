package lookup

import (
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/logger"
	"github.com/consensys/lasso/poly"
	"github.com/consensys/lasso/sumcheck"
	"github.com/consensys/lasso/transcript"
)

// ErrCollation is returned when the primary sumcheck's final claim does not
// match the collation of the opened flag and term evaluations.
var ErrCollation = errors.New("collation check failed")

// PrimaryProof attests that, at a random point r, the claimed lookup-output
// evaluation equals Σ_x eq(r,x)·Σ_f flag_f(x)·g_f(E terms of f at x).
type PrimaryProof struct {
	// Claim is the evaluation of the lookup-output polynomial at r.
	Claim fr.Element

	Sumcheck sumcheck.Proof

	// Openings of the flag and E polynomials at the sumcheck's point.
	FlagEvals    []fr.Element
	EEvals       []fr.Element
	FlagOpenings []commitment.OpeningProof
	EOpenings    []commitment.OpeningProof
}

func (l *InstructionLookups) provePrimary(p *Polynomials, scheme commitment.Scheme, ts *transcript.Transcript) (PrimaryProof, error) {
	log := logger.Logger().With().Str("component", "lookup").Logger()
	start := time.Now()

	reg := l.reg
	m := len(l.ops)

	r := ts.ChallengeVector("lookup.primary_r", utils.Log2Exact(uint64(m)))
	eq := poly.EqTable(r)

	// claim = Σ_j eq(r,j)·output_j
	var proof PrimaryProof
	for j, op := range l.ops {
		out, err := reg.Output(op)
		if err != nil {
			return PrimaryProof{}, err
		}
		out.Mul(&out, &eq[j])
		proof.Claim.Add(&proof.Claim, &out)
	}
	ts.AppendScalar("lookup.primary_claim", &proof.Claim)

	numKinds := reg.NumKinds()
	polys := make([]polynomial.MultiLin, 0, 1+numKinds+reg.NumMemories())
	polys = append(polys, eq)
	for _, fp := range p.Flags {
		polys = append(polys, fp.Clone())
	}
	for _, ep := range p.E {
		polys = append(polys, ep.Clone())
	}

	degree := reg.MaxGDegree() + 2
	combine := primaryCombinator(reg)

	sc, rPrime, _ := sumcheck.Prove(polys, degree, combine, ts)
	proof.Sumcheck = sc

	proof.FlagEvals = make([]fr.Element, numKinds)
	proof.FlagOpenings = make([]commitment.OpeningProof, numKinds)
	for f := range p.Flags {
		var err error
		proof.FlagEvals[f], proof.FlagOpenings[f], err = scheme.Open(p.Flags[f], rPrime)
		if err != nil {
			return PrimaryProof{}, err
		}
	}
	proof.EEvals = make([]fr.Element, reg.NumMemories())
	proof.EOpenings = make([]commitment.OpeningProof, reg.NumMemories())
	for i := range p.E {
		var err error
		proof.EEvals[i], proof.EOpenings[i], err = scheme.Open(p.E[i], rPrime)
		if err != nil {
			return PrimaryProof{}, err
		}
	}
	ts.AppendScalars("lookup.primary_flag_evals", proof.FlagEvals)
	ts.AppendScalars("lookup.primary_e_evals", proof.EEvals)

	log.Debug().Dur("took", time.Since(start)).Msg("primary sumcheck")
	return proof, nil
}

// primaryCombinator builds the round combinator eq·Σ_f flag_f·g_f(terms_f).
// It allocates its term scratch per call: round evaluation invokes it from
// several goroutines.
func primaryCombinator(reg *instruction.Registry) sumcheck.Combinator {
	numKinds := reg.NumKinds()
	return func(vals []fr.Element) fr.Element {
		flags := vals[1 : 1+numKinds]
		eTerms := vals[1+numKinds:]

		var acc fr.Element
		terms := make([]fr.Element, 0, reg.C())
		for f := 0; f < numKinds; f++ {
			if flags[f].IsZero() {
				continue
			}
			terms = terms[:0]
			for _, mi := range reg.MemoryIndicesAt(f) {
				terms = append(terms, eTerms[mi])
			}
			g := reg.CollateAt(f, terms)
			g.Mul(&g, &flags[f])
			acc.Add(&acc, &g)
		}
		acc.Mul(&acc, &vals[0])
		return acc
	}
}

// verifyPrimary checks the primary sumcheck against the registry's collation
// polynomials and the committed flag and E polynomials. It returns the point
// rPrime the openings were taken at.
func verifyPrimary(reg *instruction.Registry, proof PrimaryProof, comm *Commitments, scheme commitment.Scheme, logm int, ts *transcript.Transcript) ([]fr.Element, error) {
	r := ts.ChallengeVector("lookup.primary_r", logm)
	ts.AppendScalar("lookup.primary_claim", &proof.Claim)

	degree := reg.MaxGDegree() + 2
	finalClaim, rPrime, err := proof.Sumcheck.Verify(proof.Claim, logm, degree, ts)
	if err != nil {
		return nil, err
	}

	numKinds := reg.NumKinds()
	if len(proof.FlagEvals) != numKinds || len(proof.EEvals) != reg.NumMemories() ||
		len(proof.FlagOpenings) != numKinds || len(proof.EOpenings) != reg.NumMemories() {
		return nil, fmt.Errorf("%w: wrong number of openings", ErrCollation)
	}

	// finalClaim must equal eq(r, rPrime)·Σ_f flag_f(rPrime)·g_f(E evals)
	var expected fr.Element
	terms := make([]fr.Element, 0, reg.C())
	for f := 0; f < numKinds; f++ {
		terms = terms[:0]
		for _, mi := range reg.MemoryIndicesAt(f) {
			terms = append(terms, proof.EEvals[mi])
		}
		g := reg.CollateAt(f, terms)
		g.Mul(&g, &proof.FlagEvals[f])
		expected.Add(&expected, &g)
	}
	eqEval := poly.EvalEq(r, rPrime)
	expected.Mul(&expected, &eqEval)
	if !expected.Equal(&finalClaim) {
		return nil, ErrCollation
	}

	for f := range proof.FlagEvals {
		if err := scheme.Verify(comm.Flags[f], rPrime, proof.FlagEvals[f], proof.FlagOpenings[f]); err != nil {
			return nil, fmt.Errorf("flag %d: %w", f, err)
		}
	}
	for i := range proof.EEvals {
		if err := scheme.Verify(comm.E[i], rPrime, proof.EEvals[i], proof.EOpenings[i]); err != nil {
			return nil, fmt.Errorf("memory %d: %w", i, err)
		}
	}
	ts.AppendScalars("lookup.primary_flag_evals", proof.FlagEvals)
	ts.AppendScalars("lookup.primary_e_evals", proof.EEvals)

	return rPrime, nil
}
