// Package sumcheck implements the multi-round sumcheck protocol over
// multilinear polynomials, in the generic "combining function" form: the
// prover convinces the verifier that Σ_{x∈{0,1}^n} g(p₁(x), …, p_k(x)) equals
// a claimed value, for multilinear pᵢ and a low-degree combinator g.
//
// Rounds are strictly sequential: the round-j challenge is derived from the
// transcript after the round-j polynomial is absorbed, and every later round
// depends on it. Within a round, evaluation over the half-sized hypercube is
// embarrassingly parallel and is chunked across goroutines.
package sumcheck

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
	"golang.org/x/sync/errgroup"

	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/transcript"
)

// ErrRoundMismatch is returned when a round polynomial is inconsistent with
// the claim carried over from the previous round.
var ErrRoundMismatch = errors.New("sumcheck round polynomial inconsistent with prior claim")

// Combinator evaluates g on one tuple of polynomial evaluations. vals is
// reused between calls; implementations must not retain it, and must be safe
// for concurrent calls (round evaluation is parallelized).
type Combinator func(vals []fr.Element) fr.Element

// Proof is the per-instance sequence of round polynomials, each given by its
// degree+1 evaluations on 0, 1, …, degree.
type Proof struct {
	RoundPolys [][]fr.Element
}

// Prove runs the sumcheck protocol over the given multilinear polynomials.
// All polynomials must share the same (power-of-two) length; they are folded
// in place, so callers pass clones if they need the originals afterwards.
//
// It returns the proof, the challenge point the polynomials were bound to,
// and the final evaluation of each polynomial at that point.
func Prove(polys []polynomial.MultiLin, degree int, combine Combinator, ts *transcript.Transcript) (Proof, []fr.Element, []fr.Element) {
	n := len(polys[0])
	for i := range polys {
		if len(polys[i]) != n {
			panic("sumcheck: mismatched polynomial lengths")
		}
	}
	numRounds := utils.Log2Exact(uint64(n))

	proof := Proof{RoundPolys: make([][]fr.Element, 0, numRounds)}
	r := make([]fr.Element, 0, numRounds)

	for round := 0; round < numRounds; round++ {
		evals := roundEvaluations(polys, degree, combine)
		proof.RoundPolys = append(proof.RoundPolys, evals)

		ts.AppendScalars("sumcheck.round_poly", evals)
		rj := ts.ChallengeScalar("sumcheck.challenge")
		r = append(r, rj)

		for i := range polys {
			polys[i].Fold(rj)
		}
	}

	finals := make([]fr.Element, len(polys))
	for i := range polys {
		finals[i] = polys[i][0]
	}
	return proof, r, finals
}

// roundEvaluations computes the round polynomial's evaluations at
// 0, …, degree by summing g over the half-sized hypercube.
func roundEvaluations(polys []polynomial.MultiLin, degree int, combine Combinator) []fr.Element {
	half := len(polys[0]) / 2
	numEvals := degree + 1

	numTasks := runtime.NumCPU()
	if numTasks > half {
		numTasks = half
	}
	partials := make([][]fr.Element, numTasks)

	var g errgroup.Group
	chunk := (half + numTasks - 1) / numTasks
	for task := 0; task < numTasks; task++ {
		start, stop := task*chunk, min((task+1)*chunk, half)
		task := task
		g.Go(func() error {
			acc := make([]fr.Element, numEvals)
			vals := make([]fr.Element, len(polys))
			steps := make([]fr.Element, len(polys))
			for i := start; i < stop; i++ {
				for j := range polys {
					vals[j] = polys[j][i]
					steps[j].Sub(&polys[j][i+half], &polys[j][i])
				}
				// t = 0 is the bottom half itself
				v := combine(vals)
				acc[0].Add(&acc[0], &v)
				for t := 1; t < numEvals; t++ {
					for j := range polys {
						vals[j].Add(&vals[j], &steps[j])
					}
					v = combine(vals)
					acc[t].Add(&acc[t], &v)
				}
			}
			partials[task] = acc
			return nil
		})
	}
	_ = g.Wait() // tasks never fail

	evals := make([]fr.Element, numEvals)
	for _, acc := range partials {
		for t := range evals {
			evals[t].Add(&evals[t], &acc[t])
		}
	}
	return evals
}

// Verify checks the round polynomials against the claim, reproducing the
// prover's challenges from the transcript. It returns the final reduced claim
// and the challenge point at which the caller must resolve the polynomial
// evaluations (via commitment openings or a further reduction).
func (p Proof) Verify(claim fr.Element, numRounds, degree int, ts *transcript.Transcript) (fr.Element, []fr.Element, error) {
	if len(p.RoundPolys) != numRounds {
		return fr.Element{}, nil, fmt.Errorf("%w: got %d round polynomials, want %d", ErrRoundMismatch, len(p.RoundPolys), numRounds)
	}

	r := make([]fr.Element, 0, numRounds)
	current := claim
	for round := 0; round < numRounds; round++ {
		evals := p.RoundPolys[round]
		if len(evals) != degree+1 {
			return fr.Element{}, nil, fmt.Errorf("%w: round %d polynomial has %d evaluations, want %d", ErrRoundMismatch, round, len(evals), degree+1)
		}

		var sum fr.Element
		sum.Add(&evals[0], &evals[1])
		if !sum.Equal(&current) {
			return fr.Element{}, nil, fmt.Errorf("%w: round %d", ErrRoundMismatch, round)
		}

		ts.AppendScalars("sumcheck.round_poly", evals)
		rj := ts.ChallengeScalar("sumcheck.challenge")
		r = append(r, rj)

		interp := polynomial.InterpolateOnRange(evals)
		current = interp.Eval(&rj)
	}
	return current, r, nil
}
