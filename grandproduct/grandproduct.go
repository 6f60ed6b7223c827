// Package grandproduct implements the GKR-style grand product argument: a
// binary product tree over a vector of leaves, proven layer by layer with a
// batched degree-3 sumcheck per layer. A claim about the root reduces, one
// layer at a time, to a claim about the leaf multilinear extension at a
// random point; discharging that final claim is the caller's business
// (commitment openings, or a further sumcheck for toggled leaves).
//
// Layers are stored as arrays indexed by level, not as pointer-linked nodes.
package grandproduct

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/poly"
	"github.com/consensys/lasso/sumcheck"
	"github.com/consensys/lasso/transcript"
)

// ErrLayerMismatch is returned when a layer's reduced claim does not match
// the product structure of the tree.
var ErrLayerMismatch = errors.New("grand product layer claim mismatch")

// Circuit is one binary product tree. Index 0 holds the split leaves; the
// last level holds the two children of the root.
type Circuit struct {
	left  []polynomial.MultiLin
	right []polynomial.MultiLin
}

// New builds the product tree over leaves. len(leaves) must be a power of two
// of at least 2.
func New(leaves polynomial.MultiLin) *Circuit {
	numLayers := utils.Log2Exact(uint64(len(leaves)))
	c := &Circuit{
		left:  make([]polynomial.MultiLin, numLayers),
		right: make([]polynomial.MultiLin, numLayers),
	}
	half := len(leaves) / 2
	c.left[0] = leaves[:half].Clone()
	c.right[0] = leaves[half:].Clone()
	for k := 1; k < numLayers; k++ {
		prevLeft, prevRight := c.left[k-1], c.right[k-1]
		n := len(prevLeft) / 2
		c.left[k] = make(polynomial.MultiLin, n)
		c.right[k] = make(polynomial.MultiLin, n)
		for i := 0; i < n; i++ {
			c.left[k][i].Mul(&prevLeft[i], &prevRight[i])
			c.right[k][i].Mul(&prevLeft[n+i], &prevRight[n+i])
		}
	}
	return c
}

// NumLayers returns the tree depth, log₂(len(leaves)).
func (c *Circuit) NumLayers() int { return len(c.left) }

// Eval returns the root of the product tree.
func (c *Circuit) Eval() fr.Element {
	top := len(c.left) - 1
	var res fr.Element
	res.Mul(&c.left[top][0], &c.right[top][0])
	return res
}

// LayerProof is the reduction of one tree layer across a batch of circuits.
type LayerProof struct {
	Sumcheck    sumcheck.Proof
	LeftClaims  []fr.Element
	RightClaims []fr.Element
}

// Proof is a batched grand product argument.
type Proof struct {
	Layers []LayerProof
}

// ProveBatched proves the roots of a batch of same-depth circuits. The
// circuits are consumed. It returns the proof, the per-circuit leaf-MLE
// claims, and the random point at which those claims hold.
func ProveBatched(circuits []*Circuit, ts *transcript.Transcript) (Proof, []fr.Element, []fr.Element) {
	if len(circuits) == 0 {
		panic("grandproduct: empty batch")
	}
	numLayers := circuits[0].NumLayers()
	for _, c := range circuits {
		if c.NumLayers() != numLayers {
			panic("grandproduct: batch requires same-depth circuits")
		}
	}

	proof := Proof{Layers: make([]LayerProof, 0, numLayers)}
	claims := make([]fr.Element, len(circuits))
	for i, c := range circuits {
		claims[i] = c.Eval()
	}

	var rand []fr.Element
	for layer := numLayers - 1; layer >= 0; layer-- {
		coeffs := ts.ChallengeVector("grandproduct.batch_coeff", len(claims))

		// polys: lefts, rights, then the eq table of the accumulated point
		polys := make([]polynomial.MultiLin, 0, 2*len(circuits)+1)
		for _, c := range circuits {
			polys = append(polys, c.left[layer])
		}
		for _, c := range circuits {
			polys = append(polys, c.right[layer])
		}
		polys = append(polys, poly.EqTable(rand))

		b := len(circuits)
		combine := func(vals []fr.Element) fr.Element {
			var res, term fr.Element
			eq := &vals[2*b]
			for i := 0; i < b; i++ {
				term.Mul(&vals[i], &vals[b+i]).Mul(&term, &coeffs[i])
				res.Add(&res, &term)
			}
			res.Mul(&res, eq)
			return res
		}

		scProof, randProd, finals := sumcheck.Prove(polys, 3, combine, ts)

		leftClaims := make([]fr.Element, b)
		rightClaims := make([]fr.Element, b)
		copy(leftClaims, finals[:b])
		copy(rightClaims, finals[b:2*b])
		ts.AppendScalars("grandproduct.left_claims", leftClaims)
		ts.AppendScalars("grandproduct.right_claims", rightClaims)

		// condense the two child claims into one at (rLayer ∥ randProd)
		rLayer := ts.ChallengeScalar("grandproduct.layer_challenge")
		for i := 0; i < b; i++ {
			var t fr.Element
			t.Sub(&rightClaims[i], &leftClaims[i]).Mul(&t, &rLayer)
			claims[i].Add(&leftClaims[i], &t)
		}
		rand = append([]fr.Element{rLayer}, randProd...)

		proof.Layers = append(proof.Layers, LayerProof{
			Sumcheck:    scProof,
			LeftClaims:  leftClaims,
			RightClaims: rightClaims,
		})
	}

	return proof, claims, rand
}

// Verify checks a batched argument against the claimed roots of circuits of
// the given depth. It returns the per-circuit leaf-MLE claims and the point
// at which they must hold.
func (p Proof) Verify(claimedRoots []fr.Element, numLayers int, ts *transcript.Transcript) ([]fr.Element, []fr.Element, error) {
	if len(p.Layers) != numLayers {
		return nil, nil, fmt.Errorf("%w: got %d layers, want %d", ErrLayerMismatch, len(p.Layers), numLayers)
	}

	claims := make([]fr.Element, len(claimedRoots))
	copy(claims, claimedRoots)

	var rand []fr.Element
	for layerIdx, layer := range p.Layers {
		if len(layer.LeftClaims) != len(claims) || len(layer.RightClaims) != len(claims) {
			return nil, nil, fmt.Errorf("%w: layer %d has wrong claim count", ErrLayerMismatch, layerIdx)
		}
		coeffs := ts.ChallengeVector("grandproduct.batch_coeff", len(claims))

		var joint, t fr.Element
		for i := range claims {
			t.Mul(&claims[i], &coeffs[i])
			joint.Add(&joint, &t)
		}

		finalClaim, randProd, err := layer.Sumcheck.Verify(joint, layerIdx, 3, ts)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", layerIdx, err)
		}

		// the sumcheck's final claim must equal Σᵢ coeffᵢ·Lᵢ·Rᵢ·eq(rand, randProd)
		eq := poly.EvalEq(rand, randProd)
		var expected fr.Element
		for i := range claims {
			t.Mul(&layer.LeftClaims[i], &layer.RightClaims[i]).
				Mul(&t, &coeffs[i])
			expected.Add(&expected, &t)
		}
		expected.Mul(&expected, &eq)
		if !expected.Equal(&finalClaim) {
			return nil, nil, fmt.Errorf("%w: layer %d product check", ErrLayerMismatch, layerIdx)
		}

		ts.AppendScalars("grandproduct.left_claims", layer.LeftClaims)
		ts.AppendScalars("grandproduct.right_claims", layer.RightClaims)
		rLayer := ts.ChallengeScalar("grandproduct.layer_challenge")
		for i := range claims {
			t.Sub(&layer.RightClaims[i], &layer.LeftClaims[i]).Mul(&t, &rLayer)
			claims[i].Add(&layer.LeftClaims[i], &t)
		}
		rand = append([]fr.Element{rLayer}, randProd...)
	}

	return claims, rand, nil
}
