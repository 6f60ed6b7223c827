package instruction

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/lasso/internal/utils"
	"github.com/consensys/lasso/subtable"
)

// Registry is the decomposition table of one VM configuration: the declared
// instruction kinds, the union of their subtables, and the mapping from each
// kind to the memories (subtable, chunk) pairs it reads.
//
// C is the number of operand chunks per instruction, M = 2^logM the size of
// each subtable. Each (subtable, chunk) pair is an independent memory, so a
// configuration has C·numSubtables memories.
type Registry struct {
	c    int
	logM int

	kinds     []Kind
	kindIndex map[Kind]int
	specs     []kindSpec

	subtables     []subtable.Subtable
	subtableIndex map[string]int

	// memoryIndices[i] lists, subtable-major, the memory indices kind i reads
	memoryIndices [][]int
	// kindsUsingSubtable[s] lists the (declared-order) kind positions whose
	// decomposition references subtable s
	kindsUsingSubtable [][]int
}

// NewRegistry builds the immutable decomposition table for the declared
// kinds. logM must be even (two-operand packing).
func NewRegistry(c, logM int, kinds ...Kind) (*Registry, error) {
	if c < 1 {
		return nil, fmt.Errorf("instruction registry: c must be positive, got %d", c)
	}
	if logM <= 0 || logM%2 != 0 {
		return nil, fmt.Errorf("instruction registry: logM must be positive and even, got %d", logM)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("instruction registry: no instruction kinds declared")
	}

	r := &Registry{
		c:             c,
		logM:          logM,
		kinds:         make([]Kind, 0, len(kinds)),
		kindIndex:     make(map[Kind]int, len(kinds)),
		specs:         make([]kindSpec, 0, len(kinds)),
		subtableIndex: make(map[string]int),
	}

	for _, k := range kinds {
		if _, ok := r.kindIndex[k]; ok {
			return nil, fmt.Errorf("instruction registry: kind %s declared twice", k)
		}
		spec, err := specOf(k)
		if err != nil {
			return nil, err
		}
		r.kindIndex[k] = len(r.kinds)
		r.kinds = append(r.kinds, k)
		r.specs = append(r.specs, spec)
		for _, st := range spec.subtables {
			if _, ok := r.subtableIndex[st.String()]; !ok {
				r.subtableIndex[st.String()] = len(r.subtables)
				r.subtables = append(r.subtables, st)
			}
		}
	}

	r.memoryIndices = make([][]int, len(r.kinds))
	r.kindsUsingSubtable = make([][]int, len(r.subtables))
	for i, spec := range r.specs {
		for _, st := range spec.subtables {
			s := r.subtableIndex[st.String()]
			r.kindsUsingSubtable[s] = append(r.kindsUsingSubtable[s], i)
			for chunk := 0; chunk < c; chunk++ {
				r.memoryIndices[i] = append(r.memoryIndices[i], c*s+chunk)
			}
		}
	}

	return r, nil
}

func (r *Registry) C() int    { return r.c }
func (r *Registry) LogM() int { return r.logM }
func (r *Registry) M() int    { return 1 << r.logM }

// NumKinds returns the number of declared instruction kinds.
func (r *Registry) NumKinds() int { return len(r.kinds) }

// NumSubtables returns the size of the subtable union.
func (r *Registry) NumSubtables() int { return len(r.subtables) }

// NumMemories returns C · NumSubtables.
func (r *Registry) NumMemories() int { return r.c * len(r.subtables) }

// Kinds returns the declared kinds in declaration order.
func (r *Registry) Kinds() []Kind { return r.kinds }

// Subtables returns the subtable union in first-reference order.
func (r *Registry) Subtables() []subtable.Subtable { return r.subtables }

// KindIndex returns the declaration position of k, or ErrUnknownInstruction.
func (r *Registry) KindIndex(k Kind) (int, error) {
	i, ok := r.kindIndex[k]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInstruction, k)
	}
	return i, nil
}

// SubtablesOf returns the ordered subtable references of kind k.
func (r *Registry) SubtablesOf(k Kind) ([]subtable.Subtable, error) {
	i, err := r.KindIndex(k)
	if err != nil {
		return nil, err
	}
	return r.specs[i].subtables, nil
}

// MemoryIndices returns the memory indices kind k reads, subtable-major then
// chunk.
func (r *Registry) MemoryIndices(k Kind) ([]int, error) {
	i, err := r.KindIndex(k)
	if err != nil {
		return nil, err
	}
	return r.memoryIndices[i], nil
}

// MemoryIndicesAt is MemoryIndices by declaration position.
func (r *Registry) MemoryIndicesAt(i int) []int { return r.memoryIndices[i] }

// KindsUsingSubtable returns the declaration positions of the kinds whose
// decomposition references subtable s.
func (r *Registry) KindsUsingSubtable(s int) []int { return r.kindsUsingSubtable[s] }

// MemoryToSubtable maps a memory index to its subtable index.
func (r *Registry) MemoryToSubtable(memory int) int { return memory / r.c }

// MemoryToChunk maps a memory index to its operand-chunk (dimension) index.
func (r *Registry) MemoryToChunk(memory int) int { return memory % r.c }

// Collate applies g_k to the subtable terms of kind k. terms must have
// exactly α·C entries, subtable-major.
func (r *Registry) Collate(k Kind, terms []fr.Element) (fr.Element, error) {
	i, err := r.KindIndex(k)
	if err != nil {
		return fr.Element{}, err
	}
	if want := len(r.specs[i].subtables) * r.c; len(terms) != want {
		return fr.Element{}, fmt.Errorf("collate %s: got %d terms, want %d", k, len(terms), want)
	}
	return r.specs[i].collate(terms, r.c, r.logM), nil
}

// CollateAt is Collate by declaration position, skipping arity checks.
func (r *Registry) CollateAt(i int, terms []fr.Element) fr.Element {
	return r.specs[i].collate(terms, r.c, r.logM)
}

// GDegree bounds the degree of g_k as a polynomial in its terms.
func (r *Registry) GDegree(k Kind) (int, error) {
	i, err := r.KindIndex(k)
	if err != nil {
		return 0, err
	}
	return r.specs[i].gDegree(r.c), nil
}

// MaxGDegree returns the maximum g degree over all declared kinds.
func (r *Registry) MaxGDegree() int {
	res := 0
	for i := range r.specs {
		if d := r.specs[i].gDegree(r.c); d > res {
			res = d
		}
	}
	return res
}

// OperandBits returns the width of one full operand, C·logM/2.
func (r *Registry) OperandBits() int { return r.c * r.logM / 2 }

func (r *Registry) operandMask() uint64 {
	w := uint(r.OperandBits())
	if w >= 64 {
		return ^uint64(0)
	}
	return 1<<w - 1
}

// Indices chunks the lookup's operands into its C subtable indices, most
// significant chunk first.
func (r *Registry) Indices(lk Lookup) ([]int, error) {
	if _, err := r.KindIndex(lk.Kind); err != nil {
		return nil, err
	}
	return utils.ChunkAndConcatenateOperands(lk.X&r.operandMask(), lk.Y&r.operandMask(), r.c, r.logM), nil
}

// Output computes the lookup's output directly, bypassing the subtable
// decomposition. Collating the decomposed terms must agree with it.
func (r *Registry) Output(lk Lookup) (fr.Element, error) {
	i, err := r.KindIndex(lk.Kind)
	if err != nil {
		return fr.Element{}, err
	}
	var res fr.Element
	res.SetUint64(r.specs[i].eval(lk.X, lk.Y, r.operandMask()))
	return res, nil
}
