package utils

import "math/bits"

// Log2 returns ⌈log₂(n)⌉. Log2(0) = 0.
func Log2(n uint64) int {
	if n <= 1 {
		return 0
	}
	return 64 - bits.LeadingZeros64(n-1)
}

// Log2Exact returns log₂(n) and panics if n is not a power of two.
func Log2Exact(n uint64) int {
	if !IsPowerOfTwo(n) {
		panic("length is not a power of two")
	}
	return bits.TrailingZeros64(n)
}

func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two ≥ n. NextPowerOfTwo(0) = 1.
func NextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(n-1))
}

// SplitBits splits idx into its high and low halves of bitsPerOperand bits each,
// the packing used by two-operand subtables: idx = x << bitsPerOperand | y.
func SplitBits(idx, bitsPerOperand int) (x, y int) {
	mask := (1 << bitsPerOperand) - 1
	return (idx >> bitsPerOperand) & mask, idx & mask
}

// ChunkAndConcatenateOperands decomposes the pair (x, y) into c subtable
// indices of logM bits each. Chunk i interleaves the i'th (logM/2)-bit limb of
// x (high) with that of y (low), most significant chunk first.
func ChunkAndConcatenateOperands(x, y uint64, c, logM int) []int {
	operandBits := logM / 2
	operandMask := uint64(1)<<operandBits - 1
	indices := make([]int, c)
	for i := 0; i < c; i++ {
		shift := uint(operandBits * (c - 1 - i))
		xChunk := (x >> shift) & operandMask
		yChunk := (y >> shift) & operandMask
		indices[i] = int(xChunk<<uint(operandBits) | yChunk)
	}
	return indices
}

// ChunkValue decomposes v into c digits of logM bits each, most significant
// digit first.
func ChunkValue(v uint64, c, logM int) []int {
	mask := uint64(1)<<uint(logM) - 1
	digits := make([]int, c)
	for i := 0; i < c; i++ {
		digits[i] = int((v >> uint(logM*(c-1-i))) & mask)
	}
	return digits
}
