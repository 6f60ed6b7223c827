package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog2(t *testing.T) {
	require.Equal(t, 0, Log2(0))
	require.Equal(t, 0, Log2(1))
	require.Equal(t, 1, Log2(2))
	require.Equal(t, 2, Log2(3))
	require.Equal(t, 3, Log2(8))
	require.Equal(t, 4, Log2(9))
}

func TestLog2Exact(t *testing.T) {
	require.Equal(t, 0, Log2Exact(1))
	require.Equal(t, 3, Log2Exact(8))
	require.Panics(t, func() { Log2Exact(6) })
	require.Panics(t, func() { Log2Exact(0) })
}

func TestNextPowerOfTwo(t *testing.T) {
	require.EqualValues(t, 1, NextPowerOfTwo(0))
	require.EqualValues(t, 1, NextPowerOfTwo(1))
	require.EqualValues(t, 4, NextPowerOfTwo(3))
	require.EqualValues(t, 8, NextPowerOfTwo(8))
	require.EqualValues(t, 16, NextPowerOfTwo(9))
}

func TestSplitBits(t *testing.T) {
	x, y := SplitBits(0b1011_0110, 4)
	require.Equal(t, 0b1011, x)
	require.Equal(t, 0b0110, y)
}

func TestChunkAndConcatenateOperands(t *testing.T) {
	// c=2, logM=4: 2-bit limbs per operand, msb chunk first
	indices := ChunkAndConcatenateOperands(0b1101, 0b0110, 2, 4)
	require.Equal(t, []int{0b11_01, 0b01_10}, indices)

	// splitting each index recovers the limbs
	for i, idx := range indices {
		x, y := SplitBits(idx, 2)
		require.Equal(t, int(0b1101>>uint(2*(1-i)))&3, x)
		require.Equal(t, int(0b0110>>uint(2*(1-i)))&3, y)
	}
}

func TestChunkValue(t *testing.T) {
	require.Equal(t, []int{0b10, 0b01}, ChunkValue(0b1001, 2, 2))
}
