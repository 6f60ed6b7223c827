package lasso

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/consensys/lasso/instruction"
	"github.com/consensys/lasso/memory"
)

func testSystem(t *testing.T, memSize int) *System {
	t.Helper()
	reg, err := instruction.NewRegistry(2, 4, instruction.EQ, instruction.LTU, instruction.AND, instruction.OR, instruction.XOR)
	require.NoError(t, err)
	return &System{Registry: reg, MemorySize: memSize}
}

func testTrace() Trace {
	return Trace{
		Instructions: []instruction.Lookup{
			{Kind: instruction.EQ, X: 5, Y: 5},
			{Kind: instruction.LTU, X: 3, Y: 9},
			{Kind: instruction.AND, X: 12, Y: 10},
			{Kind: instruction.XOR, X: 6, Y: 3},
		},
		MemoryOps: []memory.Op{
			{Kind: memory.Write, Addr: 2, Value: 7},
			{Kind: memory.Read, Addr: 2, Value: 7},
			{Kind: memory.Write, Addr: 0, Value: 1},
			{Kind: memory.Read, Addr: 0, Value: 1},
		},
	}
}

func TestProveVerify(t *testing.T) {
	sys := testSystem(t, 8)
	proof, err := sys.Prove(testTrace())
	require.NoError(t, err)
	require.NoError(t, sys.Verify(proof))
}

func TestProveVerifyWithoutRAM(t *testing.T) {
	sys := testSystem(t, 0)
	tr := testTrace()
	tr.MemoryOps = nil
	proof, err := sys.Prove(tr)
	require.NoError(t, err)
	require.Nil(t, proof.Memory)
	require.NoError(t, sys.Verify(proof))
}

func TestRejectsMemoryOpsWithoutRAM(t *testing.T) {
	sys := testSystem(t, 0)
	_, err := sys.Prove(testTrace())
	require.ErrorIs(t, err, memory.ErrMalformedTrace)
}

func TestSerializationRoundtrip(t *testing.T) {
	sys := testSystem(t, 8)
	proof, err := sys.Prove(testTrace())
	require.NoError(t, err)

	encoded, err := proof.MarshalBinary()
	require.NoError(t, err)

	var decoded Proof
	require.NoError(t, decoded.UnmarshalBinary(encoded))
	require.NoError(t, sys.Verify(&decoded))
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	sys := testSystem(t, 8)
	proof, err := sys.Prove(testTrace())
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()
	proof.Lookup.Primary.Claim.Add(&proof.Lookup.Primary.Claim, &one)
	require.Error(t, sys.Verify(proof))
}

func TestVerifyRejectsMissingParts(t *testing.T) {
	sys := testSystem(t, 8)
	proof, err := sys.Prove(testTrace())
	require.NoError(t, err)

	lookupPart := proof.Lookup
	proof.Lookup = nil
	require.ErrorIs(t, sys.Verify(proof), ErrProofEncoding)

	proof.Lookup = lookupPart
	proof.Memory = nil
	require.ErrorIs(t, sys.Verify(proof), ErrProofEncoding)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var p Proof
	require.ErrorIs(t, p.UnmarshalBinary([]byte("not cbor at all")), ErrProofEncoding)
}
