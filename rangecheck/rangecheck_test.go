package rangecheck

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/consensys/lasso/commitment"
	"github.com/consensys/lasso/transcript"
)

func TestNewCheckerDigits(t *testing.T) {
	c, err := NewChecker(4, 15)
	require.NoError(t, err)
	require.Equal(t, 1, c.NumDigits())

	c, err = NewChecker(4, 16)
	require.NoError(t, err)
	require.Equal(t, 2, c.NumDigits())

	_, err = NewChecker(0, 10)
	require.Error(t, err)
	_, err = NewChecker(64, 10)
	require.Error(t, err)
}

func roundtrip(t *testing.T, k int, bound uint64, values []uint64) error {
	t.Helper()
	checker, err := NewChecker(k, bound)
	require.NoError(t, err)
	scheme := commitment.MiMC{}

	proof, comm, _, err := checker.Prove(values, scheme, transcript.New("test"))
	if err != nil {
		return err
	}
	_, err = checker.Verify(proof, comm, scheme, transcript.New("test"))
	return err
}

func TestRoundtrip(t *testing.T) {
	require.NoError(t, roundtrip(t, 3, 100, []uint64{0, 1, 50, 99, 100, 42, 7, 13}))
}

func TestBoundaries(t *testing.T) {
	const bound = 37
	require.NoError(t, roundtrip(t, 2, bound, []uint64{0, 0, 0, 0}))
	require.NoError(t, roundtrip(t, 2, bound, []uint64{bound, bound, bound, bound}))
}

func TestRejectsOutOfRange(t *testing.T) {
	const bound = 37
	err := roundtrip(t, 2, bound, []uint64{1, 2, bound + 1, 3})
	require.ErrorIs(t, err, ErrRangeViolation)
}

func TestPadsNonPowerOfTwo(t *testing.T) {
	require.NoError(t, roundtrip(t, 3, 10, []uint64{9, 10, 3}))
}

func TestRejectsTamperedDigitEval(t *testing.T) {
	checker, err := NewChecker(2, 10)
	require.NoError(t, err)
	scheme := commitment.MiMC{}

	proof, comm, _, err := checker.Prove([]uint64{1, 2, 3, 4}, scheme, transcript.New("test"))
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()
	proof.DigitEvals[0].Add(&proof.DigitEvals[0], &one)

	_, err = checker.Verify(proof, comm, scheme, transcript.New("test"))
	require.Error(t, err)
}

// A proof with opening slices stripped must reject, not panic.
func TestRejectsMissingOpenings(t *testing.T) {
	checker, err := NewChecker(2, 10)
	require.NoError(t, err)
	scheme := commitment.MiMC{}

	proof, comm, _, err := checker.Prove([]uint64{1, 2, 3, 4}, scheme, transcript.New("test"))
	require.NoError(t, err)

	digitOps := proof.DigitOpenings
	proof.DigitOpenings = nil
	_, err = checker.Verify(proof, comm, scheme, transcript.New("test"))
	require.ErrorIs(t, err, ErrRangeViolation)
	proof.DigitOpenings = digitOps

	finalOps := proof.FinalCtsOpenings
	proof.FinalCtsOpenings = finalOps[:0]
	_, err = checker.Verify(proof, comm, scheme, transcript.New("test"))
	require.ErrorIs(t, err, ErrRangeViolation)
	proof.FinalCtsOpenings = finalOps

	_, err = checker.Verify(proof, comm, scheme, transcript.New("test"))
	require.NoError(t, err)
}

func TestRejectsTamperedHashes(t *testing.T) {
	checker, err := NewChecker(2, 10)
	require.NoError(t, err)
	scheme := commitment.MiMC{}

	proof, comm, _, err := checker.Prove([]uint64{1, 2, 3, 4}, scheme, transcript.New("test"))
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()
	proof.Hashes.Write[0].Add(&proof.Hashes.Write[0], &one)

	_, err = checker.Verify(proof, comm, scheme, transcript.New("test"))
	require.Error(t, err)
}
