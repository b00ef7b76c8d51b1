package drng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esdmd/internal/entropy"
)

// bufWithBits builds a single-slot Buffer credited with bits, filled
// with non-zero scratch data so Reseed has something to fold in.
func bufWithBits(bits entropy.Estimate) *entropy.Buffer {
	buf := entropy.NewBuffer(1, 32)
	for i := range buf.Slots[0].Data {
		buf.Slots[0].Data[i] = byte(i + 1)
	}
	buf.Slots[0].Bits = bits
	return buf
}

func TestCtrDrbgNode_Name(t *testing.T) {
	n, err := NewCtrDrbgNode()
	require.NoError(t, err)
	assert.Equal(t, "aes_ctr_drbg", n.Name())
}

func TestCtrDrbgNode_ReseedBelowThresholdNotSeeded(t *testing.T) {
	n, err := NewCtrDrbgNode()
	require.NoError(t, err)

	buf := bufWithBits(64)
	require.NoError(t, n.Reseed(context.Background(), buf))
	assert.False(t, n.FullySeeded())
}

func TestCtrDrbgNode_ReseedAtThresholdSeeds(t *testing.T) {
	n, err := NewCtrDrbgNode()
	require.NoError(t, err)

	buf := bufWithBits(ctrdrbgFullSeedBits)
	require.NoError(t, n.Reseed(context.Background(), buf))
	assert.True(t, n.FullySeeded())
}

func TestCtrDrbgNode_SetFullySeededOverride(t *testing.T) {
	n, err := NewCtrDrbgNode()
	require.NoError(t, err)

	n.SetFullySeeded(true)
	assert.True(t, n.FullySeeded())
	n.SetFullySeeded(false)
	assert.False(t, n.FullySeeded())
}

func TestCtrDrbgNode_ReadProducesBytesAfterReseed(t *testing.T) {
	n, err := NewCtrDrbgNode()
	require.NoError(t, err)

	buf := bufWithBits(ctrdrbgFullSeedBits)
	require.NoError(t, n.Reseed(context.Background(), buf))

	out := make([]byte, 64)
	nRead, err := n.Read(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), nRead)
}

func TestDerivePersonalization_EmptyInputYieldsNil(t *testing.T) {
	p, err := derivePersonalization(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDerivePersonalization_FixedLengthAndDeterministic(t *testing.T) {
	raw := []byte("some concatenated slot material")

	p1, err := derivePersonalization(raw)
	require.NoError(t, err)
	p2, err := derivePersonalization(raw)
	require.NoError(t, err)

	assert.Len(t, p1, ctrdrbgDerivedLen)
	assert.Equal(t, p1, p2)
}

func TestDerivePersonalization_DifferentInputsDiffer(t *testing.T) {
	p1, err := derivePersonalization([]byte("input one"))
	require.NoError(t, err)
	p2, err := derivePersonalization([]byte("input two"))
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestChaChaNode_Name(t *testing.T) {
	n, err := NewChaChaNode()
	require.NoError(t, err)
	assert.Equal(t, "chacha20_prng", n.Name())
}

func TestChaChaNode_ReseedCreditThreshold(t *testing.T) {
	n, err := NewChaChaNode()
	require.NoError(t, err)

	require.NoError(t, n.Reseed(context.Background(), bufWithBits(64)))
	assert.False(t, n.FullySeeded())

	require.NoError(t, n.Reseed(context.Background(), bufWithBits(chachaFullSeedBits)))
	assert.True(t, n.FullySeeded())
}

func TestChaChaNode_ReadAfterReseed(t *testing.T) {
	n, err := NewChaChaNode()
	require.NoError(t, err)
	require.NoError(t, n.Reseed(context.Background(), bufWithBits(chachaFullSeedBits)))

	out := make([]byte, 32)
	nRead, err := n.Read(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), nRead)
}

func TestFortunaNode_Name(t *testing.T) {
	n, err := NewFortunaNode()
	require.NoError(t, err)
	assert.Equal(t, "fortuna", n.Name())
}

func TestFortunaNode_ReseedCreditThreshold(t *testing.T) {
	n, err := NewFortunaNode()
	require.NoError(t, err)

	require.NoError(t, n.Reseed(context.Background(), bufWithBits(128)))
	assert.False(t, n.FullySeeded())

	require.NoError(t, n.Reseed(context.Background(), bufWithBits(256)))
	assert.True(t, n.FullySeeded())
}

func TestFortunaNode_ZeroBitSlotsAreSkipped(t *testing.T) {
	n, err := NewFortunaNode()
	require.NoError(t, err)

	buf := entropy.NewBuffer(2, 16)
	buf.Slots[0].Bits = 0
	buf.Slots[1].Bits = 0
	require.NoError(t, n.Reseed(context.Background(), buf))
	assert.False(t, n.FullySeeded())
}

func TestFortunaNode_ReadAfterReseed(t *testing.T) {
	n, err := NewFortunaNode()
	require.NoError(t, err)
	require.NoError(t, n.Reseed(context.Background(), bufWithBits(256)))

	out := make([]byte, 32)
	nRead, err := n.Read(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), nRead)
}

// allNodesSatisfyDRNGInterface is a compile-time check that every
// adapter in this package implements entropy.DRNG.
func allNodesSatisfyDRNGInterface(t *testing.T) {
	var _ entropy.DRNG = (*CtrDrbgNode)(nil)
	var _ entropy.DRNG = (*ChaChaNode)(nil)
	var _ entropy.DRNG = (*FortunaNode)(nil)
}

func TestNodesSatisfyDRNGInterface(t *testing.T) {
	allNodesSatisfyDRNGInterface(t)
}
