package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"esdmd/internal/entropy"
)

func TestRepetitionCountTest_FlagsStuckAtFault(t *testing.T) {
	test := NewRepetitionCountTest(5)
	for i := 0; i < 4; i++ {
		test.Feed(0x42)
	}
	assert.NotEqual(t, HealthFailed, test.Status())

	test.Feed(0x42)
	assert.Equal(t, HealthFailed, test.Status())

	test.Feed(0x01)
	assert.Equal(t, HealthRecovering, test.Status())
}

func TestAdaptiveProportionTest_FlagsBiasedWindow(t *testing.T) {
	test := NewAdaptiveProportionTest(16, 10)
	for i := 0; i < 16; i++ {
		test.Feed(0x07)
	}
	assert.Equal(t, HealthFailed, test.Status())
}

func TestAdaptiveProportionTest_HealthyOnUniformWindow(t *testing.T) {
	test := NewAdaptiveProportionTest(256, 10)
	for i := 0; i < 256; i++ {
		test.Feed(byte(i))
	}
	assert.Equal(t, HealthHealthy, test.Status())
}

func TestJitterSource_MonitorCreditsAndGetEntDrains(t *testing.T) {
	s := NewJitterSource()
	for i := 0; i < 8; i++ {
		s.Monitor()
	}
	before := s.CurrEntropy(0)
	assert.Greater(t, before, entropy.Estimate(0))

	slot := &entropy.Slot{Data: make([]byte, 16)}
	s.GetEnt(context.Background(), slot, before, false)

	assert.LessOrEqual(t, slot.Bits, before)
	assert.Equal(t, entropy.Estimate(0), s.CurrEntropy(0), "draining the full credit should leave none behind")
}

func TestKernelSource_GetEntFillsFromCryptoRand(t *testing.T) {
	s := NewKernelSource()
	slot := &entropy.Slot{Data: make([]byte, 32)}

	s.GetEnt(context.Background(), slot, 256, false)

	assert.Equal(t, entropy.Estimate(256), slot.Bits)
	allZero := true
	for _, b := range slot.Data {
		if b != 0 {
			allZero = false
			break
		}
	}
	assert.False(t, allZero)
}
