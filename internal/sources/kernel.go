package sources

import (
	"context"
	"crypto/rand"

	"esdmd/internal/entropy"
)

// kernelMaxBits is high relative to the other sources: the OS CSPRNG is
// treated as always able to satisfy a request at full security strength
// once it is itself seeded.
const kernelMaxBits = 4096

// KernelSource bridges the manager to the operating system's own CSPRNG
// (crypto/rand, backed by getrandom(2)/ getentropy(2) /
// CryptGenRandom depending on platform). The availability of a
// CPU-resident random instruction is detected and only changes the
// source's reported name; the bytes always come from crypto/rand. Unlike
// the noise-derived sources it never depletes, so CurrEntropy simply
// reports whatever was requested, capped at kernelMaxBits.
type KernelSource struct {
	hwrng bool
}

// NewKernelSource constructs a kernel source, probing for hardware-RNG
// support via the architecture-specific hasHardwareRNG (amd64: RDRAND
// /RDSEED feature bits from golang.org/x/sys/cpu; everything else:
// always false — see kernel_amd64.go / kernel_other.go).
func NewKernelSource() *KernelSource {
	return &KernelSource{hwrng: hasHardwareRNG()}
}

func (s *KernelSource) Name() string {
	if s.hwrng {
		return "kernel_csprng+hwrng"
	}
	return "kernel_csprng"
}

func (s *KernelSource) Init() error { return nil }
func (s *KernelSource) Fini() error { return nil }
func (s *KernelSource) Reset()      {}
func (s *KernelSource) Monitor()    {}

// CurrEntropy always reports the full threshold: the kernel CSPRNG is
// assumed fully seeded once the OS itself is up, crediting it at face
// value the same way /dev/urandom is treated once initialized.
func (s *KernelSource) CurrEntropy(threshold entropy.Estimate) entropy.Estimate {
	if threshold > kernelMaxBits {
		return kernelMaxBits
	}
	return threshold
}

func (s *KernelSource) MaxEntropy() entropy.Estimate { return kernelMaxBits }

func (s *KernelSource) GetEnt(_ context.Context, slot *entropy.Slot, requestedBits entropy.Estimate, _ bool) {
	n, err := rand.Read(slot.Data)
	if err != nil {
		slot.Zeroize()
		return
	}
	bits := entropy.Estimate(n * 8)
	if bits > requestedBits {
		bits = requestedBits
	}
	slot.Bits = bits
}
