//go:build amd64

package sources

import "golang.org/x/sys/cpu"

// hasHardwareRNG reports whether the running CPU advertises RDRAND or
// RDSEED. Detection only: without a verified assembly stub to read the
// instruction's output directly, the actual random bytes always come
// from crypto/rand in KernelSource.GetEnt, and this flag is surfaced
// purely as an informational enhancement (naming, logging, status
// reporting).
func hasHardwareRNG() bool {
	return cpu.X86.HasRDRAND || cpu.X86.HasRDSEED
}
