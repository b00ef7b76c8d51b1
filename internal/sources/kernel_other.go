//go:build !amd64

package sources

// hasHardwareRNG is always false outside amd64: no CPU-resident random
// instruction is assumed available.
func hasHardwareRNG() bool { return false }
