//go:build linux

package sources

import (
	"context"
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/linuxtpm"

	"esdmd/internal/entropy"
)

// tpmMaxBits bounds the credit given to TPM2 GetRandom output. The TPM
// is treated as a well-seeded hardware RNG, but not trusted at full
// kernel-CSPRNG strength on its own.
const tpmMaxBits = 2048

// TPMSource draws randomness from a TPM2's GetRandom command, grounded
// on google/go-tpm's tpm2 command/transport API.
type TPMSource struct {
	path string
	tpm  transport.TPMCloser
}

// NewTPMSource opens the TPM resource manager device at path (typically
// "/dev/tpmrm0"). The device is opened lazily in Init, so constructing a
// TPMSource never fails; on a host without a usable TPM, Init returns
// the open error and the manager's Initialize fails with it.
func NewTPMSource(path string) *TPMSource {
	if path == "" {
		path = "/dev/tpmrm0"
	}
	return &TPMSource{path: path}
}

func (s *TPMSource) Name() string { return "tpm2" }

func (s *TPMSource) Init() error {
	tpm, err := linuxtpm.Open(s.path)
	if err != nil {
		return fmt.Errorf("sources: open tpm %s: %w", s.path, err)
	}
	s.tpm = tpm
	return nil
}

func (s *TPMSource) Fini() error {
	if s.tpm == nil {
		return nil
	}
	return s.tpm.Close()
}

func (s *TPMSource) Reset()   {}
func (s *TPMSource) Monitor() {}

// CurrEntropy reports the full threshold when a TPM is open, zero
// otherwise; GetRandom is assumed to always succeed once opened.
func (s *TPMSource) CurrEntropy(threshold entropy.Estimate) entropy.Estimate {
	if s.tpm == nil {
		return 0
	}
	if threshold > tpmMaxBits {
		return tpmMaxBits
	}
	return threshold
}

func (s *TPMSource) MaxEntropy() entropy.Estimate { return tpmMaxBits }

func (s *TPMSource) GetEnt(_ context.Context, slot *entropy.Slot, requestedBits entropy.Estimate, _ bool) {
	if s.tpm == nil {
		slot.Zeroize()
		return
	}

	want := len(slot.Data)
	got := 0
	for got < want {
		n := want - got
		if n > 48 {
			n = 48 // TPM2_GetRandom is capped well below a digest-sized chunk per call
		}
		resp, err := tpm2.GetRandom{BytesRequested: uint16(n)}.Execute(s.tpm)
		if err != nil {
			break
		}
		copy(slot.Data[got:], resp.RandomBytes.Buffer)
		got += len(resp.RandomBytes.Buffer)
		if len(resp.RandomBytes.Buffer) == 0 {
			break
		}
	}

	bits := entropy.Estimate(got * 8)
	if bits > requestedBits {
		bits = requestedBits
	}
	slot.Bits = bits
}
