//go:build !linux

package sources

import (
	"context"
	"errors"

	"esdmd/internal/entropy"
)

// ErrTPMUnavailable is returned by TPMSource.Init on platforms this
// build has no TPM transport for.
var ErrTPMUnavailable = errors.New("sources: tpm2 transport not available on this platform")

// TPMSource is a no-op stand-in outside linux, where go-tpm's
// linuxtpm transport does not apply.
type TPMSource struct{}

func NewTPMSource(string) *TPMSource { return &TPMSource{} }

func (s *TPMSource) Name() string                        { return "tpm2" }
func (s *TPMSource) Init() error                          { return ErrTPMUnavailable }
func (s *TPMSource) Fini() error                          { return nil }
func (s *TPMSource) Reset()                               {}
func (s *TPMSource) Monitor()                             {}
func (s *TPMSource) CurrEntropy(entropy.Estimate) entropy.Estimate { return 0 }
func (s *TPMSource) MaxEntropy() entropy.Estimate         { return 0 }
func (s *TPMSource) GetEnt(_ context.Context, slot *entropy.Slot, _ entropy.Estimate, _ bool) {
	slot.Zeroize()
}
