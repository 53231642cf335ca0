// Package provider implements the strategies for obtaining the remote
// secret that decrypts a volume's local key blob: a removable key device
// found by filesystem UUID, and a key server reached over ssh. Providers
// are tried in a fixed order by the registry; a provider that cannot
// produce a secret reports Absent (nil secret, nil error) and the chain
// moves on.
package provider

import "errors"

// ErrFatal marks failures the whole unlock run must abort on instead of
// falling through to the next slot. The only producer today is an
// unmount failure on the scratch mountpoint.
var ErrFatal = errors.New("unrecoverable provider failure")

type Provider interface {
	// Fetch returns the remote secret for a volume. A nil secret with a
	// nil error means Absent: this provider has nothing for the volume
	// right now. Errors wrap ErrFatal.
	Fetch(volume string) ([]byte, error)
}
