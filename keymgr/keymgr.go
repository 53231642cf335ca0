// Package keymgr is the boundary to the external key management
// facility that actually holds and activates volume keys. We only ever
// submit a passphrase and ask for the authoritative key status, nothing
// about the key slots themselves is our business.
package keymgr

import (
	"fmt"
	"strings"

	"github.com/rkeyd/rkeyd/types"
	"github.com/rkeyd/rkeyd/utils"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusUnknown     Status = "unknown"
)

type Manager interface {
	// SubmitKey hands a candidate passphrase to the key manager. The
	// submission itself reports nothing, acceptance is only observable
	// through KeyStatus.
	SubmitKey(volume string, passphrase []byte)

	// KeyStatus returns the authoritative key status for a volume.
	// StatusAvailable is the only success value.
	KeyStatus(volume string) (Status, error)
}

// ZFS talks to the zfs userland. load-key reads the passphrase from
// stdin so it never shows up in argv.
type ZFS struct {
	Runner utils.Runner
	Log    types.RkeydLogger
}

func NewZFS(runner utils.Runner, log types.RkeydLogger) *ZFS {
	return &ZFS{Runner: runner, Log: log}
}

func (z *ZFS) SubmitKey(volume string, passphrase []byte) {
	stdin := make([]byte, 0, len(passphrase)+1)
	stdin = append(stdin, passphrase...)
	stdin = append(stdin, '\n')
	_, err := z.Runner.RunWithStdin(fmt.Sprintf("zfs load-key %s", volume), stdin)
	for i := range stdin {
		stdin[i] = 0
	}
	if err != nil {
		// Expected for a wrong key, the coordinator checks KeyStatus anyway
		z.Log.Logger.Debug().Str("volume", volume).Err(err).Msg("load-key returned an error")
	}
}

func (z *ZFS) KeyStatus(volume string) (Status, error) {
	out, err := z.Runner.Run(fmt.Sprintf("zfs get -H -o value keystatus %s", volume))
	if err != nil {
		return StatusUnknown, fmt.Errorf("querying keystatus for %s: %w", volume, err)
	}
	switch s := Status(strings.TrimSpace(out)); s {
	case StatusAvailable, StatusUnavailable:
		return s, nil
	default:
		return StatusUnknown, nil
	}
}
