package provider

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"

	"k8s.io/mount-utils"

	"github.com/rkeyd/rkeyd/blockdev"
	"github.com/rkeyd/rkeyd/constants"
	"github.com/rkeyd/rkeyd/types"
)

// DeviceProvider reads the secret for a volume from a removable device
// identified by filesystem UUID. The device is mounted read-only at the
// process-wide scratch mountpoint just long enough to read the
// ".rkey-<volume>" file at its root.
type DeviceProvider struct {
	UUID       string
	FSType     string
	Mountpoint string
	Mounter    mount.Interface
	FS         types.FS
	Paths      *blockdev.Paths
	Log        types.RkeydLogger

	// mountLock serializes use of the scratch mountpoint across all
	// device providers in the process.
	mountLock *sync.Mutex
}

func (p *DeviceProvider) Fetch(volume string) ([]byte, error) {
	if volume == "" || p.UUID == "" || p.FSType == "" {
		return nil, nil
	}

	part := blockdev.FindPartitionByFSUUID(p.Paths, p.UUID, &p.Log)
	if part == nil {
		// Key device not attached, a perfectly normal state
		p.Log.Logger.Debug().Str("uuid", p.UUID).Msg("key device not present")
		return nil, nil
	}

	p.mountLock.Lock()
	defer p.mountLock.Unlock()

	if err := p.Mounter.Mount(part.Path, p.Mountpoint, p.FSType, []string{"ro"}); err != nil {
		p.Log.Logger.Debug().Str("device", part.Path).Err(err).Msg("mounting key device failed")
		return nil, nil
	}

	var secret []byte
	keyFile := filepath.Join(p.Mountpoint, constants.DeviceKeyPrefix+volume)
	data, readErr := p.FS.ReadFile(keyFile)
	if readErr == nil {
		// Same trimming rule as the server provider, the same key
		// material must yield the same secret from either source
		secret = bytes.TrimSpace(data)
	} else {
		p.Log.Logger.Debug().Str("file", keyFile).Err(readErr).Msg("no secret file on key device")
	}

	// The unmount always happens, and failing it poisons the mountpoint
	// for every later attempt: abort the run rather than continue.
	if err := p.Mounter.Unmount(p.Mountpoint); err != nil {
		return nil, fmt.Errorf("%w: unmounting %s: %v", ErrFatal, p.Mountpoint, err)
	}

	if len(secret) == 0 {
		return nil, nil
	}
	return secret, nil
}
