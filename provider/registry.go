package provider

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/mount-utils"

	"github.com/rkeyd/rkeyd/blockdev"
	"github.com/rkeyd/rkeyd/config"
	"github.com/rkeyd/rkeyd/types"
)

// Registry maps slot indices to their configured provider. Slot order is
// total and deterministic: ascending index, identical across restarts.
type Registry struct {
	providers []Provider
	Log       types.RkeydLogger
}

// Deps carries the collaborators the concrete providers need.
type Deps struct {
	FS      types.FS
	Mounter mount.Interface
	Paths   *blockdev.Paths
	Log     types.RkeydLogger
}

// NewRegistry builds the provider chain from configuration. The chain
// length must match the configured slot count, otherwise later slots
// would be silently skipped, so a mismatch refuses construction. A slot
// with an unknown kind still occupies its position but never yields a
// secret.
func NewRegistry(cfg *config.Config, deps Deps) (*Registry, error) {
	if cfg.SlotCount != len(cfg.Slots) {
		return nil, fmt.Errorf("slot_count is %d but %d slots are configured", cfg.SlotCount, len(cfg.Slots))
	}

	mountLock := &sync.Mutex{}
	providers := make([]Provider, 0, len(cfg.Slots))
	for i, slot := range cfg.Slots {
		switch slot.Kind {
		case config.KindDevice:
			providers = append(providers, &DeviceProvider{
				UUID:       slot.DeviceUUID,
				FSType:     slot.FSType,
				Mountpoint: cfg.Mountpoint,
				Mounter:    deps.Mounter,
				FS:         deps.FS,
				Paths:      deps.Paths,
				Log:        deps.Log,
				mountLock:  mountLock,
			})
		case config.KindServer:
			providers = append(providers, &ServerProvider{
				Address:      slot.ServerAddress,
				IdentitySlot: slot.IdentitySlot,
				IdentityBase: cfg.IdentityBase,
				User:         cfg.SSHUser,
				Timeout:      time.Duration(cfg.SSHTimeout),
				FS:           deps.FS,
				Log:          deps.Log,
			})
		default:
			deps.Log.Logger.Debug().Int("slot", i+1).Str("kind", string(slot.Kind)).Msg("unknown provider kind, slot will never match")
			providers = append(providers, absentProvider{})
		}
	}

	return &Registry{providers: providers, Log: deps.Log}, nil
}

// ResolveSlot dispatches a slot index to its provider. Indices outside
// [1, N] yield Absent, never an error.
func (r *Registry) ResolveSlot(volume string, slot int) ([]byte, error) {
	if slot < 1 || slot > len(r.providers) {
		return nil, nil
	}
	return r.providers[slot-1].Fetch(volume)
}

// SlotCount returns the length of the chain.
func (r *Registry) SlotCount() int {
	return len(r.providers)
}

// absentProvider fills a misconfigured slot so indices stay stable.
type absentProvider struct{}

func (absentProvider) Fetch(string) ([]byte, error) { return nil, nil }
