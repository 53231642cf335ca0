// Package state renders the broker's observable runtime: what the pid
// file, the prompt protocol files and the configured provider chain say
// right now. Used by the `state` CLI command for debugging an unlock
// pass from another shell.
package state

import (
	"github.com/rkeyd/rkeyd/config"
	"github.com/rkeyd/rkeyd/signals"
)

type Slot struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	// Target is the device UUID or server address the slot points at.
	// Never a secret.
	Target string `json:"target,omitempty"`
}

type Runtime struct {
	PID             int    `json:"pid,omitempty"`
	RequestedVolume string `json:"requested_volume,omitempty"`
	PromptCommand   string `json:"prompt_command,omitempty"`
	Complete        bool   `json:"complete"`
	SlotCount       int    `json:"slot_count"`
	Slots           []Slot `json:"slots,omitempty"`
}

// NewRuntime assembles the runtime view from the run dir files and the
// loaded configuration.
func NewRuntime(files *signals.Files, cfg *config.Config) Runtime {
	r := Runtime{
		PID:             files.ReadPID(),
		RequestedVolume: files.RequestedVolume(),
		PromptCommand:   files.PromptCommand(),
		Complete:        files.Complete(),
		SlotCount:       cfg.SlotCount,
	}
	for i, s := range cfg.Slots {
		slot := Slot{Index: i + 1, Kind: string(s.Kind)}
		switch s.Kind {
		case config.KindDevice:
			slot.Target = s.DeviceUUID
		case config.KindServer:
			slot.Target = s.ServerAddress
		}
		r.Slots = append(r.Slots, slot)
	}
	return r
}
