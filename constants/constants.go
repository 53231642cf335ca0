// Package constants This file contains all the constants that can be reused across the project
package constants

import "time"

const (
	FilePerm = 0644
	DirPerm  = 0755

	// RunDir is where the prompt protocol files and our own pid live.
	RunDir = "/run/rkeyd"

	// Names of the protocol files inside the run dir. The request,
	// prompt-cmd and complete files are owned by the external prompt,
	// we only ever read them.
	RequestFile   = "request"
	PromptCmdFile = "prompt-cmd"
	CompleteFile  = "complete"
	NotifyFile    = "notify"
	PidFile       = "pid"

	// Mountpoint is the scratch mountpoint used by the device provider.
	// It must not exist when we start and must be gone when we exit.
	Mountpoint = "/run/rkeyd/media"

	// KeyBase is the path prefix of the per-volume encrypted key blobs,
	// the blob for volume "tank" lives at KeyBase + "-tank".
	KeyBase = "/etc/rkeyd/key"

	// IdentityBase is the path prefix of the per-slot ssh identity keys.
	IdentityBase = "/etc/rkeyd/id"

	// DeviceKeyPrefix is the name prefix of the secret file at the root
	// of a mounted key device, e.g. ".rkey-tank".
	DeviceKeyPrefix = ".rkey-"

	ConfigFile = "/etc/rkeyd/config.yaml"
	EnvFile    = "/etc/rkeyd/rkeyd.conf"

	DefaultPollInterval     = 2 * time.Second
	DefaultRetryInterval    = 10 * time.Second
	DefaultWrongKeyInterval = 10 * time.Second
	DefaultSSHTimeout       = 30 * time.Second
	DefaultSSHUser          = "root"
)
