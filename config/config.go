// Package config loads the static rkeyd configuration: the provider slot
// chain and the handful of paths and intervals everything else runs on.
// The provider chain is fixed at configuration time, there is no runtime
// discovery of providers.
package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rkeyd/rkeyd/constants"
	"github.com/rkeyd/rkeyd/types"
)

type ProviderKind string

const (
	KindDevice ProviderKind = "device"
	KindServer ProviderKind = "server"
)

// Slot binds one position of the provider chain to a provider kind and
// its fixed parameters. Immutable once loaded.
type Slot struct {
	Kind ProviderKind `yaml:"kind"`

	// device provider parameters
	DeviceUUID string `yaml:"device_uuid,omitempty"`
	FSType     string `yaml:"fs_type,omitempty"`

	// server provider parameters
	ServerAddress string `yaml:"server_address,omitempty"`
	IdentitySlot  int    `yaml:"identity_slot,omitempty"`
}

// Duration makes time.Duration round-trip through yaml as "10s" style
// strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	// SlotCount is the configured total of the provider chain. It must
	// match len(Slots), later slots would be silently skipped otherwise.
	SlotCount int    `yaml:"slot_count"`
	Slots     []Slot `yaml:"slots"`

	RunDir       string `yaml:"run_dir,omitempty"`
	Mountpoint   string `yaml:"mountpoint,omitempty"`
	KeyBase      string `yaml:"key_base,omitempty"`
	IdentityBase string `yaml:"identity_base,omitempty"`

	// PollInterval paces the waits for prompt activity. RetryInterval is
	// the backoff between failed slot attempts, WrongKeyInterval the one
	// after the key manager rejected a real passphrase. The original
	// behaviour used a single delay for both, so they default equal.
	PollInterval     Duration `yaml:"poll_interval,omitempty"`
	RetryInterval    Duration `yaml:"retry_interval,omitempty"`
	WrongKeyInterval Duration `yaml:"wrong_key_interval,omitempty"`

	SSHTimeout Duration `yaml:"ssh_timeout,omitempty"`
	SSHUser    string   `yaml:"ssh_user,omitempty"`
}

func Default() *Config {
	return &Config{
		RunDir:           constants.RunDir,
		Mountpoint:       constants.Mountpoint,
		KeyBase:          constants.KeyBase,
		IdentityBase:     constants.IdentityBase,
		PollInterval:     Duration(constants.DefaultPollInterval),
		RetryInterval:    Duration(constants.DefaultRetryInterval),
		WrongKeyInterval: Duration(constants.DefaultWrongKeyInterval),
		SSHTimeout:       Duration(constants.DefaultSSHTimeout),
		SSHUser:          constants.DefaultSSHUser,
	}
}

// Load reads the yaml config at path and applies overrides from the
// shell-style env file at envFile. Both files are optional, a missing
// config just means an empty provider chain.
func Load(fsys types.FS, path, envFile string, log types.RkeydLogger) (*Config, error) {
	cfg := Default()

	data, err := fsys.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		log.Logger.Debug().Str("path", path).Err(err).Msg("no config file")
	}

	if envFile != "" {
		if envData, err := fsys.ReadFile(envFile); err == nil {
			overrides, err := godotenv.Parse(bytes.NewReader(envData))
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", envFile, err)
			}
			if err := cfg.applyEnv(overrides); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	for key, set := range map[string]*string{
		"RKEYD_RUN_DIR":       &c.RunDir,
		"RKEYD_MOUNTPOINT":    &c.Mountpoint,
		"RKEYD_KEY_BASE":      &c.KeyBase,
		"RKEYD_IDENTITY_BASE": &c.IdentityBase,
		"RKEYD_SSH_USER":      &c.SSHUser,
	} {
		if v, ok := env[key]; ok && v != "" {
			*set = v
		}
	}
	for key, set := range map[string]*Duration{
		"RKEYD_POLL_INTERVAL":      &c.PollInterval,
		"RKEYD_RETRY_INTERVAL":     &c.RetryInterval,
		"RKEYD_WRONG_KEY_INTERVAL": &c.WrongKeyInterval,
		"RKEYD_SSH_TIMEOUT":        &c.SSHTimeout,
	} {
		if v, ok := env[key]; ok && v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parsing %s=%q: %w", key, v, err)
			}
			*set = Duration(parsed)
		}
	}
	return nil
}

// Validate collects every structural problem at once. Missing provider
// parameters inside a slot are not errors, those slots just never yield
// a secret.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.SlotCount != len(c.Slots) {
		result = multierror.Append(result, fmt.Errorf("slot_count is %d but %d slots are configured", c.SlotCount, len(c.Slots)))
	}
	if c.RunDir == "" {
		result = multierror.Append(result, fmt.Errorf("run_dir must not be empty"))
	}
	if c.Mountpoint == "" {
		result = multierror.Append(result, fmt.Errorf("mountpoint must not be empty"))
	}
	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"poll_interval", c.PollInterval},
		{"retry_interval", c.RetryInterval},
		{"wrong_key_interval", c.WrongKeyInterval},
	} {
		if time.Duration(d.val) <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be positive", d.name))
		}
	}

	return result.ErrorOrNil()
}
