package config_test

import (
	"testing"
	"time"

	"github.com/twpayne/go-vfs/v4/vfst"

	"github.com/rkeyd/rkeyd/config"
	"github.com/rkeyd/rkeyd/types"
)

func load(t *testing.T, files map[string]interface{}) (*config.Config, error) {
	t.Helper()
	fsys, cleanup, err := vfst.NewTestFS(files)
	if err != nil {
		t.Fatalf("building test fs: %v", err)
	}
	t.Cleanup(cleanup)
	return config.Load(fsys, "/etc/rkeyd/config.yaml", "/etc/rkeyd/rkeyd.conf", types.NewNullLogger())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SlotCount != 0 || len(cfg.Slots) != 0 {
		t.Errorf("expected empty chain, got count=%d slots=%d", cfg.SlotCount, len(cfg.Slots))
	}
	if cfg.RunDir != "/run/rkeyd" {
		t.Errorf("unexpected run dir %q", cfg.RunDir)
	}
	if time.Duration(cfg.PollInterval) != 2*time.Second {
		t.Errorf("unexpected poll interval %v", cfg.PollInterval)
	}
	if time.Duration(cfg.RetryInterval) != time.Duration(cfg.WrongKeyInterval) {
		t.Errorf("retry and wrong-key intervals should default equal")
	}
}

func TestLoadSlots(t *testing.T) {
	cfg, err := load(t, map[string]interface{}{
		"/etc/rkeyd/config.yaml": `
slot_count: 2
slots:
  - kind: device
    device_uuid: 8322-DEAD
    fs_type: vfat
  - kind: server
    server_address: keys@unlock.example.net:2222
    identity_slot: 2
retry_interval: 5s
`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(cfg.Slots))
	}
	if cfg.Slots[0].Kind != config.KindDevice || cfg.Slots[0].DeviceUUID != "8322-DEAD" {
		t.Errorf("slot 1 mismatch: %+v", cfg.Slots[0])
	}
	if cfg.Slots[1].Kind != config.KindServer || cfg.Slots[1].IdentitySlot != 2 {
		t.Errorf("slot 2 mismatch: %+v", cfg.Slots[1])
	}
	if time.Duration(cfg.RetryInterval) != 5*time.Second {
		t.Errorf("unexpected retry interval %v", cfg.RetryInterval)
	}
}

func TestSlotCountMismatch(t *testing.T) {
	_, err := load(t, map[string]interface{}{
		"/etc/rkeyd/config.yaml": `
slot_count: 3
slots:
  - kind: device
    device_uuid: 8322-DEAD
    fs_type: vfat
`,
	})
	if err == nil {
		t.Fatal("expected an error for slot_count mismatch")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := load(t, map[string]interface{}{
		"/etc/rkeyd/rkeyd.conf": `
RKEYD_POLL_INTERVAL=250ms
RKEYD_SSH_USER=keys
RKEYD_KEY_BASE=/oem/rkeyd/key
`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Duration(cfg.PollInterval) != 250*time.Millisecond {
		t.Errorf("override not applied: %v", cfg.PollInterval)
	}
	if cfg.SSHUser != "keys" {
		t.Errorf("override not applied: %q", cfg.SSHUser)
	}
	if cfg.KeyBase != "/oem/rkeyd/key" {
		t.Errorf("override not applied: %q", cfg.KeyBase)
	}
}

func TestBadDuration(t *testing.T) {
	_, err := load(t, map[string]interface{}{
		"/etc/rkeyd/rkeyd.conf": "RKEYD_RETRY_INTERVAL=whenever\n",
	})
	if err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestBadYAMLDuration(t *testing.T) {
	_, err := load(t, map[string]interface{}{
		"/etc/rkeyd/config.yaml": "poll_interval: sometimes\n",
	})
	if err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}
