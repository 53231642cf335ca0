package state_test

import (
	"testing"

	"github.com/twpayne/go-vfs/v4/vfst"

	"github.com/rkeyd/rkeyd/config"
	"github.com/rkeyd/rkeyd/signals"
	"github.com/rkeyd/rkeyd/state"
	"github.com/rkeyd/rkeyd/types"
)

func testRuntime(t *testing.T) state.Runtime {
	t.Helper()
	fsys, cleanup, err := vfst.NewTestFS(map[string]interface{}{
		"/run/rkeyd/pid":     "4242\n",
		"/run/rkeyd/request": "tank\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cleanup)

	cfg := config.Default()
	cfg.SlotCount = 2
	cfg.Slots = []config.Slot{
		{Kind: config.KindDevice, DeviceUUID: "8322-DEAD", FSType: "vfat"},
		{Kind: config.KindServer, ServerAddress: "unlock.example.net", IdentitySlot: 2},
	}

	files := signals.NewFiles(fsys, "/run/rkeyd", types.NewNullLogger())
	return state.NewRuntime(files, cfg)
}

func TestNewRuntime(t *testing.T) {
	r := testRuntime(t)

	if r.PID != 4242 {
		t.Errorf("pid = %d, want 4242", r.PID)
	}
	if r.RequestedVolume != "tank" {
		t.Errorf("requested volume = %q, want tank", r.RequestedVolume)
	}
	if r.Complete {
		t.Error("complete = true, want false")
	}
	if len(r.Slots) != 2 || r.Slots[0].Target != "8322-DEAD" || r.Slots[1].Target != "unlock.example.net" {
		t.Errorf("unexpected slots: %+v", r.Slots)
	}
}

func TestRuntimeQuery(t *testing.T) {
	r := testRuntime(t)

	tests := []struct {
		query string
		want  string
	}{
		{"requested_volume", "tank"},
		{"pid", "4242"},
		{"slot_count", "2"},
		{"slots.[0].kind", "device"},
		{"slots.[1].target", "unlock.example.net"},
	}
	for _, tt := range tests {
		got, err := r.Query(tt.query)
		if err != nil {
			t.Fatalf("Query(%q): %v", tt.query, err)
		}
		if got != tt.want {
			t.Errorf("Query(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
