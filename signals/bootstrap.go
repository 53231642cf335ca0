package signals

import (
	"fmt"
	"os"
)

// Bootstrap prepares the run directory and the scratch mountpoint. A
// pre-existing mountpoint means an earlier instance died with a mount in
// an unknown state, which is the one condition we refuse to start over.
func (f *Files) Bootstrap(mountpoint string) error {
	if err := f.FS.Mkdir(f.RunDir, 0755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("creating run dir %s: %w", f.RunDir, err)
	}
	if _, err := f.FS.Stat(mountpoint); err == nil {
		return fmt.Errorf("scratch mountpoint %s already exists", mountpoint)
	}
	if err := f.FS.Mkdir(mountpoint, 0755); err != nil {
		return fmt.Errorf("creating scratch mountpoint %s: %w", mountpoint, err)
	}
	if err := f.WritePID(); err != nil {
		return fmt.Errorf("recording pid: %w", err)
	}
	return nil
}

// Teardown releases the scratch mountpoint. Failure here is fatal to the
// exit code: a mountpoint we cannot remove means its state can no longer
// be trusted.
func (f *Files) Teardown(mountpoint string) error {
	f.RemovePID()
	if err := f.FS.Remove(mountpoint); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing scratch mountpoint %s: %w", mountpoint, err)
	}
	return nil
}
