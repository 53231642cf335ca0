// Package signals implements the file protocol shared with the external
// unlocking prompt: which volume it currently wants a key for, how to
// find its own subprocess, and whether all volumes are unlocked. The
// files live in a run directory and are presence/content based, there is
// no push channel, callers poll.
package signals

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rkeyd/rkeyd/constants"
	"github.com/rkeyd/rkeyd/types"
)

type Files struct {
	FS     types.FS
	RunDir string
	Log    types.RkeydLogger
}

func NewFiles(fsys types.FS, runDir string, log types.RkeydLogger) *Files {
	return &Files{FS: fsys, RunDir: runDir, Log: log}
}

func (f *Files) path(name string) string {
	return filepath.Join(f.RunDir, name)
}

// RequestedVolume returns the volume the prompt currently wants a key
// for, or "" when no request is pending.
func (f *Files) RequestedVolume() string {
	data, err := f.FS.ReadFile(f.path(constants.RequestFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// PromptCommand returns the command string identifying the prompt
// subprocess, or "" when unknown.
func (f *Files) PromptCommand() string {
	data, err := f.FS.ReadFile(f.path(constants.PromptCmdFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Complete reports whether the external side declared all volumes
// unlocked. We never create this file ourselves.
func (f *Files) Complete() bool {
	_, err := f.FS.Stat(f.path(constants.CompleteFile))
	return err == nil
}

// NotifyDone publishes the one-shot "unlock pass finished" notification.
// The notify path is normally a FIFO created at bootstrap; when it is
// not a FIFO at all we fall back to leaving a plain file behind. A FIFO
// with nobody reading it means the consumer is gone, and a blocking
// write there would wedge the exit path, so that case is a no-op.
func (f *Files) NotifyDone() error {
	path := f.path(constants.NotifyFile)
	fh, err := f.FS.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, constants.FilePerm)
	if err != nil {
		if info, statErr := f.FS.Stat(path); statErr == nil && info.Mode()&os.ModeNamedPipe != 0 {
			f.Log.Logger.Debug().Str("path", path).Err(err).Msg("nobody is reading the notify fifo")
			return nil
		}
		return f.FS.WriteFile(path, []byte("done\n"), constants.FilePerm)
	}
	defer fh.Close()
	_, err = fh.Write([]byte("done\n"))
	return err
}

// WritePID records our own pid so the companion cleanup utility can find
// and terminate a lingering instance. One-shot, never revisited.
func (f *Files) WritePID() error {
	return f.FS.WriteFile(f.path(constants.PidFile), []byte(strconv.Itoa(os.Getpid())+"\n"), constants.FilePerm)
}

// ReadPID returns the recorded pid of a (possibly still running)
// instance, or 0 when none is recorded.
func (f *Files) ReadPID() int {
	data, err := f.FS.ReadFile(f.path(constants.PidFile))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func (f *Files) RemovePID() {
	_ = f.FS.Remove(f.path(constants.PidFile))
}
