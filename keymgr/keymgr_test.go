package keymgr_test

import (
	"fmt"
	"testing"

	"github.com/rkeyd/rkeyd/keymgr"
	"github.com/rkeyd/rkeyd/types"
)

type fakeRunner struct {
	cmds   []string
	stdins []string
	out    string
	err    error
}

func (f *fakeRunner) Run(cmdline string) (string, error) {
	f.cmds = append(f.cmds, cmdline)
	return f.out, f.err
}

func (f *fakeRunner) RunWithStdin(cmdline string, stdin []byte) (string, error) {
	f.cmds = append(f.cmds, cmdline)
	f.stdins = append(f.stdins, string(stdin))
	return f.out, f.err
}

func TestSubmitKey(t *testing.T) {
	runner := &fakeRunner{}
	z := keymgr.NewZFS(runner, types.NewNullLogger())

	z.SubmitKey("tank", []byte("abc123"))

	if len(runner.cmds) != 1 || runner.cmds[0] != "zfs load-key tank" {
		t.Fatalf("unexpected commands: %v", runner.cmds)
	}
	if len(runner.stdins) != 1 || runner.stdins[0] != "abc123\n" {
		t.Fatalf("passphrase not passed on stdin with trailing newline: %q", runner.stdins)
	}
}

func TestSubmitKeyIgnoresErrors(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("Key load error: Incorrect key provided")}
	z := keymgr.NewZFS(runner, types.NewNullLogger())

	// A rejected key must not blow up, status is checked separately
	z.SubmitKey("tank", []byte("wrong"))
}

func TestKeyStatus(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		want keymgr.Status
		fail bool
	}{
		{name: "available", out: "available\n", want: keymgr.StatusAvailable},
		{name: "unavailable", out: "unavailable\n", want: keymgr.StatusUnavailable},
		{name: "unencrypted dataset", out: "-\n", want: keymgr.StatusUnknown},
		{name: "garbage output", out: "what\n", want: keymgr.StatusUnknown},
		{name: "command failure", err: fmt.Errorf("dataset does not exist"), want: keymgr.StatusUnknown, fail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{out: tt.out, err: tt.err}
			z := keymgr.NewZFS(runner, types.NewNullLogger())

			got, err := z.KeyStatus("tank")
			if tt.fail != (err != nil) {
				t.Fatalf("error = %v, want failure %v", err, tt.fail)
			}
			if got != tt.want {
				t.Fatalf("status = %q, want %q", got, tt.want)
			}
			if runner.cmds[0] != "zfs get -H -o value keystatus tank" {
				t.Fatalf("unexpected command: %q", runner.cmds[0])
			}
		})
	}
}
