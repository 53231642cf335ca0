package utils

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/google/shlex"
)

// Runner executes external commands. The zfs key manager talks to the
// world through this so tests can swap in a fake.
type Runner interface {
	// Run executes the command line and returns combined stdout.
	Run(cmdline string) (string, error)
	// RunWithStdin executes the command line feeding stdin to the
	// process. Used to hand passphrases over without touching argv.
	RunWithStdin(cmdline string, stdin []byte) (string, error)
}

type execRunner struct{}

func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(cmdline string) (string, error) {
	return run(cmdline, nil)
}

func (execRunner) RunWithStdin(cmdline string, stdin []byte) (string, error) {
	return run(cmdline, stdin)
}

func run(cmdline string, stdin []byte) (string, error) {
	args, err := shlex.Split(cmdline)
	if err != nil {
		return "", fmt.Errorf("splitting %q: %w", cmdline, err)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	return out.String(), err
}
