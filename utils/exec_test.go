package utils_test

import (
	"strings"
	"testing"

	"github.com/rkeyd/rkeyd/utils"
)

func TestRun(t *testing.T) {
	out, err := utils.NewRunner().Run("echo hello world")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "hello world" {
		t.Fatalf("out = %q", out)
	}
}

func TestRunWithStdin(t *testing.T) {
	out, err := utils.NewRunner().RunWithStdin("cat", []byte("abc123\n"))
	if err != nil {
		t.Fatal(err)
	}
	if out != "abc123\n" {
		t.Fatalf("out = %q", out)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	if _, err := utils.NewRunner().Run(""); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestRunUnbalancedQuote(t *testing.T) {
	if _, err := utils.NewRunner().Run(`echo "unterminated`); err == nil {
		t.Fatal("expected an error for an unterminated quote")
	}
}

func TestRunCommandFailure(t *testing.T) {
	out, err := utils.NewRunner().Run("ls /definitely/not/a/path")
	if err == nil {
		t.Fatal("expected the command to fail")
	}
	if out == "" {
		t.Fatal("stderr should be captured in the combined output")
	}
}
