package signals

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/process"

	"github.com/rkeyd/rkeyd/types"
)

// SignalPrompt locates the prompt subprocess by its advertised command
// string and asks it to terminate. Strictly best effort: a prompt we
// cannot find or signal changes nothing about our own state.
func SignalPrompt(cmdline string, log types.RkeydLogger) bool {
	if cmdline == "" {
		return false
	}
	procs, err := process.Processes()
	if err != nil {
		log.Logger.Debug().Err(err).Msg("listing processes failed")
		return false
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cl, err := p.Cmdline()
		if err != nil || cl == "" {
			continue
		}
		if !strings.Contains(cl, cmdline) {
			continue
		}
		if err := p.Terminate(); err != nil {
			log.Logger.Debug().Int32("pid", p.Pid).Err(err).Msg("terminating prompt failed")
			continue
		}
		log.Logger.Info().Int32("pid", p.Pid).Str("cmdline", cmdline).Msg("Signalled prompt to terminate")
		return true
	}
	log.Logger.Debug().Str("cmdline", cmdline).Msg("no prompt process found")
	return false
}

// FindProcess returns the process with the given pid when its command
// line contains expect, guarding the cleanup utility against pid reuse.
func FindProcess(pid int, expect string) *process.Process {
	if pid <= 0 {
		return nil
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	cl, err := p.Cmdline()
	if err != nil || !strings.Contains(cl, expect) {
		return nil
	}
	return p
}
