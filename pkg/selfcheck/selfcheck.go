// Package selfcheck launches the one-shot background re-invocation used to
// verify whether a terminal page-fetch failure was transient. The child
// process carries a hidden marker flag that turns its own launcher into a
// no-op, so a failing child can never spawn grandchildren.
package selfcheck

import (
	"fmt"
	"os"
	"os/exec"

	"locharvest/pkg/logger"
)

// MarkerFlag is the hidden command line flag that identifies a
// self-verification child process.
const MarkerFlag = "--self-check-run"

// Launcher starts an independent re-invocation of the tool. Implementations
// must return promptly; the parent never observes the child's outcome.
type Launcher interface {
	Launch() error
}

// New returns the launcher appropriate for this process: a NopLauncher when
// the marker flag was present at startup (this process is itself a
// self-verification child), otherwise an ExecLauncher.
func New(markerSet bool, log logger.Logger) Launcher {
	if markerSet {
		return NopLauncher{}
	}
	return NewExecLauncher(log)
}

// ExecLauncher re-invokes the current binary with the original arguments
// plus the marker flag, detached from the parent.
type ExecLauncher struct {
	logger logger.Logger
}

// NewExecLauncher creates a launcher that spawns a detached child process
func NewExecLauncher(log logger.Logger) *ExecLauncher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ExecLauncher{logger: log}
}

// Launch starts the child and releases it immediately; the parent does not
// block on or observe the child.
func (l *ExecLauncher) Launch() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	args := MarkedArgs(os.Args[1:])
	cmd := exec.Command(exe, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start self-check process: %w", err)
	}

	l.logger.InfoWithFields("launched self-check process", map[string]interface{}{
		"pid":  cmd.Process.Pid,
		"args": args,
	})

	return cmd.Process.Release()
}

// MarkedArgs returns args with the marker flag appended exactly once.
func MarkedArgs(args []string) []string {
	for _, a := range args {
		if a == MarkerFlag {
			return args
		}
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args...)
	return append(out, MarkerFlag)
}

// NopLauncher suppresses spawning; used in self-verification children and
// in tests.
type NopLauncher struct{}

// Launch does nothing
func (NopLauncher) Launch() error {
	return nil
}
