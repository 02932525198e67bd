// Package shell implements the collaborator described by the core's
// process API: a line-oriented command interpreter running as one
// simulated process, dispatching built-ins as spawned children.
package shell

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/pennos-project/pennos/internal/kernel"
)

// interactive reports whether the host's stdin is an interactive
// terminal: a script piped in on stdin shouldn't have prompts
// interleaved into its own output expectations. Only the prompt is
// gated on it; job launch/done/stopped lines are printed either way.
func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// Descriptors below 3 are reserved and pass through to the host's own
// stdio, never the mounted filesystem — mirroring fatfs.FDTable's own
// reserved range.
const (
	hostStdin  = 0
	hostStdout = 1
	hostStderr = 2
)

// hostIn is the single shared reader over the host's stdin: every
// process whose fd 0 is the host terminal reads from the same
// underlying descriptor, so one shared buffered reader avoids dropping
// bytes between readers racing the same fd.
var hostIn = bufio.NewReader(os.Stdin)

// readLine reads one newline-terminated line from self's input
// descriptor, routing fd 0 to the host terminal and any other fd
// through self's own descriptor table.
func readLine(self *kernel.PCB) (string, error) {
	if self.FDIn < 3 {
		line, err := hostIn.ReadString('\n')
		return strings.TrimRight(line, "\n"), err
	}
	var buf []byte
	for {
		b, err := self.FDs.Read(self.FDIn, 1)
		if len(b) == 0 {
			if len(buf) == 0 {
				if err == nil {
					err = io.EOF
				}
				return "", err
			}
			return string(buf), nil
		}
		if b[0] == '\n' {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
}

// writeOut writes data to self's output descriptor, routing fd 1 to the
// host's stdout and any other fd through self's descriptor table.
func writeOut(self *kernel.PCB, data []byte) error {
	if self.FDOut < 3 {
		_, err := os.Stdout.Write(data)
		return err
	}
	_, err := self.FDs.Write(self.FDOut, data)
	return err
}

func writeOutString(self *kernel.PCB, s string) error { return writeOut(self, []byte(s)) }

// writeErr always goes to the host's standard error: built-in error
// reporting is never redirected by `>`/`>>`, matching a real shell's own
// diagnostics channel.
func writeErr(s string) { os.Stderr.WriteString(s) }
