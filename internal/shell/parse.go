package shell

import (
	"strconv"

	"github.com/mattn/go-shellwords"
)

// command is one parsed shell command line: a verb and its arguments,
// plus the redirection/background/priority grammar layered on top of
// plain tokenizing.
type command struct {
	Argv       []string
	StdinFile  string // "< file", empty if none
	StdoutFile string // "> file" or ">> file", empty if none
	Append     bool   // true for ">>"
	Background bool   // trailing "&"
	Nice       int    // 0 unless a leading "nice N" was present
	HasNice    bool
}

// parseLine tokenizes line with shell-style quoting and escaping, then
// strips the redirection/background/nice grammar layered over the core's
// plain spawn(argv) contract.
func parseLine(line string) (command, error) {
	toks, err := shellwords.Parse(line)
	if err != nil {
		return command{}, err
	}
	var cmd command
	if len(toks) >= 2 && toks[0] == "nice" {
		if n, err := strconv.Atoi(toks[1]); err == nil {
			cmd.Nice = n
			cmd.HasNice = true
			toks = toks[2:]
		}
	}
	if len(toks) > 0 && toks[len(toks)-1] == "&" {
		cmd.Background = true
		toks = toks[:len(toks)-1]
	}

	var argv []string
	for i := 0; i < len(toks); i++ {
		switch toks[i] {
		case "<":
			if i+1 >= len(toks) {
				return command{}, errMissingRedirectTarget
			}
			cmd.StdinFile = toks[i+1]
			i++
		case ">":
			if i+1 >= len(toks) {
				return command{}, errMissingRedirectTarget
			}
			cmd.StdoutFile = toks[i+1]
			cmd.Append = false
			i++
		case ">>":
			if i+1 >= len(toks) {
				return command{}, errMissingRedirectTarget
			}
			cmd.StdoutFile = toks[i+1]
			cmd.Append = true
			i++
		default:
			argv = append(argv, toks[i])
		}
	}
	cmd.Argv = argv
	return cmd, nil
}
