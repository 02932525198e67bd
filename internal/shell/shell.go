package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pennos-project/pennos/internal/fatfs"
	"github.com/pennos-project/pennos/internal/kernel"
)

const prompt = "pennos# "

// Shell is the top-level collaborator run as the kernel's initial
// process: a REPL that parses one line at a time, dispatching built-ins
// either in-process (when they need to mutate the shell's own state,
// like cd) or as a freshly spawned child (everything else), and tracking
// background jobs for bg/fg/jobs.
type Shell struct {
	k    *kernel.Kernel
	self *kernel.PCB
	jobs *jobTable
	fg   *job // current foreground job, nil if none (or if shell itself is foreground)
}

// inlineBuiltins run directly on the shell's own fiber rather than being
// spawned, because they need to mutate state (cwd, job table, terminal
// ownership, the mount table) that only makes sense scoped to the shell
// process itself.
var inlineBuiltins = map[string]func(sh *Shell, cmd command){
	"cd":       (*Shell).cdBuiltin,
	"pwd":      (*Shell).pwdBuiltin,
	"bg":       (*Shell).bgBuiltin,
	"fg":       (*Shell).fgBuiltin,
	"jobs":     (*Shell).jobsBuiltin,
	"logout":   (*Shell).logoutBuiltin,
	"man":      (*Shell).manBuiltin,
	"nice_pid": (*Shell).nicePidBuiltin,
	"mount":    (*Shell).mountBuiltin,
	"umount":   (*Shell).umountBuiltin,
	"mkfs":     (*Shell).mkfsBuiltin,
}

// Run is the shell's EntryFunc, spawned once by the host as the init
// process. It never returns until EOF on stdin or the logout built-in.
func Run(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	sh := &Shell{k: k, self: self, jobs: newJobTable()}
	k.SetForeground(self.PID)
	sh.loop()
	// The init shell exiting means the simulated system as a whole is
	// done: halt the tick source so the host's Run() call returns.
	k.Stop()
}

var errLogout = fmt.Errorf("shell: logout requested")

func (sh *Shell) loop() {
	showPrompt := sh.self.FDIn < 3 && interactive()
	for {
		sh.reapFinished()
		if showPrompt {
			writeOutString(sh.self, prompt)
		}
		line, err := readLine(sh.self)
		if line = strings.TrimSpace(line); line != "" {
			if rerr := sh.execLine(line); rerr == errLogout {
				return
			}
		}
		if err != nil {
			return // EOF: treat like logout
		}
	}
}

func (sh *Shell) execLine(line string) error {
	cmd, err := parseLine(line)
	if err != nil {
		writeErr("shell: " + err.Error() + "\n")
		return nil
	}
	if len(cmd.Argv) == 0 {
		return nil
	}
	verb := cmd.Argv[0]
	if fn, ok := inlineBuiltins[verb]; ok {
		fn(sh, cmd)
		if verb == "logout" {
			return errLogout
		}
		return nil
	}
	sh.dispatchSpawned(cmd)
	return nil
}

// dispatchSpawned resolves verb to a spawnBuiltins entry, or failing
// that to an executable script file named verb, builds its fd table
// from any redirection, spawns it, and either waits for it (foreground)
// or records it in the job table (background).
func (sh *Shell) dispatchSpawned(cmd command) {
	entry, ok := spawnBuiltins[cmd.Argv[0]]
	if !ok {
		scriptEntry, serr := sh.scriptEntryFunc(cmd.Argv[0])
		if serr != nil {
			reportError(cmd.Argv[0], serr)
			return
		}
		entry = scriptEntry
	}

	fdIn, fdOut := sh.self.FDIn, sh.self.FDOut
	child := sh.k.Spawn(sh.self, entry, cmd.Argv, fdIn, fdOut)

	if cmd.StdinFile != "" {
		fd, err := child.FDs.Open(cmd.StdinFile, fatfs.ModeRead)
		if err != nil {
			reportError(cmd.Argv[0], err)
		} else {
			child.FDIn = fd
		}
	}
	if cmd.StdoutFile != "" {
		mode := fatfs.ModeWrite
		if cmd.Append {
			mode = fatfs.ModeAppend
		}
		if _, err := child.FDs.FS().GetMeta(child.FDs.Cwd(), cmd.StdoutFile, true); errors.Is(err, fatfs.ErrNotFound) {
			child.FDs.FS().Create(child.FDs.Cwd(), cmd.StdoutFile, fatfs.TypeRegular)
		}
		fd, err := child.FDs.Open(cmd.StdoutFile, mode)
		if err != nil {
			reportError(cmd.Argv[0], err)
		} else {
			child.FDOut = fd
		}
	}
	if cmd.HasNice {
		sh.k.Nice(sh.self, child.PID, cmd.Nice)
	}

	j := sh.jobs.add(child.PID, cmd.Argv)
	if cmd.Background {
		writeOutString(sh.self, jobLaunchLine(j))
		return
	}

	sh.fg = j
	sh.k.SetForeground(child.PID)
	pid, signal, err := sh.k.Waitpid(sh.self, child.PID, true)
	sh.k.SetForeground(sh.self.PID)
	sh.fg = nil
	if err == nil && pid == child.PID {
		if signal == kernel.SigTermed {
			delete(sh.jobs.byID, j.id)
		} else if signal == kernel.SigStop {
			j.running = false
			writeOutString(sh.self, jobStoppedLine(j))
		}
	}
}

// scriptEntryFunc resolves an unrecognized verb as the path of an
// executable script file: a newline-separated sequence of commands run
// one per line, exactly as if typed at this shell.
func (sh *Shell) scriptEntryFunc(path string) (kernel.EntryFunc, error) {
	fs := sh.self.FDs.FS()
	cwd := sh.self.FDs.Cwd()
	meta, err := fs.GetMeta(cwd, path, true)
	if err != nil {
		return nil, err
	}
	if meta.Type != fatfs.TypeRegular {
		return nil, fatfs.ErrNotDir
	}
	if meta.Perm&fatfs.PermExecute == 0 {
		return nil, fatfs.ErrPermDenied
	}
	data, err := fs.Read(cwd, path, 0, int(meta.Size))
	if err != nil {
		return nil, err
	}
	body := string(data)
	return func(k *kernel.Kernel, self *kernel.PCB, argv []string) {
		runScriptBody(k, self, body)
	}, nil
}

// runScriptBody runs each line of a script sequentially on the script
// process's own fiber, sharing its fd table, rather than spawning a
// further child shell per line.
func runScriptBody(k *kernel.Kernel, self *kernel.PCB, body string) {
	inner := &Shell{k: k, self: self, jobs: newJobTable()}
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		if err := inner.execLine(line); err == errLogout {
			return
		}
	}
}

func (sh *Shell) cdBuiltin(cmd command) {
	target := "/"
	if len(cmd.Argv) > 1 {
		target = cmd.Argv[1]
	}
	fs := sh.self.FDs.FS()
	cwd := sh.self.FDs.Cwd()
	meta, err := fs.GetMeta(cwd, target, true)
	if err != nil {
		reportError(cmd.Argv[0], err)
		return
	}
	if meta.Type != fatfs.TypeDir {
		reportError(cmd.Argv[0], fatfs.ErrNotDir)
		return
	}
	sh.self.FDs.Chdir(fatfs.CleanPath(cwd, target))
}

func (sh *Shell) pwdBuiltin(cmd command) {
	writeOutString(sh.self, sh.self.FDs.Cwd()+"\n")
}

func (sh *Shell) jobsBuiltin(cmd command) {
	for _, id := range sh.jobs.sortedIDs() {
		j := sh.jobs.byID[id]
		state := "Running"
		if !j.running {
			state = "Stopped"
		}
		writeOutString(sh.self, fmt.Sprintf("[%d] %s\t%s\n", j.id, state, strings.Join(j.argv, " ")))
	}
}

func (sh *Shell) bgBuiltin(cmd command) {
	j := sh.jobs.resolveArg(cmd)
	if j == nil {
		writeErr("bg: no such job\n")
		return
	}
	if err := sh.k.Kill(sh.self, j.pid, kernel.SigCont); err != nil {
		reportError(cmd.Argv[0], err)
		return
	}
	j.running = true
}

func (sh *Shell) fgBuiltin(cmd command) {
	j := sh.jobs.resolveArg(cmd)
	if j == nil {
		writeErr("fg: no such job\n")
		return
	}
	if !j.running {
		if err := sh.k.Kill(sh.self, j.pid, kernel.SigCont); err != nil {
			reportError(cmd.Argv[0], err)
			return
		}
		j.running = true
	}
	sh.fg = j
	sh.k.SetForeground(j.pid)
	pid, signal, err := sh.k.Waitpid(sh.self, j.pid, true)
	sh.k.SetForeground(sh.self.PID)
	sh.fg = nil
	if err == nil && pid == j.pid {
		if signal == kernel.SigTermed {
			delete(sh.jobs.byID, j.id)
		} else if signal == kernel.SigStop {
			j.running = false
			writeOutString(sh.self, jobStoppedLine(j))
		}
	}
}

func (sh *Shell) logoutBuiltin(cmd command) {}

func (sh *Shell) manPage(verb string) string {
	if page, ok := manPages[verb]; ok {
		return page
	}
	return "no manual entry for " + verb + "\n"
}

func (sh *Shell) manBuiltin(cmd command) {
	if len(cmd.Argv) < 2 {
		writeErr("man: missing command name\n")
		return
	}
	writeOutString(sh.self, sh.manPage(cmd.Argv[1]))
}

func (sh *Shell) nicePidBuiltin(cmd command) {
	if len(cmd.Argv) != 3 {
		writeErr("nice_pid: usage: nice_pid <priority> <pid>\n")
		return
	}
	n, err1 := strconv.Atoi(cmd.Argv[1])
	pid, err2 := strconv.Atoi(cmd.Argv[2])
	if err1 != nil || err2 != nil {
		writeErr("nice_pid: invalid argument\n")
		return
	}
	if err := sh.k.Nice(sh.self, pid, n); err != nil {
		reportError(cmd.Argv[0], err)
	}
}

func (sh *Shell) mountBuiltin(cmd command) {
	if len(cmd.Argv) != 2 {
		writeErr("mount: usage: mount <backing-file>\n")
		return
	}
	fs, err := fatfs.Mount(cmd.Argv[1])
	if err != nil {
		writeErr("mount: " + err.Error() + "\n")
		return
	}
	sh.k.SetFS(fs)
}

func (sh *Shell) umountBuiltin(cmd command) {
	fs := sh.k.FS()
	if fs == nil {
		writeErr("umount: nothing mounted\n")
		return
	}
	if err := fs.Unmount(); err != nil {
		writeErr("umount: " + err.Error() + "\n")
		return
	}
	sh.k.SetFS(nil)
}

func (sh *Shell) mkfsBuiltin(cmd command) {
	if len(cmd.Argv) != 4 {
		writeErr("mkfs: usage: mkfs <backing-file> <fat-blocks> <block-size-config>\n")
		return
	}
	fatBlocks, err1 := strconv.Atoi(cmd.Argv[2])
	sizeCfg, err2 := strconv.Atoi(cmd.Argv[3])
	if err1 != nil || err2 != nil {
		writeErr("mkfs: invalid argument\n")
		return
	}
	if err := fatfs.Mkfs(cmd.Argv[1], fatBlocks, sizeCfg); err != nil {
		writeErr("mkfs: " + err.Error() + "\n")
	}
}
