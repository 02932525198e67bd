package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pennos-project/pennos/internal/fatfs"
	"github.com/pennos-project/pennos/internal/kernel"
)

// spawnBuiltins is the "one spawn per command" half of the built-in
// table: each entry is a process body run on its own PCB, built and
// dispatched exactly like any other command a script file might name.
var spawnBuiltins = map[string]kernel.EntryFunc{
	"cat":       catMain,
	"ls":        lsMain,
	"echo":      echoMain,
	"sleep":     sleepMain,
	"busy":      busyMain,
	"ps":        psMain,
	"kill":      killMain,
	"touch":     touchMain,
	"mv":        mvMain,
	"cp":        cpMain,
	"rm":        rmMain,
	"chmod":     chmodMain,
	"cd":        cdChildMain,
	"mkdir":     mkdirMain,
	"rmdir":     rmdirMain,
	"pwd":       pwdChildMain,
	"ln":        lnMain,
	"zombify":   zombifyMain,
	"orphanify": orphanifyMain,
	"hang":      hangMain,
	"nohang":    nohangMain,
	"recur":     recurMain,
}

func catMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	if len(argv) == 1 {
		for {
			line, err := readLine(self)
			if line != "" {
				writeOutString(self, line+"\n")
			}
			if err != nil {
				return
			}
		}
	}
	for _, name := range argv[1:] {
		fd, err := self.FDs.Open(name, fatfs.ModeRead)
		if err != nil {
			reportError(argv[0], err)
			continue
		}
		for {
			buf, err := self.FDs.Read(fd, 4096)
			if len(buf) > 0 {
				writeOut(self, buf)
			}
			if err != nil || len(buf) == 0 {
				break
			}
		}
		self.FDs.Close(fd)
	}
}

func lsMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	targets := argv[1:]
	if len(targets) == 0 {
		targets = []string{"."}
	}
	for _, path := range targets {
		entries, err := self.FDs.FS().List(self.FDs.Cwd(), path)
		if err != nil {
			reportError(argv[0], err)
			continue
		}
		for _, e := range entries {
			writeOutString(self, e.NameString()+"\n")
		}
	}
}

func echoMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	writeOutString(self, strings.Join(argv[1:], " ")+"\n")
}

func sleepMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	if len(argv) < 2 {
		writeErr("sleep: missing tick count\n")
		return
	}
	n, err := strconv.Atoi(argv[1])
	if err != nil || n < 0 {
		writeErr("sleep: invalid tick count\n")
		return
	}
	k.Sleep(self, n)
}

// busyMain never returns on its own: it holds the CPU by yielding every
// iteration rather than ever blocking, so it must be stopped or killed
// externally. Go has no signal-based preemption of a running goroutine,
// so this cooperative Yield call is what keeps it schedulable at all.
func busyMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	for {
		k.Yield(self)
	}
}

func psMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	for _, p := range k.Processes() {
		ppid := 0
		if p.Parent != nil {
			ppid = p.Parent.PID
		}
		writeOutString(self, fmt.Sprintf("%d\t%d\t%s\t%s\t%s\n", p.PID, ppid, p.Status, p.Priority, p.Name))
	}
}

func killMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	if len(argv) < 2 {
		writeErr("kill: missing pid\n")
		return
	}
	signal := kernel.SigTerm
	args := argv[1:]
	switch args[0] {
	case "-term":
		signal, args = kernel.SigTerm, args[1:]
	case "-stop":
		signal, args = kernel.SigStop, args[1:]
	case "-cont":
		signal, args = kernel.SigCont, args[1:]
	}
	if len(args) == 0 {
		writeErr("kill: missing pid\n")
		return
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		writeErr("kill: invalid pid\n")
		return
	}
	if err := k.Kill(self, pid, signal); err != nil {
		reportError(argv[0], err)
	}
}

func touchMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	for _, name := range argv[1:] {
		meta, err := self.FDs.FS().GetMeta(self.FDs.Cwd(), name, true)
		switch {
		case errors.Is(err, fatfs.ErrNotFound):
			if cerr := self.FDs.FS().Create(self.FDs.Cwd(), name, fatfs.TypeRegular); cerr != nil {
				reportError(argv[0], cerr)
			}
		case err != nil:
			reportError(argv[0], err)
		default:
			meta.MTime = time.Now().Unix()
			if serr := self.FDs.FS().SetMeta(self.FDs.Cwd(), name, meta, true); serr != nil {
				reportError(argv[0], serr)
			}
		}
	}
}

func mvMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	if len(argv) != 3 {
		writeErr("mv: usage: mv <src> <dst>\n")
		return
	}
	if err := self.FDs.FS().Rename(self.FDs.Cwd(), argv[1], argv[2]); err != nil {
		reportError(argv[0], err)
	}
}

func cpMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	if len(argv) != 3 {
		writeErr("cp: usage: cp <src> <dst>\n")
		return
	}
	fs := self.FDs.FS()
	cwd := self.FDs.Cwd()
	meta, err := fs.GetMeta(cwd, argv[1], true)
	if err != nil {
		reportError(argv[0], err)
		return
	}
	data, err := fs.Read(cwd, argv[1], 0, int(meta.Size))
	if err != nil {
		reportError(argv[0], err)
		return
	}
	if cerr := fs.Create(cwd, argv[2], fatfs.TypeRegular); cerr != nil && !errors.Is(cerr, fatfs.ErrExists) {
		reportError(argv[0], cerr)
		return
	}
	if err := fs.Write(cwd, argv[2], 0, data, true); err != nil {
		reportError(argv[0], err)
	}
}

func rmMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	for _, name := range argv[1:] {
		if err := self.FDs.FS().Remove(self.FDs.Cwd(), name); err != nil {
			reportError(argv[0], err)
		}
	}
}

func chmodMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	if len(argv) != 3 {
		writeErr("chmod: usage: chmod <mode> <path>\n")
		return
	}
	mode, err := strconv.ParseUint(argv[1], 8, 8)
	if err != nil {
		writeErr("chmod: invalid mode\n")
		return
	}
	fs := self.FDs.FS()
	cwd := self.FDs.Cwd()
	meta, err := fs.GetMeta(cwd, argv[2], false)
	if err != nil {
		reportError(argv[0], err)
		return
	}
	meta.Perm = uint8(mode)
	if err := fs.SetMeta(cwd, argv[2], meta, false); err != nil {
		reportError(argv[0], err)
	}
}

// cdChildMain and pwdChildMain exist only to fill spawnBuiltins' slot for
// cd/pwd per the one-spawn-per-command grammar; the shell's own dispatch
// intercepts both before ever consulting this table; see shell.go.
func cdChildMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {}
func pwdChildMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	writeOutString(self, self.FDs.Cwd()+"\n")
}

func mkdirMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	for _, name := range argv[1:] {
		if err := self.FDs.FS().Create(self.FDs.Cwd(), name, fatfs.TypeDir); err != nil {
			reportError(argv[0], err)
		}
	}
}

func rmdirMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	fs := self.FDs.FS()
	cwd := self.FDs.Cwd()
	for _, name := range argv[1:] {
		meta, err := fs.GetMeta(cwd, name, false)
		if err != nil {
			reportError(argv[0], err)
			continue
		}
		if meta.Type != fatfs.TypeDir {
			reportError(argv[0], fatfs.ErrNotDir)
			continue
		}
		if meta.Size != 0 {
			reportError(argv[0], fatfs.ErrNotEmpty)
			continue
		}
		if err := fs.Remove(cwd, name); err != nil {
			reportError(argv[0], err)
		}
	}
}

func lnMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	args := argv[1:]
	if len(args) == 3 && args[0] == "-s" {
		args = args[1:]
	}
	if len(args) != 2 {
		writeErr("ln: usage: ln -s <target> <path>\n")
		return
	}
	if err := self.FDs.FS().CreateLink(self.FDs.Cwd(), args[1], args[0]); err != nil {
		reportError(argv[0], err)
	}
}

// zombifyMain spawns a child that exits immediately and then stays alive
// itself, so `ps` can observe the resulting zombie before anything reaps
// it.
func zombifyMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	k.Spawn(self, func(k *kernel.Kernel, child *kernel.PCB, argv []string) {}, []string{"zombie"}, self.FDIn, self.FDOut)
	k.Sleep(self, 1<<20)
}

// orphanifyMain spawns a long-sleeping child and exits immediately,
// demonstrating that a terminated process's descendants are destroyed
// outright rather than reparented.
func orphanifyMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	k.Spawn(self, func(k *kernel.Kernel, child *kernel.PCB, argv []string) {
		k.Sleep(child, 1<<20)
	}, []string{"orphan"}, self.FDIn, self.FDOut)
}

func hangMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	k.Sleep(self, 1<<30)
}

// nohangMain is hangMain's runnable counterpart: a process that
// stays RUNNABLE forever instead of ever sleeping, for exercising
// STOP/CONT on a process that was never BLOCKed.
func nohangMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	for {
		k.Yield(self)
	}
}

// recurMain spawns a chain of descendants depth levels deep (5 if
// unspecified), each sleeping indefinitely, to exercise TERM cascading
// over a multi-generation ownership graph.
func recurMain(k *kernel.Kernel, self *kernel.PCB, argv []string) {
	depth := 5
	if len(argv) > 1 {
		if n, err := strconv.Atoi(argv[1]); err == nil {
			depth = n
		}
	}
	if depth > 0 {
		k.Spawn(self, recurMain, []string{"recur", strconv.Itoa(depth - 1)}, self.FDIn, self.FDOut)
	}
	k.Sleep(self, 1<<20)
}
