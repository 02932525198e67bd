package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/xerrors"

	pennos "github.com/pennos-project/pennos"
	"github.com/pennos-project/pennos/internal/fatfs"
	"github.com/pennos-project/pennos/internal/kernel"
	"github.com/pennos-project/pennos/internal/shell"
)

// runVerb boots the kernel against an already-formatted backing file and
// drops into the shell as the init process.
func runVerb(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	logPath := fs.String("log", "log.txt", "path the scheduler event log is appended to")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return xerrors.New("syntax: pennos run [-log path] <fs-backing-file>")
	}
	cfg := pennos.Config{FSImage: fs.Arg(0), LogFile: *logPath}

	image, err := fatfs.Mount(cfg.FSImage)
	if err != nil {
		return xerrors.Errorf("mounting %s: %w", cfg.FSImage, err)
	}
	defer image.Unmount()

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Errorf("opening log file %s: %w", cfg.LogFile, err)
	}
	defer logFile.Close()

	k := kernel.NewKernel(logFile)
	k.SetFS(image)

	stopSignals := pennos.ForwardHostSignals(
		func() { k.ForwardSignal(kernel.SigTerm) },
		func() { k.ForwardSignal(kernel.SigStop) },
	)
	defer stopSignals()

	k.BootstrapInit(shell.Run, []string{"shell"}, 0, 1)

	// Run blocks until the init shell exits and calls k.Stop, at which
	// point the simulated system as a whole is done.
	k.Run()
	return nil
}

// fsckVerb mounts a backing file on its own (outside any running kernel)
// and reports the directory/FAT inconsistencies Fsck finds.
func fsckVerb(args []string) error {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return xerrors.New("syntax: pennos fsck <fs-backing-file>")
	}
	image, err := fatfs.Mount(fs.Arg(0))
	if err != nil {
		return xerrors.Errorf("mounting %s: %w", fs.Arg(0), err)
	}
	defer image.Unmount()

	problems, err := image.Fsck()
	if err != nil {
		return xerrors.Errorf("fsck: %w", err)
	}
	if len(problems) == 0 {
		fmt.Println("fsck: clean")
		return nil
	}
	for _, p := range problems {
		fmt.Println(p.String())
	}
	return xerrors.Errorf("fsck: %d problem(s) found", len(problems))
}

// mkfsVerb formats a fresh backing file without booting the kernel.
func mkfsVerb(args []string) error {
	fs := flag.NewFlagSet("mkfs", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 3 {
		return xerrors.New("syntax: pennos mkfs <backing-file> <fat-blocks> <block-size-config>")
	}
	fatBlocks, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return xerrors.Errorf("fat-blocks: %w", err)
	}
	sizeCfg, err := strconv.Atoi(fs.Arg(2))
	if err != nil {
		return xerrors.Errorf("block-size-config: %w", err)
	}
	return fatfs.Mkfs(fs.Arg(0), fatBlocks, sizeCfg)
}

type verb struct {
	fn func(args []string) error
}

func funcmain() error {
	verbs := map[string]verb{
		"run":  {runVerb},
		"mkfs": {mkfsVerb},
		"fsck": {fsckVerb},
	}
	args := os.Args[1:]
	name := "run"
	if len(args) > 0 && verbs[args[0]].fn != nil {
		name, args = args[0], args[1:]
	}
	v, ok := verbs[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		fmt.Fprintf(os.Stderr, "syntax: pennos <run|mkfs|fsck> [options]\n")
		os.Exit(2)
	}
	return v.fn(args)
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
