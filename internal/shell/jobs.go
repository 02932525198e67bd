package shell

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pennos-project/pennos/internal/kernel"
)

func jobLaunchLine(j *job) string {
	return fmt.Sprintf("[%d] %d\n", j.id, j.pid)
}

func jobDoneLine(j *job) string {
	return fmt.Sprintf("[%d] Done\t%s\n", j.id, strings.Join(j.argv, " "))
}

func jobStoppedLine(j *job) string {
	return fmt.Sprintf("[%d] Stopped\t%s\n", j.id, strings.Join(j.argv, " "))
}

// job is one entry in the shell's background job table: a spawned
// process the shell is tracking for `jobs`/`bg`/`fg` reporting, keyed by
// a small job number distinct from its PID.
type job struct {
	id      int
	pid     int
	argv    []string
	running bool // false once the shell has observed it stop; exited jobs are removed
}

// jobTable is the shell's own bookkeeping, never touched by any other
// process: ordinary shell state, not kernel state.
type jobTable struct {
	byID  map[int]*job
	nextID int
}

func newJobTable() *jobTable { return &jobTable{byID: make(map[int]*job)} }

func (jt *jobTable) add(pid int, argv []string) *job {
	jt.nextID++
	j := &job{id: jt.nextID, pid: pid, argv: argv, running: true}
	jt.byID[j.id] = j
	return j
}

func (jt *jobTable) byPID(pid int) *job {
	for _, j := range jt.byID {
		if j.pid == pid {
			return j
		}
	}
	return nil
}

// sortedIDs returns live job ids in ascending order, for stable `jobs`
// output.
func (jt *jobTable) sortedIDs() []int {
	ids := make([]int, 0, len(jt.byID))
	for id := range jt.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// resolveArg picks the job bg/fg should act on: the one named by cmd's
// argument (accepting either a bare job id or a "%"-prefixed one), or,
// with no argument, the most recently launched job.
func (jt *jobTable) resolveArg(cmd command) *job {
	if len(cmd.Argv) < 2 {
		best := -1
		for id := range jt.byID {
			if id > best {
				best = id
			}
		}
		if best < 0 {
			return nil
		}
		return jt.byID[best]
	}
	id, err := strconv.Atoi(strings.TrimPrefix(cmd.Argv[1], "%"))
	if err != nil {
		return nil
	}
	return jt.byID[id]
}

// reapFinished drains waitpid for every background job that has exited
// or changed state without blocking, reporting each one and removing
// finished jobs from the table. Called once per prompt.
func (sh *Shell) reapFinished() {
	for {
		pid, signal, err := sh.k.Waitpid(sh.self, -1, false)
		if err != nil || pid == 0 {
			return
		}
		j := sh.jobs.byPID(pid)
		if j == nil {
			continue
		}
		switch signal {
		case kernel.SigTermed:
			writeOutString(sh.self, jobDoneLine(j))
			delete(sh.jobs.byID, j.id)
		case kernel.SigStop:
			j.running = false
			writeOutString(sh.self, jobStoppedLine(j))
		case kernel.SigCont:
			j.running = true
		}
	}
}
