package kernel

import "github.com/pennos-project/pennos/internal/fatfs"

// Priority is the scheduling class a PCB belongs to. The numeric value
// matches the log file's priority column (HIGH=-1, MED=0, LOW=1).
type Priority int

const (
	High Priority = -1
	Med  Priority = 0
	Low  Priority = 1
)

// ticketWeight is the lottery's per-priority ticket count: HIGH gets
// about 1.6x MED's tickets and 2.4x LOW's.
var ticketWeight = map[Priority]int{High: 74, Med: 45, Low: 31}

func (p Priority) String() string {
	switch p {
	case High:
		return "HIGH"
	case Low:
		return "LOW"
	default:
		return "MED"
	}
}

// Status is a PCB's lifecycle state.
type Status int

const (
	StatusRun Status = iota
	StatusBlock
	StatusStop
	StatusZombie
)

func (s Status) String() string {
	switch s {
	case StatusRun:
		return "R"
	case StatusBlock:
		return "B"
	case StatusStop:
		return "S"
	default:
		return "Z"
	}
}

// BlockCause distinguishes why a BLOCK-state PCB is parked.
type BlockCause int

const (
	CauseNone BlockCause = iota
	CauseSleep
	CauseWait
)

// Signal codes used by Kill and reported as LastChildSignal.
const (
	SigTerm = 0
	SigStop = 1
	SigCont = 2
	SigTermed = 3 // reported to a waiting parent after a child's TERM
)

// PCB is one simulated process. The process table is the sole owner;
// every queue and cross-PCB reference (parent, children) is a plain
// pointer into that ownership, never a second owner.
type PCB struct {
	PID    int
	Parent *PCB
	Name   string

	Children            []*PCB
	ZombieChildren      []*PCB
	PendingChildSignals []childSignal

	Priority        Priority
	Status          Status
	BlockedCause    BlockCause
	BlockedTicks    int
	WaitPID         int
	LastChildSignal int
	WokeChildPID    int // which child's event woke a WAIT-blocked process

	FDIn, FDOut int
	FDs         *fatfs.FDTable

	fiber *fiber

	// Intrusive doubly-linked queue links. A PCB is in at most one of a
	// priority run queue, the blocked queue, or the stopped queue.
	prev, next *PCB
	queue      *queue
}

// childSignal records a STOP/CONT notification queued for a parent that
// wasn't blocked in waitpid when the event occurred.
type childSignal struct {
	pid    int
	signal int
}

// removeChild drops child from p.Children by pid (O(n), matching the
// ownership-table lookup cost the rest of the design accepts).
func (p *PCB) removeChild(pid int) {
	for i, c := range p.Children {
		if c.PID == pid {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return
		}
	}
}
