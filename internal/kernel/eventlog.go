package kernel

import (
	"fmt"
	"io"
	"log"
)

// Event names for the tab-separated log format.
const (
	EvCreate     = "CREATE"
	EvSchedule   = "SCHEDULE"
	EvUnblocked  = "UNBLOCKED"
	EvBlocked    = "BLOCKED"
	EvZombie     = "ZOMBIE"
	EvOrphaned   = "ORPHANED"
	EvWaited     = "WAITED"
	EvNice       = "NICE"
	EvSignaled   = "SIGNALED"
	EvExited     = "EXITED"
)

// EventLog writes one TAB-separated line per scheduler event:
// "[<tick>]\t<EVENT>\t<pid>\t<priority-numeric>\t<name>\n". Built on a
// plain *log.Logger with its timestamp prefix disabled, matching the
// teacher's convention of threading a *log.Logger through every
// long-lived component rather than calling the package-level log funcs.
type EventLog struct {
	l *log.Logger
}

// NewEventLog wraps w (typically the backing log file) for event output.
func NewEventLog(w io.Writer) *EventLog {
	return &EventLog{l: log.New(w, "", 0)}
}

func (e *EventLog) line(tick uint64, event string, pid int, pr Priority, name string, extra ...interface{}) {
	msg := fmt.Sprintf("[%d]\t%s\t%d\t%d\t%s", tick, event, pid, pr, name)
	for _, x := range extra {
		msg += fmt.Sprintf("\t%v", x)
	}
	e.l.Println(msg)
}

func (e *EventLog) Create(tick uint64, p *PCB) { e.line(tick, EvCreate, p.PID, p.Priority, p.Name) }

func (e *EventLog) Schedule(tick uint64, p *PCB) { e.line(tick, EvSchedule, p.PID, p.Priority, p.Name) }

func (e *EventLog) Unblocked(tick uint64, p *PCB) { e.line(tick, EvUnblocked, p.PID, p.Priority, p.Name) }

func (e *EventLog) Blocked(tick uint64, p *PCB) { e.line(tick, EvBlocked, p.PID, p.Priority, p.Name) }

func (e *EventLog) Zombie(tick uint64, p *PCB) { e.line(tick, EvZombie, p.PID, p.Priority, p.Name) }

func (e *EventLog) Orphaned(tick uint64, p *PCB) { e.line(tick, EvOrphaned, p.PID, p.Priority, p.Name) }

func (e *EventLog) Waited(tick uint64, p *PCB) { e.line(tick, EvWaited, p.PID, p.Priority, p.Name) }

func (e *EventLog) Nice(tick uint64, p *PCB, oldNice, newNice int) {
	e.line(tick, EvNice, p.PID, p.Priority, p.Name, oldNice, newNice)
}

func (e *EventLog) Signaled(tick uint64, p *PCB, signal int) {
	e.line(tick, EvSignaled, p.PID, p.Priority, p.Name, signal)
}

func (e *EventLog) Exited(tick uint64, p *PCB) { e.line(tick, EvExited, p.PID, p.Priority, p.Name) }
