package kernel

import "github.com/pennos-project/pennos/internal/fatfs"

// Spawn, Kill, Waitpid, Nice, Sleep and Yield are the process API every
// built-in and every user command is written against; exit happens
// implicitly when an entry function returns. Each is called
// from inside the caller's own fiber and, except where noted, returns
// to that same fiber (possibly after a yield) rather than switching
// control to an arbitrary other process directly — only the scheduler
// does that.

// newPCBLocked allocates a PID, links the new PCB into the process
// table and (if parent is non-nil) into the parent's Children and the
// ownership graph. Called with mu held.
func (k *Kernel) newPCBLocked(parent *PCB, argv []string, fdIn, fdOut int) *PCB {
	k.nextPID++
	name := ""
	if len(argv) > 0 {
		name = argv[0]
	}
	cwd := "/"
	if parent != nil && parent.FDs != nil {
		cwd = parent.FDs.Cwd()
	}
	pcb := &PCB{
		PID:      k.nextPID,
		Parent:   parent,
		Name:     name,
		Priority: Med,
		Status:   StatusRun,
		FDIn:     fdIn,
		FDOut:    fdOut,
		FDs:      fatfs.NewFDTable(k.fs, cwd),
		fiber:    newFiber(),
	}
	k.table[pcb.PID] = pcb
	k.own.addProcess(pcb.PID)
	if parent != nil {
		parent.Children = append(parent.Children, pcb)
		k.own.addEdge(parent.PID, pcb.PID)
	}
	return pcb
}

// BootstrapInit spawns the very first process (conventionally the
// shell) with no parent and no calling fiber to yield back to. It must
// be called before Run, from the host's own goroutine.
func (k *Kernel) BootstrapInit(fn EntryFunc, argv []string, fdIn, fdOut int) *PCB {
	k.mu.Lock()
	defer k.mu.Unlock()
	pcb := k.newPCBLocked(nil, argv, fdIn, fdOut)
	k.runQ[Med].PushBack(pcb)
	k.log.Create(k.tick.Load(), pcb)
	k.start(pcb, fn, argv)
	return pcb
}

// Spawn creates a new MED-priority child of self running fn, and
// yields self only if a tick was deferred during the call.
func (k *Kernel) Spawn(self *PCB, fn EntryFunc, argv []string, fdIn, fdOut int) *PCB {
	k.mu.Lock()
	pcb := k.newPCBLocked(self, argv, fdIn, fdOut)
	k.runQ[Med].PushBack(pcb)
	k.log.Create(k.tick.Load(), pcb)
	k.start(pcb, fn, argv)
	k.leaveCritical(self, false)
	return pcb
}

// Yield unconditionally relinquishes the CPU back to the scheduler for
// one scheduling round, requeuing self at the tail of its priority's run
// queue first. Unlike the other process-API calls, this does not check
// the deferred-tick flag: Go cannot forcibly preempt a running goroutine
// at an arbitrary instruction the way a real timer interrupt preempts a
// ucontext, so any process whose own code never calls back into the
// kernel (a busy loop, in particular) must call Yield itself on every
// iteration to stay schedulable at all.
func (k *Kernel) Yield(self *PCB) {
	k.mu.Lock()
	if self.Status == StatusRun {
		k.runQ[self.Priority].PushBack(self)
	}
	k.mu.Unlock()
	k.park(self)
}

// exit is the implicit TERM a process sends itself by returning from
// its entry function; it never returns to the caller's goroutine,
// which is free to end once exit hands the baton back to the
// scheduler.
func (k *Kernel) exit(self *PCB) {
	k.mu.Lock()
	k.terminateLocked(self)
	k.log.Exited(k.tick.Load(), self)
	k.mu.Unlock()
	k.parkFinal(self)
}

// detachFromQueues removes p from whichever of the run/blocked/stopped
// queues currently holds it, a no-op if it is in none. Called with mu
// held.
func (k *Kernel) detachFromQueues(p *PCB) {
	if p.queue != nil {
		p.queue.Remove(p)
	}
}

// terminateLocked implements kill(pid, TERM): target becomes a zombie
// of its parent, and every descendant of target is reaped immediately
// as an orphan rather than ever entering a zombie queue of its own.
// Called with mu held.
func (k *Kernel) terminateLocked(target *PCB) {
	k.detachFromQueues(target)
	target.Status = StatusZombie
	k.log.Zombie(k.tick.Load(), target)

	for _, pid := range k.own.descendants(target.PID) {
		if child, ok := k.table[pid]; ok {
			k.destroyLocked(child)
		}
	}

	p := target.Parent
	if p == nil {
		return
	}
	// A pending STOP notification for this pid is consumed by its
	// termination rather than left stale in the parent's queue.
	for i, cs := range p.PendingChildSignals {
		if cs.pid == target.PID {
			p.PendingChildSignals = append(p.PendingChildSignals[:i], p.PendingChildSignals[i+1:]...)
			break
		}
	}
	p.removeChild(target.PID)
	p.ZombieChildren = append(p.ZombieChildren, target)
	if p.Status == StatusBlock && p.BlockedCause == CauseWait && (p.WaitPID == -1 || p.WaitPID == target.PID) {
		k.wakeWaiter(p, SigTermed, target.PID)
	}
}

// destroyLocked removes an orphaned descendant from the process table
// and the ownership graph outright: it never becomes anyone's zombie.
// Called with mu held.
func (k *Kernel) destroyLocked(p *PCB) {
	k.detachFromQueues(p)
	k.log.Orphaned(k.tick.Load(), p)
	delete(k.table, p.PID)
	k.own.removeProcess(p.PID)
}

// wakeWaiter unblocks a WAIT-blocked parent, recording which child and
// which signal woke it. Called with mu held.
func (k *Kernel) wakeWaiter(p *PCB, signal, childPID int) {
	k.detachFromQueues(p)
	p.BlockedCause = CauseNone
	p.Status = StatusRun
	p.LastChildSignal = signal
	p.WokeChildPID = childPID
	p.WaitPID = 0
	k.runQ[p.Priority].PushBack(p)
	k.log.Unblocked(k.tick.Load(), p)
}

// notifyParent delivers a STOP/CONT signal to target's parent: if the
// parent is already blocked in a matching waitpid it is woken directly,
// otherwise the signal queues in PendingChildSignals for the parent's
// next waitpid call to find. Called with mu held.
func (k *Kernel) notifyParent(target *PCB, signal int) {
	p := target.Parent
	if p == nil {
		return
	}
	if p.Status == StatusBlock && p.BlockedCause == CauseWait && (p.WaitPID == -1 || p.WaitPID == target.PID) {
		k.wakeWaiter(p, signal, target.PID)
		return
	}
	p.PendingChildSignals = append(p.PendingChildSignals, childSignal{pid: target.PID, signal: signal})
}

// Kill delivers a TERM, STOP or CONT signal to pid.
func (k *Kernel) Kill(self *PCB, pid int, signal int) error {
	k.mu.Lock()
	target, ok := k.table[pid]
	if !ok || target.Status == StatusZombie {
		k.mu.Unlock()
		return ErrNoSuchProcess
	}
	switch signal {
	case SigTerm:
		k.terminateLocked(target)
	case SigStop:
		if target.Status == StatusStop {
			k.mu.Unlock()
			return ErrInvalidState
		}
		k.detachFromQueues(target)
		target.Status = StatusStop
		k.stopped.PushBack(target)
		k.log.Signaled(k.tick.Load(), target, SigStop)
		k.notifyParent(target, SigStop)
	case SigCont:
		if target.Status != StatusStop {
			k.mu.Unlock()
			return ErrInvalidState
		}
		k.detachFromQueues(target)
		// A CONT restores whatever the process was doing before STOP:
		// back onto a run queue, or back onto the blocked queue if it
		// had an outstanding sleep/wait.
		if target.BlockedCause != CauseNone {
			target.Status = StatusBlock
			k.blocked.PushBack(target)
		} else {
			target.Status = StatusRun
			k.runQ[target.Priority].PushBack(target)
		}
		k.log.Signaled(k.tick.Load(), target, SigCont)
		k.notifyParent(target, SigCont)
	default:
		k.mu.Unlock()
		return ErrInvalidArg
	}
	k.leaveCritical(self, false)
	return nil
}

// Sleep blocks self for the given number of scheduler ticks.
func (k *Kernel) Sleep(self *PCB, ticks int) {
	k.mu.Lock()
	k.detachFromQueues(self)
	self.Status = StatusBlock
	self.BlockedCause = CauseSleep
	self.BlockedTicks = ticks
	k.blocked.PushBack(self)
	k.log.Blocked(k.tick.Load(), self)
	k.leaveCritical(self, true)
}

// Nice changes pid's priority class: n<0 is HIGH, n==0 is MED, n>0 is
// LOW. A process currently queued to run is relocated to the tail of
// its new priority's queue.
func (k *Kernel) Nice(self *PCB, pid int, n int) error {
	k.mu.Lock()
	target, ok := k.table[pid]
	if !ok || target.Status == StatusZombie {
		k.mu.Unlock()
		return ErrNoSuchProcess
	}
	next := niceToPriority(n)
	old := target.Priority
	if old != next {
		wasRunnable := target.queue == k.runQ[old]
		target.Priority = next
		if wasRunnable {
			k.runQ[old].Remove(target)
			k.runQ[next].PushBack(target)
		}
		k.log.Nice(k.tick.Load(), target, int(old), int(next))
	}
	k.leaveCritical(self, false)
	return nil
}

func niceToPriority(n int) Priority {
	switch {
	case n < 0:
		return High
	case n > 0:
		return Low
	default:
		return Med
	}
}

// reapOrNotify services one already-available child event for self,
// without blocking: a zombie child first (reaping it), then a queued
// STOP/CONT notification. ok is false if nothing is available yet.
// Called with mu held.
func (k *Kernel) reapOrNotify(self *PCB, pid int) (reapedPID int, signal int, ok bool) {
	if pid == -1 {
		if len(self.ZombieChildren) > 0 {
			z := self.ZombieChildren[0]
			self.ZombieChildren = self.ZombieChildren[1:]
			k.reapLocked(z)
			return z.PID, SigTermed, true
		}
		if len(self.PendingChildSignals) > 0 {
			cs := self.PendingChildSignals[0]
			self.PendingChildSignals = self.PendingChildSignals[1:]
			return cs.pid, cs.signal, true
		}
		return 0, 0, false
	}
	for i, z := range self.ZombieChildren {
		if z.PID == pid {
			self.ZombieChildren = append(self.ZombieChildren[:i], self.ZombieChildren[i+1:]...)
			k.reapLocked(z)
			return z.PID, SigTermed, true
		}
	}
	for i, cs := range self.PendingChildSignals {
		if cs.pid == pid {
			self.PendingChildSignals = append(self.PendingChildSignals[:i], self.PendingChildSignals[i+1:]...)
			return cs.pid, cs.signal, true
		}
	}
	return 0, 0, false
}

// reapLocked releases a zombie PCB back to the process table, which
// destroys it: after this call pid is free to be reused. Called with
// mu held.
func (k *Kernel) reapLocked(z *PCB) {
	delete(k.table, z.PID)
	k.own.removeProcess(z.PID)
}

// Waitpid waits for a state change in pid (or any child, if pid is -1).
// If blocking is false and no event is already available, it returns
// (0, 0, nil) immediately rather than parking self.
func (k *Kernel) Waitpid(self *PCB, pid int, blocking bool) (reapedPID int, signal int, err error) {
	k.mu.Lock()
	if len(self.Children) == 0 && len(self.ZombieChildren) == 0 && len(self.PendingChildSignals) == 0 {
		k.mu.Unlock()
		return 0, 0, ErrNoChildren
	}
	if gotPID, gotSig, ok := k.reapOrNotify(self, pid); ok {
		k.leaveCritical(self, false)
		return gotPID, gotSig, nil
	}
	if !blocking {
		k.mu.Unlock()
		return 0, 0, nil
	}
	k.detachFromQueues(self)
	self.Status = StatusBlock
	self.BlockedCause = CauseWait
	self.WaitPID = pid
	k.blocked.PushBack(self)
	k.log.Blocked(k.tick.Load(), self)
	k.leaveCritical(self, true)

	k.mu.Lock()
	gotPID, gotSig := self.WokeChildPID, self.LastChildSignal
	if gotSig == SigTermed {
		for i, z := range self.ZombieChildren {
			if z.PID == gotPID {
				self.ZombieChildren = append(self.ZombieChildren[:i], self.ZombieChildren[i+1:]...)
				k.reapLocked(z)
				break
			}
		}
	}
	k.mu.Unlock()
	k.log.Waited(k.tick.Load(), self)
	return gotPID, gotSig, nil
}
