package kernel

// SetForeground records which pid currently owns host-forwarded signals
// (SIGINT/SIGTSTP from the terminal), typically the shell's current
// foreground job.
func (k *Kernel) SetForeground(pid int) {
	k.mu.Lock()
	k.fgPID = pid
	k.mu.Unlock()
}

// Foreground returns the current foreground pid, or 0 if none.
func (k *Kernel) Foreground() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.fgPID
}

// ForwardSignal delivers signal to whatever pid is currently in the
// foreground, a no-op if there is none. Intended to be called from the
// host's own SIGINT/SIGTSTP handler goroutine, independent of the
// dispatched fiber's call stack, so it never holds the scheduler's
// critical section open.
func (k *Kernel) ForwardSignal(signal int) {
	pid := k.Foreground()
	if pid == 0 {
		return
	}
	k.mu.Lock()
	target, ok := k.table[pid]
	if !ok || target.Status == StatusZombie {
		k.mu.Unlock()
		return
	}
	switch signal {
	case SigTerm:
		k.terminateLocked(target)
	case SigStop:
		if target.Status != StatusStop {
			k.detachFromQueues(target)
			target.Status = StatusStop
			k.stopped.PushBack(target)
			k.log.Signaled(k.tick.Load(), target, SigStop)
			k.notifyParent(target, SigStop)
		}
	case SigCont:
		if target.Status == StatusStop {
			k.detachFromQueues(target)
			if target.BlockedCause != CauseNone {
				target.Status = StatusBlock
				k.blocked.PushBack(target)
			} else {
				target.Status = StatusRun
				k.runQ[target.Priority].PushBack(target)
			}
			k.log.Signaled(k.tick.Load(), target, SigCont)
			k.notifyParent(target, SigCont)
		}
	}
	k.mu.Unlock()
}
