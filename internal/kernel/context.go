package kernel

// fiber is C7's context: in place of a native ucontext/stack-switch
// primitive, each simulated process runs on its own goroutine (the
// "stack" is the goroutine's own), and the scheduler hands it the baton
// by signaling resume and waiting for yielded. Because the baton is
// strictly single-holder, at most one fiber's code runs at a time even
// though each is backed by a real goroutine.
type fiber struct {
	resume  chan struct{}
	started bool
}

// EntryFunc is a simulated process's body. It is handed the kernel (to
// call back into the process API) and the spawn arguments.
type EntryFunc func(k *Kernel, self *PCB, argv []string)

func newFiber() *fiber {
	return &fiber{resume: make(chan struct{})}
}

// start launches the goroutine backing pcb and blocks it immediately on
// the initial resume signal, mirroring make_context's "allocate but don't
// run yet" semantics.
func (k *Kernel) start(pcb *PCB, fn EntryFunc, argv []string) {
	go func() {
		<-pcb.fiber.resume
		fn(k, pcb, argv)
		k.exit(pcb)
	}()
}

// dispatch hands the baton to pcb and blocks until it yields back via
// park. This is swap(from, to) specialized to "from is always the
// scheduler context."
func (k *Kernel) dispatch(pcb *PCB) {
	pcb.fiber.resume <- struct{}{}
	<-k.yielded
}

// park returns control to the scheduler context and blocks self's
// goroutine until it is dispatched again. Every process-API call that
// logically suspends the caller (sleep, blocking waitpid, a deferred tick
// at critical-section exit) funnels through here.
func (k *Kernel) park(self *PCB) {
	k.yielded <- self
	<-self.fiber.resume
}

// parkFinal hands the baton back to the scheduler without waiting for a
// future resume: used by a fiber that has exited for good, so its
// goroutine is free to terminate immediately after.
func (k *Kernel) parkFinal(self *PCB) {
	k.yielded <- self
}
