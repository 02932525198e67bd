package kernel

import (
	"io"
	"strings"
	"testing"

	"github.com/orcaman/writerseeker"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := &queue{}
	a, b, c := &PCB{PID: 1}, &PCB{PID: 2}, &PCB{PID: 3}
	q.PushBack(a)
	q.PushBack(b)
	q.PushBack(c)
	q.Remove(b)
	if got := q.PopFront(); got != a {
		t.Fatalf("PopFront: got pid %d, want 1", got.PID)
	}
	if got := q.PopFront(); got != c {
		t.Fatalf("PopFront after Remove: got pid %d, want 3", got.PID)
	}
	if q.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", q.Len())
	}
}

func TestOwnershipDescendantsPreOrder(t *testing.T) {
	o := newOwnership()
	o.addProcess(1)
	o.addProcess(2)
	o.addProcess(3)
	o.addProcess(4)
	o.addEdge(1, 2)
	o.addEdge(1, 3)
	o.addEdge(2, 4)
	got := o.descendants(1)
	want := map[int]bool{2: true, 3: true, 4: true}
	if len(got) != len(want) {
		t.Fatalf("descendants(1) = %v, want 3 entries from %v", got, want)
	}
	index := map[int]int{}
	for i, pid := range got {
		if !want[pid] {
			t.Fatalf("descendants(1) included unexpected pid %d", pid)
		}
		index[pid] = i
	}
	if index[2] > index[4] {
		t.Fatalf("descendants(1) = %v, want 2 listed before its child 4 (pre-order)", got)
	}
}

func TestLotteryPickOnlyFromNonEmptyQueues(t *testing.T) {
	k := NewKernel(io.Discard)
	low := &PCB{PID: 1, Priority: Low}
	k.runQ[Low].PushBack(low)
	for i := 0; i < 200; i++ {
		k.runQ[Low].PushBack(&PCB{PID: i + 2, Priority: Low})
		got := k.lotteryPick()
		if got == nil {
			t.Fatalf("lotteryPick returned nil with a non-empty LOW queue")
		}
		if got.Priority != Low {
			t.Fatalf("lotteryPick returned priority %v with only LOW populated", got.Priority)
		}
	}
}

func TestLotteryPickReturnsNilWhenAllEmpty(t *testing.T) {
	k := NewKernel(io.Discard)
	if got := k.lotteryPick(); got != nil {
		t.Fatalf("lotteryPick on empty kernel: got pid %d, want nil", got.PID)
	}
}

func TestLotteryRatioConvergesToTicketWeights(t *testing.T) {
	k := NewKernel(io.Discard)
	const perQueue = 50
	counts := map[Priority]int{}
	refill := func() {
		for i := 0; i < perQueue; i++ {
			k.runQ[High].PushBack(&PCB{PID: i, Priority: High})
			k.runQ[Med].PushBack(&PCB{PID: i, Priority: Med})
			k.runQ[Low].PushBack(&PCB{PID: i, Priority: Low})
		}
	}
	const draws = 20000
	refill()
	for i := 0; i < draws; i++ {
		p := k.lotteryPick()
		counts[p.Priority]++
		// Put it right back so the queue never runs dry mid-measurement.
		k.runQ[p.Priority].PushBack(p)
	}
	total := float64(draws)
	wantHigh := float64(ticketWeight[High]) / 150.0
	gotHigh := float64(counts[High]) / total
	if diff := gotHigh - wantHigh; diff > 0.05 || diff < -0.05 {
		t.Fatalf("HIGH draw ratio = %.3f, want within 0.05 of %.3f", gotHigh, wantHigh)
	}
}

func TestSchedulerRunsEntryToCompletion(t *testing.T) {
	k := NewKernel(io.Discard)
	done := make(chan struct{})
	pcb := k.BootstrapInit(func(k *Kernel, self *PCB, argv []string) {
		close(done)
	}, []string{"init"}, 0, 1)

	k.onTick()

	select {
	case <-done:
	default:
		t.Fatal("entry function never ran to completion within one tick")
	}
	if pcb.Status != StatusZombie {
		t.Fatalf("pcb.Status = %v, want StatusZombie", pcb.Status)
	}
}

// TestEventLogWritesCreateAndExitedLines backs the kernel's log sink
// with an in-memory seekable writer instead of a real log file, and
// reads the written lines back out through its own Reader rather than a
// second buffer, exercising the log sink as a general io.Writer/Reader
// rather than assuming it is always a *os.File.
func TestEventLogWritesCreateAndExitedLines(t *testing.T) {
	var ws writerseeker.WriterSeeker
	k := NewKernel(&ws)
	k.BootstrapInit(func(k *Kernel, self *PCB, argv []string) {}, []string{"init"}, 0, 1)
	k.onTick()

	data, err := io.ReadAll(ws.Reader())
	if err != nil {
		t.Fatalf("reading back log: %v", err)
	}
	log := string(data)
	if !strings.Contains(log, "\tCREATE\t") {
		t.Fatalf("log missing CREATE line:\n%s", log)
	}
	if !strings.Contains(log, "\tEXITED\t") {
		t.Fatalf("log missing EXITED line:\n%s", log)
	}
}

func TestSleepBlocksForExactlyNTicks(t *testing.T) {
	k := NewKernel(io.Discard)
	woke := make(chan struct{})
	pcb := k.BootstrapInit(func(k *Kernel, self *PCB, argv []string) {
		k.Sleep(self, 2)
		close(woke)
	}, []string{"sleeper"}, 0, 1)

	k.onTick() // dispatches pcb, which immediately sleeps for 2 ticks
	if pcb.Status != StatusBlock || pcb.BlockedCause != CauseSleep {
		t.Fatalf("after first tick: status=%v cause=%v, want Block/Sleep", pcb.Status, pcb.BlockedCause)
	}

	k.onTick() // first sweep: 2 -> 1
	select {
	case <-woke:
		t.Fatal("woke after only one sweep tick, want it blocked through tick 2")
	default:
	}

	k.onTick() // second sweep: 1 -> 0, wakes and redispatches
	select {
	case <-woke:
	default:
		t.Fatal("never woke after its sleep ticks elapsed")
	}
	if pcb.Status != StatusZombie {
		t.Fatalf("pcb.Status = %v, want StatusZombie after returning from sleep", pcb.Status)
	}
}

func TestTerminateCascadesToAllDescendants(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	root := k.newPCBLocked(nil, []string{"root"}, 0, 1)
	child := k.newPCBLocked(root, []string{"child"}, 0, 1)
	grandchild := k.newPCBLocked(child, []string{"grandchild"}, 0, 1)
	k.terminateLocked(root)
	k.mu.Unlock()

	if root.Status != StatusZombie {
		t.Fatalf("root.Status = %v, want StatusZombie", root.Status)
	}
	if _, ok := k.table[child.PID]; ok {
		t.Fatal("child still present in process table after root's TERM")
	}
	if _, ok := k.table[grandchild.PID]; ok {
		t.Fatal("grandchild still present in process table after root's TERM")
	}
	if len(k.table) != 1 {
		t.Fatalf("process table has %d entries, want 1 (root only)", len(k.table))
	}
}

func TestWaitpidReapsZombieBeforePendingSignal(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	parent := k.newPCBLocked(nil, []string{"parent"}, 0, 1)
	zombie := k.newPCBLocked(parent, []string{"zombie"}, 0, 1)
	stopped := k.newPCBLocked(parent, []string{"stopped"}, 0, 1)
	k.terminateLocked(zombie)
	parent.PendingChildSignals = append(parent.PendingChildSignals, childSignal{pid: stopped.PID, signal: SigStop})
	k.mu.Unlock()

	gotPID, gotSig, err := k.Waitpid(parent, -1, false)
	if err != nil {
		t.Fatalf("Waitpid: %v", err)
	}
	if gotPID != zombie.PID || gotSig != SigTermed {
		t.Fatalf("Waitpid = (%d, %d), want (%d, %d) reaping the zombie first", gotPID, gotSig, zombie.PID, SigTermed)
	}

	gotPID, gotSig, err = k.Waitpid(parent, -1, false)
	if err != nil {
		t.Fatalf("Waitpid second call: %v", err)
	}
	if gotPID != stopped.PID || gotSig != SigStop {
		t.Fatalf("Waitpid second call = (%d, %d), want (%d, %d)", gotPID, gotSig, stopped.PID, SigStop)
	}
}

// TestWaitpidBlockingReapsChildOnTermWake exercises the full blocking path:
// a parent parked in Waitpid(-1, true) is woken by its child's TERM, and
// must come back with the zombie already reaped rather than leaving it in
// ZombieChildren (and the process table) for a second waitpid to report
// again.
func TestWaitpidBlockingReapsChildOnTermWake(t *testing.T) {
	k := NewKernel(io.Discard)
	type result struct {
		pid, sig int
		err      error
	}
	results := make(chan result, 1)
	var childPID int

	parent := k.BootstrapInit(func(k *Kernel, self *PCB, argv []string) {
		child := k.Spawn(self, func(k *Kernel, self *PCB, argv []string) {}, []string{"child"}, 0, 1)
		childPID = child.PID
		pid, sig, err := k.Waitpid(self, -1, true)
		results <- result{pid, sig, err}
	}, []string{"parent"}, 0, 1)

	k.onTick() // dispatches parent: spawns child, blocks in Waitpid
	if parent.Status != StatusBlock || parent.BlockedCause != CauseWait {
		t.Fatalf("after first tick: status=%v cause=%v, want Block/Wait", parent.Status, parent.BlockedCause)
	}

	k.onTick() // dispatches child: runs to completion, TERM wakes parent
	k.onTick() // redispatches parent: returns from Waitpid, reaps, exits

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("Waitpid: %v", r.err)
		}
		if r.pid != childPID || r.sig != SigTermed {
			t.Fatalf("Waitpid = (%d, %d), want (%d, %d)", r.pid, r.sig, childPID, SigTermed)
		}
	default:
		t.Fatal("parent never returned from its blocking Waitpid")
	}

	if _, ok := k.table[childPID]; ok {
		t.Fatal("child PCB still present in process table after being reaped by the blocking waiter")
	}
	if len(parent.ZombieChildren) != 0 {
		t.Fatalf("parent.ZombieChildren = %v, want empty after reap", parent.ZombieChildren)
	}
}

func TestWaitpidNonBlockingReturnsZeroWhenNothingAvailable(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	parent := k.newPCBLocked(nil, []string{"parent"}, 0, 1)
	k.newPCBLocked(parent, []string{"child"}, 0, 1)
	k.mu.Unlock()

	gotPID, gotSig, err := k.Waitpid(parent, -1, false)
	if err != nil {
		t.Fatalf("Waitpid: %v", err)
	}
	if gotPID != 0 || gotSig != 0 {
		t.Fatalf("Waitpid = (%d, %d), want (0, 0) with no child event yet", gotPID, gotSig)
	}
}

func TestWaitpidNoChildrenIsAnError(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	parent := k.newPCBLocked(nil, []string{"lonely"}, 0, 1)
	k.mu.Unlock()

	if _, _, err := k.Waitpid(parent, -1, false); err != ErrNoChildren {
		t.Fatalf("Waitpid with no children: got %v, want ErrNoChildren", err)
	}
}

func TestNiceRelocatesRunQueue(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	pcb := k.newPCBLocked(nil, []string{"p"}, 0, 1)
	k.runQ[Med].PushBack(pcb)
	k.mu.Unlock()

	if err := k.Nice(pcb, pcb.PID, -1); err != nil {
		t.Fatalf("Nice: %v", err)
	}
	if pcb.Priority != High {
		t.Fatalf("Priority = %v, want High", pcb.Priority)
	}
	if pcb.queue != k.runQ[High] {
		t.Fatal("pcb not relocated into the HIGH run queue")
	}
	if k.runQ[Med].Len() != 0 {
		t.Fatalf("MED queue still holds %d entries, want 0", k.runQ[Med].Len())
	}
}

func TestKillStopThenContRestoresRunnable(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	pcb := k.newPCBLocked(nil, []string{"p"}, 0, 1)
	k.runQ[Med].PushBack(pcb)
	k.mu.Unlock()

	if err := k.Kill(pcb, pcb.PID, SigStop); err != nil {
		t.Fatalf("Kill STOP: %v", err)
	}
	if pcb.Status != StatusStop {
		t.Fatalf("Status after STOP = %v, want StatusStop", pcb.Status)
	}

	if err := k.Kill(pcb, pcb.PID, SigCont); err != nil {
		t.Fatalf("Kill CONT: %v", err)
	}
	if pcb.Status != StatusRun {
		t.Fatalf("Status after CONT = %v, want StatusRun", pcb.Status)
	}
	if pcb.queue != k.runQ[Med] {
		t.Fatal("pcb not restored to its MED run queue after CONT")
	}
}

func TestKillStopNotifiesWaitingParent(t *testing.T) {
	k := NewKernel(io.Discard)
	k.mu.Lock()
	parent := k.newPCBLocked(nil, []string{"parent"}, 0, 1)
	child := k.newPCBLocked(parent, []string{"child"}, 0, 1)
	k.detachFromQueues(parent)
	parent.Status = StatusBlock
	parent.BlockedCause = CauseWait
	parent.WaitPID = -1
	k.blocked.PushBack(parent)
	k.mu.Unlock()

	if err := k.Kill(child, child.PID, SigStop); err != nil {
		t.Fatalf("Kill STOP: %v", err)
	}
	if parent.Status != StatusRun {
		t.Fatalf("parent.Status = %v, want StatusRun (woken by child STOP)", parent.Status)
	}
	if parent.LastChildSignal != SigStop || parent.WokeChildPID != child.PID {
		t.Fatalf("parent woke with (sig=%d, pid=%d), want (%d, %d)", parent.LastChildSignal, parent.WokeChildPID, SigStop, child.PID)
	}
}
