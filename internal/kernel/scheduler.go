package kernel

import (
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pennos-project/pennos/internal/fatfs"
)

// tickInterval is the host timer period driving the scheduler: a
// periodic signal fires at a fixed interval and each firing is one
// scheduling quantum.
const tickInterval = 100 * time.Millisecond

// Kernel is the process-wide state threaded through every process-API
// call: the process table, the run/blocked/stopped queues, the tick
// counter, and the critical-section flag. It is an explicit value, never
// package globals.
type Kernel struct {
	mu       sync.Mutex
	table    map[int]*PCB
	nextPID  int
	runQ     map[Priority]*queue
	blocked  *queue
	stopped  *queue
	current  *PCB
	fgPID    int
	own      *ownership
	lottery  distuv.Categorical
	fs       *fatfs.FS

	tick     atomic.Uint64
	deferred atomic.Bool

	yielded chan *PCB

	log *EventLog

	ticker *time.Ticker
	stopCh chan struct{}
}

// NewKernel constructs an idle kernel; call Run to start the tick source.
func NewKernel(logWriter io.Writer) *Kernel {
	k := &Kernel{
		table: make(map[int]*PCB),
		runQ: map[Priority]*queue{
			High: {}, Med: {}, Low: {},
		},
		blocked: &queue{},
		stopped: &queue{},
		own:     newOwnership(),
		yielded: make(chan *PCB),
		log:     NewEventLog(logWriter),
		stopCh:  make(chan struct{}),
	}
	k.lottery = distuv.Categorical{
		Weights: []float64{
			float64(ticketWeight[High]),
			float64(ticketWeight[Med]),
			float64(ticketWeight[Low]),
		},
		Src: rand.NewSource(uint64(time.Now().UnixNano())),
	}
	return k
}

// Run starts the periodic tick source and blocks until Stop is called.
// Intended to be invoked from its own goroutine by the caller (the CLI
// entrypoint's main goroutine, typically).
func (k *Kernel) Run() {
	k.ticker = time.NewTicker(tickInterval)
	defer k.ticker.Stop()
	for {
		select {
		case <-k.ticker.C:
			k.onTick()
		case <-k.stopCh:
			return
		}
	}
}

// Stop halts the tick source. Processes already dispatched are left
// running; callers typically Stop only during host shutdown.
func (k *Kernel) Stop() { close(k.stopCh) }

// onTick is the tick handler (C8): if a critical section is in effect
// (mu already held by a process-API call), the tick is recorded as
// deferred and otherwise dropped; the process-API call's own
// leaveCritical picks it up. Otherwise, a full scheduling step runs.
func (k *Kernel) onTick() {
	k.tick.Add(1)
	if !k.mu.TryLock() {
		k.deferred.Store(true)
		return
	}
	defer k.mu.Unlock()
	k.scheduleStep()
}

// scheduleStep implements the lottery pick, sleep expiry, and dispatch
// documented in C8. Called with mu held; releases it for the duration of
// the dispatched PCB's execution and reacquires it before returning, so
// the caller's unconditional Unlock leaves the mutex in the right state.
func (k *Kernel) scheduleStep() {
	k.sweepSleepers()
	if k.current != nil && k.current.Status == StatusRun {
		k.runQ[k.current.Priority].PushBack(k.current)
	}
	k.current = nil

	next := k.lotteryPick()
	if next == nil {
		return // every run queue empty; idle until the next tick
	}
	k.current = next
	k.log.Schedule(k.tick.Load(), next)

	k.mu.Unlock()
	k.dispatch(next)
	k.mu.Lock()
	k.current = nil
}

// sweepSleepers decrements every SLEEP-blocked PCB's remaining ticks and
// wakes those that have reached zero. Called with mu held.
func (k *Kernel) sweepSleepers() {
	for p, next := k.blocked.Peek(), (*PCB)(nil); p != nil; p = next {
		next = p.next
		if p.BlockedCause != CauseSleep {
			continue
		}
		p.BlockedTicks--
		if p.BlockedTicks <= 0 {
			k.blocked.Remove(p)
			p.Status = StatusRun
			p.BlockedCause = CauseNone
			k.runQ[p.Priority].PushBack(p)
			k.log.Unblocked(k.tick.Load(), p)
		}
	}
}

// lotteryPick draws a priority from the fixed (HIGH=74, MED=45, LOW=31)
// ticket pool, redrawing when the drawn priority's run queue is empty,
// and pops that queue's head. Called with mu held.
func (k *Kernel) lotteryPick() *PCB {
	prios := [3]Priority{High, Med, Low}
	if k.runQ[High].Len() == 0 && k.runQ[Med].Len() == 0 && k.runQ[Low].Len() == 0 {
		return nil
	}
	const maxDraws = 1000
	for i := 0; i < maxDraws; i++ {
		idx := int(k.lottery.Rand())
		if q := k.runQ[prios[idx]]; q.Len() > 0 {
			return q.PopFront()
		}
	}
	for _, p := range prios {
		if q := k.runQ[p]; q.Len() > 0 {
			return q.PopFront()
		}
	}
	return nil
}

// leaveCritical closes out a process-API call: if blocked is true, self
// was already moved off the run queue by the caller and is parked
// unconditionally; otherwise self yields only if a tick was deferred
// during the call, requeuing itself at the tail of its priority first.
// Called with mu held; always returns with mu released.
func (k *Kernel) leaveCritical(self *PCB, blocked bool) {
	deferredHit := k.deferred.Swap(false)
	if !blocked && deferredHit {
		k.runQ[self.Priority].PushBack(self)
	}
	k.mu.Unlock()
	if blocked || deferredHit {
		k.park(self)
	}
}
