// Package task owns the task control blocks, the round-robin scheduler and
// the per-task address-space mutations driven by the mmap/munmap syscalls.
package task

import (
	"ospreyos/kernel"
	"ospreyos/kernel/kfmt"
	"ospreyos/kernel/loader"
	"ospreyos/kernel/mm/vmm"
	"ospreyos/kernel/sync"
	"ospreyos/kernel/timer"
	"ospreyos/kernel/trap"
)

var (
	errNoApps         = &kernel.Error{Module: "task", Message: "no applications registered"}
	errSwitchReturned = &kernel.Error{Module: "task", Message: "first task context switch returned"}

	// shutdownFn ends the session once no runnable task remains. This is
	// the expected way for the kernel to finish, not an error.
	shutdownFn = func() {
		kfmt.Printf("[task] all applications completed\n")
		kernel.Halt()
	}
)

// SetShutdownFn installs the hook invoked when every task has exited.
func SetShutdownFn(fn func()) { shutdownFn = fn }

// Manager owns the fixed, ordered task table and the identity of the
// running task.
//
// All manager state is guarded by a spinlock. Any access acquires it for
// the duration of that access only and always releases it before a context
// switch: a switch may not come back for an arbitrary time, and a nested
// trap entering the manager meanwhile would deadlock against a lock held
// across it.
type Manager struct {
	lock sync.Spinlock

	tasks   []*ControlBlock
	current int
}

// NewManager builds the task table from the registered application set,
// one control block per application, in image order.
func NewManager() (*Manager, *kernel.Error) {
	numApps := loader.AppCount()
	if numApps == 0 {
		return nil, errNoApps
	}
	kfmt.Printf("[task] loading %d applications\n", numApps)

	tasks := make([]*ControlBlock, numApps)
	for i := 0; i < numApps; i++ {
		tcb, err := NewControlBlock(loader.AppImage(i), i)
		if err != nil {
			return nil, err
		}
		tasks[i] = tcb
	}

	return &Manager{tasks: tasks}, nil
}

// RunFirst schedules task 0 and switches into it from a throwaway context.
// It never returns; control re-enters the kernel only through traps.
func (m *Manager) RunFirst() {
	m.lock.Acquire()
	first := m.tasks[0]
	first.setStatus(StatusRunning)
	first.stats.markScheduled(timer.NowMicros())
	nextCtx := &first.ctx
	m.lock.Release()

	var parked Context
	switchContext(&parked, nextCtx)
	kernel.Panic(errSwitchReturned)
}

// YieldCurrent suspends the running task and hands the core to the next
// runnable one.
func (m *Manager) YieldCurrent() {
	m.lock.Acquire()
	m.tasks[m.current].setStatus(StatusReady)
	m.lock.Release()

	m.switchToNext()
}

// ExitCurrent terminates the running task and hands the core to the next
// runnable one. The task is never resumed.
func (m *Manager) ExitCurrent() {
	m.lock.Acquire()
	m.tasks[m.current].setStatus(StatusExited)
	m.lock.Release()

	m.switchToNext()
}

// findNext scans the table in round-robin order starting right after the
// running task, wrapping modulo the task count, and picks the first Ready
// task. The caller must hold the manager lock.
func (m *Manager) findNext() (int, bool) {
	numTasks := len(m.tasks)
	for offset := 1; offset <= numTasks; offset++ {
		id := (m.current + offset) % numTasks
		if m.tasks[id].status == StatusReady {
			return id, true
		}
	}
	return 0, false
}

// switchToNext transfers control to the next runnable task, or ends the
// session when none remains.
func (m *Manager) switchToNext() {
	m.lock.Acquire()

	next, ok := m.findNext()
	if !ok {
		m.lock.Release()
		shutdownFn()
		return
	}

	current := m.current
	m.tasks[next].setStatus(StatusRunning)
	m.tasks[next].stats.markScheduled(timer.NowMicros())
	m.current = next

	currentCtx := &m.tasks[current].ctx
	nextCtx := &m.tasks[next].ctx

	// the switch may not return until this task is scheduled again
	m.lock.Release()
	switchContext(currentCtx, nextCtx)
}

// RecordSyscall bumps the running task's invocation counter for the given
// syscall id.
func (m *Manager) RecordSyscall(id int) {
	if id < 0 || id >= NumSyscalls {
		return
	}

	m.lock.Acquire()
	m.tasks[m.current].stats.SyscallTimes[id]++
	m.lock.Release()
}

// CurrentToken returns the running task's address-space token.
func (m *Manager) CurrentToken() uint64 {
	m.lock.Acquire()
	token := m.tasks[m.current].Token()
	m.lock.Release()
	return token
}

// CurrentTrapFrame returns the running task's trap context.
func (m *Manager) CurrentTrapFrame() *trap.Frame {
	m.lock.Acquire()
	frame := m.tasks[m.current].TrapFrame()
	m.lock.Release()
	return frame
}

// Info reports the running task's status, syscall counters and the
// milliseconds elapsed since it was first scheduled.
func (m *Manager) Info() (Status, [NumSyscalls]uint32, uint64) {
	m.lock.Acquire()
	current := m.tasks[m.current]
	status := current.status
	times := current.stats.SyscallTimes
	elapsed := current.stats.elapsedMillis(timer.NowMicros())
	m.lock.Release()

	return status, times, elapsed
}

// MapRegion maps [start, start+length), rounded to page granularity, into
// the running task's address space with the given flags, backing it with
// freshly allocated frames. Regions overlapping any existing mapping are
// rejected without effect.
func (m *Manager) MapRegion(start, length uintptr, flags vmm.Flag) *kernel.Error {
	m.lock.Acquire()
	err := m.tasks[m.current].space.InsertFramedRegion(start, start+length, flags)
	m.lock.Release()
	return err
}

// UnmapRegion removes the page-rounded region [start, start+length) from
// the running task's address space, releasing its frames. If any page of
// the region is unmapped the whole call is rejected without effect.
func (m *Manager) UnmapRegion(start, length uintptr) *kernel.Error {
	m.lock.Acquire()
	err := m.tasks[m.current].space.RemoveRegion(start, start+length)
	m.lock.Release()
	return err
}
