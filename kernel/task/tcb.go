package task

import (
	"ospreyos/kernel"
	"ospreyos/kernel/mm"
	"ospreyos/kernel/mm/vmm"
	"ospreyos/kernel/trap"
)

// NumSyscalls bounds the syscall id space tracked by the per-task
// invocation counters.
const NumSyscalls = 500

const (
	// KernelStackSize is the size of the kernel-mode stack mapped for
	// each task.
	KernelStackSize = 2 * mm.PageSize

	// kernelStackGuard is the unmapped gap between neighboring kernel
	// stacks, so one task overflowing its stack faults instead of
	// corrupting its neighbor's.
	kernelStackGuard = mm.PageSize
)

// kernelStackRange computes the placement of a task's kernel stack from its
// table index. Stacks grow down from just below the trampoline page,
// separated by guard gaps.
func kernelStackRange(id int) (bottom, top uintptr) {
	top = vmm.TrampolineAddr - uintptr(id)*(KernelStackSize+kernelStackGuard)
	bottom = top - KernelStackSize
	return bottom, top
}

// Stats carries the per-task scheduling and syscall accounting reported by
// the task_info syscall.
type Stats struct {
	// scheduledAt is the clock reading (microseconds) of the task's first
	// switch-in; valid only once scheduled is set.
	scheduledAt uint64
	scheduled   bool

	// SyscallTimes counts invocations per syscall id.
	SyscallTimes [NumSyscalls]uint32
}

// markScheduled records the first-scheduled timestamp. Later switch-ins
// leave it untouched.
func (s *Stats) markScheduled(nowMicros uint64) {
	if !s.scheduled {
		s.scheduledAt = nowMicros
		s.scheduled = true
	}
}

// elapsedMillis returns the milliseconds since the task was first
// scheduled.
func (s *Stats) elapsedMillis(nowMicros uint64) uint64 {
	if !s.scheduled {
		return 0
	}
	return (nowMicros - s.scheduledAt) / 1000
}

// ControlBlock is the kernel bookkeeping structure of one task. A control
// block is created once at boot from the task's application image and is
// never destroyed; its identity is its index in the manager's task table.
type ControlBlock struct {
	status Status
	ctx    Context
	stats  Stats

	// space owns the task's page-table root and every frame mapped into
	// it: image segments, user stack and trap-context page.
	space *vmm.AddressSpace

	// trapCtxPhys caches the physical address of the trap-context page.
	// The translation is performed once, here; trap-time code reaches the
	// frame through this cache since it cannot assume any page table is
	// active.
	trapCtxPhys uintptr

	// base records the initial user stack pointer, which doubles as the
	// size of the task's initial image-plus-stack region.
	base uintptr
}

// NewControlBlock constructs the control block of the application with the
// given table index: its address space, kernel stack, first-switch context
// and trap frame.
func NewControlBlock(imageData []byte, id int) (*ControlBlock, *kernel.Error) {
	space, userSP, entry, err := vmm.BuildFromImage(imageData)
	if err != nil {
		return nil, err
	}

	trapCtxPhys, err := space.Translate(vmm.TrapContextAddr)
	if err != nil {
		return nil, err
	}

	kstackBottom, kstackTop := kernelStackRange(id)
	if err = vmm.KernelSpace().InsertFramedRegion(kstackBottom, kstackTop, vmm.FlagRead|vmm.FlagWrite); err != nil {
		return nil, err
	}

	tcb := &ControlBlock{
		status:      StatusUninitialized,
		space:       space,
		trapCtxPhys: trapCtxPhys,
		base:        userSP,
	}
	tcb.setStatus(StatusReady)
	tcb.ctx = newContext(kstackTop)

	// first trap return lands in user mode at the entry point
	tcb.TrapFrame().AppInit(entry, userSP, vmm.KernelSpace().Token(), kstackTop, trapHandlerVector)

	return tcb, nil
}

// setStatus moves the task through its lifecycle, halting on transitions
// the state machine does not allow (such as resuming an exited task).
func (t *ControlBlock) setStatus(next Status) {
	if !t.status.canBecome(next) {
		kernel.Panic(errBadTransition)
	}
	t.status = next
}

// Status returns the task's current execution state.
func (t *ControlBlock) Status() Status {
	return t.status
}

// Token returns the task's address-space token.
func (t *ControlBlock) Token() uint64 {
	return t.space.Token()
}

// TrapFrame returns the task's trap context through its cached physical
// page.
func (t *ControlBlock) TrapFrame() *trap.Frame {
	return trap.FrameAt(t.trapCtxPhys)
}
