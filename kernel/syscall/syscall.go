// Package syscall translates raw system-call arguments into effects on the
// task manager and the caller's address space. Pointer arguments are
// virtual addresses in the calling task's address space and are resolved
// through its token before any write.
package syscall

import (
	"unsafe"

	"ospreyos/kernel"
	"ospreyos/kernel/kfmt"
	"ospreyos/kernel/mm"
	"ospreyos/kernel/mm/vmm"
	"ospreyos/kernel/task"
	"ospreyos/kernel/timer"
)

// Syscall numbers.
const (
	SysExit        = 93
	SysYield       = 124
	SysSetPriority = 140
	SysGetTime     = 169
	SysMunmap      = 215
	SysMmap        = 222
	SysTaskInfo    = 410
)

// portMask covers the read/write/execute bits accepted by mmap.
const portMask = 0x7

var errExitReturned = &kernel.Error{Module: "syscall", Message: "exited task resumed its syscall"}

// TimeVal is the seconds/microseconds pair written by get_time.
type TimeVal struct {
	Sec  uintptr
	Usec uintptr
}

// TaskInfo is the accounting snapshot written by task_info.
type TaskInfo struct {
	Status       task.Status
	SyscallTimes [task.NumSyscalls]uint32
	TimeMs       uintptr
}

// Handler routes syscalls to the task manager it was constructed around.
type Handler struct {
	mgr *task.Manager
}

// NewHandler returns a Handler driving the supplied task manager.
func NewHandler(mgr *task.Manager) *Handler {
	return &Handler{mgr: mgr}
}

// Dispatch executes the syscall with the given id and register arguments
// on behalf of the running task and returns the value to place in its
// return register. Negative values report failure. Unknown ids fail
// instead of halting: the id is user input.
func (h *Handler) Dispatch(id int, a0, a1, a2 uintptr) int64 {
	h.mgr.RecordSyscall(id)

	switch id {
	case SysExit:
		h.exit(int32(a0))
		kernel.Panic(errExitReturned)
		return -1
	case SysYield:
		return h.yieldTask()
	case SysGetTime:
		return h.getTime(a0)
	case SysSetPriority:
		return h.setPriority(int64(a0))
	case SysMmap:
		return h.mmap(a0, a1, a2)
	case SysMunmap:
		return h.munmap(a0, a1)
	case SysTaskInfo:
		return h.taskInfo(a0)
	default:
		return -1
	}
}

// exit terminates the calling task. It never returns to its caller.
func (h *Handler) exit(code int32) {
	kfmt.Printf("[kernel] application exited with code %d\n", code)
	h.mgr.ExitCurrent()
}

// yieldTask gives up the core to the next runnable task.
func (h *Handler) yieldTask() int64 {
	h.mgr.YieldCurrent()
	return 0
}

// getTime writes the current clock reading to the caller-supplied TimeVal
// pointer. An unresolvable pointer fails the call instead of touching
// memory.
func (h *Handler) getTime(outAddr uintptr) int64 {
	micros := timer.NowMicros()

	physAddr, err := vmm.TranslateToken(h.mgr.CurrentToken(), outAddr)
	if err != nil {
		return -1
	}

	*(*TimeVal)(unsafe.Pointer(physAddr)) = TimeVal{
		Sec:  uintptr(micros / timer.MicrosPerSec),
		Usec: uintptr(micros % timer.MicrosPerSec),
	}
	return 0
}

// setPriority is a stub: this kernel generation schedules round-robin
// only.
func (h *Handler) setPriority(_ int64) int64 {
	return -1
}

// mmap maps [start, start+length) into the calling task's address space
// with the requested read/write/execute bits. start must be page-aligned,
// the port bits must name at least one permission and nothing else, and
// the region must not overlap an existing mapping.
func (h *Handler) mmap(start, length, port uintptr) int64 {
	if !mm.PageAligned(start) {
		return -1
	}
	if port&^uintptr(portMask) != 0 || port&portMask == 0 {
		return -1
	}

	flags := vmm.Flag(port<<1) | vmm.FlagUser
	if err := h.mgr.MapRegion(start, length, flags); err != nil {
		return -1
	}
	return 0
}

// munmap removes [start, start+length) from the calling task's address
// space. Both arguments must be page-aligned and every page of the region
// must currently be mapped.
func (h *Handler) munmap(start, length uintptr) int64 {
	if !mm.PageAligned(start) || !mm.PageAligned(length) {
		return -1
	}

	if err := h.mgr.UnmapRegion(start, length); err != nil {
		return -1
	}
	return 0
}

// taskInfo writes the calling task's status, syscall counters and elapsed
// run time to the caller-supplied TaskInfo pointer.
func (h *Handler) taskInfo(outAddr uintptr) int64 {
	status, times, elapsedMs := h.mgr.Info()

	physAddr, err := vmm.TranslateToken(h.mgr.CurrentToken(), outAddr)
	if err != nil {
		return -1
	}

	info := (*TaskInfo)(unsafe.Pointer(physAddr))
	info.Status = status
	info.SyscallTimes = times
	info.TimeMs = uintptr(elapsedMs)
	return 0
}
