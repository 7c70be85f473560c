// Package trap defines the saved user-mode register state captured on
// syscall/exception entry. The trap entry/exit path itself lives in arch
// assembly behind the trampoline page; this package only owns the context
// layout both sides agree on.
package trap

import "unsafe"

// Frame is the register state saved on the per-task trap-context page. The
// kernel reaches it through the physical page cached at task construction
// time: translation at trap time cannot assume any particular page table is
// active.
type Frame struct {
	// Regs holds the general purpose registers of the interrupted task.
	// Regs[2] is the stack pointer slot.
	Regs [32]uintptr

	// Sepc is the user-mode address execution resumes at on trap return.
	Sepc uintptr

	// KernelToken selects the kernel's address space for the page-table
	// switch on trap entry.
	KernelToken uint64

	// KernelSP is the top of this task's kernel-mode stack.
	KernelSP uintptr

	// TrapHandler is the address of the kernel's trap dispatch routine.
	TrapHandler uintptr
}

const spReg = 2

// AppInit fills in the frame a task traps "back" through on its very first
// switch-in, so that the first trap return lands in user mode at the
// application's entry point with its stack pointer set up.
func (f *Frame) AppInit(entry, userSP uintptr, kernelToken uint64, kernelSP, handler uintptr) {
	*f = Frame{}
	f.Regs[spReg] = userSP
	f.Sepc = entry
	f.KernelToken = kernelToken
	f.KernelSP = kernelSP
	f.TrapHandler = handler
}

// SP returns the saved user stack pointer.
func (f *Frame) SP() uintptr {
	return f.Regs[spReg]
}

// FrameAt overlays a Frame on the physical address of a trap-context page.
func FrameAt(physAddr uintptr) *Frame {
	return (*Frame)(unsafe.Pointer(physAddr))
}
