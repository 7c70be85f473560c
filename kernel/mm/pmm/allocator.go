// Package pmm implements the kernel's physical frame allocator.
//
// Frames are handed out from a flat physical range fixed at boot. Released
// frames are recycled in LIFO order which keeps repeated alloc/free cycles
// operating on the same, recently touched frames.
package pmm

import (
	"ospreyos/kernel"
	"ospreyos/kernel/mm"
	"ospreyos/kernel/sync"
)

var (
	// stackAllocator is the standard allocator used by the kernel. Its
	// usable range is fixed exactly once by Init before any allocation
	// can take place.
	stackAllocator StackAllocator

	allocatorLock sync.Spinlock

	// ErrOutOfMemory signals that both the linear range and the recycled
	// stack are exhausted. Exhaustion is reported to the caller rather
	// than treated as a kernel bug.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

	errFreeUnallocated = &kernel.Error{Module: "pmm", Message: "freed frame was never allocated"}
	errDoubleFree      = &kernel.Error{Module: "pmm", Message: "frame freed twice"}
)

// StackAllocator hands out physical frames from the range [current, end) and
// keeps released frames on a stack for LIFO reuse.
//
// Invariants: current <= end; every recycled frame number is below current
// and held by no live tracker; current never rewinds.
type StackAllocator struct {
	current mm.Frame
	end     mm.Frame

	recycled []mm.Frame
}

// InitRange fixes the frame range managed by the allocator.
func (alloc *StackAllocator) InitRange(start, end mm.Frame) {
	alloc.current = start
	alloc.end = end
}

// AllocFrame reserves the most recently recycled frame or, when no recycled
// frame is pending, the next frame of the linear range. It returns
// ErrOutOfMemory when the managed range is exhausted.
func (alloc *StackAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if top := len(alloc.recycled) - 1; top >= 0 {
		frame := alloc.recycled[top]
		alloc.recycled = alloc.recycled[:top]
		return frame, nil
	}

	if alloc.current == alloc.end {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	frame := alloc.current
	alloc.current++
	return frame, nil
}

// FreeFrame pushes a previously allocated frame onto the recycled stack.
// Freeing a frame that was never handed out, or freeing the same frame
// twice, indicates a corrupted ownership chain and halts the kernel.
func (alloc *StackAllocator) FreeFrame(frame mm.Frame) {
	if frame >= alloc.current {
		kernel.Panic(errFreeUnallocated)
	}

	for _, recycledFrame := range alloc.recycled {
		if recycledFrame == frame {
			kernel.Panic(errDoubleFree)
		}
	}

	alloc.recycled = append(alloc.recycled, frame)
}

// Init fixes the physical range managed by the kernel allocator to the
// frames between the end of the loaded kernel image (rounded up) and the
// top of usable memory (rounded down), and registers the allocator as the
// system frame source.
func Init(kernelEnd, memoryEnd uintptr) {
	stackAllocator.InitRange(
		mm.Frame(mm.PageFromAddressRoundUp(kernelEnd)),
		mm.FrameFromAddress(memoryEnd),
	)
	mm.SetFrameAllocator(AllocFrame, FreeFrame)
}

// AllocFrame reserves a frame from the kernel allocator.
func AllocFrame() (mm.Frame, *kernel.Error) {
	allocatorLock.Acquire()
	frame, err := stackAllocator.AllocFrame()
	allocatorLock.Release()
	return frame, err
}

// FreeFrame returns a frame to the kernel allocator.
func FreeFrame(frame mm.Frame) {
	allocatorLock.Acquire()
	stackAllocator.FreeFrame(frame)
	allocatorLock.Release()
}
