package vmm

import (
	"unsafe"

	"ospreyos/kernel"
	"ospreyos/kernel/loader"
	"ospreyos/kernel/mm"
	"ospreyos/kernel/mm/pmm"
)

var (
	// kernelSpace holds the kernel's own mappings, including every task's
	// kernel-mode stack.
	kernelSpace *AddressSpace

	// trampolineTracker owns the single physical frame that every address
	// space maps at TrampolineAddr.
	trampolineTracker *pmm.Tracker

	errSegmentOverflow = &kernel.Error{Module: "vmm", Message: "segment extends past the trap context page"}
)

// Init creates the kernel address space and the shared trampoline frame.
// It must run after pmm.Init and before any task is constructed.
func Init() *kernel.Error {
	tracker, err := pmm.NewTracker()
	if err != nil {
		return err
	}
	trampolineTracker = tracker

	kernelSpace = NewAddressSpace()
	return kernelSpace.MapShared(mm.PageFromAddress(TrampolineAddr), trampolineTracker.Frame())
}

// KernelSpace returns the kernel's own address space.
func KernelSpace() *AddressSpace {
	return kernelSpace
}

// BuildFromImage constructs a task's address space from a packed
// application image: the image's loadable segments, a guard gap, the user
// stack, the trap-context page and the shared trampoline page. It returns
// the new space together with the initial user stack pointer and the entry
// address.
func BuildFromImage(imageData []byte) (as *AddressSpace, userSP, entry uintptr, err *kernel.Error) {
	img, err := loader.Parse(imageData)
	if err != nil {
		return nil, 0, 0, err
	}

	as = NewAddressSpace()

	var maxEnd uintptr
	for i := range img.Segments {
		seg := &img.Segments[i]
		segEnd := seg.VirtAddr + seg.MemSize

		if segEnd > TrapContextAddr {
			return nil, 0, 0, errSegmentOverflow
		}
		if err = as.InsertFramedRegion(seg.VirtAddr, segEnd, segmentFlags(seg.Flags)); err != nil {
			return nil, 0, 0, err
		}
		if err = as.writeBytes(seg.VirtAddr, seg.Data); err != nil {
			return nil, 0, 0, err
		}

		if segEnd > maxEnd {
			maxEnd = segEnd
		}
	}

	// user stack above the image, separated by an unmapped guard gap
	stackBottom := mm.PageFromAddressRoundUp(maxEnd).Address() + GuardGapSize
	if err = as.InsertFramedRegion(stackBottom, stackBottom+UserStackSize, FlagRead|FlagWrite|FlagUser); err != nil {
		return nil, 0, 0, err
	}
	userSP = stackBottom + UserStackSize

	// trap-context page, kernel-only
	if err = as.InsertFramedRegion(TrapContextAddr, TrapContextAddr+mm.PageSize, FlagRead|FlagWrite); err != nil {
		return nil, 0, 0, err
	}

	if err = as.MapShared(mm.PageFromAddress(TrampolineAddr), trampolineTracker.Frame()); err != nil {
		return nil, 0, 0, err
	}

	return as, userSP, img.Entry, nil
}

// segmentFlags converts image segment permissions into mapping flags. User
// segments are always user-accessible.
func segmentFlags(segFlags uint32) Flag {
	flags := FlagUser
	if segFlags&loader.SegRead != 0 {
		flags |= FlagRead
	}
	if segFlags&loader.SegWrite != 0 {
		flags |= FlagWrite
	}
	if segFlags&loader.SegExec != 0 {
		flags |= FlagExec
	}
	return flags
}

// writeBytes copies data into the space's frames page by page, starting at
// the given virtual address. The target range must already be mapped.
func (as *AddressSpace) writeBytes(virtAddr uintptr, data []byte) *kernel.Error {
	for written := 0; written < len(data); {
		physAddr, err := as.Translate(virtAddr)
		if err != nil {
			return err
		}

		chunk := int(mm.PageSize - mm.PageOffset(virtAddr))
		if remaining := len(data) - written; chunk > remaining {
			chunk = remaining
		}

		target := unsafe.Slice((*byte)(unsafe.Pointer(physAddr)), chunk)
		copy(target, data[written:written+chunk])

		written += chunk
		virtAddr += uintptr(chunk)
	}

	return nil
}
