// Package mm defines the page geometry and the physical frame / virtual page
// index types shared by the memory-management packages, together with the
// registration point for the active physical frame allocator.
package mm

import (
	"math"

	"ospreyos/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
// Addresses that are not page-aligned are rounded down.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// PageFromAddressRoundUp returns the Page whose start address is the given
// virtual address rounded up to the next page boundary. It is used to compute
// the exclusive end page of an address range.
func PageFromAddressRoundUp(virtAddr uintptr) Page {
	return Page(((virtAddr + PageSize - 1) & ^(PageSize - 1)) >> PageShift)
}

// PageOffset returns the offset within the page that contains the virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (PageSize - 1)
}

// PageAligned returns true if the given address sits on a page boundary.
func PageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameReleaser points to a frame release function registered using
	// SetFrameAllocator.
	frameReleaser FrameReleaserFn

	errNoAllocator = &kernel.Error{Module: "mm", Message: "no physical frame allocator registered"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameReleaserFn is a function that returns a physical frame to its
// allocator.
type FrameReleaserFn func(Frame)

// SetFrameAllocator registers the allocate/release pair that the vmm code
// uses whenever physical frames need to be reserved or returned.
func SetFrameAllocator(allocFn FrameAllocatorFn, releaseFn FrameReleaserFn) {
	frameAllocator = allocFn
	frameReleaser = releaseFn
}

// AllocFrame reserves a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, errNoAllocator
	}
	return frameAllocator()
}

// FreeFrame returns a physical frame to the currently active physical frame
// allocator. Releasing with no registered allocator is an invariant
// violation.
func FreeFrame(frame Frame) {
	if frameReleaser == nil {
		kernel.Panic(errNoAllocator)
	}
	frameReleaser(frame)
}
