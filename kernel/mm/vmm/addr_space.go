// Package vmm manages per-task virtual address spaces: framed region
// mappings, the shared trampoline page and virtual-to-physical translation
// by address-space token.
package vmm

import (
	"ospreyos/kernel"
	"ospreyos/kernel/mm"
	"ospreyos/kernel/mm/pmm"
	"ospreyos/kernel/sync"
)

var (
	// ErrRegionOverlap is returned when a framed region insertion touches
	// a page that is already mapped.
	ErrRegionOverlap = &kernel.Error{Module: "vmm", Message: "region overlaps an existing mapping"}

	// ErrRegionNotMapped is returned when a region removal touches a page
	// with no framed mapping.
	ErrRegionNotMapped = &kernel.Error{Module: "vmm", Message: "region contains unmapped pages"}

	// ErrInvalidMapping is returned when translating a virtual address
	// with no mapping in the selected address space.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address not mapped"}

	errUnknownToken = &kernel.Error{Module: "vmm", Message: "unknown address space token"}

	// spaceRegistry resolves address-space tokens for translation. Tokens
	// identify a page-table root; translation via a token mirrors a
	// hardware page-table walk through that root.
	spaceRegistry = struct {
		lock   sync.Spinlock
		next   uint64
		spaces map[uint64]*AddressSpace
	}{next: 1, spaces: make(map[uint64]*AddressSpace)}
)

// mapping records one framed page: the owning tracker plus its permissions.
type mapping struct {
	tracker *pmm.Tracker
	flags   Flag
}

// AddressSpace owns the page mappings of one task: its framed pages (whose
// backing frames it owns through trackers) and the shared pages mapped into
// it without ownership (the trampoline).
type AddressSpace struct {
	token uint64

	pages  map[mm.Page]mapping
	shared map[mm.Page]mm.Frame
}

// NewAddressSpace creates an empty address space and registers its token
// for translation.
func NewAddressSpace() *AddressSpace {
	as := &AddressSpace{
		pages:  make(map[mm.Page]mapping),
		shared: make(map[mm.Page]mm.Frame),
	}

	spaceRegistry.lock.Acquire()
	as.token = spaceRegistry.next
	spaceRegistry.next++
	spaceRegistry.spaces[as.token] = as
	spaceRegistry.lock.Release()

	return as
}

// Token returns the opaque identifier that selects this address space for
// translation.
func (as *AddressSpace) Token() uint64 {
	return as.token
}

// IsMapped returns true if the given page has any mapping (framed or
// shared) in this address space.
func (as *AddressSpace) IsMapped(page mm.Page) bool {
	if _, ok := as.pages[page]; ok {
		return true
	}
	_, ok := as.shared[page]
	return ok
}

// InsertFramedRegion maps the page range covering [start, end) to freshly
// allocated, zero-filled frames owned by this address space. The call has
// no effect if any page in the range is already mapped or if physical
// memory runs out mid-way.
func (as *AddressSpace) InsertFramedRegion(start, end uintptr, flags Flag) *kernel.Error {
	firstPage := mm.PageFromAddress(start)
	endPage := mm.PageFromAddressRoundUp(end)

	for page := firstPage; page < endPage; page++ {
		if as.IsMapped(page) {
			return ErrRegionOverlap
		}
	}

	for page := firstPage; page < endPage; page++ {
		tracker, err := pmm.NewTracker()
		if err != nil {
			// roll back so the failed call leaves no partial region
			for undo := firstPage; undo < page; undo++ {
				as.pages[undo].tracker.Release()
				delete(as.pages, undo)
			}
			return err
		}
		as.pages[page] = mapping{tracker: tracker, flags: flags}
	}

	return nil
}

// RemoveRegion unmaps every page of the page range covering [start, end),
// releasing the backing frames. If any page in the range has no framed
// mapping the whole call is rejected and no page is unmapped.
func (as *AddressSpace) RemoveRegion(start, end uintptr) *kernel.Error {
	firstPage := mm.PageFromAddress(start)
	endPage := mm.PageFromAddressRoundUp(end)

	for page := firstPage; page < endPage; page++ {
		if _, ok := as.pages[page]; !ok {
			return ErrRegionNotMapped
		}
	}

	for page := firstPage; page < endPage; page++ {
		as.pages[page].tracker.Release()
		delete(as.pages, page)
	}

	return nil
}

// MapShared maps a page to a frame this address space does not own. The
// frame survives the mapping; it is never released through this space.
func (as *AddressSpace) MapShared(page mm.Page, frame mm.Frame) *kernel.Error {
	if as.IsMapped(page) {
		return ErrRegionOverlap
	}

	as.shared[page] = frame
	return nil
}

// Translate resolves a virtual address in this address space to the
// physical address backing it.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	page := mm.PageFromAddress(virtAddr)

	var frame mm.Frame
	if m, ok := as.pages[page]; ok {
		frame = m.tracker.Frame()
	} else if f, ok := as.shared[page]; ok {
		frame = f
	} else {
		return 0, ErrInvalidMapping
	}

	return frame.Address() + mm.PageOffset(virtAddr), nil
}

// TranslateToken resolves a virtual address through the address space
// selected by the supplied token. Every syscall that receives a pointer
// argument goes through this path.
func TranslateToken(token uint64, virtAddr uintptr) (uintptr, *kernel.Error) {
	spaceRegistry.lock.Acquire()
	as, ok := spaceRegistry.spaces[token]
	spaceRegistry.lock.Release()

	if !ok {
		return 0, errUnknownToken
	}
	return as.Translate(virtAddr)
}
