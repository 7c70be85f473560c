package vmm

import "ospreyos/kernel/mm"

const (
	// TrampolineAddr is the virtual address of the trampoline page: the
	// highest page of every address space, mapped to the same physical
	// frame everywhere so that user/kernel transitions survive the page
	// table switch.
	TrampolineAddr = ^uintptr(0) - mm.PageSize + 1

	// TrapContextAddr is the virtual address of the per-task trap-context
	// page, sitting directly below the trampoline.
	TrapContextAddr = TrampolineAddr - mm.PageSize

	// UserStackSize is the size of the user-mode stack mapped above each
	// application image.
	UserStackSize = 2 * mm.PageSize

	// GuardGapSize is the unmapped gap left below the user stack so a
	// stack overflow faults instead of corrupting the image.
	GuardGapSize = mm.PageSize
)

// Flag describes the access permissions of a mapped page.
type Flag uint8

const (
	// FlagRead marks a page readable.
	FlagRead Flag = 1 << 1

	// FlagWrite marks a page writable.
	FlagWrite Flag = 1 << 2

	// FlagExec marks a page executable.
	FlagExec Flag = 1 << 3

	// FlagUser makes a page accessible from user mode.
	FlagUser Flag = 1 << 4
)
