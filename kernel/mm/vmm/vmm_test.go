package vmm

import (
	"testing"
	"unsafe"

	"ospreyos/kernel"
	"ospreyos/kernel/loader"
	"ospreyos/kernel/mm"
)

// setupTestEnv backs the frame allocator with real memory so that
// zero-fill, segment loading and translation reach actual bytes, then
// re-initializes the vmm (kernel space + trampoline).
func setupTestEnv(t *testing.T, numFrames int) {
	t.Helper()

	arena := make([]byte, (numFrames+1)*int(mm.PageSize))
	arenaStart := uintptr(unsafe.Pointer(&arena[0]))

	next := mm.Frame(mm.PageFromAddressRoundUp(arenaStart))
	end := mm.FrameFromAddress(arenaStart + uintptr(len(arena)))

	var recycled []mm.Frame
	mm.SetFrameAllocator(
		func() (mm.Frame, *kernel.Error) {
			// the arena slice stays reachable through this closure
			_ = arena

			if top := len(recycled) - 1; top >= 0 {
				frame := recycled[top]
				recycled = recycled[:top]
				return frame, nil
			}
			if next == end {
				return mm.InvalidFrame, &kernel.Error{Module: "vmm_test", Message: "arena exhausted"}
			}
			frame := next
			next++
			return frame, nil
		},
		func(frame mm.Frame) {
			recycled = append(recycled, frame)
		},
	)

	if err := Init(); err != nil {
		t.Fatalf("vmm.Init: %v", err)
	}
}

func TestInsertFramedRegionOverlap(t *testing.T) {
	setupTestEnv(t, 16)

	as := NewAddressSpace()
	if err := as.InsertFramedRegion(0x10000, 0x12000, FlagRead|FlagWrite|FlagUser); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	// overlaps the second page of the existing region
	if err := as.InsertFramedRegion(0x11000, 0x13000, FlagRead|FlagUser); err != ErrRegionOverlap {
		t.Fatalf("expected ErrRegionOverlap; got %v", err)
	}

	// the rejected call must leave the space untouched
	if as.IsMapped(mm.PageFromAddress(0x12000)) {
		t.Error("expected rejected insert to map no pages")
	}
	if !as.IsMapped(mm.PageFromAddress(0x10000)) || !as.IsMapped(mm.PageFromAddress(0x11000)) {
		t.Error("expected the original region to remain mapped")
	}
}

func TestRemoveRegionCompleteness(t *testing.T) {
	setupTestEnv(t, 16)

	as := NewAddressSpace()
	if err := as.InsertFramedRegion(0x20000, 0x22000, FlagRead|FlagUser); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	// region extends one page past the mapping; nothing may be unmapped
	if err := as.RemoveRegion(0x20000, 0x23000); err != ErrRegionNotMapped {
		t.Fatalf("expected ErrRegionNotMapped; got %v", err)
	}
	for addr := uintptr(0x20000); addr < 0x22000; addr += mm.PageSize {
		if !as.IsMapped(mm.PageFromAddress(addr)) {
			t.Fatalf("expected page at 0x%x to survive the rejected removal", addr)
		}
	}

	if err := as.RemoveRegion(0x20000, 0x22000); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if as.IsMapped(mm.PageFromAddress(0x20000)) || as.IsMapped(mm.PageFromAddress(0x21000)) {
		t.Error("expected no residual mappings after removal")
	}
}

func TestMapUnmapRoundTrip(t *testing.T) {
	setupTestEnv(t, 16)

	as := NewAddressSpace()
	for round := 0; round < 3; round++ {
		if err := as.InsertFramedRegion(0x30000, 0x32000, FlagRead|FlagWrite|FlagUser); err != nil {
			t.Fatalf("[round %d] unexpected insert error: %v", round, err)
		}
		if err := as.RemoveRegion(0x30000, 0x32000); err != nil {
			t.Fatalf("[round %d] unexpected remove error: %v", round, err)
		}
	}

	if _, err := as.Translate(0x30000); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping after round trips; got %v", err)
	}
}

func TestTranslate(t *testing.T) {
	setupTestEnv(t, 16)

	as := NewAddressSpace()
	if err := as.InsertFramedRegion(0x40000, 0x41000, FlagRead|FlagWrite|FlagUser); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	physAddr, err := as.Translate(0x40123)
	if err != nil {
		t.Fatalf("unexpected translate error: %v", err)
	}
	if mm.PageOffset(physAddr) != 0x123 {
		t.Errorf("expected page offset to be preserved; got 0x%x", mm.PageOffset(physAddr))
	}

	// writes through the physical address land in the mapped frame
	*(*byte)(unsafe.Pointer(physAddr)) = 0x5a
	again, err := as.Translate(0x40123)
	if err != nil {
		t.Fatalf("unexpected translate error: %v", err)
	}
	if got := *(*byte)(unsafe.Pointer(again)); got != 0x5a {
		t.Errorf("expected to read back 0x5a; got 0x%x", got)
	}

	if _, err = as.Translate(0x50000); err != ErrInvalidMapping {
		t.Errorf("expected ErrInvalidMapping for an unmapped address; got %v", err)
	}
}

func TestTranslateToken(t *testing.T) {
	setupTestEnv(t, 16)

	as := NewAddressSpace()
	if err := as.InsertFramedRegion(0x60000, 0x61000, FlagRead|FlagUser); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	if _, err := TranslateToken(as.Token(), 0x60010); err != nil {
		t.Fatalf("unexpected translate error: %v", err)
	}
	if _, err := TranslateToken(0xdeadbeef, 0x60010); err != errUnknownToken {
		t.Fatalf("expected errUnknownToken; got %v", err)
	}
}

func TestBuildFromImage(t *testing.T) {
	setupTestEnv(t, 32)

	text := []byte{0x13, 0x05, 0x10, 0x00, 0x73}
	img := loader.Encode(&loader.Image{
		Entry: 0x10000,
		Segments: []loader.Segment{
			{VirtAddr: 0x10000, MemSize: 0x1000, Flags: loader.SegRead | loader.SegExec, Data: text},
		},
	})

	as, userSP, entry, err := BuildFromImage(img)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if entry != 0x10000 {
		t.Errorf("expected entry 0x10000; got 0x%x", entry)
	}

	// the stack sits one guard gap above the image
	expSP := uintptr(0x11000) + GuardGapSize + UserStackSize
	if userSP != expSP {
		t.Errorf("expected user SP 0x%x; got 0x%x", expSP, userSP)
	}
	if as.IsMapped(mm.PageFromAddress(0x11000)) {
		t.Error("expected the guard gap to stay unmapped")
	}

	// segment payload was copied into the backing frame
	physAddr, terr := as.Translate(0x10000)
	if terr != nil {
		t.Fatalf("unexpected translate error: %v", terr)
	}
	got := unsafe.Slice((*byte)(unsafe.Pointer(physAddr)), len(text))
	for i := range text {
		if got[i] != text[i] {
			t.Fatalf("expected segment byte %d to be 0x%x; got 0x%x", i, text[i], got[i])
		}
	}

	// trap context page and trampoline are in place
	if _, terr = as.Translate(TrapContextAddr); terr != nil {
		t.Errorf("expected the trap context page to be mapped: %v", terr)
	}
	if !as.IsMapped(mm.PageFromAddress(TrampolineAddr)) {
		t.Error("expected the trampoline page to be mapped")
	}

	// the trampoline frame is shared with the kernel space
	userPhys, _ := as.Translate(TrampolineAddr)
	kernPhys, terr := KernelSpace().Translate(TrampolineAddr)
	if terr != nil {
		t.Fatalf("unexpected kernel space translate error: %v", terr)
	}
	if userPhys != kernPhys {
		t.Error("expected user and kernel trampolines to share one frame")
	}
}

func TestBuildFromImageRejectsBadImage(t *testing.T) {
	setupTestEnv(t, 16)

	if _, _, _, err := BuildFromImage([]byte("garbage")); err != loader.ErrBadImage {
		t.Fatalf("expected ErrBadImage; got %v", err)
	}
}
