package pmm

import (
	"testing"
	"unsafe"

	"ospreyos/kernel"
	"ospreyos/kernel/mm"
)

// catchHalt installs a halt hook that converts kernel fatality into a Go
// panic the test can recover, and returns a restore function.
func catchHalt() func() {
	kernel.SetHaltFn(func() { panic("kernel halted") })
	return func() {
		kernel.SetHaltFn(func() {
			for {
			}
		})
	}
}

// expectFatal runs fn and reports whether it tripped the halt hook.
func expectFatal(fn func()) (halted bool) {
	defer func() {
		if recover() != nil {
			halted = true
		}
	}()
	fn()
	return false
}

func resetAllocator(start, end mm.Frame) {
	stackAllocator = StackAllocator{}
	stackAllocator.InitRange(start, end)
}

func TestAllocFrameLinearRange(t *testing.T) {
	resetAllocator(100, 104)

	for want := mm.Frame(100); want < 104; want++ {
		frame, err := stackAllocator.AllocFrame()
		if err != nil {
			t.Fatalf("unexpected allocator error: %v", err)
		}
		if frame != want {
			t.Fatalf("expected allocated frame to be %d; got %d", want, frame)
		}
	}

	// linear range exhausted with nothing recycled
	if _, err := stackAllocator.AllocFrame(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
}

func TestAllocFrameLIFOReuse(t *testing.T) {
	resetAllocator(0, 16)

	for i := 0; i < 4; i++ {
		if _, err := stackAllocator.AllocFrame(); err != nil {
			t.Fatalf("unexpected allocator error: %v", err)
		}
	}

	stackAllocator.FreeFrame(1)
	stackAllocator.FreeFrame(3)

	// recycled frames come back most-recently-freed first
	for _, want := range []mm.Frame{3, 1, 4} {
		frame, err := stackAllocator.AllocFrame()
		if err != nil {
			t.Fatalf("unexpected allocator error: %v", err)
		}
		if frame != want {
			t.Fatalf("expected allocated frame to be %d; got %d", want, frame)
		}
	}
}

func TestAllocFrameExhaustionIsRecoverable(t *testing.T) {
	defer catchHalt()()
	resetAllocator(7, 7)

	fatal := expectFatal(func() {
		if _, err := stackAllocator.AllocFrame(); err != ErrOutOfMemory {
			t.Errorf("expected ErrOutOfMemory; got %v", err)
		}
	})
	if fatal {
		t.Fatal("exhaustion must be reported to the caller, not halt the kernel")
	}
}

func TestFreeFrameInvariantViolations(t *testing.T) {
	defer catchHalt()()

	specs := []struct {
		descr string
		fn    func()
	}{
		{
			"free of a never-allocated frame",
			func() {
				resetAllocator(10, 20)
				stackAllocator.FreeFrame(15)
			},
		},
		{
			"double free",
			func() {
				resetAllocator(10, 20)
				stackAllocator.AllocFrame()
				stackAllocator.FreeFrame(10)
				stackAllocator.FreeFrame(10)
			},
		},
	}

	for specIndex, spec := range specs {
		if !expectFatal(spec.fn) {
			t.Errorf("[spec %d] expected %s to halt the kernel", specIndex, spec.descr)
		}
	}
}

func TestTrackerOwnership(t *testing.T) {
	defer catchHalt()()
	defer func(origMemset func(uintptr, byte, uintptr)) { memsetFn = origMemset }(memsetFn)

	// Back the managed range with real memory so zero-fill is exercised.
	arena := make([]byte, 8*int(mm.PageSize))
	arenaStart := uintptr(unsafe.Pointer(&arena[0]))
	startFrame := mm.Frame(mm.PageFromAddressRoundUp(arenaStart))

	stackAllocator = StackAllocator{}
	Init(arenaStart, arenaStart+uintptr(len(arena)))

	// dirty the first usable frame before it is handed out
	for i := uintptr(0); i < mm.PageSize; i++ {
		arena[startFrame.Address()-arenaStart+i] = 0xaa
	}

	tracker, err := NewTracker()
	if err != nil {
		t.Fatalf("unexpected allocator error: %v", err)
	}
	if tracker.Frame() != startFrame {
		t.Fatalf("expected tracker to own frame %d; got %d", startFrame, tracker.Frame())
	}

	base := tracker.Frame().Address() - arenaStart
	for i := uintptr(0); i < mm.PageSize; i++ {
		if arena[base+i] != 0 {
			t.Fatalf("expected frame contents to be zero-filled; byte %d is 0x%x", i, arena[base+i])
		}
	}

	// releasing hands the frame back; the next allocation reuses it
	tracker.Release()
	next, err := NewTracker()
	if err != nil {
		t.Fatalf("unexpected allocator error: %v", err)
	}
	if next.Frame() != startFrame {
		t.Fatalf("expected released frame %d to be reused; got %d", startFrame, next.Frame())
	}

	if !expectFatal(func() { tracker.Release() }) {
		t.Error("expected a second Release of the same tracker to halt the kernel")
	}
}

func TestInitRegistersAllocator(t *testing.T) {
	defer func(origMemset func(uintptr, byte, uintptr)) { memsetFn = origMemset }(memsetFn)
	memsetFn = func(uintptr, byte, uintptr) {}

	stackAllocator = StackAllocator{}
	Init(0x200000, 0x205000)

	frame, err := mm.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected allocator error: %v", err)
	}
	if want := mm.FrameFromAddress(0x200000); frame != want {
		t.Fatalf("expected first frame after the kernel image to be %d; got %d", want, frame)
	}

	mm.FreeFrame(frame)
	again, err := mm.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected allocator error: %v", err)
	}
	if again != frame {
		t.Fatalf("expected LIFO reuse of frame %d; got %d", frame, again)
	}
}
