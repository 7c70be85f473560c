package pmm

import (
	"ospreyos/kernel"
	"ospreyos/kernel/mm"
)

var (
	// memsetFn zero-fills freshly allocated frames. Tests that use fake
	// frame numbers with no memory behind them swap it out.
	memsetFn = kernel.Memset

	errTrackerReleasedTwice = &kernel.Error{Module: "pmm", Message: "frame tracker released twice"}
)

// Tracker is the owning handle over exactly one physical frame. At most one
// live Tracker exists per frame; whoever holds the Tracker owns the frame
// and must release it on exactly one exit path. Ownership may be handed
// over but never shared.
type Tracker struct {
	frame mm.Frame
}

// NewTracker reserves a frame from the active allocator and wraps it in an
// owning Tracker. The frame contents are zero-filled so no data leaks
// between successive owners.
func NewTracker() (*Tracker, *kernel.Error) {
	frame, err := mm.AllocFrame()
	if err != nil {
		return nil, err
	}

	memsetFn(frame.Address(), 0, mm.PageSize)
	return &Tracker{frame: frame}, nil
}

// Frame returns the tracked frame number.
func (t *Tracker) Frame() mm.Frame {
	return t.frame
}

// Release returns the tracked frame to the allocator. Each Tracker must be
// released exactly once; a second release is an ownership bug and halts the
// kernel.
func (t *Tracker) Release() {
	if !t.frame.Valid() {
		kernel.Panic(errTrackerReleasedTwice)
	}

	mm.FreeFrame(t.frame)
	t.frame = mm.InvalidFrame
}
