// Package sync provides the synchronization primitives used by the kernel's
// single-instance services (task manager, frame allocator).
package sync

import "sync/atomic"

const spinsBeforeYielding = 64

var (
	// yieldFn is invoked after a number of failed acquisition attempts to
	// give other tasks a chance to release the lock. It is wired to the
	// scheduler's yield once task management is up.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
//
// On this kernel's single core a held lock can only be released by the task
// that acquired it, so any attempt to re-acquire a held lock from the same
// task deadlocks. Locks must be released before a context switch.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
func (l *Spinlock) Acquire() {
	for spins := uint32(0); !l.TryToAcquire(); spins++ {
		if spins >= spinsBeforeYielding && yieldFn != nil {
			spins = 0
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// SetYieldFn installs the function used to yield the processor while a lock
// acquisition is spinning.
func SetYieldFn(fn func()) { yieldFn = fn }
