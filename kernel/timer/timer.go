// Package timer exposes the monotonic clock used for task statistics and
// the get_time syscall.
package timer

// MicrosPerSec is the resolution of the kernel clock.
const MicrosPerSec = 1_000_000

var (
	// sourceFn reads the hardware counter, in microseconds since boot.
	// The boot sequence installs the platform counter; while no source is
	// installed the clock reads zero.
	sourceFn func() uint64
)

// SetSource installs the hardware counter backing the kernel clock.
func SetSource(fn func() uint64) {
	sourceFn = fn
}

// NowMicros returns the number of microseconds since boot.
func NowMicros() uint64 {
	if sourceFn == nil {
		return 0
	}
	return sourceFn()
}
