package kernel

import "ospreyos/kernel/kfmt"

var (
	// haltFn parks the CPU. Boot code replaces it with the arch-specific
	// halt instruction; tests install a hook so fatal paths can be
	// observed instead of hanging the test binary.
	haltFn = func() {
		for {
		}
	}

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// SetHaltFn installs the function used to park the CPU once the kernel
// cannot make further progress.
func SetHaltFn(fn func()) { haltFn = fn }

// Panic reports an unrecoverable error and halts. It is reserved for
// invariant violations: state is assumed corrupted and no recovery is
// attempted. Calls to Panic never return.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	kfmt.Printf("\n-----------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** kernel panic: system halted ***\n")
	kfmt.Printf("-----------------------------------\n")

	Halt()
}

// Halt parks the CPU without reporting an error. The scheduler uses it when
// every task has exited, which ends the session by design.
func Halt() {
	haltFn()
}
