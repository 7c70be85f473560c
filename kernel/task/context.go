package task

import "ospreyos/kernel"

// Context is the callee-saved register set needed to resume a task's
// kernel-mode execution after a context switch: the return address the
// switch resumes at, the kernel stack pointer and the saved registers.
type Context struct {
	RA uintptr
	SP uintptr
	S  [12]uintptr
}

var (
	// trapReturnVector is the address of the trap-return entry point. A
	// freshly constructed task resumes there on its first switch-in,
	// which drops it into user mode at its entry point.
	trapReturnVector uintptr

	// trapHandlerVector is the address of the kernel trap dispatch
	// routine, recorded in every task's trap frame.
	trapHandlerVector uintptr

	// switchContextFn suspends the calling control stack into cur and
	// resumes the one saved in next. This is not a normal call: it may
	// only "return" much later, when another task switches back, so any
	// lock on shared state must be released before invoking it. The boot
	// sequence installs the arch implementation.
	switchContextFn func(cur, next *Context)

	errNoSwitchImpl = &kernel.Error{Module: "task", Message: "no context switch primitive installed"}
)

// SetTrapVectors records the trap-return and trap-handler entry points used
// when constructing tasks.
func SetTrapVectors(trapReturn, trapHandler uintptr) {
	trapReturnVector = trapReturn
	trapHandlerVector = trapHandler
}

// SetContextSwitch installs the context switch primitive.
func SetContextSwitch(fn func(cur, next *Context)) {
	switchContextFn = fn
}

// newContext builds the context a task is first switched in through:
// execution "returns" to the trap-return entry point on the task's kernel
// stack.
func newContext(kernelSP uintptr) Context {
	return Context{RA: trapReturnVector, SP: kernelSP}
}

// switchContext transfers control to the task owning next, saving the
// current control stack into cur.
func switchContext(cur, next *Context) {
	if switchContextFn == nil {
		kernel.Panic(errNoSwitchImpl)
	}
	switchContextFn(cur, next)
}
