// Package kmain wires the kernel subsystems together and starts task
// execution. It is invoked by the arch-specific boot stub once the CPU is
// in a known state.
package kmain

import (
	"io"

	"ospreyos/kernel"
	"ospreyos/kernel/kfmt"
	"ospreyos/kernel/loader"
	"ospreyos/kernel/mm/pmm"
	"ospreyos/kernel/mm/vmm"
	"ospreyos/kernel/syscall"
	"ospreyos/kernel/task"
	"ospreyos/kernel/timer"
)

// BootParams carries everything the boot stub knows that the kernel
// cannot discover on its own: the physical memory bounds, the static
// application set and the hardware hooks.
type BootParams struct {
	// KernelEnd is the first physical address past the loaded kernel
	// image; MemoryEnd is the top of usable physical memory.
	KernelEnd, MemoryEnd uintptr

	// Apps is the packed image of every application to run.
	Apps [][]byte

	// Console receives kernel log output.
	Console io.Writer

	// CounterFn reads the platform counter in microseconds since boot.
	CounterFn func() uint64

	// HaltFn parks the CPU.
	HaltFn func()

	// SwitchFn is the arch context switch primitive.
	SwitchFn func(cur, next *task.Context)

	// TrapReturn and TrapHandler are the trampoline entry points tasks
	// are wired to.
	TrapReturn, TrapHandler uintptr
}

// handler serves trap dispatch for the lifetime of the kernel.
var handler *syscall.Handler

// Handler returns the active syscall handler. The trap dispatch path calls
// it on every syscall trap.
func Handler() *syscall.Handler {
	return handler
}

// Kmain initializes the memory and task subsystems and switches into the
// first task. On success it never returns.
func Kmain(params *BootParams) *kernel.Error {
	kfmt.SetOutputSink(params.Console)
	if params.HaltFn != nil {
		kernel.SetHaltFn(params.HaltFn)
	}
	timer.SetSource(params.CounterFn)
	task.SetContextSwitch(params.SwitchFn)
	task.SetTrapVectors(params.TrapReturn, params.TrapHandler)

	kfmt.Printf("[kmain] managing physical range [0x%x - 0x%x)\n", params.KernelEnd, params.MemoryEnd)
	pmm.Init(params.KernelEnd, params.MemoryEnd)
	if err := vmm.Init(); err != nil {
		return err
	}

	loader.SetApps(params.Apps)
	mgr, err := task.NewManager()
	if err != nil {
		return err
	}
	handler = syscall.NewHandler(mgr)

	mgr.RunFirst()
	return nil
}
