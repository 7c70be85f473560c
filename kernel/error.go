// Package kernel provides the error, panic and raw-memory primitives shared
// by every other kernel package.
package kernel

// Error describes a recoverable kernel error. Kernel errors are defined as
// global variables pointing to an Error instance so that raising one never
// allocates.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
