package kernel

import "unsafe"

// Memset sets size bytes at the given address to the supplied value. Instead
// of a plain loop it makes log2(size) copy calls, which pays off for the
// page-aligned, page-sized regions it is normally used on.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	// overlay a slice on top of this address region
	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
