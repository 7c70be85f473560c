// Package loader defines the flat application image format produced by the
// host-side tooling and consumed by the kernel when it builds a task's
// address space, together with the boot-time registry of application
// images.
package loader

import (
	"encoding/binary"

	"ospreyos/kernel"
)

// imageMagic identifies a packed application image ("OSPR").
const imageMagic = 0x4f535052

const (
	headerSize  = 16
	segmentSize = 28
)

// Segment permission bits, matching the ELF p_flags layout the host packer
// reads them from.
const (
	SegExec  = 0x1
	SegWrite = 0x2
	SegRead  = 0x4
)

var (
	// ErrBadImage is returned when an application image fails validation.
	ErrBadImage = &kernel.Error{Module: "loader", Message: "malformed application image"}
)

// Segment describes one loadable region of an application image. The
// in-memory size may exceed the payload length; the remainder is
// zero-filled (bss).
type Segment struct {
	VirtAddr uintptr
	MemSize  uintptr
	Flags    uint32
	Data     []byte
}

// Image is a parsed application image: the entry point plus its loadable
// segments.
type Image struct {
	Entry    uintptr
	Segments []Segment
}

// Parse validates and decodes a flat application image.
//
// Layout (all integers little-endian):
//
//	+0  uint32  magic "OSPR"
//	+4  uint32  segment count
//	+8  uint64  entry point
//	then per segment:
//	+0  uint64  virtual address
//	+8  uint64  in-memory size
//	+16 uint32  permission flags
//	+20 uint64  payload length
//	payloads follow the segment table in order
func Parse(data []byte) (*Image, *kernel.Error) {
	if len(data) < headerSize || binary.LittleEndian.Uint32(data[0:]) != imageMagic {
		return nil, ErrBadImage
	}

	segCount := int(binary.LittleEndian.Uint32(data[4:]))
	img := &Image{
		Entry:    uintptr(binary.LittleEndian.Uint64(data[8:])),
		Segments: make([]Segment, segCount),
	}

	tableEnd := headerSize + segCount*segmentSize
	if len(data) < tableEnd {
		return nil, ErrBadImage
	}

	payloadOff := tableEnd
	for i := 0; i < segCount; i++ {
		rec := data[headerSize+i*segmentSize:]

		seg := Segment{
			VirtAddr: uintptr(binary.LittleEndian.Uint64(rec[0:])),
			MemSize:  uintptr(binary.LittleEndian.Uint64(rec[8:])),
			Flags:    binary.LittleEndian.Uint32(rec[16:]),
		}
		payloadLen := int(binary.LittleEndian.Uint64(rec[20:]))

		if uintptr(payloadLen) > seg.MemSize || payloadOff+payloadLen > len(data) {
			return nil, ErrBadImage
		}

		seg.Data = data[payloadOff : payloadOff+payloadLen]
		payloadOff += payloadLen
		img.Segments[i] = seg
	}

	return img, nil
}

// Encode serializes an image into the flat format understood by Parse. It
// is used by the host-side packer and by tests.
func Encode(img *Image) []byte {
	size := headerSize + len(img.Segments)*segmentSize
	for _, seg := range img.Segments {
		size += len(seg.Data)
	}

	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0:], imageMagic)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(img.Segments)))
	binary.LittleEndian.PutUint64(out[8:], uint64(img.Entry))

	payloadOff := headerSize + len(img.Segments)*segmentSize
	for i, seg := range img.Segments {
		rec := out[headerSize+i*segmentSize:]
		binary.LittleEndian.PutUint64(rec[0:], uint64(seg.VirtAddr))
		binary.LittleEndian.PutUint64(rec[8:], uint64(seg.MemSize))
		binary.LittleEndian.PutUint32(rec[16:], seg.Flags)
		binary.LittleEndian.PutUint64(rec[20:], uint64(len(seg.Data)))

		copy(out[payloadOff:], seg.Data)
		payloadOff += len(seg.Data)
	}

	return out
}
