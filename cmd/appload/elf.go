package main

import (
	"debug/elf"
	"errors"
	"io"

	"ospreyos/kernel/loader"
)

// segFlagMask keeps the read/write/execute bits of an ELF program header,
// which use the same layout as the image format's segment flags.
const segFlagMask = elf.PF_R | elf.PF_W | elf.PF_X

// packImage reads the PT_LOAD segments of the ELF file at path and encodes
// them as a flat application image.
func packImage(path string) ([]byte, error) {
	fp, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	img := &loader.Image{Entry: uintptr(fp.Entry)}
	for _, prog := range fp.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		// only Filesz bytes travel; the kernel zero-fills the rest
		data, err := io.ReadAll(io.LimitReader(prog.Open(), int64(prog.Filesz)))
		if err != nil {
			return nil, err
		}

		img.Segments = append(img.Segments, loader.Segment{
			VirtAddr: uintptr(prog.Vaddr),
			MemSize:  uintptr(prog.Memsz),
			Flags:    uint32(prog.Flags & segFlagMask),
			Data:     data,
		})
	}

	if len(img.Segments) == 0 {
		return nil, errors.New("no loadable segments")
	}
	return loader.Encode(img), nil
}
