package dylib

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// fatHeader is the fixed part of a fat header; the arch table follows it.
type fatHeader struct {
	Magic types.Magic
	Count uint32
}

// FatOffsets returns the file offset of each slice for slices of the given sizes.
func FatOffsets(sizes []uint64) []uint64 {
	hdr := uint64(binary.Size(fatHeader{}) + len(sizes)*binary.Size(macho.FatArchHeader{}))
	offs := make([]uint64, len(sizes))
	next := align(hdr, PageSize)
	for i, sz := range sizes {
		offs[i] = next
		next = align(next+sz, PageSize)
	}
	return offs
}

// wrapFat lays the slices out at page aligned offsets behind a big-endian fat
// header. The last slice is not padded.
func wrapFat(arches []Slice, slices [][]byte) ([]byte, error) {
	if len(arches) != len(slices) {
		return nil, constructionErrorf("", ErrLayout, "%d arches for %d slices", len(arches), len(slices))
	}

	sizes := make([]uint64, len(slices))
	for i, s := range slices {
		sizes[i] = uint64(len(s))
	}
	offs := FatOffsets(sizes)
	last := len(slices) - 1
	total := offs[last] + sizes[last]

	buf := new(bytes.Buffer)
	buf.Grow(int(total))

	if err := binary.Write(buf, binary.BigEndian, fatHeader{
		Magic: types.MagicFat,
		Count: uint32(len(slices)),
	}); err != nil {
		return nil, fmt.Errorf("failed to write fat header: %w", err)
	}
	for i, a := range arches {
		if err := binary.Write(buf, binary.BigEndian, macho.FatArchHeader{
			CPU:    a.CPU,
			SubCPU: a.SubCPU,
			Offset: uint32(offs[i]),
			Size:   uint32(sizes[i]),
			Align:  fatAlign,
		}); err != nil {
			return nil, fmt.Errorf("failed to write fat arch %s: %w", a.Name, err)
		}
	}

	for i, s := range slices {
		if uint64(buf.Len()) > offs[i] {
			return nil, constructionErrorf(arches[i].Name, ErrLayout, "slice offset %#x overlaps preceding data", offs[i])
		}
		buf.Write(make([]byte, offs[i]-uint64(buf.Len())))
		buf.Write(s)
	}

	if uint64(buf.Len()) != total {
		return nil, constructionErrorf("", ErrLayout, "fat file is %d bytes, want %d", buf.Len(), total)
	}

	return buf.Bytes(), nil
}
