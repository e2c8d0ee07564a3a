package dylib

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho/types"
	"github.com/google/uuid"
)

// NumLoadCommands is the number of load commands every slice carries.
const NumLoadCommands = 7

var (
	headerSize       = uint64(binary.Size(types.FileHeader{}))
	segmentCmdSize   = uint64(binary.Size(types.Segment64{}))
	sectionSize      = uint64(binary.Size(types.Section64{}))
	dylibCmdSize     = uint64(binary.Size(types.DylibCmd{}))
	symtabCmdSize    = uint64(binary.Size(types.SymtabCmd{}))
	dysymtabCmdSize  = uint64(binary.Size(types.DysymtabCmd{}))
	uuidCmdSize      = uint64(binary.Size(types.UUIDCmd{}))
	buildVersionSize = uint64(binary.Size(types.BuildVersionCmd{}) + binary.Size(types.BuildVersionTool{}))

	stringTable = []byte{' ', 0}
)

// IDDylibSize returns the size of an LC_ID_DYLIB carrying name.
func IDDylibSize(name string) uint64 {
	return align(dylibCmdSize+uint64(len(name))+1, 8)
}

// SizeOfCmds returns the sizeofcmds of a slice identified by installName.
func SizeOfCmds(installName string) uint64 {
	return segmentCmdSize + sectionSize + // __TEXT
		segmentCmdSize + // __LINKEDIT
		IDDylibSize(installName) +
		symtabCmdSize +
		dysymtabCmdSize +
		uuidCmdSize +
		buildVersionSize
}

// LinkeditSize is the file size of __LINKEDIT: one nlist_64 and the string table.
func LinkeditSize() uint64 {
	return align(nlistSize+uint64(len(stringTable)), 8)
}

// Slack returns the number of zero bytes reserved between the end of the load
// commands and the __text instruction, or a negative value if they overlap.
func Slack(installName string) int64 {
	return int64(TextOffset) - int64(headerSize+SizeOfCmds(installName))
}

func name16(s string) (n [16]byte) {
	copy(n[:], s)
	return n
}

// BuildSlice builds one thin Mach-O dylib for the given architecture.
func (b *Builder) BuildSlice(s Slice, installName string) ([]byte, error) {
	if err := validateInstallName(installName); err != nil {
		return nil, err
	}

	sizeofcmds := SizeOfCmds(installName)
	if slack := Slack(installName); slack < 0 {
		return nil, constructionErrorf(s.Name, ErrInstallNameTooLong,
			"load commands end at %#x, past the __text offset %#x (%d bytes over)",
			headerSize+sizeofcmds, TextOffset, -slack)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, &ConstructionError{Arch: s.Name, Err: fmt.Errorf("failed to generate uuid: %w", err)}
	}

	linkeditSize := LinkeditSize()
	total := PageSize + linkeditSize

	buf := new(bytes.Buffer)
	buf.Grow(int(total))

	var werr error
	write := func(v any) {
		if werr == nil {
			werr = binary.Write(buf, binary.LittleEndian, v)
		}
	}

	write(types.FileHeader{
		Magic:        types.Magic64,
		CPU:          s.CPU,
		SubCPU:       s.SubCPU,
		Type:         types.MH_DYLIB,
		NCommands:    NumLoadCommands,
		SizeCommands: uint32(sizeofcmds),
		Flags:        types.TwoLevel | types.NoReexportedDylibs | types.PIE,
	})
	// __TEXT
	write(types.Segment64{
		LoadCmd: types.LC_SEGMENT_64,
		Len:     uint32(segmentCmdSize + sectionSize),
		Name:    name16("__TEXT"),
		Addr:    0,
		Memsz:   PageSize,
		Offset:  0,
		Filesz:  PageSize,
		Maxprot: protRead | protExecute,
		Prot:    protRead | protExecute,
		Nsect:   1,
	})
	write(types.Section64{
		Name:   name16("__text"),
		Seg:    name16("__TEXT"),
		Addr:   TextOffset,
		Size:   4,
		Offset: TextOffset,
		Align:  2,
		Flags:  sectionPureInstructions,
	})
	// __LINKEDIT
	write(types.Segment64{
		LoadCmd: types.LC_SEGMENT_64,
		Len:     uint32(segmentCmdSize),
		Name:    name16("__LINKEDIT"),
		Addr:    PageSize,
		Memsz:   align(linkeditSize, PageSize),
		Offset:  PageSize,
		Filesz:  linkeditSize,
		Maxprot: protRead,
		Prot:    protRead,
	})
	// LC_ID_DYLIB
	idSize := IDDylibSize(installName)
	write(types.DylibCmd{
		LoadCmd:        types.LC_ID_DYLIB,
		Len:            uint32(idSize),
		NameOffset:     uint32(dylibCmdSize),
		Timestamp:      1,
		CurrentVersion: 0x10000, // 1.0.0
		CompatVersion:  0x10000,
	})
	if werr == nil {
		buf.WriteString(installName)
		buf.Write(make([]byte, idSize-dylibCmdSize-uint64(len(installName))))
	}
	write(types.SymtabCmd{
		LoadCmd: types.LC_SYMTAB,
		Len:     uint32(symtabCmdSize),
		Symoff:  PageSize,
		Nsyms:   1,
		Stroff:  PageSize + nlistSize,
		Strsize: uint32(len(stringTable)),
	})
	write(types.DysymtabCmd{
		LoadCmd:    types.LC_DYSYMTAB,
		Len:        uint32(dysymtabCmdSize),
		Nlocalsym:  1,
		Iextdefsym: 1,
		Iundefsym:  1,
	})
	write(types.UUIDCmd{
		LoadCmd: types.LC_UUID,
		Len:     uint32(uuidCmdSize),
		UUID:    types.UUID(id),
	})
	write(types.BuildVersionCmd{
		LoadCmd:  types.LC_BUILD_VERSION,
		Len:      uint32(buildVersionSize),
		Platform: platformIOS,
		Minos:    b.minOS,
		Sdk:      b.sdk,
		NumTools: 1,
	})
	write(types.BuildVersionTool{
		Tool:    toolLD,
		Version: 0x3f70700, // 1015.7.0
	})
	if werr != nil {
		return nil, &ConstructionError{Arch: s.Name, Err: fmt.Errorf("failed to write load commands: %w", werr)}
	}

	if got, want := uint64(buf.Len()), headerSize+sizeofcmds; got != want {
		return nil, constructionErrorf(s.Name, ErrLayout, "load commands are %d bytes, header records %d", got-headerSize, sizeofcmds)
	}

	// reserved slack
	buf.Write(make([]byte, TextOffset-buf.Len()))
	buf.Write(b.ret[:])

	// __LINKEDIT
	write(types.Nlist64{
		Nlist: types.Nlist{
			Name: 1,
			Type: types.N_SECT,
			Sect: 1,
		},
		Value: TextOffset,
	})
	if werr != nil {
		return nil, &ConstructionError{Arch: s.Name, Err: fmt.Errorf("failed to write symbol table: %w", werr)}
	}
	buf.Write(stringTable)
	buf.Write(make([]byte, int(total)-buf.Len()))

	if uint64(buf.Len()) != total {
		return nil, constructionErrorf(s.Name, ErrLayout, "slice is %d bytes, want %d", buf.Len(), total)
	}

	return buf.Bytes(), nil
}
