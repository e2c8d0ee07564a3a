package dylib

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// SliceInfo summarizes one architecture of a FAT dylib.
type SliceInfo struct {
	CPU         types.CPU
	SubCPU      types.CPUSubtype
	Offset      uint64
	Size        uint64
	InstallName string
	UUID        string
	NCommands   uint32
	SizeOfCmds  uint32
	Slack       int64
	Ret         bool
}

// Inspect parses a FAT dylib and reports the layout of each slice.
func Inspect(dat []byte) ([]SliceInfo, error) {
	fat, err := macho.NewFatFile(bytes.NewReader(dat))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fat dylib: %w", err)
	}
	defer fat.Close()

	var infos []SliceInfo
	for _, arch := range fat.Arches {
		info := SliceInfo{
			CPU:        arch.CPU,
			SubCPU:     arch.SubCPU,
			Offset:     uint64(arch.Offset),
			Size:       uint64(arch.Size),
			NCommands:  arch.File.NCommands,
			SizeOfCmds: arch.File.SizeCommands,
		}
		if id := arch.File.DylibID(); id != nil {
			info.InstallName = id.Name
		}
		if u := arch.File.UUID(); u != nil {
			info.UUID = u.String()
		}
		if text := arch.File.Section("__TEXT", "__text"); text != nil {
			info.Slack = int64(text.Offset) - int64(headerSize) - int64(info.SizeOfCmds)
			start := info.Offset + uint64(text.Offset)
			if text.Size == 4 && start+4 <= uint64(len(dat)) {
				info.Ret = binary.LittleEndian.Uint32(dat[start:]) == RetInstruction
			}
		}
		infos = append(infos, info)
	}

	return infos, nil
}
