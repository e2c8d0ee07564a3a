package dylib

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dummyInstallName = "@rpath/TrollFoolsDummy.framework/TrollFoolsDummy"

func TestBuildFatDylibLayout(t *testing.T) {
	dat, err := BuildFatDylib(dummyInstallName)
	require.NoError(t, err)

	assert.Equal(t, uint32(types.MagicFat), binary.BigEndian.Uint32(dat[0:]))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(dat[4:]))
	assert.Len(t, dat, 0xC000+16408)

	wantOffsets := []uint32{0x4000, 0xC000}
	wantSub := []types.CPUSubtype{types.CPUSubtypeArm64All, types.CPUSubtypeArm64E}
	for i := 0; i < 2; i++ {
		arch := dat[8+i*20:]
		assert.Equal(t, uint32(types.CPUArm64), binary.BigEndian.Uint32(arch[0:]))
		assert.Equal(t, uint32(wantSub[i]), binary.BigEndian.Uint32(arch[4:]))
		off := binary.BigEndian.Uint32(arch[8:])
		assert.Equal(t, wantOffsets[i], off)
		assert.Zero(t, off%PageSize)
		assert.Equal(t, uint32(16408), binary.BigEndian.Uint32(arch[12:]))
		assert.Equal(t, uint32(14), binary.BigEndian.Uint32(arch[16:]))

		slice := dat[off : off+16408]
		assert.Equal(t, uint32(types.Magic64), binary.LittleEndian.Uint32(slice[0:]))
		assert.Equal(t, uint32(types.MH_DYLIB), binary.LittleEndian.Uint32(slice[12:]))
		assert.Equal(t, RetInstruction, binary.LittleEndian.Uint32(slice[TextOffset:]))
	}
}

func TestBuildSliceLoadCommands(t *testing.T) {
	b, err := NewBuilder("14.0")
	require.NoError(t, err)

	slice, err := b.BuildSlice(Slices[0], dummyInstallName)
	require.NoError(t, err)
	require.Len(t, slice, PageSize+24)

	var hdr types.FileHeader
	require.NoError(t, binary.Read(bytes.NewReader(slice), binary.LittleEndian, &hdr))
	assert.Equal(t, uint32(NumLoadCommands), hdr.NCommands)
	assert.Equal(t, types.TwoLevel|types.NoReexportedDylibs|types.PIE, hdr.Flags)

	// walk the commands and sum their sizes
	var (
		off   = uint64(headerSize)
		sum   uint64
		cmds  []types.LoadCmd
		idCmd []byte
	)
	for i := uint32(0); i < hdr.NCommands; i++ {
		cmd := types.LoadCmd(binary.LittleEndian.Uint32(slice[off:]))
		size := uint64(binary.LittleEndian.Uint32(slice[off+4:]))
		assert.Zero(t, size%8, "command %s is not 8 byte aligned", cmd)
		if cmd == types.LC_ID_DYLIB {
			idCmd = slice[off : off+size]
		}
		cmds = append(cmds, cmd)
		sum += size
		off += size
	}
	assert.Equal(t, uint64(hdr.SizeCommands), sum)
	assert.Equal(t, []types.LoadCmd{
		types.LC_SEGMENT_64,
		types.LC_SEGMENT_64,
		types.LC_ID_DYLIB,
		types.LC_SYMTAB,
		types.LC_DYSYMTAB,
		types.LC_UUID,
		types.LC_BUILD_VERSION,
	}, cmds)

	require.NotNil(t, idCmd)
	nameOff := binary.LittleEndian.Uint32(idCmd[8:])
	assert.Equal(t, uint32(24), nameOff)
	name := idCmd[nameOff:]
	name = name[:bytes.IndexByte(name, 0)]
	assert.Equal(t, dummyInstallName, string(name))

	// slack between the commands and the instruction is zero filled
	assert.Equal(t, int64(TextOffset)-int64(off), Slack(dummyInstallName))
	assert.True(t, bytes.Equal(slice[off:TextOffset], make([]byte, TextOffset-off)))

	// symbol table
	var sym types.Nlist64
	require.NoError(t, binary.Read(bytes.NewReader(slice[PageSize:]), binary.LittleEndian, &sym))
	assert.Equal(t, uint32(1), sym.Name)
	assert.Equal(t, types.N_SECT, sym.Type)
	assert.Equal(t, uint8(1), sym.Sect)
	assert.Equal(t, uint64(TextOffset), sym.Value)
	assert.Equal(t, []byte{' ', 0}, slice[PageSize+16:PageSize+18])
}

func TestBuildSliceUniqueUUID(t *testing.T) {
	b, err := NewBuilder(DefaultMinOS)
	require.NoError(t, err)

	first, err := b.BuildSlice(Slices[1], dummyInstallName)
	require.NoError(t, err)
	second, err := b.BuildSlice(Slices[1], dummyInstallName)
	require.NoError(t, err)

	uuidOff := headerSize + segmentCmdSize + sectionSize + segmentCmdSize +
		IDDylibSize(dummyInstallName) + symtabCmdSize + dysymtabCmdSize + 8
	u1 := first[uuidOff : uuidOff+16]
	u2 := second[uuidOff : uuidOff+16]
	assert.NotEqual(t, u1, u2)

	copy(second[uuidOff:uuidOff+16], u1)
	assert.Equal(t, first, second)
}

func TestInstallNameLimits(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr error
	}{
		{name: "longest accepted", length: 15935},
		{name: "one byte over", length: 15936, wantErr: ErrInstallNameTooLong},
		{name: "empty", length: 0, wantErr: ErrInvalidInstallName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dat, err := BuildFatDylib(strings.Repeat("a", tt.length))
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Len(t, dat, 0xC000+16408)
				return
			}
			assert.Nil(t, dat)
			assert.ErrorIs(t, err, tt.wantErr)
			var cerr *ConstructionError
			assert.True(t, errors.As(err, &cerr))
		})
	}
}

func TestInvalidInstallNames(t *testing.T) {
	for _, name := range []string{"bad\x00name", "\xff\xfe"} {
		_, err := BuildFatDylib(name)
		assert.ErrorIs(t, err, ErrInvalidInstallName, "name %q", name)
	}
}

func TestEncodeVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    types.Version
		wantErr bool
	}{
		{in: "14.0", want: 0x000e0000},
		{in: "1.0.0", want: 0x00010000},
		{in: "16.4.1", want: 0x00100401},
		{in: "1015.7", want: 0x03f70700},
		{in: "1.256", wantErr: true},
		{in: "nope", wantErr: true},
	}
	for _, tt := range tests {
		got, err := EncodeVersion(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInspect(t *testing.T) {
	dat, err := BuildFatDylib(dummyInstallName)
	require.NoError(t, err)

	infos, err := Inspect(dat)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	for i, info := range infos {
		assert.Equal(t, types.CPUArm64, info.CPU)
		assert.Equal(t, Slices[i].SubCPU, info.SubCPU)
		assert.Equal(t, dummyInstallName, info.InstallName)
		assert.Equal(t, uint32(NumLoadCommands), info.NCommands)
		assert.Equal(t, Slack(dummyInstallName), info.Slack)
		assert.True(t, info.Ret)
	}
	assert.NotEqual(t, infos[0].UUID, infos[1].UUID)
}
