// Package dylib builds the minimal FAT (arm64 + arm64e) Mach-O dynamic library
// used as the TrollFools dummy framework executable.
//
// Each slice is a single page of __TEXT holding the header, seven load commands,
// zero-filled slack and one `ret` instruction at the very end of the page,
// followed by a tiny __LINKEDIT. The slack is where a later patcher grafts
// LC_LOAD_DYLIB commands without moving any other offset.
package dylib

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/blacktop/go-macho/types"
	"github.com/hashicorp/go-version"
	"golang.org/x/arch/arm64/arm64asm"
)

const (
	// PageSize is the arm64 page size every slice and slice offset is aligned to.
	PageSize = 0x4000
	// TextOffset is the file offset of the one-instruction __text section.
	TextOffset = PageSize - 4
	// RetInstruction is `ret` (x30).
	RetInstruction uint32 = 0xd65f03c0

	// DefaultMinOS is the deployment target of the dummy framework.
	DefaultMinOS = "14.0"

	fatAlign  = 14 // 2^14 == PageSize
	nlistSize = 16
)

const (
	protRead    types.VmProtection = 0x1
	protExecute types.VmProtection = 0x4

	platformIOS types.Platform = 2 // PLATFORM_IOS
	toolLD      types.Tool     = 3 // TOOL_LD

	sectionPureInstructions types.SectionFlag = 0x80000000 // S_ATTR_PURE_INSTRUCTIONS
)

var (
	// ErrInvalidInstallName is returned for empty, non UTF-8 or NUL-containing install names.
	ErrInvalidInstallName = errors.New("invalid install name")
	// ErrInstallNameTooLong is returned when the load commands would overrun the __text instruction.
	ErrInstallNameTooLong = errors.New("install name leaves no room for load commands")
	// ErrLayout is returned when an emitted size or offset disagrees with the computed layout.
	ErrLayout = errors.New("slice layout mismatch")
)

// ConstructionError reports a violated size/offset invariant. No bytes are
// returned alongside it.
type ConstructionError struct {
	Arch string
	Err  error
}

func (e *ConstructionError) Error() string {
	if e.Arch == "" {
		return fmt.Sprintf("dylib: %v", e.Err)
	}
	return fmt.Sprintf("dylib: %s slice: %v", e.Arch, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func constructionErrorf(arch string, sentinel error, format string, args ...any) error {
	return &ConstructionError{
		Arch: arch,
		Err:  fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// Slice describes one architecture of the FAT container.
type Slice struct {
	Name   string
	CPU    types.CPU
	SubCPU types.CPUSubtype
}

// Slices are emitted in this order.
var Slices = []Slice{
	{Name: "arm64", CPU: types.CPUArm64, SubCPU: types.CPUSubtypeArm64All},
	{Name: "arm64e", CPU: types.CPUArm64, SubCPU: types.CPUSubtypeArm64E},
}

// Builder builds dummy dylibs. The zero value is not usable; use NewBuilder.
type Builder struct {
	minOS types.Version
	sdk   types.Version
	ret   [4]byte
}

// NewBuilder returns a Builder whose LC_BUILD_VERSION uses minOS (e.g. "14.0")
// for both the minimum OS and the SDK version.
func NewBuilder(minOS string) (*Builder, error) {
	v, err := EncodeVersion(minOS)
	if err != nil {
		return nil, err
	}
	b := &Builder{minOS: v, sdk: v}
	binary.LittleEndian.PutUint32(b.ret[:], RetInstruction)
	inst, err := arm64asm.Decode(b.ret[:])
	if err != nil {
		return nil, &ConstructionError{Err: fmt.Errorf("%w: failed to decode stub instruction: %v", ErrLayout, err)}
	}
	if inst.Op != arm64asm.RET {
		return nil, constructionErrorf("", ErrLayout, "stub instruction decodes to %s, not ret", inst)
	}
	return b, nil
}

// BuildFatDylib returns the bytes of a two-slice FAT dylib identified by installName.
func (b *Builder) BuildFatDylib(installName string) ([]byte, error) {
	slices := make([][]byte, 0, len(Slices))
	for _, s := range Slices {
		dat, err := b.BuildSlice(s, installName)
		if err != nil {
			return nil, err
		}
		slices = append(slices, dat)
	}
	return wrapFat(Slices, slices)
}

// BuildFatDylib builds with the default (iOS 14.0) builder.
func BuildFatDylib(installName string) ([]byte, error) {
	b, err := NewBuilder(DefaultMinOS)
	if err != nil {
		return nil, err
	}
	return b.BuildFatDylib(installName)
}

// EncodeVersion encodes a dotted version into the Mach-O xxxx.yy.zz nibble format.
func EncodeVersion(s string) (types.Version, error) {
	v, err := version.NewVersion(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse version %q: %w", s, err)
	}
	seg := v.Segments()
	for len(seg) < 3 {
		seg = append(seg, 0)
	}
	if seg[0] > 0xffff || seg[1] > 0xff || seg[2] > 0xff {
		return 0, fmt.Errorf("version %q does not fit the Mach-O version encoding", s)
	}
	return types.Version(uint32(seg[0])<<16 | uint32(seg[1])<<8 | uint32(seg[2])), nil
}

func validateInstallName(name string) error {
	if name == "" {
		return constructionErrorf("", ErrInvalidInstallName, "empty")
	}
	if !utf8.ValidString(name) {
		return constructionErrorf("", ErrInvalidInstallName, "%q is not valid UTF-8", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return constructionErrorf("", ErrInvalidInstallName, "%q contains a NUL byte", name)
		}
	}
	return nil
}

func align(v, a uint64) uint64 {
	if r := v % a; r != 0 {
		v += a - r
	}
	return v
}
