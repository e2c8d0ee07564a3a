package macho

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// ErrLoadCommandNotFound is returned when a load command to remove is not present in any slice.
var ErrLoadCommandNotFound = errors.New("load command not found")

func pointerAlign(sz uint32) uint32 {
	if (sz % 8) != 0 {
		sz += 8 - (sz % 8)
	}
	return sz
}

// PatcherConfig configures a Patcher.
type PatcherConfig struct {
	// TeamID is written into the code directory when re-signing.
	TeamID string
	// CTBypass is an optional external tool that re-signs binaries so they
	// pass the CoreTrust check. Ad-hoc signing is used when it is empty.
	CTBypass string
	// UID and GID own every patched file.
	UID int
	GID int
}

// Patcher edits Mach-O files in place. Thin and universal files are
// supported; each slice of a universal file is patched.
type Patcher struct {
	conf PatcherConfig
}

// NewPatcher returns a Patcher.
func NewPatcher(conf PatcherConfig) *Patcher {
	return &Patcher{conf: conf}
}

// editFunc patches one slice and reports whether it changed it.
type editFunc func(m *macho.File) (bool, error)

// edit applies fn to every slice of machoPath. The result is written to a
// temporary file next to machoPath and renamed over it; nothing is written
// when no slice changed.
func (p *Patcher) edit(machoPath string, fn editFunc) (changed bool, err error) {
	info, err := os.Stat(machoPath)
	if err != nil {
		return false, err
	}
	dir := filepath.Dir(machoPath)

	out, err := os.CreateTemp(dir, "."+filepath.Base(machoPath)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	out.Close()
	defer func() {
		if err != nil || !changed {
			os.Remove(out.Name())
		}
	}()

	if fat, ferr := macho.OpenFat(machoPath); ferr == nil { // UNIVERSAL MACHO
		defer fat.Close()
		var slices []string
		for _, arch := range fat.Arches {
			ok, err := fn(arch.File)
			if err != nil {
				return false, fmt.Errorf("%s slice: %w", arch.SubCPU.String(arch.CPU), err)
			}
			changed = changed || ok
			tmp, err := os.CreateTemp(dir, ".macho_"+arch.File.CPU.String())
			if err != nil {
				return false, fmt.Errorf("failed to create temp file: %w", err)
			}
			defer os.Remove(tmp.Name())
			if err := arch.File.Save(tmp.Name()); err != nil {
				return false, fmt.Errorf("failed to save temp file: %w", err)
			}
			if err := tmp.Close(); err != nil {
				return false, fmt.Errorf("failed to close temp file: %w", err)
			}
			slices = append(slices, tmp.Name())
		}
		if !changed {
			return false, nil
		}
		ff, err := macho.CreateFat(out.Name(), slices...)
		if err != nil {
			return false, fmt.Errorf("failed to create fat file: %w", err)
		}
		if err := ff.Close(); err != nil {
			return false, fmt.Errorf("failed to close fat file: %w", err)
		}
	} else if errors.Is(ferr, macho.ErrNotFat) { // SINGLE MACHO ARCH
		m, err := macho.Open(machoPath)
		if err != nil {
			return false, fmt.Errorf("failed to open MachO file: %w", err)
		}
		defer m.Close()
		if changed, err = fn(m); err != nil {
			return false, err
		} else if !changed {
			return false, nil
		}
		if err := m.Save(out.Name()); err != nil {
			return false, fmt.Errorf("failed to save patched MachO file: %w", err)
		}
	} else {
		return false, fmt.Errorf("failed to open MachO file: %w", ferr)
	}

	if err := os.Chmod(out.Name(), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to chmod %s: %w", out.Name(), err)
	}
	if err := os.Rename(out.Name(), machoPath); err != nil {
		return false, fmt.Errorf("failed to replace %s: %w", machoPath, err)
	}
	return true, nil
}

func dylibName(lc macho.Load) (string, bool) {
	switch c := lc.(type) {
	case *macho.LoadDylib:
		return c.Name, true
	case *macho.WeakDylib:
		return c.Name, true
	case *macho.Dylib:
		return c.Name, true
	}
	return "", false
}

func findLoadDylibs(m *macho.File, name string) []macho.Load {
	var found []macho.Load
	for _, lc := range m.Loads {
		switch lc.Command() {
		case types.LC_LOAD_DYLIB, types.LC_LOAD_WEAK_DYLIB:
			if n, ok := dylibName(lc); ok && n == name {
				found = append(found, lc)
			}
		}
	}
	return found
}

// SetInstallName rewrites the LC_ID_DYLIB of the dylib at machoPath.
func (p *Patcher) SetInstallName(machoPath, name string) error {
	log.WithField("name", name).Debugf("Setting install name of %s", machoPath)
	_, err := p.edit(machoPath, func(m *macho.File) (bool, error) {
		if m.FileHeader.Type != types.MH_DYLIB {
			return false, fmt.Errorf("you can only modify LC_ID_DYLIB in a dylib")
		}
		lcs := m.GetLoadsByName("LC_ID_DYLIB")
		if len(lcs) == 0 {
			return false, fmt.Errorf("failed to find LC_ID_DYLIB in %s: %w", machoPath, ErrLoadCommandNotFound)
		} else if len(lcs) > 1 {
			return false, fmt.Errorf("found multiple LC_ID_DYLIB in %s", machoPath)
		}
		id := lcs[0].(*macho.IDDylib)
		if id.Name == name {
			return false, nil
		}
		prevLen := int32(id.Len)
		id.Len = pointerAlign(uint32(binary.Size(types.DylibCmd{}) + len(name) + 1))
		id.Name = name
		m.ModifySizeCommands(prevLen, int32(id.Len))
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to set install name of %s: %w", machoPath, err)
	}
	return nil
}

// AddLoadCommand adds an LC_LOAD_DYLIB for dylib to every slice of
// machoPath. Slices already loading dylib are left unchanged.
func (p *Patcher) AddLoadCommand(machoPath, dylib string) error {
	log.WithField("dylib", dylib).Debugf("Adding LC_LOAD_DYLIB to %s", machoPath)
	changed, err := p.edit(machoPath, func(m *macho.File) (bool, error) {
		if len(findLoadDylibs(m, dylib)) > 0 {
			return false, nil
		}
		m.AddLoad(&macho.Dylib{
			DylibCmd: types.DylibCmd{
				LoadCmd:    types.LC_LOAD_DYLIB,
				Len:        pointerAlign(uint32(binary.Size(types.DylibCmd{}) + len(dylib) + 1)),
				NameOffset: 0x18,
				Timestamp:  2,
			},
			Name: dylib,
		})
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to add LC_LOAD_DYLIB %s to %s: %w", dylib, machoPath, err)
	}
	if !changed {
		log.WithField("dylib", dylib).Debugf("%s already loads dylib", machoPath)
	}
	return nil
}

// RemoveLoadCommand removes every LC_LOAD_DYLIB and LC_LOAD_WEAK_DYLIB of
// dylib from machoPath.
func (p *Patcher) RemoveLoadCommand(machoPath, dylib string) error {
	log.WithField("dylib", dylib).Debugf("Removing LC_LOAD_DYLIB from %s", machoPath)
	changed, err := p.edit(machoPath, func(m *macho.File) (bool, error) {
		lcs := findLoadDylibs(m, dylib)
		for _, lc := range lcs {
			if err := m.RemoveLoad(lc); err != nil {
				return false, fmt.Errorf("failed to remove load command: %w", err)
			}
		}
		return len(lcs) > 0, nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove LC_LOAD_DYLIB %s from %s: %w", dylib, machoPath, err)
	}
	if !changed {
		return fmt.Errorf("failed to find LC_LOAD_DYLIB %s in %s: %w", dylib, machoPath, ErrLoadCommandNotFound)
	}
	return nil
}

// LoadedDylibs returns the LC_LOAD_DYLIB and LC_LOAD_WEAK_DYLIB names of the
// first slice of machoPath.
func LoadedDylibs(machoPath string) ([]string, error) {
	var m *macho.File
	if fat, err := macho.OpenFat(machoPath); err == nil {
		defer fat.Close()
		m = fat.Arches[0].File
	} else if errors.Is(err, macho.ErrNotFat) {
		m, err = macho.Open(machoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open MachO file: %w", err)
		}
		defer m.Close()
	} else {
		return nil, fmt.Errorf("failed to open MachO file: %w", err)
	}

	var names []string
	for _, lc := range m.Loads {
		switch lc.Command() {
		case types.LC_LOAD_DYLIB, types.LC_LOAD_WEAK_DYLIB:
			if n, ok := dylibName(lc); ok {
				names = append(names, n)
			}
		}
	}
	return names, nil
}
