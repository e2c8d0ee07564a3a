package macho

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/dylib"
	"github.com/blacktop/go-macho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDummy(t *testing.T) string {
	t.Helper()
	dat, err := dylib.BuildFatDylib("@rpath/TrollFoolsDummy.framework/TrollFoolsDummy")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "TrollFoolsDummy")
	require.NoError(t, os.WriteFile(path, dat, 0o755))
	return path
}

func TestAddRemoveLoadCommand(t *testing.T) {
	path := writeDummy(t)
	p := NewPatcher(PatcherConfig{})
	const tweak = "@rpath/Tweak.dylib"

	require.NoError(t, p.AddLoadCommand(path, tweak))
	// adding twice is a no-op
	require.NoError(t, p.AddLoadCommand(path, tweak))

	fat, err := macho.OpenFat(path)
	require.NoError(t, err)
	require.Len(t, fat.Arches, 2)
	for _, arch := range fat.Arches {
		assert.Len(t, findLoadDylibs(arch.File, tweak), 1)
	}
	fat.Close()

	names, err := LoadedDylibs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{tweak}, names)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	require.NoError(t, p.RemoveLoadCommand(path, tweak))
	names, err = LoadedDylibs(path)
	require.NoError(t, err)
	assert.Empty(t, names)

	err = p.RemoveLoadCommand(path, tweak)
	assert.ErrorIs(t, err, ErrLoadCommandNotFound)

	// no temp files are left next to the binary
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSetInstallName(t *testing.T) {
	path := writeDummy(t)
	p := NewPatcher(PatcherConfig{})

	require.NoError(t, p.SetInstallName(path, "@rpath/Tweak.framework/Tweak"))

	fat, err := macho.OpenFat(path)
	require.NoError(t, err)
	defer fat.Close()
	for _, arch := range fat.Arches {
		require.NotNil(t, arch.File.DylibID())
		assert.Equal(t, "@rpath/Tweak.framework/Tweak", arch.File.DylibID().Name)
	}
}

func TestBypassTrustCheckToolError(t *testing.T) {
	path := writeDummy(t)
	p := NewPatcher(PatcherConfig{
		CTBypass: filepath.Join(t.TempDir(), "missing-ct-bypass"),
		TeamID:   "T8ALTGMVXN",
	})

	err := p.BypassTrustCheck(path)
	var terr *ToolError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, []string{"-i", path, "-r", "-t", "T8ALTGMVXN"}, terr.Args)
	assert.Contains(t, err.Error(), "missing-ct-bypass")
}
