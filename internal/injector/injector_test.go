package injector

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/db"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/lifecycle"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/plist"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var machoBytes = []byte{0xcf, 0xfa, 0xed, 0xfe, 0x0c, 0x00, 0x00, 0x01, 0, 0, 0, 0}

type linker struct {
	mu     sync.Mutex
	links  map[string]map[string]bool
	active int
	max    int
}

func (l *linker) enter() func() {
	l.mu.Lock()
	l.active++
	if l.active > l.max {
		l.max = l.active
	}
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.active--
		l.mu.Unlock()
	}
}

func (l *linker) SetInstallName(string, string) error { return nil }

func (l *linker) AddLoadCommand(path, dylib string) error {
	defer l.enter()()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.links[path] == nil {
		l.links[path] = make(map[string]bool)
	}
	l.links[path][dylib] = true
	return nil
}

func (l *linker) RemoveLoadCommand(path, dylib string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.links[path][dylib] {
		return fmt.Errorf("%s is not linked from %s", dylib, path)
	}
	delete(l.links[path], dylib)
	return nil
}

func (l *linker) BypassTrustCheck(string) error          { return nil }
func (l *linker) SetOwnerToSystemInstaller(string) error { return nil }

type noopTerminator struct{}

func (noopTerminator) Terminate(context.Context, *bundle.App) error { return nil }

func writeApp(t *testing.T, fs afero.Fs, root, id string) {
	t.Helper()
	info := plist.NewFrameworkInfo("Demo", id, "14.0")
	info.CFBundlePackageType = "APPL"
	dat, err := info.Marshal()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "Info.plist"), dat, 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "Demo"), machoBytes, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "Frameworks", "Kit.framework", "Kit"), machoBytes, 0o755))
}

func newTestService(t *testing.T) (*Service, afero.Fs, *linker) {
	t.Helper()
	conf, err := config.Default()
	require.NoError(t, err)
	conf.Driver = config.DriverMemory
	conf.Database = ""

	database, err := db.NewInMemory("")
	require.NoError(t, err)
	fs := afero.NewMemMapFs()
	l := &linker{links: make(map[string]map[string]bool)}
	s, err := newService(conf, fs, database, l, noopTerminator{})
	require.NoError(t, err)
	return s, fs, l
}

func TestServiceSerializesPerBundle(t *testing.T) {
	s, fs, l := newTestService(t)
	root := "/var/containers/Bundle/Application/A/Demo.app"
	writeApp(t, fs, root, "com.example.demo")

	var g errgroup.Group
	var want []string
	for i := range 8 {
		name := fmt.Sprintf("Tweak%d.dylib", i)
		src := filepath.Join("/tmp", name)
		require.NoError(t, afero.WriteFile(fs, src, machoBytes, 0o755))
		want = append(want, "@rpath/"+name)
		g.Go(func() error {
			return s.Inject(context.Background(), root, []string{src})
		})
	}
	require.NoError(t, g.Wait())

	var got []string
	for name := range l.links[s.layout.DummyExecutable(root)] {
		got = append(got, name)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, l.max)

	st, err := s.Status(root)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ViaDummyFramework, st.State.Mode)
	assert.Len(t, st.State.InjectedAssets, 8)
}

func TestServiceEjectAll(t *testing.T) {
	s, fs, _ := newTestService(t)
	ctx := context.Background()
	root := "/var/containers/Bundle/Application/A/Demo.app"
	writeApp(t, fs, root, "com.example.demo")
	require.NoError(t, afero.WriteFile(fs, "/tmp/Tweak.dylib", machoBytes, 0o755))

	require.NoError(t, s.Inject(ctx, root, []string{"/tmp/Tweak.dylib"}))
	require.NoError(t, s.EjectAll(ctx, root+"/", true))

	st, err := s.Status(root)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.NotInjected, st.State.Mode)
	assert.Empty(t, st.Persisted)
	assert.Equal(t, []string{filepath.Join(root, "Frameworks", "Tweak.dylib")}, st.Desisted)
}

func TestServiceErrors(t *testing.T) {
	s, fs, _ := newTestService(t)
	root := "/var/containers/Bundle/Application/A/Demo.app"
	writeApp(t, fs, root, "com.example.demo")

	assert.ErrorIs(t, s.Eject(context.Background(), root, nil, false), lifecycle.ErrNoAssets)
	assert.Error(t, s.Inject(context.Background(), "/var/containers/Bundle/Application/B/Missing.app", []string{"/tmp/a.dylib"}))
}

func TestNewDatabase(t *testing.T) {
	conf := &config.Config{Driver: config.DriverSqlite, Database: filepath.Join(t.TempDir(), "trollfools.db")}
	d, err := NewDatabase(conf)
	require.NoError(t, err)
	assert.IsType(t, &db.Sqlite{}, d)

	conf.Driver = config.DriverMemory
	d, err = NewDatabase(conf)
	require.NoError(t, err)
	assert.IsType(t, &db.Memory{}, d)

	conf.Driver = config.DriverPostgres
	conf.Database = "postgres://trollfools@localhost/trollfools"
	d, err = NewDatabase(conf)
	require.NoError(t, err)
	assert.IsType(t, &db.Postgres{}, d)

	conf.Driver = "mysql"
	_, err = NewDatabase(conf)
	assert.Error(t, err)
}
