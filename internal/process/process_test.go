package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var demo = &bundle.App{
	ID:         "com.example.demo",
	Root:       "/var/containers/Bundle/Application/UUID/Demo.app",
	Executable: "/var/containers/Bundle/Application/UUID/Demo.app/Demo",
}

type fakeProcs struct {
	mu      sync.Mutex
	procs   map[int]Process
	killed  []int
	zombies map[int]bool
}

func (f *fakeProcs) list() ([]Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Process
	for _, p := range f.procs {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProcs) kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	if !f.zombies[pid] {
		delete(f.procs, pid)
	}
	return nil
}

func newFake(c *Controller, procs ...Process) *fakeProcs {
	f := &fakeProcs{procs: make(map[int]Process), zombies: make(map[int]bool)}
	for _, p := range procs {
		f.procs[p.PID] = p
	}
	c.list = f.list
	c.kill = f.kill
	c.poll = time.Millisecond
	return f
}

func TestBelongsTo(t *testing.T) {
	tests := []struct {
		name string
		proc Process
		want bool
	}{
		{name: "main executable", proc: Process{Executable: demo.Executable}, want: true},
		{name: "extension", proc: Process{Executable: demo.Root + "/PlugIns/Widget.appex/Widget"}, want: true},
		{name: "sibling bundle", proc: Process{Executable: demo.Root + "2/Demo"}},
		{name: "private prefix", proc: Process{Executable: "/private" + demo.Executable}, want: true},
		{name: "short name", proc: Process{Executable: "Demo"}},
		{name: "other", proc: Process{Executable: "SpringBoard"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, belongsTo(tt.proc, demo))
		})
	}
}

func TestTerminate(t *testing.T) {
	c := NewController(time.Second)
	f := newFake(c,
		Process{PID: 10, Executable: demo.Executable},
		Process{PID: 11, Executable: "/usr/libexec/backboardd"},
	)

	require.NoError(t, c.Terminate(context.Background(), demo))
	assert.Equal(t, []int{10}, f.killed)
	assert.Contains(t, f.procs, 11)
}

func TestTerminateTimeout(t *testing.T) {
	c := NewController(20 * time.Millisecond)
	f := newFake(c, Process{PID: 10, Executable: demo.Executable})
	f.zombies[10] = true

	err := c.Terminate(context.Background(), demo)
	assert.ErrorIs(t, err, ErrStillRunning)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminateNothingRunning(t *testing.T) {
	c := NewController(time.Second)
	f := newFake(c)
	require.NoError(t, c.Terminate(context.Background(), demo))
	assert.Empty(t, f.killed)
}

func TestParseProcArgs(t *testing.T) {
	argc := []byte{1, 0, 0, 0}
	buf := append(append([]byte{}, argc...), demo.Executable+"\x00\x00\x00Demo\x00"...)
	exe, err := parseProcArgs(buf)
	require.NoError(t, err)
	assert.Equal(t, demo.Executable, exe)

	_, err = parseProcArgs(argc)
	assert.Error(t, err)
	_, err = parseProcArgs(append(append([]byte{}, argc...), "Demo\x00"...))
	assert.Error(t, err)
}
