package connectivity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	online bool
	err    error
	reads  int
}

func (s *stubSource) Online() (bool, error) {
	s.reads++
	return s.online, s.err
}

// recorder collects states delivered to a subscriber.
type recorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *recorder) add(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, offline)
}

func (r *recorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func TestMonitor_ReplaysInitialState(t *testing.T) {
	src := &stubSource{online: false}
	m := NewMonitor(src, nil)

	var rec recorder
	cancel := m.Subscribe(rec.add)
	defer cancel()

	assert.Equal(t, []bool{true}, rec.get())
	assert.True(t, m.Offline())

	// Late subscribers get the current state without reading the source again.
	var late recorder
	cancelLate := m.Subscribe(late.add)
	defer cancelLate()
	assert.Equal(t, []bool{true}, late.get())
	assert.Equal(t, 1, src.reads)
}

func TestMonitor_NotifyDeliversTransitionsOnly(t *testing.T) {
	m := NewMonitor(&stubSource{online: true}, nil)

	var rec recorder
	cancel := m.Subscribe(rec.add)
	defer cancel()

	m.Notify(true)
	m.Notify(false)
	m.Notify(false)
	m.Notify(true)

	assert.Equal(t, []bool{false, true, false}, rec.get())
}

func TestMonitor_SourceErrorAssumesOnline(t *testing.T) {
	m := NewMonitor(&stubSource{err: errors.New("no signal")}, nil)
	assert.False(t, m.Offline())
}

func TestStatusFile_Online(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")

	tests := []struct {
		name    string
		content *string
		want    bool
		wantErr bool
	}{
		{name: "missing file", content: nil, want: true},
		{name: "online", content: ptr("online\n"), want: true},
		{name: "offline", content: ptr("OFFLINE"), want: false},
		{name: "empty", content: ptr(""), want: true},
		{name: "garbage", content: ptr("maybe"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(path)
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0600))
			}

			got, err := NewStatusFile(path, nil).Online()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusFile_DrivesMonitor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")
	require.NoError(t, os.WriteFile(path, []byte("online"), 0600))

	src := NewStatusFile(path, nil)
	m := NewMonitor(src, nil)

	var rec recorder
	cancel := m.Subscribe(rec.add)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	require.NoError(t, src.Start(ctx, m.Notify))

	require.NoError(t, os.WriteFile(path, []byte("offline"), 0600))
	require.Eventually(t, m.Offline, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("online"), 0600))
	require.Eventually(t, func() bool { return !m.Offline() }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []bool{false, true, false}, rec.get())
}

func ptr(s string) *string { return &s }
