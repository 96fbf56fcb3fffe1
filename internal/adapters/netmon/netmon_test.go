package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/nutriai/mealsync/internal/adapters/log"
)

type transitions struct {
	mu  sync.Mutex
	got []bool
}

func (r *transitions) record(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, online)
}

func (r *transitions) values() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.got...)
}

func TestManual_NotifiesOnlyOnChange(t *testing.T) {
	m := NewManual(false, logAdapter.NewNoopLogger())
	rec := &transitions{}
	unsubscribe := m.Subscribe(rec.record)

	assert.False(t, m.Set(false))
	assert.True(t, m.Set(true))
	assert.True(t, m.Set(false))

	unsubscribe()
	unsubscribe()
	m.Set(true)

	assert.Equal(t, []bool{true, false}, rec.values())
	assert.True(t, m.Online())
}

func TestManual_OverlappingChangesArriveInOrder(t *testing.T) {
	m := NewManual(false, logAdapter.NewNoopLogger())
	rec := &transitions{}
	delivering := make(chan struct{})
	m.Subscribe(func(online bool) {
		if online {
			close(delivering)
			time.Sleep(30 * time.Millisecond)
		}
		rec.record(online)
	})

	go m.Set(true)
	<-delivering
	m.Set(false)

	got := rec.values()
	require.Equal(t, []bool{true, false}, got)
	assert.Equal(t, m.Online(), got[len(got)-1], "last delivered state matches the monitor")
}

func TestProber_ThresholdBeforeOffline(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer ts.Close()

	p := NewProber(ProberConfig{URL: ts.URL, FailureThreshold: 2}, ts.Client(), logAdapter.NewNoopLogger())
	rec := &transitions{}
	p.Subscribe(rec.record)
	ctx := context.Background()

	require.False(t, p.Online(), "offline until the first probe succeeds")
	assert.True(t, p.ProbeOnce(ctx))

	status.Store(http.StatusBadGateway)
	assert.True(t, p.ProbeOnce(ctx), "one failure is tolerated")
	assert.False(t, p.ProbeOnce(ctx))

	// 4xx still proves the network path works.
	status.Store(http.StatusNotFound)
	assert.True(t, p.ProbeOnce(ctx))

	assert.Equal(t, []bool{true, false, true}, rec.values())
}

func TestProber_UnreachableIsOffline(t *testing.T) {
	p := NewProber(ProberConfig{
		URL:              "http://127.0.0.1:1/health",
		FailureThreshold: 1,
		Timeout:          time.Second,
	}, nil, logAdapter.NewNoopLogger())

	assert.False(t, p.ProbeOnce(context.Background()))
}

func TestProber_RunStopsOnCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	p := NewProber(ProberConfig{URL: ts.URL, Interval: 10 * time.Millisecond}, ts.Client(), logAdapter.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, p.Online, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFlagFile_FollowsFilePresence(t *testing.T) {
	dir := t.TempDir()
	flag := filepath.Join(dir, "online")

	f := NewFlagFile(flag, 10*time.Millisecond, logAdapter.NewNoopLogger())
	require.False(t, f.Online())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(flag, nil, 0o600))
	require.Eventually(t, f.Online, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(flag))
	require.Eventually(t, func() bool { return !f.Online() }, 2*time.Second, 10*time.Millisecond)
}

func TestFlagFile_InitialStateFromDisk(t *testing.T) {
	flag := filepath.Join(t.TempDir(), "online")
	require.NoError(t, os.WriteFile(flag, nil, 0o600))

	f := NewFlagFile(flag, 0, logAdapter.NewNoopLogger())
	assert.True(t, f.Online())
}
