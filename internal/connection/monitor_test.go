package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"
)

// #region fake-handle
type fakeHandle struct {
	mu        sync.Mutex
	state     connectivity.State
	changed   chan struct{}
	connects  int
	closed    bool
	onConnect connectivity.State
}

func newFakeHandle(state connectivity.State) *fakeHandle {
	return &fakeHandle{state: state, changed: make(chan struct{}), onConnect: connectivity.Connecting}
}

func (f *fakeHandle) State() connectivity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeHandle) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	f.set(f.onConnect)
}

func (f *fakeHandle) set(s connectivity.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == s {
		return
	}
	f.state = s
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *fakeHandle) WaitForStateChange(ctx context.Context, source connectivity.State) bool {
	for {
		f.mu.Lock()
		if f.state != source {
			f.mu.Unlock()
			return true
		}
		ch := f.changed
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return false
		case <-ch:
		}
	}
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func dialerFor(handles ...*fakeHandle) (Dialer, *atomic.Int32) {
	var calls atomic.Int32
	return func(_ context.Context, _ string) (Handle, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(handles) {
			i = len(handles) - 1
		}
		return handles[i], nil
	}, &calls
}

// #endregion fake-handle

func TestStatusWithoutHandleIsUnavailable(t *testing.T) {
	dial, _ := dialerFor(newFakeHandle(connectivity.Ready))
	m := NewMonitor("alice", dial)

	assert.Equal(t, StatusUnavailable, m.Status())
	_, err := m.Handle()
	assert.ErrorIs(t, err, ErrHandleUnavailable)
}

func TestStatusProjectsHandleState(t *testing.T) {
	tests := []struct {
		state connectivity.State
		want  Status
	}{
		{connectivity.Ready, StatusReady},
		{connectivity.Connecting, StatusConnecting},
		{connectivity.TransientFailure, StatusUnavailable},
		{connectivity.Shutdown, StatusUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			dial, _ := dialerFor(newFakeHandle(tt.state))
			m := NewMonitor("alice", dial)
			_, err := m.Acquire(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, m.Status())
		})
	}
}

func TestIdleHandleIsKickedToConnect(t *testing.T) {
	h := newFakeHandle(connectivity.Idle)
	dial, _ := dialerFor(h)
	m := NewMonitor("alice", dial)
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConnecting, m.Status())
	assert.GreaterOrEqual(t, h.connects, 1)
}

func TestStatusIsConnectingWhileDialing(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	h := newFakeHandle(connectivity.Ready)
	m := NewMonitor("alice", func(_ context.Context, _ string) (Handle, error) {
		close(entered)
		<-release
		return h, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Acquire(context.Background())
	}()
	<-entered
	assert.Equal(t, StatusConnecting, m.Status())

	close(release)
	<-done
	assert.Equal(t, StatusReady, m.Status())
}

func TestConcurrentAcquireDialsOnce(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	h := newFakeHandle(connectivity.Ready)
	m := NewMonitor("alice", func(_ context.Context, _ string) (Handle, error) {
		calls.Add(1)
		<-release
		return h, nil
	})

	var wg conc.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Go(func() {
			got, err := m.Acquire(context.Background())
			assert.NoError(t, err)
			assert.Same(t, h, got)
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestAcquireFailureIsUnavailable(t *testing.T) {
	boom := errors.New("dial refused")
	m := NewMonitor("alice", func(_ context.Context, _ string) (Handle, error) {
		return nil, boom
	})

	_, err := m.Acquire(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.LastError(), boom)
	assert.Equal(t, StatusUnavailable, m.Status())
}

func TestRetryReplacesHandle(t *testing.T) {
	stale := newFakeHandle(connectivity.TransientFailure)
	fresh := newFakeHandle(connectivity.Ready)
	dial, calls := dialerFor(stale, fresh)
	m := NewMonitor("alice", dial)
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusUnavailable, m.Status())

	require.NoError(t, m.Retry(context.Background()))

	assert.True(t, stale.closed)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StatusReady, m.Status())
}

func TestHandlesAreIdentityScoped(t *testing.T) {
	alice := newFakeHandle(connectivity.Ready)
	bob := newFakeHandle(connectivity.Ready)
	dial, _ := dialerFor(alice, bob)
	m := NewMonitor("alice", dial)
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.SetIdentity("bob")
	assert.Equal(t, StatusUnavailable, m.Status())

	got, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, bob, got)

	m.SetIdentity("alice")
	got, err = m.Handle()
	require.NoError(t, err)
	assert.Same(t, alice, got)
}

func TestListenersSeeTransitions(t *testing.T) {
	h := newFakeHandle(connectivity.Connecting)
	dial, _ := dialerFor(h)
	m := NewMonitor("alice", dial)

	var mu sync.Mutex
	var seen [][2]Status
	m.OnStatusChange(func(from, to Status) {
		mu.Lock()
		seen = append(seen, [2]Status{from, to})
		mu.Unlock()
	})

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	h.set(connectivity.Ready)
	m.Status()
	m.Status()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][2]Status{
		{StatusUnavailable, StatusConnecting},
		{StatusConnecting, StatusReady},
	}, seen)
}

func TestWatchObservesReadiness(t *testing.T) {
	h := newFakeHandle(connectivity.Connecting)
	dial, _ := dialerFor(h)
	m := NewMonitor("alice", dial)

	ready := make(chan struct{})
	var once sync.Once
	m.OnStatusChange(func(_, to Status) {
		if to == StatusReady {
			once.Do(func() { close(ready) })
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	h.set(connectivity.Ready)

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not observe the ready transition")
	}
}

func TestCloseReleasesHandles(t *testing.T) {
	h := newFakeHandle(connectivity.Ready)
	dial, _ := dialerFor(h)
	m := NewMonitor("alice", dial)
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close())

	assert.True(t, h.closed)
	assert.Equal(t, StatusUnavailable, m.Status())
}
