package client

import (
	"bytes"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"combo/pkg/codec"
	"combo/pkg/pidfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func newTestSignaler(t *testing.T, opts ...Option) (*Signaler, *pidfile.Store, *bytes.Buffer) {
	t.Helper()

	store := pidfile.NewStore(t.TempDir(), "master")
	out := new(bytes.Buffer)
	opts = append([]Option{WithOutput(out), WithLogger(zap.NewNop().Sugar())}, opts...)

	return NewSignaler(store, opts...), store, out
}

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	return cmd
}

func TestSendToMissingPidfile(t *testing.T) {
	s, _, out := newTestSignaler(t)

	err := s.Send(codec.ActionShutdown)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, "combo master not running\n", out.String())
}

func TestSendTermToLiveProcess(t *testing.T) {
	s, store, _ := newTestSignaler(t)
	cmd := startSleeper(t)
	require.NoError(t, store.Write("master", cmd.Process.Pid))

	require.NoError(t, s.Send(codec.ActionShutdown))

	state, err := cmd.Process.Wait()
	require.NoError(t, err)
	ws := state.Sys().(syscall.WaitStatus)
	assert.True(t, ws.Signaled())
	assert.Equal(t, syscall.SIGTERM, ws.Signal())

	// graceful signals leave the pidfile for the master to remove
	_, err = store.ReadMaster()
	assert.NoError(t, err)
}

func TestSendKillRemovesPidfileFirst(t *testing.T) {
	s, store, _ := newTestSignaler(t)
	cmd := startSleeper(t)
	require.NoError(t, store.Write("master", cmd.Process.Pid))

	require.NoError(t, s.Send(codec.ActionStop))

	_, err := store.ReadMaster()
	assert.ErrorIs(t, err, pidfile.ErrNotFound)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process was not killed")
	}
}

func TestSendToStalePid(t *testing.T) {
	s, store, out := newTestSignaler(t)

	dead := exec.Command("true")
	require.NoError(t, dead.Run())
	require.NoError(t, store.Write("master", dead.Process.Pid))

	err := s.Send(codec.ActionRestart)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Contains(t, out.String(), "not running")

	// the stale file stays for non-kill signals
	_, err = store.ReadMaster()
	assert.NoError(t, err)
}

func TestStopTwiceIsNotRunning(t *testing.T) {
	s, store, out := newTestSignaler(t, WithKill(func(int, syscall.Signal) error { return nil }))
	require.NoError(t, store.Write("master", os.Getpid()))

	require.NoError(t, s.Send(codec.ActionStop))
	assert.ErrorIs(t, s.Send(codec.ActionStop), ErrNotRunning)
	assert.Equal(t, "combo master not running\n", out.String())
}

func TestSendPermissionDenied(t *testing.T) {
	s, store, _ := newTestSignaler(t, WithKill(func(int, syscall.Signal) error { return unix.EPERM }))
	require.NoError(t, store.Write("master", 1))

	err := s.Send(codec.ActionShutdown)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "PID 1")
}

func TestSendActionWithoutSignal(t *testing.T) {
	s, _, _ := newTestSignaler(t)

	assert.Error(t, s.Send(codec.ActionStatus))
}
