package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"combo/pkg/codec"
	"combo/pkg/config"
	"combo/pkg/utils"
	"combo/pkg/utils/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const helperEnv = "COMBO_TEST_WORKER"

// TestMain lets the test binary act as a worker when re-executed by ExecSpawner.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "listen":
		helperListen()
		os.Exit(0)
	case "crash":
		os.Exit(3)
	case "worker":
		if err := helperWorker(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	default:
		os.Exit(m.Run())
	}
}

func helperListen() {
	w, err := codec.NewMsgWriter(os.NewFile(statusFd, "status"))
	if err != nil {
		os.Exit(2)
	}

	id, _ := utils.WorkerID()
	_ = w.Write(&codec.WorkerMsg{Kind: codec.MsgListening, Pid: os.Getpid(), Addr: fmt.Sprintf("helper-%d", id)})
	_, _ = io.Copy(io.Discard, os.NewFile(controlFd, "control"))
}

func helperWorker() error {
	root := os.Getenv("COMBO_TEST_ROOT")
	roots := orderedmap.New[string, string]()
	roots.Set("/t", root)

	cfg := &config.Config{
		Server:   "combo",
		BasePath: root,
		MaxAge:   0,
		Roots:    roots,
	}

	id, ok := utils.WorkerID()
	if !ok {
		return fmt.Errorf("missing %s", constants.WorkerIDEnv)
	}

	return RunWorker(context.Background(), cfg, id)
}

func helperSpawner(t *testing.T, mode string, listener *os.File, env ...string) *ExecSpawner {
	t.Helper()

	env = append(env, helperEnv+"="+mode)
	s, err := NewExecSpawner(listener, WithCommand(os.Args[0], "-test.run=^$"), WithEnv(env...))
	require.NoError(t, err)

	return s
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("no event from worker")
		return Event{}
	}
}

func TestExecSpawnerListenAndDisconnect(t *testing.T) {
	events := make(chan Event, 8)
	s := helperSpawner(t, "listen", nil)

	child, err := s.Spawn(7, func(ev Event) { events <- ev })
	require.NoError(t, err)
	t.Cleanup(func() { _ = child.Kill() })

	ev := nextEvent(t, events)
	assert.Equal(t, EventListening, ev.Kind)
	assert.Equal(t, 7, ev.ID)
	assert.Equal(t, child.Pid(), ev.Pid)
	assert.Equal(t, "helper-7", ev.Addr)

	require.NoError(t, child.Disconnect())

	ev = nextEvent(t, events)
	assert.Equal(t, EventExit, ev.Kind)
	assert.False(t, ev.Failed())
}

func TestExecSpawnerReportsExitCode(t *testing.T) {
	events := make(chan Event, 8)
	s := helperSpawner(t, "crash", nil)

	_, err := s.Spawn(1, func(ev Event) { events <- ev })
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, EventExit, ev.Kind)
	assert.Equal(t, 3, ev.Code)
	assert.True(t, ev.Failed())
}

func TestExecSpawnerReportsSignal(t *testing.T) {
	events := make(chan Event, 8)
	s := helperSpawner(t, "listen", nil)

	child, err := s.Spawn(1, func(ev Event) { events <- ev })
	require.NoError(t, err)
	require.Equal(t, EventListening, nextEvent(t, events).Kind)

	require.NoError(t, child.Kill())

	ev := nextEvent(t, events)
	assert.Equal(t, EventExit, ev.Kind)
	assert.Equal(t, syscall.SIGKILL, ev.Signal)
}

func TestExecSpawnerEnviron(t *testing.T) {
	t.Setenv(constants.WorkerIDEnv, "99")

	s, err := NewExecSpawner(nil, WithCommand("/bin/true"), WithEnv("A=1"))
	require.NoError(t, err)

	env := s.environ(4)

	var ids []string
	for _, kv := range env {
		if strings.HasPrefix(kv, constants.WorkerIDEnv+"=") {
			ids = append(ids, kv)
		}
	}
	assert.Equal(t, []string{constants.WorkerIDEnv + "=4"}, ids)
	assert.Contains(t, env, "A=1")
}

func TestWorkerServesAndReloads(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.js"), []byte("var a;"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.js"), []byte("var b;"), 0644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	lnFile, err := ln.(*net.TCPListener).File()
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	defer lnFile.Close()

	events := make(chan Event, 8)
	s := helperSpawner(t, "worker", lnFile, "COMBO_TEST_ROOT="+root)

	child, err := s.Spawn(1, func(ev Event) { events <- ev })
	require.NoError(t, err)
	t.Cleanup(func() { _ = child.Kill() })

	ev := nextEvent(t, events)
	require.Equal(t, EventListening, ev.Kind)

	get := func() string {
		res, err := http.Get("http://" + ev.Addr + "/t?a.js&b.js")
		require.NoError(t, err)
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		return string(body)
	}
	assert.Equal(t, "var a;\nvar b;", get())

	pid := child.Pid()
	require.NoError(t, child.Signal(syscall.SIGUSR2))

	reloading := nextEvent(t, events)
	assert.Equal(t, EventReloading, reloading.Kind)

	relisten := nextEvent(t, events)
	require.Equal(t, EventListening, relisten.Kind)
	assert.Equal(t, pid, relisten.Pid)
	assert.Equal(t, "var a;\nvar b;", get())

	require.NoError(t, child.Disconnect())

	exit := nextEvent(t, events)
	assert.Equal(t, EventExit, exit.Kind)
	assert.False(t, exit.Failed())
}
