package supervisor

import (
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPrometheusMetricsCounters(t *testing.T) {
	pm := NewPrometheusMetrics("test")

	pm.WorkerForked()
	pm.WorkerForked()
	pm.WorkerRespawned()
	pm.WorkerFlameout()
	pm.LiveWorkers(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.forks))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.respawns))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.flameouts))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.liveWorkers))
}

func TestPrometheusMetricsStateTransitions(t *testing.T) {
	pm := NewPrometheusMetrics("test")

	pm.ControllerState(StateInitializing, StateForking)
	pm.ControllerState(StateForking, StateRunning)

	expected := `
		# HELP test_master_state_transitions_total Total number of master state transitions
		# TYPE test_master_state_transitions_total counter
		test_master_state_transitions_total{from_state="Forking",to_state="Running"} 1
		test_master_state_transitions_total{from_state="Initializing",to_state="Forking"} 1
	`
	err := testutil.GatherAndCompare(pm.Registry(), strings.NewReader(expected), "test_master_state_transitions_total")
	assert.NoError(t, err)
	assert.Equal(t, float64(StateRunning), testutil.ToFloat64(pm.state))
}

func TestControllerReportsMetrics(t *testing.T) {
	pm := NewPrometheusMetrics("test")
	spawner := newFakeSpawner()
	spawner.onSpawn = func(id int, child *fakeChild, emit func(Event)) {
		emit(Event{Kind: EventListening, ID: id, Pid: child.Pid()})
	}

	run := startController(t, testConfig(t, 3), spawner, WithMetrics(pm), WithLogger(zap.NewNop().Sugar()))

	require.Eventually(t, func() bool {
		return len(run.workerPids(t)) == 3
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.forks))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.liveWorkers))
	assert.Equal(t, float64(StateRunning), testutil.ToFloat64(pm.state))

	run.signals <- syscall.SIGQUIT
	assert.ErrorIs(t, run.wait(t), ErrHardStopped)
}
