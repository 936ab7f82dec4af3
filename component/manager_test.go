package component

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComponent records lifecycle calls for ordering assertions
type fakeComponent struct {
	name    string
	calls   *[]string
	initErr error
	startE  error
	stopErr error
	healthy bool
}

func (f *fakeComponent) Meta() Metadata {
	return Metadata{Name: f.name, Type: "processor", Version: "1.0.0"}
}

func (f *fakeComponent) Health() HealthStatus {
	return HealthStatus{Healthy: f.healthy, LastCheck: time.Now()}
}

func (f *fakeComponent) DataFlow() FlowMetrics { return FlowMetrics{} }

func (f *fakeComponent) Initialize() error {
	*f.calls = append(*f.calls, "init:"+f.name)
	return f.initErr
}

func (f *fakeComponent) Start(_ context.Context) error {
	*f.calls = append(*f.calls, "start:"+f.name)
	return f.startE
}

func (f *fakeComponent) Stop(_ time.Duration) error {
	*f.calls = append(*f.calls, "stop:"+f.name)
	return f.stopErr
}

func TestManagerStartStopOrder(t *testing.T) {
	var calls []string
	mgr := NewManager(nil)

	a := &fakeComponent{name: "router", calls: &calls, healthy: true}
	b := &fakeComponent{name: "validator", calls: &calls, healthy: true}

	require.NoError(t, mgr.Register("router", a))
	require.NoError(t, mgr.Register("validator", b))

	require.NoError(t, mgr.StartAll(context.Background()))
	require.NoError(t, mgr.StopAll(time.Second))

	assert.Equal(t, []string{
		"init:router", "start:router",
		"init:validator", "start:validator",
		"stop:validator", "stop:router",
	}, calls)
}

func TestManagerDuplicateRegistration(t *testing.T) {
	var calls []string
	mgr := NewManager(nil)

	require.NoError(t, mgr.Register("router", &fakeComponent{name: "router", calls: &calls}))
	assert.Error(t, mgr.Register("router", &fakeComponent{name: "router", calls: &calls}))
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var calls []string
	mgr := NewManager(nil)

	a := &fakeComponent{name: "router", calls: &calls, healthy: true}
	b := &fakeComponent{name: "validator", calls: &calls, startE: fmt.Errorf("no store")}

	require.NoError(t, mgr.Register("router", a))
	require.NoError(t, mgr.Register("validator", b))

	err := mgr.StartAll(context.Background())
	require.Error(t, err)

	// Already-started router is stopped again in rollback
	assert.Equal(t, []string{
		"init:router", "start:router",
		"init:validator", "start:validator",
		"stop:router",
	}, calls)
}

func TestManagerHealthy(t *testing.T) {
	var calls []string
	mgr := NewManager(nil)

	a := &fakeComponent{name: "router", calls: &calls, healthy: true}
	b := &fakeComponent{name: "broadcaster", calls: &calls, healthy: false}

	require.NoError(t, mgr.Register("router", a))
	require.NoError(t, mgr.Register("broadcaster", b))
	require.NoError(t, mgr.StartAll(context.Background()))

	assert.False(t, mgr.Healthy())

	b.healthy = true
	assert.True(t, mgr.Healthy())
}

func TestManagerComponentLookup(t *testing.T) {
	var calls []string
	mgr := NewManager(nil)

	a := &fakeComponent{name: "router", calls: &calls}
	require.NoError(t, mgr.Register("router", a))

	assert.Equal(t, a, mgr.Component("router"))
	assert.Nil(t, mgr.Component("missing"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDependenciesGetLogger(t *testing.T) {
	deps := Dependencies{}
	require.NotNil(t, deps.GetLogger())
	require.NotNil(t, deps.GetLoggerWithComponent("router"))
}
