package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/applekraken/internal/bus"
	"github.com/dusk-indust/applekraken/internal/geometry"
)

const effectorID = "arm-1"

// fakeEffector records commands and moves its own state the way a real arm
// would, but never publishes. Tests publish outcomes explicitly.
type fakeEffector struct {
	mu       sync.Mutex
	state    EffectorState
	reach    geometry.Obb
	prepares int
	picks    []TargetID
	finishes int

	pickErr   error
	finishErr error
}

func newFakeEffector() *fakeEffector {
	return &fakeEffector{
		state: EffectorIdle,
		reach: geometry.NewAxisAlignedObb(geometry.Vec3{}, geometry.Vec3{X: 1, Y: 1, Z: 1}),
	}
}

func (f *fakeEffector) ID() string { return effectorID }

func (f *fakeEffector) State() EffectorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEffector) setState(s EffectorState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeEffector) ReachArea() geometry.Obb { return f.reach }

func (f *fakeEffector) PrepareForPicking(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepares++
	return nil
}

func (f *fakeEffector) PickApple(_ context.Context, task PickAppleTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pickErr != nil {
		return f.pickErr
	}
	f.picks = append(f.picks, task.Target)
	f.state = EffectorPicking
	return nil
}

func (f *fakeEffector) FinishPicking(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finishes++
	f.state = EffectorRetrieving
	return nil
}

func (f *fakeEffector) pickedTargets() []TargetID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TargetID(nil), f.picks...)
}

// fakeEnvironment returns a fixed target list and records the queried box.
type fakeEnvironment struct {
	targets []TargetID
	err     error
	boxes   []geometry.Obb
}

func (e *fakeEnvironment) QueryApplesInBox(_ context.Context, box geometry.Obb) ([]TargetID, error) {
	e.boxes = append(e.boxes, box)
	if e.err != nil {
		return nil, e.err
	}
	return append([]TargetID(nil), e.targets...), nil
}

type harness struct {
	t      *testing.T
	picker *Picker
	arm    *fakeEffector
	env    *fakeEnvironment
	bus    *bus.Dispatcher
	events []Event
}

func newHarness(t *testing.T, targets ...TargetID) *harness {
	t.Helper()
	h := &harness{
		t:   t,
		arm: newFakeEffector(),
		env: &fakeEnvironment{targets: targets},
		bus: bus.New(nil),
	}
	p, err := New(Options{
		Effector:    h.arm,
		Environment: h.env,
		Dispatcher:  h.bus,
		Observers:   []Observer{ObserverFunc(func(ev Event) { h.events = append(h.events, ev) })},
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	h.picker = p
	return h
}

func (h *harness) publish(kind bus.Kind, reason string) {
	h.bus.Publish(bus.Notification{Effector: effectorID, Kind: kind, Reason: reason})
	h.bus.Flush()
}

func (h *harness) ready() {
	h.arm.setState(EffectorReadyForPicking)
	h.publish(bus.KindReadyForPicking, "")
}

func (h *harness) picked() { h.publish(bus.KindApplePicked, "") }

func (h *harness) retrieved() {
	h.arm.setState(EffectorReadyForPicking)
	h.publish(bus.KindAppleRetrieved, "")
}

func (h *harness) failed(reason string) {
	h.arm.setState(EffectorReadyForPicking)
	h.publish(bus.KindPickingFailed, reason)
}

func (h *harness) kinds() []EventKind {
	out := make([]EventKind, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Kind
	}
	return out
}

func TestNew_MissingDependencies(t *testing.T) {
	arm := newFakeEffector()
	env := &fakeEnvironment{}
	d := bus.New(nil)

	tests := []struct {
		name string
		opts Options
	}{
		{"no effector", Options{Environment: env, Dispatcher: d}},
		{"no environment", Options{Effector: arm, Dispatcher: d}},
		{"no dispatcher", Options{Effector: arm, Environment: env}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.ErrorIs(t, err, ErrMissingDependency)
		})
	}
}

func TestPicker_PopulatesQueueWithEveryDiscoveredTarget(t *testing.T) {
	for _, n := range []int{0, 1, 3, 10} {
		targets := make([]TargetID, n)
		for i := range targets {
			targets[i] = TargetID(rune('a' + i))
		}
		h := newHarness(t, targets...)
		require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))

		snap := h.picker.Snapshot()
		assert.Equal(t, n, snap.InitialCount, "n=%d", n)
		assert.Equal(t, n, snap.Remaining, "n=%d", n)
	}
}

func TestPicker_ProgressIsZeroBeforeStart(t *testing.T) {
	h := newHarness(t, "a", "b")
	assert.Equal(t, 0.0, h.picker.ReportProgress())
	assert.Equal(t, StateIdle, h.picker.State())
}

func TestPicker_ThreeTargetsFullCycle(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))

	assert.Equal(t, 0.0, h.picker.ReportProgress())
	assert.Equal(t, StateDispatching, h.picker.State())
	assert.Equal(t, 1, h.arm.prepares, "idle effector is asked to prepare")

	h.ready()
	assert.Equal(t, StateWaitingForPick, h.picker.State())
	h.picked()
	assert.Equal(t, StateWaitingForRetrieval, h.picker.State())
	assert.Equal(t, 0.0, h.picker.ReportProgress(), "picked apple is not yet complete")
	h.retrieved()

	assert.InDelta(t, 1.0/3.0, h.picker.ReportProgress(), 1e-9)
	// Effector is ready again, so the next task goes out at once.
	assert.Equal(t, StateWaitingForPick, h.picker.State())

	h.picked()
	h.retrieved()
	h.picked()
	h.retrieved()

	assert.Equal(t, 1.0, h.picker.ReportProgress())
	assert.Equal(t, StateDone, h.picker.State())
	assert.Equal(t, []TargetID{"a", "b", "c"}, h.arm.pickedTargets())

	snap := h.picker.Snapshot()
	assert.Equal(t, 3, snap.Succeeded)
	assert.Equal(t, 0, snap.Failed)
	assert.Empty(t, snap.Pending)
}

func TestPicker_FailureIsDroppedAndOperationContinues(t *testing.T) {
	h := newHarness(t, "a", "b")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()
	require.Equal(t, StateWaitingForPick, h.picker.State())

	h.failed("jam")

	snap := h.picker.Snapshot()
	assert.Equal(t, 1, snap.Remaining)
	assert.InDelta(t, 0.5, h.picker.ReportProgress(), 1e-9)
	assert.Equal(t, "jam", snap.LastFailure)
	assert.Equal(t, 1, snap.Failed)
	// Second task dispatched without any further input.
	assert.Equal(t, StateWaitingForPick, snap.State)
	assert.Equal(t, TargetID("b"), snap.InFlight)
	assert.Equal(t, []TargetID{"a", "b"}, h.arm.pickedTargets())

	h.picked()
	h.retrieved()
	assert.Equal(t, StateDone, h.picker.State())
	assert.Equal(t, 1.0, h.picker.ReportProgress())
}

func TestPicker_FailureDuringRetrieval(t *testing.T) {
	h := newHarness(t, "a")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()
	h.picked()
	require.Equal(t, StateWaitingForRetrieval, h.picker.State())

	h.failed("dropped")
	assert.Equal(t, StateDone, h.picker.State())
	assert.Equal(t, 1.0, h.picker.ReportProgress())
	assert.Equal(t, 1, h.picker.Snapshot().Failed)
}

func TestPicker_ZeroTargetsIsImmediatelyDone(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))

	assert.Equal(t, StateDone, h.picker.State())
	assert.Equal(t, 1.0, h.picker.ReportProgress())
	assert.Equal(t, 0, h.arm.prepares)
	assert.Equal(t, []EventKind{EventOperationStarted, EventOperationDone}, h.kinds())
}

func TestPicker_RejectsStartWhileInFlight(t *testing.T) {
	h := newHarness(t, "a", "b")
	ctx := context.Background()
	require.NoError(t, h.picker.StartAutomatedOperation(ctx))

	err := h.picker.StartAutomatedOperation(ctx)
	assert.ErrorIs(t, err, ErrOperationInProgress, "dispatching")

	h.ready()
	before := h.picker.Snapshot()
	err = h.picker.StartAutomatedOperation(ctx)
	assert.ErrorIs(t, err, ErrOperationInProgress, "waiting for pick")

	h.picked()
	err = h.picker.StartAutomatedOperation(ctx)
	assert.ErrorIs(t, err, ErrOperationInProgress, "waiting for retrieval")

	after := h.picker.Snapshot()
	assert.Equal(t, before.OperationID, after.OperationID)
	assert.Equal(t, before.InFlight, after.InFlight)
	assert.Equal(t, before.Remaining, after.Remaining)
	assert.Len(t, h.env.boxes, 1, "environment queried once")
}

func TestPicker_RestartAfterDone(t *testing.T) {
	h := newHarness(t, "a")
	ctx := context.Background()
	require.NoError(t, h.picker.StartAutomatedOperation(ctx))
	h.ready()
	h.picked()
	h.retrieved()
	require.Equal(t, StateDone, h.picker.State())
	first := h.picker.Snapshot().OperationID

	h.env.targets = []TargetID{"x", "y"}
	require.NoError(t, h.picker.StartAutomatedOperation(ctx))

	snap := h.picker.Snapshot()
	assert.NotEqual(t, first, snap.OperationID)
	assert.Equal(t, 2, snap.InitialCount)
	assert.Equal(t, 0, snap.Succeeded)
	// Effector was left ready, so x is dispatched straight away.
	assert.Equal(t, TargetID("x"), snap.InFlight)
	assert.Equal(t, 0.0, h.picker.ReportProgress())
}

func TestPicker_ReportProgressIsIdempotent(t *testing.T) {
	h := newHarness(t, "a", "b", "c", "d")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()
	h.picked()
	h.retrieved()

	first := h.picker.ReportProgress()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, h.picker.ReportProgress())
	}
}

func TestPicker_DispatchesInDiscoveryOrder(t *testing.T) {
	order := []TargetID{"t5", "t1", "t4", "t2", "t3"}
	h := newHarness(t, order...)
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()

	for range order {
		if len(h.arm.pickedTargets())%2 == 0 {
			h.failed("skip")
			continue
		}
		h.picked()
		h.retrieved()
	}
	assert.Equal(t, order, h.arm.pickedTargets())
	assert.Equal(t, StateDone, h.picker.State())
}

func TestPicker_ProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))

	last := h.picker.ReportProgress()
	check := func() {
		cur := h.picker.ReportProgress()
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
	h.ready()
	check()
	for i := 0; i < 3; i++ {
		h.picked()
		check()
		h.retrieved()
		check()
	}
	assert.Equal(t, 1.0, last)
}

func TestPicker_OutOfContextNotificationsAreIgnored(t *testing.T) {
	h := newHarness(t, "a", "b")

	h.picked()
	h.retrieved()
	h.failed("noise")
	assert.Equal(t, StateIdle, h.picker.State())

	h.arm.setState(EffectorIdle)
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.picked()
	h.publish(bus.KindAppleRetrieved, "")
	h.publish(bus.KindPickingFailed, "noise")
	snap := h.picker.Snapshot()
	assert.Equal(t, StateDispatching, snap.State)
	assert.Equal(t, 2, snap.Remaining)
	assert.Equal(t, 0, snap.Failed)

	h.ready()
	h.retrieved()
	assert.Equal(t, StateWaitingForPick, h.picker.State(), "retrieved before picked is ignored")
}

func TestPicker_TickDispatchesWhenEffectorBecomesReadySilently(t *testing.T) {
	h := newHarness(t, "a", "b")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()
	h.picked()

	// Arm settles back to idle after retrieval and needs preparing again.
	h.arm.setState(EffectorIdle)
	h.publish(bus.KindAppleRetrieved, "")
	assert.Equal(t, StateDispatching, h.picker.State())
	assert.Equal(t, 2, h.arm.prepares)

	// Further ticks while idle do not spam prepare commands.
	h.bus.Tick(10*time.Millisecond, time.Now())
	h.bus.Flush()
	assert.Equal(t, 2, h.arm.prepares)

	h.arm.setState(EffectorReadyForPicking)
	h.bus.Tick(10*time.Millisecond, time.Now())
	h.bus.Flush()
	assert.Equal(t, StateWaitingForPick, h.picker.State())
	assert.Equal(t, []TargetID{"a", "b"}, h.arm.pickedTargets())
	assert.Equal(t, 20*time.Millisecond, h.picker.Snapshot().Elapsed)
}

func TestPicker_RejectedCommandsFailTheTask(t *testing.T) {
	t.Run("pick", func(t *testing.T) {
		h := newHarness(t, "a")
		h.arm.pickErr = errors.New("out of reach")
		require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
		h.ready()

		snap := h.picker.Snapshot()
		assert.Equal(t, StateDone, snap.State)
		assert.Equal(t, 1, snap.Failed)
		assert.Contains(t, snap.LastFailure, "pick command rejected")
	})
	t.Run("finish", func(t *testing.T) {
		h := newHarness(t, "a", "b")
		h.arm.finishErr = errors.New("gripper fault")
		require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
		h.ready()
		h.picked()

		snap := h.picker.Snapshot()
		assert.Equal(t, 1, snap.Failed)
		assert.Equal(t, 1, snap.Remaining)
		assert.Contains(t, snap.LastFailure, "retrieve command rejected")
	})
}

func TestPicker_QueryErrorLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, "a")
	h.env.err = errors.New("sensor offline")

	err := h.picker.StartAutomatedOperation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor offline")
	assert.Equal(t, StateIdle, h.picker.State())
	assert.Equal(t, 0.0, h.picker.ReportProgress())
	assert.Empty(t, h.events)
}

func TestPicker_RejectsStartWhileEffectorBusy(t *testing.T) {
	h := newHarness(t, "a")
	h.arm.setState(EffectorRetrieving)
	err := h.picker.StartAutomatedOperation(context.Background())
	assert.ErrorIs(t, err, ErrEffectorBusy)
	assert.Equal(t, StateIdle, h.picker.State())
}

func TestPicker_GatheringAreaDefaultsToReach(t *testing.T) {
	h := newHarness(t, "a")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	require.Len(t, h.env.boxes, 1)
	assert.Equal(t, h.arm.reach, h.env.boxes[0])

	area := geometry.NewAxisAlignedObb(geometry.Vec3{X: 5}, geometry.Vec3{X: 2, Y: 2, Z: 2})
	env := &fakeEnvironment{}
	p, err := New(Options{
		Effector:      newFakeEffector(),
		Environment:   env,
		Dispatcher:    bus.New(nil),
		GatheringArea: area,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.NoError(t, p.StartAutomatedOperation(context.Background()))
	assert.Equal(t, []geometry.Obb{area}, env.boxes)
}

func TestPicker_Lifecycle(t *testing.T) {
	arm := newFakeEffector()
	d := bus.New(nil)
	p, err := New(Options{Effector: arm, Environment: &fakeEnvironment{targets: []TargetID{"a"}}, Dispatcher: d})
	require.NoError(t, err)

	assert.ErrorIs(t, p.StartAutomatedOperation(context.Background()), ErrNotStarted)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, p.StartAutomatedOperation(context.Background()))
	require.Equal(t, StateDispatching, p.State())

	p.Stop()
	p.Stop()
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, "stopped", p.Snapshot().LastFailure)

	// Notifications no longer reach a stopped picker.
	arm.setState(EffectorReadyForPicking)
	d.Publish(bus.Notification{Effector: effectorID, Kind: bus.KindReadyForPicking})
	d.Flush()
	assert.Empty(t, arm.pickedTargets())

	// Restart works after Stop.
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.NoError(t, p.StartAutomatedOperation(context.Background()))
	assert.Equal(t, []TargetID{"a"}, arm.pickedTargets())
}

func TestPicker_StartRejectsInvalidArea(t *testing.T) {
	arm := newFakeEffector()
	arm.reach = geometry.Obb{Center: geometry.Vec3{X: 1}, HalfExtents: geometry.Vec3{X: -1, Y: 1, Z: 1}}
	d := bus.New(nil)
	p, err := New(Options{Effector: arm, Environment: &fakeEnvironment{}, Dispatcher: d})
	require.NoError(t, err)

	err = p.Start(context.Background())
	assert.ErrorIs(t, err, geometry.ErrInvalidBox)
	assert.ErrorIs(t, p.StartAutomatedOperation(context.Background()), ErrNotStarted)
}

func TestPicker_EmitsEventsInOrder(t *testing.T) {
	h := newHarness(t, "a", "b")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()
	h.failed("jam")
	h.picked()
	h.retrieved()

	assert.Equal(t, []EventKind{
		EventOperationStarted,
		EventTaskDispatched,
		EventTaskFailed,
		EventTaskDispatched,
		EventApplePicked,
		EventTaskSucceeded,
		EventOperationDone,
	}, h.kinds())

	opID := h.picker.Snapshot().OperationID
	for _, ev := range h.events {
		assert.Equal(t, opID, ev.OperationID)
	}
	assert.Equal(t, "jam", h.events[2].Reason)
	assert.Equal(t, TargetID("a"), h.events[2].Task.Target)
	assert.Equal(t, 1.0, h.events[len(h.events)-1].Progress)
}

func TestPicker_EventStateIsStateAtEmission(t *testing.T) {
	h := newHarness(t, "a", "b")
	require.NoError(t, h.picker.StartAutomatedOperation(context.Background()))
	h.ready()
	h.failed("jam")
	h.picked()
	h.retrieved()

	states := make([]State, len(h.events))
	for i, ev := range h.events {
		states[i] = ev.State
	}
	assert.Equal(t, []State{
		StateAwaitingDiscovery,   // operation_started
		StateWaitingForPick,      // task_dispatched a
		StateWaitingForPick,      // task_failed a
		StateWaitingForPick,      // task_dispatched b
		StateWaitingForRetrieval, // apple_picked b
		StateWaitingForRetrieval, // task_succeeded b
		StateDone,                // operation_done
	}, states)

	// The last outcome precedes done, so it never reports completion.
	assert.Equal(t, 0.5, h.events[5].Progress)
}
