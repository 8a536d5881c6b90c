package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-router/internal/registry"
	"train-router/internal/storage/routes"
	"train-router/internal/storage/state"
	"train-router/internal/train"
	"train-router/pkg/log"
)

type moveCall struct {
	id          train.ID
	origin      train.ProjectRef
	destination train.ProjectRef
	opts        registry.MoveOptions
}

// fakeMover 记录移动调用；failMove 非 nil 时 Move 全部失败
type fakeMover struct {
	moves    []moveCall
	failMove error
	found    []train.ProjectRef
	restored []train.ID
}

func (f *fakeMover) Move(ctx context.Context, id train.ID, origin, destination train.ProjectRef, opts registry.MoveOptions) error {
	if f.failMove != nil {
		return f.failMove
	}
	f.moves = append(f.moves, moveCall{id: id, origin: origin, destination: destination, opts: opts})
	return nil
}

func (f *fakeMover) Find(ctx context.Context, id train.ID) ([]train.ProjectRef, error) {
	return f.found, nil
}

func (f *fakeMover) RestoreLatest(ctx context.Context, id train.ID) error {
	f.restored = append(f.restored, id)
	return nil
}

type testEnv struct {
	router *Router
	routes *routes.MemoryStore
	state  state.Store
	mover  *fakeMover
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)
	routeStore := routes.NewMemoryStore()
	stateStore := state.NewMemoryStore()
	mover := &fakeMover{}
	return &testEnv{
		router: NewRouter(routeStore, stateStore, mover, logger, opts...),
		routes: routeStore,
		state:  stateStore,
		mover:  mover,
	}
}

func (e *testEnv) seedRoute(stations ...train.StationID) {
	e.routes.Put(train.Route{Suffix: "t1", Stations: stations})
}

func (e *testEnv) process(event EventType) Response {
	return e.router.Process(context.Background(), Command{Event: event, TrainID: "t1"})
}

func TestRouter_Built(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")

	resp := env.process(EventTrainBuilt)
	assert.Equal(t, ResponseBuilt, resp.Event)
	assert.Equal(t, train.ID("t1"), resp.TrainID)

	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusInitialized, status)
	current, err := env.state.CurrentStation(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.Incoming, current)
	assert.Empty(t, env.mover.moves, "BUILT 不应触发移动")
}

func TestRouter_Built_RouteNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.process(EventTrainBuilt)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotFound, *resp.Code)
}

func TestRouter_Built_AutoStart(t *testing.T) {
	env := newTestEnv(t, WithAutoStart(true))
	env.seedRoute("a")

	resp := env.process(EventTrainBuilt)
	assert.Equal(t, ResponseStarted, resp.Event)

	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusRunning, status)
	require.Len(t, env.mover.moves, 1)
	assert.Equal(t, train.Incoming, env.mover.moves[0].origin)
	assert.Equal(t, train.StationRef("a"), env.mover.moves[0].destination)
}

func TestRouter_Start(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)

	resp := env.process(EventTrainStart)
	assert.Equal(t, ResponseStarted, resp.Event)

	require.Len(t, env.mover.moves, 1)
	move := env.mover.moves[0]
	assert.Equal(t, train.Incoming, move.origin)
	assert.Equal(t, train.StationRef("a"), move.destination)
	assert.True(t, move.opts.DeleteSource)
	assert.False(t, move.opts.Outgoing)

	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusRunning, status)
}

func TestRouter_Start_AlreadyStarted(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	resp := env.process(EventTrainStart)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeAlreadyStarted, *resp.Code)
}

func TestRouter_Start_RecoversFromRouteStore(t *testing.T) {
	// 状态缓存丢了，但权威路由还在：START 自愈后正常启动
	env := newTestEnv(t)
	env.seedRoute("a")

	resp := env.process(EventTrainStart)
	assert.Equal(t, ResponseStarted, resp.Event)
}

func TestRouter_Start_Unknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.process(EventTrainStart)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotFound, *resp.Code)
}

func TestRouter_Stop(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	resp := env.process(EventTrainStop)
	assert.Equal(t, ResponseStopped, resp.Event)
	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusStopped, status)

	resp = env.process(EventTrainStop)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeAlreadyStopped, *resp.Code)
}

func TestRouter_Stop_NotStarted(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a")
	env.process(EventTrainBuilt)

	resp := env.process(EventTrainStop)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotStarted, *resp.Code)
}

func TestRouter_Stop_Unknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.process(EventTrainStop)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotFound, *resp.Code)
}

func TestRouter_StopThenRestart(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)
	env.process(EventTrainStop)

	// 重启后从停下的位置继续，而不是从头开始
	resp := env.process(EventTrainStart)
	assert.Equal(t, ResponseStarted, resp.Event)
	require.Len(t, env.mover.moves, 2)
	assert.Equal(t, train.StationRef("a"), env.mover.moves[1].origin)
	assert.Equal(t, train.StationRef("b"), env.mover.moves[1].destination)
}

func pushed(operator string) Command {
	return Command{Event: EventTrainPushed, TrainID: "t1", Operator: operator}
}

func TestRouter_Pushed_MovesToNext(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	resp := env.router.Process(context.Background(), pushed("data-scientist"))
	assert.Equal(t, ResponseMoved, resp.Event)

	require.Len(t, env.mover.moves, 2)
	move := env.mover.moves[1]
	assert.Equal(t, train.StationRef("a"), move.origin)
	assert.Equal(t, train.StationRef("b"), move.destination)
	assert.True(t, move.opts.DeleteSource)
}

func TestRouter_Pushed_CompletesAtRouteEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	resp := env.router.Process(context.Background(), pushed("data-scientist"))
	assert.Equal(t, ResponseCompleted, resp.Event)

	require.Len(t, env.mover.moves, 2)
	move := env.mover.moves[1]
	assert.Equal(t, train.StationRef("a"), move.origin)
	assert.Equal(t, train.Outgoing, move.destination)
	assert.True(t, move.opts.Outgoing)

	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusCompleted, status)

	// 完成后权威路由被删除
	_, err = env.routes.Get(context.Background(), "t1")
	assert.Error(t, err)
}

func TestRouter_Pushed_IgnoresSystemOperator(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)
	movesBefore := len(env.mover.moves)

	resp := env.router.Process(context.Background(), pushed(systemOperator))
	assert.Equal(t, ResponseIgnored, resp.Event)
	assert.Len(t, env.mover.moves, movesBefore, "system 推送不应触发移动")
}

func TestRouter_Pushed_NotRunning(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)

	resp := env.router.Process(context.Background(), pushed("data-scientist"))
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotRunning, *resp.Code)
}

func TestRouter_Pushed_Unknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.router.Process(context.Background(), pushed("data-scientist"))
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotFound, *resp.Code)
}

func TestRouter_MoveFailureKeepsRoute(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	env.mover.failMove = fmt.Errorf("registry down")
	resp := env.router.Process(context.Background(), pushed("data-scientist"))
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeMoveFailed, *resp.Code)

	// 失败的移动不消费路由：恢复后重试到同一目的地
	env.mover.failMove = nil
	resp = env.router.Process(context.Background(), pushed("data-scientist"))
	assert.Equal(t, ResponseMoved, resp.Event)
	last := env.mover.moves[len(env.mover.moves)-1]
	assert.Equal(t, train.StationRef("b"), last.destination)
}

func TestRouter_PeriodicFullRun(t *testing.T) {
	env := newTestEnv(t)
	env.routes.Put(train.Route{Suffix: "t1", Stations: []train.StationID{"x", "y"}, Periodic: true, Epochs: 1})
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	// start 消费了 x；剩 y, x, y, outgoing
	events := []ResponseEvent{ResponseMoved, ResponseMoved, ResponseMoved, ResponseCompleted}
	for i, want := range events {
		resp := env.router.Process(context.Background(), pushed("data-scientist"))
		require.Equal(t, want, resp.Event, "push #%d: %s", i, resp.Message)
	}

	wantDest := []train.ProjectRef{
		train.StationRef("x"), train.StationRef("y"),
		train.StationRef("x"), train.StationRef("y"),
		train.Outgoing,
	}
	require.Len(t, env.mover.moves, len(wantDest))
	for i, move := range env.mover.moves {
		assert.Equal(t, wantDest[i], move.destination, "move #%d", i)
	}
}

func TestRouter_Status(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a")
	env.process(EventTrainBuilt)

	resp := env.process(EventTrainStatus)
	assert.Equal(t, ResponseStatus, resp.Event)
	assert.Equal(t, string(train.StatusInitialized), resp.Message)
}

func TestRouter_Status_Unknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.process(EventTrainStatus)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotFound, *resp.Code)
}

func TestRouter_Reset(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoute("a", "b")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)
	env.router.Process(context.Background(), pushed("data-scientist"))

	// train 此刻在 station b
	env.mover.found = []train.ProjectRef{train.StationRef("b"), train.Incoming}
	resp := env.process(EventTrainReset)
	assert.Equal(t, ResponseBuilt, resp.Event)

	last := env.mover.moves[len(env.mover.moves)-1]
	assert.Equal(t, train.StationRef("b"), last.origin)
	assert.Equal(t, train.Incoming, last.destination)
	assert.Contains(t, env.mover.restored, train.ID("t1"))

	// 状态等价于刚 BUILT 完
	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusInitialized, status)
	next, err := env.state.PeekNext(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StationRef("a"), next)
}

func TestRouter_Reset_RouteNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.process(EventTrainReset)
	assert.Equal(t, ResponseFailed, resp.Event)
	require.NotNil(t, resp.Code)
	assert.Equal(t, CodeNotFound, *resp.Code)
}

func TestRouter_UnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	resp := env.router.Process(context.Background(), Command{Event: "bogus", TrainID: "t1"})
	assert.Equal(t, ResponseFailed, resp.Event)
	assert.Nil(t, resp.Code)
}

func TestRouter_SyncRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.routes.Put(train.Route{Suffix: "t1", Stations: []train.StationID{"a"}})
	env.routes.Put(train.Route{Suffix: "t2", Stations: []train.StationID{"b"}})

	// t1 已在状态缓存且已启动，同步不得动它
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)

	require.NoError(t, env.router.SyncRoutes(context.Background()))

	status, err := env.state.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, train.StatusRunning, status)

	status, err = env.state.Status(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, train.StatusInitialized, status)
}

type recordingTrigger struct {
	calls []train.StationID
}

func (r *recordingTrigger) TrainMoved(ctx context.Context, id train.ID, station train.StationID) {
	r.calls = append(r.calls, station)
}

func TestRouter_DemoTrigger(t *testing.T) {
	trigger := &recordingTrigger{}
	env := newTestEnv(t, WithDemoTrigger(trigger))
	env.seedRoute("a")
	env.process(EventTrainBuilt)
	env.process(EventTrainStart)
	env.router.Process(context.Background(), pushed("data-scientist"))

	// 只在移动到 station 时触发，移往 pht_outgoing 不触发
	assert.Equal(t, []train.StationID{"a"}, trigger.calls)
}
