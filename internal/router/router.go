// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"train-router/internal/registry"
	"train-router/internal/storage/routes"
	"train-router/internal/storage/state"
	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
	"train-router/pkg/log"
	"train-router/pkg/metrics"
)

// 路由器自己触发的推送以该 operator 出现，必须忽略，否则会自我驱动
const systemOperator = "system"

// DemoTrigger 演示模式钩子：train 成功移动到某 station 后触发该 station 的
// 执行。失败只记日志，不影响路由。
type DemoTrigger interface {
	TrainMoved(ctx context.Context, id train.ID, station train.StationID)
}

// Router 有限状态控制器：组合 route store、state store 与 registry mover
// 处理六种命令。所有协作方由构造注入，单 worker 串行调用 Process。
type Router struct {
	routes    routes.Store
	state     state.Store
	mover     registry.Mover
	logger    *log.Logger
	autoStart bool
	demo      DemoTrigger
}

// Option Router 可选项
type Option func(*Router)

// WithAutoStart BUILT 后立即执行 START
func WithAutoStart(enabled bool) Option {
	return func(r *Router) { r.autoStart = enabled }
}

// WithDemoTrigger 注入演示模式钩子
func WithDemoTrigger(trigger DemoTrigger) Option {
	return func(r *Router) { r.demo = trigger }
}

// NewRouter 创建路由引擎
func NewRouter(routeStore routes.Store, stateStore state.Store, mover registry.Mover, logger *log.Logger, opts ...Option) *Router {
	r := &Router{
		routes: routeStore,
		state:  stateStore,
		mover:  mover,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process 处理一条命令，恒返回一个响应，从不向总线层抛错
func (r *Router) Process(ctx context.Context, cmd Command) Response {
	start := time.Now()
	var resp Response
	switch cmd.Event {
	case EventTrainBuilt:
		resp = r.handleBuilt(ctx, cmd.TrainID, r.autoStart)
	case EventTrainStart:
		resp = r.handleStart(ctx, cmd.TrainID)
	case EventTrainStop:
		resp = r.handleStop(ctx, cmd.TrainID)
	case EventTrainPushed:
		resp = r.handlePushed(ctx, cmd)
	case EventTrainStatus:
		resp = r.handleStatus(ctx, cmd.TrainID)
	case EventTrainReset:
		resp = r.handleReset(ctx, cmd.TrainID)
	default:
		r.logger.Error("无法识别的事件类型", "event", cmd.Event, "train_id", cmd.TrainID)
		resp = failedNoCode(cmd.TrainID, "unrecognized event type")
	}
	metrics.CommandTotal.WithLabelValues(string(cmd.Event), string(resp.Event)).Inc()
	metrics.CommandDuration.WithLabelValues(string(cmd.Event)).Observe(time.Since(start).Seconds())
	return resp
}

// handleBuilt 从 route store 读取路由并注册到状态缓存；autoStart 时接着执行 START
func (r *Router) handleBuilt(ctx context.Context, id train.ID, autoStart bool) Response {
	r.logger.Info("初始化 train", "train_id", id)
	route, err := r.routes.Get(ctx, id)
	if err != nil {
		r.logger.Error("读取路由失败", "train_id", id, "error", err)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return failed(id, CodeNotFound, "route not found")
		}
		return failedNoCode(id, "failed to get route")
	}

	existed, err := r.state.Exists(ctx, id)
	if err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if err := r.state.Register(ctx, route); err != nil {
		r.logger.Error("注册 train 失败", "train_id", id, "error", err)
		if errors.Is(err, pkgerrors.ErrInvalidRoute) {
			return failed(id, CodeInvalidRoute, err.Error())
		}
		return failedNoCode(id, "failed to register train")
	}
	if !existed {
		metrics.TrainsActive.Inc()
	}

	if autoStart {
		r.logger.Info("auto start 已开启，立即启动", "train_id", id)
		return r.handleStart(ctx, id)
	}
	return ok(ResponseBuilt, id, "successfully initialized train")
}

// handleStart 校验状态后把 train 移出当前项目。不存在时先从 route store
// 自愈（重新注册）。
func (r *Router) handleStart(ctx context.Context, id train.ID) Response {
	r.logger.Info("尝试启动 train", "train_id", id)
	exists, err := r.state.Exists(ctx, id)
	if err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if !exists {
		r.logger.Warn("train 不在状态缓存，尝试从 route store 恢复", "train_id", id)
		if resp := r.handleBuilt(ctx, id, false); resp.Event == ResponseFailed {
			return failed(id, CodeNotFound, "failed to recover route")
		}
	}

	status, err := r.state.Status(ctx, id)
	if err != nil {
		return failed(id, CodeNotFound, "train not found")
	}
	switch status {
	case train.StatusStarted, train.StatusRunning:
		r.logger.Warn("train 已启动", "train_id", id)
		return failed(id, CodeAlreadyStarted, "train is already started")
	case train.StatusCompleted:
		return failed(id, CodeNotFound, "train is no longer active")
	case train.StatusInitialized, train.StatusStopped:
		// 继续
	default:
		r.logger.Error("未知 train 状态", "train_id", id, "status", status)
		return failed(id, CodeNotFound, "unknown train status")
	}

	resp, destination := r.moveNext(ctx, id)
	if resp != nil {
		return *resp
	}
	if err := r.state.SetStatus(ctx, id, train.StatusRunning); err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	r.logger.Info("train 启动成功", "train_id", id, "destination", destination.ProjectName())
	return ok(ResponseStarted, id, "train started successfully")
}

// handleStop 运行中的 train 置为 stopped；其余状态拒绝
func (r *Router) handleStop(ctx context.Context, id train.ID) Response {
	r.logger.Info("尝试停止 train", "train_id", id)
	exists, err := r.state.Exists(ctx, id)
	if err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if !exists {
		return failed(id, CodeNotFound, "train not found")
	}

	status, err := r.state.Status(ctx, id)
	if err != nil {
		return failed(id, CodeNotFound, "train not found")
	}
	switch status {
	case train.StatusStopped:
		return failed(id, CodeAlreadyStopped, "train is already stopped")
	case train.StatusInitialized, train.StatusCompleted:
		return failed(id, CodeNotStarted, "train is not running")
	case train.StatusStarted, train.StatusRunning:
		if err := r.state.SetStatus(ctx, id, train.StatusStopped); err != nil {
			return failedNoCode(id, "state store unavailable")
		}
		r.logger.Info("train 停止成功", "train_id", id)
		return ok(ResponseStopped, id, "train stopped successfully")
	default:
		r.logger.Error("未知 train 状态", "train_id", id, "status", status)
		return failed(id, CodeNotRunning, "unknown train status")
	}
}

// handlePushed 处理 station 推送：把 train 移向下一跳或收尾
func (r *Router) handlePushed(ctx context.Context, cmd Command) Response {
	id := cmd.TrainID
	if cmd.Operator == systemOperator {
		r.logger.Info("忽略 system 推送事件", "train_id", id)
		return ok(ResponseIgnored, id, "ignored system event")
	}

	status, err := r.state.Status(ctx, id)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return failed(id, CodeNotFound, "train not found")
		}
		return failedNoCode(id, "state store unavailable")
	}
	if status != train.StatusStarted && status != train.StatusRunning {
		r.logger.Warn("train 未运行，拒绝推送事件", "train_id", id, "status", status)
		return failed(id, CodeNotRunning, "train is not running")
	}

	// 消息里的 project 仅作参考，以状态缓存为准
	origin, err := r.state.CurrentStation(ctx, id)
	if err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if cmd.Project != "" && cmd.Project != origin.ProjectName() {
		r.logger.Warn("推送项目与缓存位置不一致，以缓存为准",
			"train_id", id, "pushed_project", cmd.Project, "current", origin.ProjectName())
	}

	destination, err := r.state.PeekNext(ctx, id)
	if err != nil {
		return failedNoCode(id, "state store unavailable")
	}

	if destination == train.Outgoing {
		return r.completeTrain(ctx, id, origin)
	}

	r.logger.Info("移动 train", "train_id", id,
		"origin", origin.ProjectName(), "destination", destination.ProjectName())
	err = r.mover.Move(ctx, id, origin, destination, registry.MoveOptions{DeleteSource: true})
	if err != nil {
		r.logger.Error("移动 train 失败", "train_id", id, "error", err)
		return failed(id, CodeMoveFailed,
			fmt.Sprintf("error moving train - origin: %s - destination: %s", origin.ProjectName(), destination.ProjectName()))
	}
	if err := r.state.AdvanceTo(ctx, id, destination); err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	r.triggerDemo(ctx, id, destination)
	return ok(ResponseMoved, id,
		fmt.Sprintf("origin: %s - destination: %s", origin.ProjectName(), destination.ProjectName()))
}

// completeTrain 路由耗尽：移到 pht_outgoing（只保留 latest）、置 completed、
// 删除权威路由
func (r *Router) completeTrain(ctx context.Context, id train.ID, origin train.ProjectRef) Response {
	r.logger.Info("train 路由完成，移往 pht_outgoing", "train_id", id)
	err := r.mover.Move(ctx, id, origin, train.Outgoing, registry.MoveOptions{DeleteSource: true, Outgoing: true})
	if err != nil {
		r.logger.Error("移往 pht_outgoing 失败", "train_id", id, "error", err)
		return failed(id, CodeMoveFailed, "error moving train to outgoing")
	}
	if err := r.state.AdvanceTo(ctx, id, train.Outgoing); err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if err := r.state.SetStatus(ctx, id, train.StatusCompleted); err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if err := r.routes.Delete(ctx, id); err != nil {
		// 权威路由删不掉会在下次启动同步时重新出现，必须暴露
		r.logger.Error("删除权威路由失败", "train_id", id, "error", err)
		return failedNoCode(id, "failed to delete route")
	}
	metrics.TrainsActive.Dec()
	r.logger.Info("train 完成", "train_id", id)
	return ok(ResponseCompleted, id, "train completed successfully")
}

// handleStatus 读取生命周期状态
func (r *Router) handleStatus(ctx context.Context, id train.ID) Response {
	status, err := r.state.Status(ctx, id)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return failed(id, CodeNotFound, "train not found")
		}
		return failedNoCode(id, "state store unavailable")
	}
	return ok(ResponseStatus, id, string(status))
}

// handleReset 把 train 从所有 station 项目搬回 pht_incoming、恢复
// latest ← base、重建状态缓存（等价于刚 BUILT 完）
func (r *Router) handleReset(ctx context.Context, id train.ID) Response {
	r.logger.Info("重置 train", "train_id", id)
	route, err := r.routes.Get(ctx, id)
	if err != nil {
		r.logger.Error("读取路由失败", "train_id", id, "error", err)
		return failed(id, CodeNotFound, "route not found")
	}

	refs, err := r.mover.Find(ctx, id)
	if err != nil {
		r.logger.Error("registry 搜索失败", "train_id", id, "error", err)
		return failedNoCode(id, "registry search failed")
	}
	for _, ref := range refs {
		if ref.IsUtility() {
			continue
		}
		r.logger.Info("发现滞留的 train，搬回 pht_incoming", "train_id", id, "project", ref.ProjectName())
		err := r.mover.Move(ctx, id, ref, train.Incoming, registry.MoveOptions{DeleteSource: true})
		if err != nil {
			r.logger.Error("搬回 pht_incoming 失败", "train_id", id, "project", ref.ProjectName(), "error", err)
			return failed(id, CodeMoveFailed, "failed to move train back to incoming")
		}
	}

	if err := r.mover.RestoreLatest(ctx, id); err != nil {
		r.logger.Error("恢复 latest 标签失败", "train_id", id, "error", err)
		return failed(id, CodeMoveFailed, "failed to restore latest tag")
	}

	exists, err := r.state.Exists(ctx, id)
	if err != nil {
		return failedNoCode(id, "state store unavailable")
	}
	if exists {
		if err := r.state.Remove(ctx, id); err != nil {
			return failedNoCode(id, "state store unavailable")
		}
	} else {
		metrics.TrainsActive.Inc()
	}
	if err := r.state.Register(ctx, route); err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidRoute) {
			return failed(id, CodeInvalidRoute, err.Error())
		}
		return failedNoCode(id, "failed to register train")
	}
	r.logger.Info("train 重置完成", "train_id", id)
	return ok(ResponseBuilt, id, "train reset")
}

// moveNext 查看下一跳、移动、提交。peek/commit 保证移动失败时路由不丢跳。
// 返回 (失败响应, 目的地)；成功时响应为 nil。
func (r *Router) moveNext(ctx context.Context, id train.ID) (*Response, train.ProjectRef) {
	origin, err := r.state.CurrentStation(ctx, id)
	if err != nil {
		resp := failedNoCode(id, "state store unavailable")
		return &resp, ""
	}
	destination, err := r.state.PeekNext(ctx, id)
	if err != nil {
		resp := failedNoCode(id, "state store unavailable")
		return &resp, ""
	}
	err = r.mover.Move(ctx, id, origin, destination, registry.MoveOptions{
		DeleteSource: true,
		Outgoing:     destination == train.Outgoing,
	})
	if err != nil {
		r.logger.Error("移动 train 失败", "train_id", id,
			"origin", origin.ProjectName(), "destination", destination.ProjectName(), "error", err)
		resp := failed(id, CodeMoveFailed,
			fmt.Sprintf("error moving train - origin: %s - destination: %s", origin.ProjectName(), destination.ProjectName()))
		return &resp, ""
	}
	if err := r.state.AdvanceTo(ctx, id, destination); err != nil {
		resp := failedNoCode(id, "state store unavailable")
		return &resp, ""
	}
	r.triggerDemo(ctx, id, destination)
	return nil, destination
}

// triggerDemo 演示模式下移动成功后触发 station 执行
func (r *Router) triggerDemo(ctx context.Context, id train.ID, destination train.ProjectRef) {
	if r.demo == nil || destination.IsUtility() {
		return
	}
	r.demo.TrainMoved(ctx, id, train.StationID(destination))
}

// SyncRoutes 启动同步：route store 为重启后的权威，把缺失的 train 重新注册
// 到状态缓存；已存在的不动。
func (r *Router) SyncRoutes(ctx context.Context) error {
	r.logger.Info("同步状态缓存与 route store")
	routeList, err := r.routes.List(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "list routes")
	}
	for _, route := range routeList {
		exists, err := r.state.Exists(ctx, route.Suffix)
		if err != nil {
			return err
		}
		if exists {
			r.logger.Info("train 已在状态缓存，跳过", "train_id", route.Suffix)
			continue
		}
		r.logger.Info("注册缺失的 train", "train_id", route.Suffix)
		if err := r.state.Register(ctx, route); err != nil {
			r.logger.Error("注册 train 失败", "train_id", route.Suffix, "error", err)
			continue
		}
		metrics.TrainsActive.Inc()
	}
	r.logger.Info("同步完成", "routes", len(routeList))
	return nil
}
