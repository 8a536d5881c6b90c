package state

import (
	"context"

	"train-router/internal/train"
)

// Store train 运行时状态缓存。路由权威在 route store，这里保存可变的剩余路
// 由、当前位置与生命周期状态。
//
// Register 与 AdvanceTo 对同一 train 的并发调用必须原子：两个并发 AdvanceTo
// 不会发出同一个 station，也不会跳过 station。
type Store interface {
	// Exists train 是否已注册
	Exists(ctx context.Context, id train.ID) (bool, error)
	// Register 原子注册：写入 stations 与剩余路由、类型、epoch 计数，
	// current_station=pht_incoming，status=initialized。已存在时为 no-op。
	Register(ctx context.Context, route train.Route) error
	// Status 读取生命周期状态，train 不存在时返回 pkg/errors.ErrNotFound
	Status(ctx context.Context, id train.ID) (train.Status, error)
	// SetStatus 更新生命周期状态
	SetStatus(ctx context.Context, id train.ID, status train.Status) error
	// Type 路由类型（linear | periodic）
	Type(ctx context.Context, id train.ID) (train.RouteType, error)
	// CurrentStation 镜像当前所在项目
	CurrentStation(ctx context.Context, id train.ID) (train.ProjectRef, error)
	// SetCurrentStation 更新镜像当前所在项目
	SetCurrentStation(ctx context.Context, id train.ID, ref train.ProjectRef) error
	// PeekNext 查看下一跳而不消费：路由头部；路由耗尽时 periodic 在
	// epoch < epochs 时给出重播后的头部，否则返回 pht_outgoing。
	PeekNext(ctx context.Context, id train.ID) (train.ProjectRef, error)
	// AdvanceTo 在 registry 移动成功后提交一跳：原子地弹出路由头部（必要时
	// 递增 epoch 并重播 stations）、校验与 ref 一致并更新 current_station。
	AdvanceTo(ctx context.Context, id train.ID, ref train.ProjectRef) error
	// Epoch 返回 (已完成的完整轮数, 总轮数)；linear 路由为 (0, 0)
	Epoch(ctx context.Context, id train.ID) (epoch, epochs int, err error)
	// Remove 删除 train 的全部状态
	Remove(ctx context.Context, id train.ID) error
}
