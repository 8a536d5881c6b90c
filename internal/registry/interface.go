package registry

import (
	"context"

	"train-router/internal/train"
)

// MoveOptions 控制一次移动的行为
type MoveOptions struct {
	// DeleteSource 移动成功后删除源 repository（尽力而为，失败只记日志）
	DeleteSource bool
	// Outgoing 移动到 pht_outgoing：只复制 latest，base 不再需要
	Outgoing bool
}

// Mover 在 registry 项目之间复制/删除 train 镜像。复制非事务，按
// base、latest 的顺序执行；目的端已存在视为成功。
type Mover interface {
	// Move 把 train 的镜像从 origin 项目复制到 destination 项目
	Move(ctx context.Context, id train.ID, origin, destination train.ProjectRef, opts MoveOptions) error
	// Find 搜索仍持有该 train repository 的项目
	Find(ctx context.Context, id train.ID) ([]train.ProjectRef, error)
	// RestoreLatest 在 pht_incoming 中把 latest 重新指向不可变的 base
	RestoreLatest(ctx context.Context, id train.ID) error
}

// Prober 启动时的连通性探测（Harbor 实现提供）
type Prober interface {
	Probe(ctx context.Context) error
}
