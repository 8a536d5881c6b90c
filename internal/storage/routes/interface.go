package routes

import (
	"context"

	"train-router/internal/train"
)

// Store 权威路由目录。条目由构建管线创建，路由器只读与删除，从不修改。
type Store interface {
	// Get 读取 train 的路由，不存在时返回 pkg/errors.ErrNotFound
	Get(ctx context.Context, id train.ID) (train.Route, error)
	// List 列出所有路由
	List(ctx context.Context) ([]train.Route, error)
	// Delete 删除 train 的路由（train 完成时调用）
	Delete(ctx context.Context, id train.ID) error
}
