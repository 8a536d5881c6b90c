// Copyright 2026 fanjia1024
// HashiCorp Vault route store

package routes

import (
	"context"
	"encoding/json"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
	"train-router/pkg/log"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address string // Vault server address (e.g., http://vault:8200)
	Token   string // Vault token
	Mount   string // KV v1 mount holding the routes (e.g., "routes")
}

type vaultStore struct {
	client *vault.Client
	mount  string
	logger *log.Logger
}

// NewVaultStore 创建 Vault route store
func NewVaultStore(config VaultConfig, logger *log.Logger) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if config.Token != "" {
		client.SetToken(config.Token)
	}

	// Try to verify connection
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	mount := "routes"
	if config.Mount != "" {
		mount = config.Mount
	}

	return &vaultStore{client: client, mount: mount, logger: logger}, nil
}

func (v *vaultStore) Get(ctx context.Context, id train.ID) (train.Route, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.routePath(id))
	if err != nil {
		return train.Route{}, pkgerrors.Wrapf(pkgerrors.ErrStoreUnavailable, "read route %s: %v", id, err)
	}
	if secret == nil || len(secret.Data) == 0 {
		return train.Route{}, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "route %s", id)
	}
	route, err := decodeRoute(secret.Data)
	if err != nil {
		return train.Route{}, err
	}
	// 老的构建管线不写 repositorySuffix，用 secret 路径补上
	if route.Suffix == "" {
		route.Suffix = id
	}
	return route, nil
}

func (v *vaultStore) List(ctx context.Context) ([]train.Route, error) {
	secret, err := v.client.Logical().ListWithContext(ctx, v.mount)
	if err != nil {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrStoreUnavailable, "list routes: %v", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	var result []train.Route
	for _, k := range keys {
		key, ok := k.(string)
		if !ok {
			continue
		}
		route, err := v.Get(ctx, train.ID(key))
		if err != nil {
			// 单条读不出来不阻塞整个同步
			v.logger.Warn("跳过无法读取的路由", "train_id", key, "error", err)
			continue
		}
		result = append(result, route)
	}
	return result, nil
}

func (v *vaultStore) Delete(ctx context.Context, id train.ID) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.routePath(id)); err != nil {
		return pkgerrors.Wrapf(pkgerrors.ErrStoreUnavailable, "delete route %s: %v", id, err)
	}
	return nil
}

func (v *vaultStore) routePath(id train.ID) string {
	return fmt.Sprintf("%s/%s", v.mount, id)
}

// decodeRoute 把 KV v1 的 secret data 解码为 Route（经 JSON 往返，容忍 json.Number）
func decodeRoute(data map[string]interface{}) (train.Route, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return train.Route{}, pkgerrors.Wrap(pkgerrors.ErrInvalidRoute, err.Error())
	}
	var route train.Route
	if err := json.Unmarshal(raw, &route); err != nil {
		return train.Route{}, pkgerrors.Wrap(pkgerrors.ErrInvalidRoute, err.Error())
	}
	return route, nil
}
