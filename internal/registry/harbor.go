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

package registry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
	"train-router/pkg/log"
	"train-router/pkg/metrics"
)

// 镜像标签对：base 为不可变构建产物，latest 为各 station 更新的工作副本
const (
	TagBase   = "base"
	TagLatest = "latest"
)

// HarborConfig Harbor 连接配置
type HarborConfig struct {
	URL      string // 基础地址，不含 /api/v2.0
	User     string
	Password string
	Timeout  time.Duration // 单请求超时，0 用默认 20s
}

type harborMover struct {
	client *resty.Client
	logger *log.Logger
}

// NewHarborMover 创建 Harbor registry mover
func NewHarborMover(cfg HarborConfig, logger *log.Logger) Mover {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.URL+"/api/v2.0").
		SetBasicAuth(cfg.User, cfg.Password).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &harborMover{client: client, logger: logger}
}

// Probe 启动时探测 Harbor 连通性
func (h *harborMover) Probe(ctx context.Context) error {
	resp, err := h.client.R().SetContext(ctx).Get("/projects")
	if err != nil {
		return fmt.Errorf("harbor probe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("harbor probe: %s", resp.Status())
	}
	return nil
}

func (h *harborMover) Move(ctx context.Context, id train.ID, origin, destination train.ProjectRef, opts MoveOptions) error {
	start := time.Now()
	err := h.move(ctx, id, origin, destination, opts)
	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.MoveTotal.WithLabelValues(result).Inc()
	metrics.MoveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}

func (h *harborMover) move(ctx context.Context, id train.ID, origin, destination train.ProjectRef, opts MoveOptions) error {
	if !opts.Outgoing {
		if err := h.copyTag(ctx, id, origin, destination, TagBase); err != nil {
			return err
		}
	}
	if err := h.copyTag(ctx, id, origin, destination, TagLatest); err != nil {
		return err
	}
	if opts.DeleteSource {
		// train 已经到达目的端，删除失败不致命
		if err := h.deleteRepository(ctx, id, origin); err != nil {
			h.logger.Warn("删除源 repository 失败", "train_id", id, "origin", origin.ProjectName(), "error", err)
		}
	}
	return nil
}

// copyTag 复制单个标签；Harbor 把重复复制当冲突，已存在视为成功
func (h *harborMover) copyTag(ctx context.Context, id train.ID, origin, destination train.ProjectRef, tag string) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("from", fmt.Sprintf("%s/%s:%s", origin.ProjectName(), id, tag)).
		Post(fmt.Sprintf("/projects/%s/repositories/%s/artifacts", destination.ProjectName(), id))
	if err != nil {
		return pkgerrors.Wrapf(pkgerrors.ErrMoveFailed, "copy %s %s -> %s: %v",
			tag, origin.ProjectName(), destination.ProjectName(), err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusConflict {
		return pkgerrors.Wrapf(pkgerrors.ErrMoveFailed, "copy %s %s -> %s: %s",
			tag, origin.ProjectName(), destination.ProjectName(), resp.Status())
	}
	h.logger.Debug("复制标签完成", "train_id", id, "tag", tag,
		"origin", origin.ProjectName(), "destination", destination.ProjectName())
	return nil
}

func (h *harborMover) deleteRepository(ctx context.Context, id train.ID, origin train.ProjectRef) error {
	resp, err := h.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/projects/%s/repositories/%s", origin.ProjectName(), id))
	if err != nil {
		return err
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete repository: %s", resp.Status())
	}
	return nil
}

type searchResult struct {
	Repository []struct {
		ProjectName    string `json:"project_name"`
		RepositoryName string `json:"repository_name"`
	} `json:"repository"`
}

func (h *harborMover) Find(ctx context.Context, id train.ID) ([]train.ProjectRef, error) {
	var out searchResult
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("q", string(id)).
		SetResult(&out).
		Get("/search")
	if err != nil {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrStoreUnavailable, "harbor search %s: %v", id, err)
	}
	if resp.IsError() {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrStoreUnavailable, "harbor search %s: %s", id, resp.Status())
	}
	var refs []train.ProjectRef
	for _, repo := range out.Repository {
		// 搜索是子串匹配，只要完全同名的 repository
		if repo.RepositoryName != fmt.Sprintf("%s/%s", repo.ProjectName, id) {
			continue
		}
		refs = append(refs, train.RefFromProjectName(repo.ProjectName))
	}
	return refs, nil
}

// RestoreLatest 把 pht_incoming 中的 latest 重新指向 base：
// 先删 latest 标签（不存在可容忍），再在 base 工件上建 latest 标签。
func (h *harborMover) RestoreLatest(ctx context.Context, id train.ID) error {
	incoming := train.Incoming.ProjectName()
	resp, err := h.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/projects/%s/repositories/%s/artifacts/%s/tags/%s", incoming, id, TagLatest, TagLatest))
	if err != nil {
		return pkgerrors.Wrapf(pkgerrors.ErrMoveFailed, "delete latest tag for %s: %v", id, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return pkgerrors.Wrapf(pkgerrors.ErrMoveFailed, "delete latest tag for %s: %s", id, resp.Status())
	}

	resp, err = h.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": TagLatest}).
		Post(fmt.Sprintf("/projects/%s/repositories/%s/artifacts/%s/tags", incoming, id, TagBase))
	if err != nil {
		return pkgerrors.Wrapf(pkgerrors.ErrMoveFailed, "retag base as latest for %s: %v", id, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusConflict {
		return pkgerrors.Wrapf(pkgerrors.ErrMoveFailed, "retag base as latest for %s: %s", id, resp.Status())
	}
	return nil
}
