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

// Package train 领域类型：train 标识、station 标识、registry 项目引用、路由与状态
package train

import (
	"fmt"

	pkgerrors "train-router/pkg/errors"
)

// ID train 标识，同时是 registry 项目内的 repository 名
type ID string

// StationID station 标识，对应 registry 项目 station_<id>
type StationID string

// 工具项目（utility projects）：固定名称的 registry 项目
const (
	Incoming ProjectRef = "pht_incoming" // 新构建镜像的入口项目
	Outgoing ProjectRef = "pht_outgoing" // 完成 train 的出口项目
	Interop  ProjectRef = "pht_interop"  // 跨 registry 中转项目（可选）
)

// ProjectRef registry 项目引用：工具项目为字面名称，station 为裸 station id
type ProjectRef string

// StationRef 由 station id 构造 ProjectRef
func StationRef(id StationID) ProjectRef {
	return ProjectRef(id)
}

// IsUtility 是否为固定名称的工具项目
func (p ProjectRef) IsUtility() bool {
	return p == Incoming || p == Outgoing || p == Interop
}

// ProjectName 映射为 Harbor 项目名：工具项目用字面名，station 加 station_ 前缀
func (p ProjectRef) ProjectName() string {
	if p.IsUtility() {
		return string(p)
	}
	return "station_" + string(p)
}

// RefFromProjectName 由 Harbor 项目名还原 ProjectRef
func RefFromProjectName(name string) ProjectRef {
	ref := ProjectRef(name)
	if ref.IsUtility() {
		return ref
	}
	if len(name) > len("station_") && name[:len("station_")] == "station_" {
		return ProjectRef(name[len("station_"):])
	}
	return ref
}

// Status train 生命周期状态
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusStarted     Status = "started"
	StatusRunning     Status = "running"
	StatusStopped     Status = "stopped"
	StatusCompleted   Status = "completed"
)

// RouteType 路由类型：linear 单次遍历，periodic 按 epochs 重复遍历
type RouteType string

const (
	RouteLinear   RouteType = "linear"
	RoutePeriodic RouteType = "periodic"
)

// Route Vault 中存储的权威路由。字段名沿用构建管线写入的 payload。
type Route struct {
	Suffix   ID          `json:"repositorySuffix"`
	Stations []StationID `json:"harborProjects"`
	Periodic bool        `json:"periodic"`
	Epochs   int         `json:"epochs,omitempty"`
}

// Type 路由类型
func (r Route) Type() RouteType {
	if r.Periodic {
		return RoutePeriodic
	}
	return RouteLinear
}

// Validate 校验路由：stations 非空；periodic 必须带正的 epochs
func (r Route) Validate() error {
	if r.Suffix == "" {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidRoute, "empty repository suffix")
	}
	if len(r.Stations) == 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidRoute, "train %s: empty station list", r.Suffix)
	}
	if r.Periodic && r.Epochs <= 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidRoute, "train %s: periodic route without positive epochs", r.Suffix)
	}
	if !r.Periodic && r.Epochs != 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidRoute, "train %s: epochs set on linear route", r.Suffix)
	}
	for _, s := range r.Stations {
		if s == "" {
			return fmt.Errorf("train %s: blank station id: %w", r.Suffix, pkgerrors.ErrInvalidRoute)
		}
	}
	return nil
}
