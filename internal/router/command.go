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
	"encoding/json"
	"strings"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
)

// Command 解析后的入站命令
type Command struct {
	Event   EventType
	TrainID train.ID
	// Project 推送事件携带的项目名，仅作参考：路由以状态缓存里的
	// current_station 为准
	Project string
	// Operator 推送者；"system" 表示路由器自己触发的推送
	Operator string
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type idData struct {
	ID string `json:"id"`
}

type builtData struct {
	TrainID            string `json:"trainId"`
	RepositoryFullName string `json:"repositoryFullName"`
}

type pushedData struct {
	RepositoryFullName string `json:"repositoryFullName"`
	Operator           string `json:"operator"`
}

// ParseCommand 解析消息体。格式错误返回 ErrMalformedMessage，未知事件返回
// ErrUnknownEvent（命令里尽量带上 train id 供失败响应使用）。
func ParseCommand(body []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Command{}, pkgerrors.Wrap(pkgerrors.ErrMalformedMessage, err.Error())
	}
	if env.Type == "" || len(env.Data) == 0 {
		return Command{}, pkgerrors.Wrap(pkgerrors.ErrMalformedMessage, "missing type or data")
	}

	switch EventType(env.Type) {
	case EventTrainPushed:
		var data pushedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Command{}, pkgerrors.Wrap(pkgerrors.ErrMalformedMessage, err.Error())
		}
		project, id, err := splitRepository(data.RepositoryFullName)
		if err != nil {
			return Command{}, err
		}
		return Command{
			Event:    EventTrainPushed,
			TrainID:  id,
			Project:  project,
			Operator: data.Operator,
		}, nil

	case EventTrainBuilt:
		var data builtData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Command{}, pkgerrors.Wrap(pkgerrors.ErrMalformedMessage, err.Error())
		}
		if data.TrainID != "" {
			return Command{Event: EventTrainBuilt, TrainID: train.ID(data.TrainID)}, nil
		}
		_, id, err := splitRepository(data.RepositoryFullName)
		if err != nil {
			return Command{}, err
		}
		return Command{Event: EventTrainBuilt, TrainID: id}, nil

	case EventTrainStart, EventTrainStop, EventTrainStatus, EventTrainReset:
		var data idData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Command{}, pkgerrors.Wrap(pkgerrors.ErrMalformedMessage, err.Error())
		}
		if data.ID == "" {
			return Command{}, pkgerrors.Wrap(pkgerrors.ErrMalformedMessage, "missing train id")
		}
		return Command{Event: EventType(env.Type), TrainID: train.ID(data.ID)}, nil

	default:
		// 带上能解析到的 id，失败响应里回给发送方
		var data idData
		_ = json.Unmarshal(env.Data, &data)
		return Command{Event: EventType(env.Type), TrainID: train.ID(data.ID)},
			pkgerrors.Wrapf(pkgerrors.ErrUnknownEvent, "%s", env.Type)
	}
}

// splitRepository 拆分 "<project>/<trainId>"
func splitRepository(full string) (string, train.ID, error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", pkgerrors.Wrapf(pkgerrors.ErrMalformedMessage, "bad repository name %q", full)
	}
	return parts[0], train.ID(parts[1]), nil
}
