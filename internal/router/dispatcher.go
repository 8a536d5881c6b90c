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

	pkgerrors "train-router/pkg/errors"
	"train-router/pkg/log"
)

// Dispatcher 把总线消息体解析成命令、交给引擎、序列化响应。
// 消息不论好坏都会被确认（调用方负责 ack）：路由动作跨重投不幂等。
type Dispatcher struct {
	router *Router
	logger *log.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(router *Router, logger *log.Logger) *Dispatcher {
	return &Dispatcher{router: router, logger: logger}
}

// Dispatch 处理一条消息体，返回要发布的响应字节。格式错误的消息不产生
// 响应（返回 nil），只记日志。
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) []byte {
	cmd, err := ParseCommand(body)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUnknownEvent) {
			// 未知事件仍回一个失败响应，发送方能收到反馈
			d.logger.Error("未知事件", "error", err)
			resp := failedNoCode(cmd.TrainID, "unrecognized event type")
			return d.marshal(resp)
		}
		d.logger.Error("消息格式错误，丢弃", "error", err)
		return nil
	}

	d.logger.Debug("收到命令", "event", cmd.Event, "train_id", cmd.TrainID)
	resp := d.router.Process(ctx, cmd)
	return d.marshal(resp)
}

func (d *Dispatcher) marshal(resp Response) []byte {
	out, err := resp.Marshal()
	if err != nil {
		d.logger.Error("响应序列化失败", "train_id", resp.TrainID, "error", err)
		return nil
	}
	return out
}
