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

	"train-router/internal/train"
)

// Response 路由器对每条命令给出的唯一响应
type Response struct {
	Event   ResponseEvent
	TrainID train.ID
	Message string
	Code    *ErrorCode
}

type responseData struct {
	TrainID   train.ID `json:"trainId"`
	Message   *string  `json:"message"`
	ErrorCode *int     `json:"errorCode"`
}

type responseEnvelope struct {
	Type ResponseEvent `json:"type"`
	Data responseData  `json:"data"`
}

// Marshal 序列化为队列消息：{"type": ..., "data": {"trainId", "message", "errorCode"}}
func (r Response) Marshal() ([]byte, error) {
	data := responseData{TrainID: r.TrainID}
	if r.Message != "" {
		msg := r.Message
		data.Message = &msg
	}
	if r.Code != nil {
		code := int(*r.Code)
		data.ErrorCode = &code
	}
	return json.Marshal(responseEnvelope{Type: r.Event, Data: data})
}

// ok 成功响应
func ok(event ResponseEvent, id train.ID, message string) Response {
	return Response{Event: event, TrainID: id, Message: message}
}

// failed 带错误码的失败响应
func failed(id train.ID, code ErrorCode, message string) Response {
	c := code
	return Response{Event: ResponseFailed, TrainID: id, Message: message, Code: &c}
}

// failedNoCode 无错误码的失败响应（临时性存储故障等）
func failedNoCode(id train.ID, message string) Response {
	return Response{Event: ResponseFailed, TrainID: id, Message: message}
}
