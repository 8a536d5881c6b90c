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

// EventType 入站命令事件，闭集
type EventType string

const (
	EventTrainBuilt  EventType = "trainBuilt"
	EventTrainStart  EventType = "startTrain"
	EventTrainStop   EventType = "stopTrain"
	EventTrainPushed EventType = "trainPushed"
	EventTrainStatus EventType = "trainStatus"
	EventTrainReset  EventType = "trainReset"
)

// ResponseEvent 出站响应事件
type ResponseEvent string

const (
	ResponseBuilt     ResponseEvent = "trainBuilt"
	ResponseStarted   ResponseEvent = "trainStarted"
	ResponseStopped   ResponseEvent = "trainStopped"
	ResponseMoved     ResponseEvent = "trainMoved"
	ResponseCompleted ResponseEvent = "trainCompleted"
	ResponseStatus    ResponseEvent = "trainStatus"
	ResponseIgnored   ResponseEvent = "trainIgnored"
	ResponseFailed    ResponseEvent = "trainFailed"
)

// ErrorCode trainFailed 响应携带的错误码
type ErrorCode int

const (
	CodeNotFound ErrorCode = iota
	CodeAlreadyStarted
	CodeAlreadyStopped
	CodeNotStarted
	CodeNotRunning
	CodeMoveFailed
	CodeInvalidRoute
)
