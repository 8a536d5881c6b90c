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

package state

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
)

// Redis key 布局沿用既有部署：<id>-stations / <id>-route 为列表，
// <id>-type / <id>-status / <id>-current / <id>-epoch / <id>-epochs 为单值。
// 路由从头部（LINDEX 0 / LPOP）消费。

// registerScript 原子注册；train 已存在时 no-op（返回 0）
var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 5, #ARGV do
  redis.call('RPUSH', KEYS[1], ARGV[i])
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('SET', KEYS[3], ARGV[1])
redis.call('SET', KEYS[4], ARGV[2])
redis.call('SET', KEYS[5], ARGV[3])
if ARGV[1] == 'periodic' then
  redis.call('SET', KEYS[6], '0')
  redis.call('SET', KEYS[7], ARGV[4])
end
return 1
`)

// peekScript 查看下一跳：路由头部；耗尽时 periodic 未跑满给出重播头部，否则 outgoing
var peekScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[5]) == 0 then
  return redis.error_reply('no such train')
end
local head = redis.call('LINDEX', KEYS[1], 0)
if head then
  return head
end
if redis.call('GET', KEYS[2]) == 'periodic' then
  local epoch = tonumber(redis.call('GET', KEYS[3]) or '0')
  local epochs = tonumber(redis.call('GET', KEYS[4]) or '0')
  if epoch < epochs then
    return redis.call('LINDEX', KEYS[5], 0)
  end
end
return ARGV[1]
`)

// advanceScript 提交一跳：弹出头部（必要时递增 epoch 并重播 stations）、
// 校验与目标一致、更新 current
var advanceScript = redis.NewScript(`
if ARGV[1] == ARGV[2] then
  redis.call('SET', KEYS[6], ARGV[1])
  return 1
end
local head = redis.call('LINDEX', KEYS[1], 0)
if not head then
  if redis.call('GET', KEYS[2]) ~= 'periodic' then
    return redis.error_reply('route exhausted')
  end
  local epoch = tonumber(redis.call('GET', KEYS[3]) or '0')
  local epochs = tonumber(redis.call('GET', KEYS[4]) or '0')
  if epoch >= epochs then
    return redis.error_reply('route exhausted')
  end
  redis.call('INCR', KEYS[3])
  local stations = redis.call('LRANGE', KEYS[5], 0, -1)
  for i = 1, #stations do
    redis.call('RPUSH', KEYS[1], stations[i])
  end
  head = redis.call('LINDEX', KEYS[1], 0)
end
if head ~= ARGV[1] then
  return redis.error_reply('advance conflict: head ' .. tostring(head) .. ', target ' .. ARGV[1])
end
redis.call('LPOP', KEYS[1])
redis.call('SET', KEYS[6], ARGV[1])
return 1
`)

type redisStore struct {
	client *redis.Client
}

// Options Redis 连接配置
type Options struct {
	Addr     string
	DB       int
	Password string
}

// NewRedisStore 创建 Redis 状态存储并探测连通性
func NewRedisStore(ctx context.Context, opts Options) (Store, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrStoreUnavailable, "redis ping %s: %v", opts.Addr, err)
	}
	return &redisStore{client: client}, nil
}

// NewRedisStoreWithClient 复用已有连接（测试用）
func NewRedisStoreWithClient(client *redis.Client) Store {
	return &redisStore{client: client}
}

func keyStations(id train.ID) string { return string(id) + "-stations" }
func keyRoute(id train.ID) string    { return string(id) + "-route" }
func keyType(id train.ID) string     { return string(id) + "-type" }
func keyStatus(id train.ID) string   { return string(id) + "-status" }
func keyCurrent(id train.ID) string  { return string(id) + "-current" }
func keyEpoch(id train.ID) string    { return string(id) + "-epoch" }
func keyEpochs(id train.ID) string   { return string(id) + "-epochs" }

func (s *redisStore) Exists(ctx context.Context, id train.ID) (bool, error) {
	n, err := s.client.Exists(ctx, keyStations(id)).Result()
	if err != nil {
		return false, storeErr(err)
	}
	return n > 0, nil
}

func (s *redisStore) Register(ctx context.Context, route train.Route) error {
	if err := route.Validate(); err != nil {
		return err
	}
	id := route.Suffix
	keys := []string{
		keyStations(id), keyRoute(id), keyType(id), keyStatus(id),
		keyCurrent(id), keyEpoch(id), keyEpochs(id),
	}
	args := []interface{}{
		string(route.Type()), string(train.StatusInitialized), string(train.Incoming),
		strconv.Itoa(route.Epochs),
	}
	for _, st := range route.Stations {
		args = append(args, string(st))
	}
	if err := registerScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *redisStore) Status(ctx context.Context, id train.ID) (train.Status, error) {
	val, err := s.client.Get(ctx, keyStatus(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "train %s", id)
	}
	if err != nil {
		return "", storeErr(err)
	}
	return train.Status(val), nil
}

func (s *redisStore) SetStatus(ctx context.Context, id train.ID, status train.Status) error {
	if err := s.client.Set(ctx, keyStatus(id), string(status), 0).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *redisStore) Type(ctx context.Context, id train.ID) (train.RouteType, error) {
	val, err := s.client.Get(ctx, keyType(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "train %s", id)
	}
	if err != nil {
		return "", storeErr(err)
	}
	return train.RouteType(val), nil
}

func (s *redisStore) CurrentStation(ctx context.Context, id train.ID) (train.ProjectRef, error) {
	val, err := s.client.Get(ctx, keyCurrent(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "train %s", id)
	}
	if err != nil {
		return "", storeErr(err)
	}
	return train.ProjectRef(val), nil
}

func (s *redisStore) SetCurrentStation(ctx context.Context, id train.ID, ref train.ProjectRef) error {
	if err := s.client.Set(ctx, keyCurrent(id), string(ref), 0).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *redisStore) PeekNext(ctx context.Context, id train.ID) (train.ProjectRef, error) {
	keys := []string{keyRoute(id), keyType(id), keyEpoch(id), keyEpochs(id), keyStations(id)}
	val, err := peekScript.Run(ctx, s.client, keys, string(train.Outgoing)).Text()
	if err != nil {
		if strings.Contains(err.Error(), "no such train") {
			return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "train %s", id)
		}
		return "", storeErr(err)
	}
	return train.ProjectRef(val), nil
}

func (s *redisStore) AdvanceTo(ctx context.Context, id train.ID, ref train.ProjectRef) error {
	keys := []string{keyRoute(id), keyType(id), keyEpoch(id), keyEpochs(id), keyStations(id), keyCurrent(id)}
	if err := advanceScript.Run(ctx, s.client, keys, string(ref), string(train.Outgoing)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *redisStore) Epoch(ctx context.Context, id train.ID) (int, int, error) {
	vals, err := s.client.MGet(ctx, keyEpoch(id), keyEpochs(id)).Result()
	if err != nil {
		return 0, 0, storeErr(err)
	}
	epoch := atoiOrZero(vals[0])
	epochs := atoiOrZero(vals[1])
	return epoch, epochs, nil
}

func (s *redisStore) Remove(ctx context.Context, id train.ID) error {
	err := s.client.Del(ctx,
		keyStations(id), keyRoute(id), keyType(id), keyStatus(id),
		keyCurrent(id), keyEpoch(id), keyEpochs(id),
	).Err()
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func storeErr(err error) error {
	return pkgerrors.Wrap(pkgerrors.ErrStoreUnavailable, err.Error())
}

func atoiOrZero(v interface{}) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
