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

// Package bus 连接路由器与 RabbitMQ topic exchange：订阅入站 routing key，
// 把响应发布到出站 routing key。单 worker，一次只处理一条消息。
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"train-router/pkg/log"
	"train-router/pkg/metrics"
)

// Handler 消息处理器；返回 nil 表示不发布响应
type Handler interface {
	Dispatch(ctx context.Context, body []byte) []byte
}

// Config 总线配置
type Config struct {
	URL         string
	Exchange    string // topic exchange，默认 "pht"
	RoutingKey  string // 入站 key
	ResponseKey string // 出站 key
	Queue       string // 留空时由 broker 生成独占队列
}

// Consumer 订阅命令、发布响应；连接断开后按指数退避重连
type Consumer struct {
	cfg     Config
	handler Handler
	logger  *log.Logger
}

// NewConsumer 创建总线消费者
func NewConsumer(cfg Config, handler Handler, logger *log.Logger) *Consumer {
	return &Consumer{cfg: cfg, handler: handler, logger: logger}
}

// Run 阻塞运行直到 ctx 取消。传输层断开时重连，处理循环保证消息必被确认：
// 路由动作跨重投不幂等，宁可丢消息也不能重复执行。
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // 一直重试
	bo.MaxInterval = 30 * time.Second

	for {
		err := c.runOnce(ctx, bo)
		if ctx.Err() != nil {
			return nil
		}
		wait := bo.NextBackOff()
		metrics.BusReconnectTotal.Inc()
		c.logger.Warn("总线连接断开，准备重连", "error", err, "wait", wait.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// runOnce 建立一条连接并消费，直到连接断开或 ctx 取消
func (c *Consumer) runOnce(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	// 单 worker：一次只取一条，处理完再要下一条
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	queue, err := ch.QueueDeclare(c.cfg.Queue, false, true, c.cfg.Queue == "", false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	tag := "train-router-" + uuid.NewString()
	deliveries, err := ch.Consume(queue.Name, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("总线已连接", "exchange", c.cfg.Exchange,
		"queue", queue.Name, "routing_key", c.cfg.RoutingKey)
	bo.Reset()

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-connClosed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, ch, delivery)
		}
	}
}

// handleDelivery 处理一条投递：派发、发布响应、确认。确认无条件执行，
// 包括格式错误的消息。
func (c *Consumer) handleDelivery(ctx context.Context, ch *amqp.Channel, delivery amqp.Delivery) {
	response := c.handler.Dispatch(ctx, delivery.Body)
	if response != nil {
		if err := c.publish(ctx, ch, response); err != nil {
			// 状态已经变更，不能靠重投补救，只能暴露
			c.logger.Error("发布响应失败", "error", err)
		}
	}
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("确认消息失败", "error", err)
	}
}

func (c *Consumer) publish(ctx context.Context, ch *amqp.Channel, body []byte) error {
	err := ch.PublishWithContext(ctx, c.cfg.Exchange, c.cfg.ResponseKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		return err
	}
	c.logger.Debug("已发布响应", "routing_key", c.cfg.ResponseKey, "bytes", len(body))
	return nil
}
