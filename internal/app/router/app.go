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

// Package router 装配路由器应用：日志、存储、registry 客户端、路由引擎、
// 消息总线，并负责启动同步与优雅关闭。
package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"train-router/internal/bus"
	"train-router/internal/demo"
	"train-router/internal/registry"
	"train-router/internal/router"
	"train-router/internal/storage/routes"
	"train-router/internal/storage/state"
	"train-router/pkg/config"
	"train-router/pkg/log"
	"train-router/pkg/metrics"
)

// App 路由器应用
type App struct {
	config   *config.Config
	logger   *log.Logger
	consumer *bus.Consumer
	engine   *router.Router

	cancel     context.CancelFunc
	done       chan struct{}
	metricsSrv *http.Server
}

// NewApp 创建路由器应用并装配全部协作方
func NewApp(cfg *config.Config) (*App, error) {
	// 初始化日志
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	// 初始化权威路由存储（Vault KV）
	routeStore, err := routes.NewVaultStore(routes.VaultConfig{
		Address: cfg.Vault.URL,
		Token:   cfg.Vault.Token,
		Mount:   cfg.Vault.RouteMount,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化路由存储失败: %w", err)
	}

	// 初始化运行时状态缓存（Redis）
	stateStore, err := state.NewRedisStore(context.Background(), state.Options{
		Addr:     cfg.State.Addr,
		DB:       cfg.State.DB,
		Password: cfg.State.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化状态存储失败: %w", err)
	}

	// 初始化 registry 客户端（Harbor）
	timeout, err := time.ParseDuration(cfg.Harbor.Timeout)
	if err != nil {
		return nil, fmt.Errorf("无法解析 harbor 超时配置: %w", err)
	}
	mover := registry.NewHarborMover(registry.HarborConfig{
		URL:      cfg.Harbor.URL,
		User:     cfg.Harbor.User,
		Password: cfg.Harbor.Password,
		Timeout:  timeout,
	}, logger)

	opts := []router.Option{router.WithAutoStart(cfg.Router.AutoStart)}
	if cfg.Router.DemoMode {
		trigger, err := demo.NewTrigger(demo.Config{
			VaultURL:   cfg.Vault.URL,
			VaultToken: cfg.Vault.Token,
			Mount:      cfg.Vault.DemoMount,
			HarborHost: cfg.Harbor.URL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化演示模式失败: %w", err)
		}
		opts = append(opts, router.WithDemoTrigger(trigger))
		logger.Info("演示模式已开启")
	}

	engine := router.NewRouter(routeStore, stateStore, mover, logger, opts...)
	dispatcher := router.NewDispatcher(engine, logger)
	consumer := bus.NewConsumer(bus.Config{
		URL:         cfg.Bus.URL,
		Exchange:    cfg.Bus.Exchange,
		RoutingKey:  cfg.Bus.RoutingKey,
		ResponseKey: cfg.Bus.ResponseKey,
		Queue:       cfg.Bus.Queue,
	}, dispatcher, logger)

	appObj := &App{
		config:   cfg,
		logger:   logger,
		consumer: consumer,
		engine:   engine,
		done:     make(chan struct{}),
	}

	// 启动时探测 Harbor 连通性。registry 可能晚于路由器起来，失败只告警。
	if prober, ok := mover.(registry.Prober); ok {
		probeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := prober.Probe(probeCtx); err != nil {
			logger.Warn("harbor 连通性探测失败", "url", cfg.Harbor.URL, "error", err)
		} else {
			logger.Info("harbor 连通性探测成功", "url", cfg.Harbor.URL)
		}
	}

	return appObj, nil
}

// Start 启动应用：先同步状态缓存与 route store，再开始消费命令
func (a *App) Start() error {
	a.logger.Info("启动 train router")

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	// 同步失败不阻止启动：缺失的 train 在下次 START 时还能自愈
	if err := a.engine.SyncRoutes(ctx); err != nil {
		a.logger.Warn("启动同步失败", "error", err)
	}

	if a.config.Monitoring.Prometheus.Enable {
		a.startMetricsServer()
	}

	go func() {
		defer close(a.done)
		if err := a.consumer.Run(ctx); err != nil {
			a.logger.Error("总线消费者退出", "error", err)
		}
	}()

	a.logger.Info("train router 启动成功")
	return nil
}

// Shutdown 优雅关闭应用
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 train router")

	if a.cancel != nil {
		a.cancel()
	}
	select {
	case <-a.done:
	case <-ctx.Done():
		a.logger.Warn("等待总线消费者退出超时")
	}

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.Error("关闭 metrics 服务失败", "error", err)
		}
	}

	a.logger.Info("train router 关闭成功")
	return nil
}

// startMetricsServer 暴露 Prometheus 文本格式指标
func (a *App) startMetricsServer() {
	port := a.config.Monitoring.Prometheus.Port
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if err := metrics.WritePrometheus(w); err != nil {
			a.logger.Error("写出指标失败", "error", err)
		}
	})
	a.metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		a.logger.Info("metrics 服务已启动", "port", port)
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics 服务退出", "error", err)
		}
	}()
}
