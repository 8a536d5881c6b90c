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

// Package demo 演示模式：train 移动到 station 后直接触发该 station 的
// Airflow DAG，省去人工拉起执行。对路由本身零影响，失败只记日志。
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	vault "github.com/hashicorp/vault/api"

	"train-router/internal/train"
	"train-router/pkg/log"
)

const dagRunPath = "/api/v1/dags/run_pht_train/dagRuns"

// Station 演示 station 的 Airflow 接入信息（存于 Vault KV v2）
type Station struct {
	ID            string `json:"id"`
	AirflowAPIURL string `json:"airflow_api_url"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// Config 演示模式配置
type Config struct {
	VaultURL   string
	VaultToken string
	Mount      string // KV v2 mount，默认 "demo-stations"
	HarborHost string // 不含 scheme 的 registry 主机名，拼进 repository
}

// Trigger 演示模式钩子实现
type Trigger struct {
	stations   map[train.StationID]Station
	client     *resty.Client
	harborHost string
	logger     *log.Logger
}

// NewTrigger 从 Vault 加载演示 station 目录并创建触发器
func NewTrigger(cfg Config, logger *log.Logger) (*Trigger, error) {
	mount := cfg.Mount
	if mount == "" {
		mount = "demo-stations"
	}

	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.VaultURL
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.VaultToken)

	stations, err := loadStations(context.Background(), client, mount)
	if err != nil {
		return nil, err
	}
	logger.Info("演示 station 目录已加载", "stations", len(stations))

	return &Trigger{
		stations:   stations,
		client:     resty.New().SetTimeout(30 * time.Second).SetHeader("Content-Type", "application/json"),
		harborHost: stripScheme(cfg.HarborHost),
		logger:     logger,
	}, nil
}

// stripScheme 去掉 registry 地址里的 scheme，镜像引用只要主机名
func stripScheme(host string) string {
	if i := strings.Index(host, "//"); i >= 0 {
		return host[i+2:]
	}
	return host
}

// loadStations 列出 KV v2 mount 下的全部演示 station
func loadStations(ctx context.Context, client *vault.Client, mount string) (map[train.StationID]Station, error) {
	secret, err := client.Logical().ListWithContext(ctx, mount+"/metadata")
	if err != nil {
		return nil, fmt.Errorf("list demo stations: %w", err)
	}
	stations := make(map[train.StationID]Station)
	if secret == nil {
		return stations, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return stations, nil
	}
	for _, k := range keys {
		key, ok := k.(string)
		if !ok {
			continue
		}
		kv, err := client.KVv2(mount).Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read demo station %s: %w", key, err)
		}
		raw, err := json.Marshal(kv.Data)
		if err != nil {
			return nil, err
		}
		var station Station
		if err := json.Unmarshal(raw, &station); err != nil {
			return nil, fmt.Errorf("decode demo station %s: %w", key, err)
		}
		stations[train.StationID(station.ID)] = station
	}
	return stations, nil
}

// TrainMoved 触发目的 station 的 DAG。未知 station 或调用失败都只记日志。
func (t *Trigger) TrainMoved(ctx context.Context, id train.ID, stationID train.StationID) {
	station, ok := t.stations[stationID]
	if !ok {
		t.logger.Warn("station 不在演示目录，跳过触发", "train_id", id, "station", stationID)
		return
	}

	conf := map[string]interface{}{
		"repository": fmt.Sprintf("%s/station_%s/%s", t.harborHost, stationID, id),
		"tag":        "latest",
		"volumes": map[string]interface{}{
			fmt.Sprintf("/opt/stations/station_%s/station_data/cord_input.csv", stationID): map[string]string{
				"bind": "/opt/train_data/cord_input.csv",
				"mode": "ro",
			},
		},
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(station.Username, station.Password).
		SetBody(map[string]interface{}{"conf": conf}).
		Post(strings.TrimSuffix(station.AirflowAPIURL, "/") + dagRunPath)
	if err != nil {
		t.logger.Error("触发演示 DAG 失败", "train_id", id, "station", stationID, "error", err)
		return
	}
	if resp.IsError() {
		t.logger.Error("触发演示 DAG 失败", "train_id", id, "station", stationID, "status", resp.Status())
		return
	}
	t.logger.Info("已触发演示 DAG", "train_id", id, "station", stationID)
}
