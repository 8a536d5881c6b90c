package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供路由器注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CommandDuration, CommandTotal,
		MoveDuration, MoveTotal,
		BusReconnectTotal, TrainsActive,
	)
}

// CommandDuration 命令处理耗时（秒）
var CommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tr_command_duration_seconds",
		Help:    "命令处理耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"event"},
)

// CommandTotal 处理的命令总数（按事件与响应结果）
var CommandTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tr_command_total",
		Help: "处理的命令总数（按事件与响应结果）",
	},
	[]string{"event", "result"},
)

// MoveDuration registry 镜像移动耗时（秒）
var MoveDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tr_move_duration_seconds",
		Help:    "registry 镜像移动耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"result"}, // ok | failed
)

// MoveTotal registry 镜像移动总数
var MoveTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tr_move_total",
		Help: "registry 镜像移动总数",
	},
	[]string{"result"}, // ok | failed
)

// BusReconnectTotal 消息总线重连次数
var BusReconnectTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tr_bus_reconnect_total",
		Help: "消息总线重连次数",
	},
)

// TrainsActive 当前注册在状态缓存中的 train 数
var TrainsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "tr_trains_active",
		Help: "当前注册在状态缓存中的 train 数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
