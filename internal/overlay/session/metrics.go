package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-overlay/pkg/types"
)

// Metrics 会话指标，按协议标签区分
type Metrics struct {
	outbound   *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	inbound    *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	tableSize  prometheus.Gauge
	pending    prometheus.Gauge
	storeBytes prometheus.Gauge
}

// NewMetrics 创建指标并注册到 reg（reg 为 nil 时不注册）
func NewMetrics(namespace string, tag types.ProtocolTag, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "overlay"
	}
	labels := prometheus.Labels{"subnetwork": string(tag)}

	m := &Metrics{
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "outbound_requests_total",
			Help:        "Outbound overlay requests by message kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "request_outcomes_total",
			Help:        "Resolved outbound requests by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "inbound_messages_total",
			Help:        "Inbound overlay messages by message kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "dropped_messages_total",
			Help:        "Inbound messages dropped by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		tableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "routing_table_peers",
			Help:        "Peers in the routing table.",
			ConstLabels: labels,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pending_requests",
			Help:        "Outstanding requests in the correlation table.",
			ConstLabels: labels,
		}),
		storeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "store_bytes",
			Help:        "Bytes held by the content store.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if errors.As(err, &are) {
					continue
				}
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.outbound, m.outcomes, m.inbound, m.dropped,
		m.tableSize, m.pending, m.storeBytes,
	}
}

// Unregister 从 reg 注销
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// outcomeLabel 把请求结果映射为指标标签
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrRemoteRejected):
		return "rejected"
	default:
		return "failure"
	}
}
