package session

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/overlay/contentkey"
	"github.com/dep2p/go-overlay/internal/overlay/store"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// Deps 各子网络共享的协作方
type Deps struct {
	Discovery        interfaces.Discovery
	Bulk             interfaces.BulkTransport
	Clock            clock.Clock
	Registerer       prometheus.Registerer
	MetricsNamespace string
	Metric           interfaces.Metric
}

// Factory 按内容键类型构造会话
//
// 新增子网络只需要提供键类型、编解码器与校验器。
type Factory[K interfaces.ContentKey] struct {
	Codec     interfaces.KeyCodec[K]
	Validator interfaces.Validator[K]
}

// New 创建会话，内容存储由 storeOpts 配置
func (f Factory[K]) New(cfg Config, deps Deps, storeOpts ...store.Option) (*Session[K], error) {
	metric := deps.Metric
	if metric == nil {
		metric = interfaces.XorMetric{}
	}
	opts := append([]store.Option{
		store.WithMetric(metric),
		store.WithMaxContentSize(cfg.MaxContentSize),
	}, storeOpts...)

	st := store.New(deps.Discovery.LocalID(), opts...)
	if c := st.Capacity(); c > 0 {
		logger.Info("内容存储容量", "tag", cfg.Tag, "bytes", c)
	}
	return New(Params[K]{
		Config:           cfg,
		Codec:            f.Codec,
		Validator:        f.Validator,
		Store:            st,
		Discovery:        deps.Discovery,
		Bulk:             deps.Bulk,
		Clock:            deps.Clock,
		Registerer:       deps.Registerer,
		MetricsNamespace: deps.MetricsNamespace,
	})
}

// StoreOptions 从统一配置推导存储选项
func StoreOptions(oc config.OverlayConfig) []store.Option {
	var opts []store.Option
	if oc.StoreCapacityBytes > 0 {
		opts = append(opts, store.WithCapacity(oc.StoreCapacityBytes))
	}
	if oc.StoreMemoryFraction > 0 {
		opts = append(opts, store.WithMemoryFraction(oc.StoreMemoryFraction))
	}
	return opts
}

// DASFactory DAS 子网络
func DASFactory() Factory[contentkey.DASContentKey] {
	return Factory[contentkey.DASContentKey]{
		Codec:     contentkey.DASCodec{},
		Validator: contentkey.DASValidator{},
	}
}

// SecureDASFactory SECURE_DAS 子网络
func SecureDASFactory(hashBinding bool) Factory[contentkey.SecureDASContentKey] {
	return Factory[contentkey.SecureDASContentKey]{
		Codec:     contentkey.SecureDASCodec{},
		Validator: contentkey.SecureDASValidator{HashBinding: hashBinding},
	}
}
