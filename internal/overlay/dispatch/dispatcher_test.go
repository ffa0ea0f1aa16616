package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/discovery/memory"
	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/protocolids"
	"github.com/dep2p/go-overlay/pkg/types"
)

// fakeHandler 记录收到的数据报
type fakeHandler struct {
	tag      types.ProtocolTag
	startErr error
	events   *[]string
	eventsMu *sync.Mutex

	mu  sync.Mutex
	got []interfaces.Datagram
}

func newFakeHandler(tag types.ProtocolTag) *fakeHandler {
	return &fakeHandler{tag: tag, events: &[]string{}, eventsMu: &sync.Mutex{}}
}

func (h *fakeHandler) Tag() types.ProtocolTag { return h.tag }

func (h *fakeHandler) HandleDatagram(d interfaces.Datagram) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, d)
	return nil
}

func (h *fakeHandler) Start(context.Context) error {
	h.record("start " + string(h.tag))
	return h.startErr
}

func (h *fakeHandler) Stop(context.Context) error {
	h.record("stop " + string(h.tag))
	return nil
}

func (h *fakeHandler) record(e string) {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	*h.events = append(*h.events, e)
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.got)
}

func encode(t *testing.T, tag types.ProtocolTag) []byte {
	t.Helper()
	data, err := wire.Encode(&wire.Message{Tag: tag, RequestID: 1, Body: &wire.Ping{}})
	require.NoError(t, err)
	return data
}

// ============================================================================
//                              Registry
// ============================================================================

// TestRegistry 测试注册
func TestRegistry(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(newFakeHandler(protocolids.SecureDAS)))
	require.NoError(t, r.Register(newFakeHandler(protocolids.DAS)))
	assert.Equal(t, []types.ProtocolTag{protocolids.DAS, protocolids.SecureDAS}, r.Tags())

	err := r.Register(newFakeHandler(protocolids.DAS))
	assert.ErrorIs(t, err, ErrDuplicateProtocol)
	assert.ErrorIs(t, r.Register(newFakeHandler("")), ErrEmptyTag)

	h, ok := r.Handler(protocolids.DAS)
	require.True(t, ok)
	assert.Equal(t, protocolids.DAS, h.Tag())
	_, ok = r.Handler("XYZ")
	assert.False(t, ok)
	assert.Len(t, r.Handlers(), 2)

	t.Log("✅ 注册表测试通过")
}

// ============================================================================
//                              Dispatch
// ============================================================================

// TestDispatcher_Dispatch 测试按标签分发
func TestDispatcher_Dispatch(t *testing.T) {
	das, secure := newFakeHandler(protocolids.DAS), newFakeHandler(protocolids.SecureDAS)
	r := NewRegistry()
	require.NoError(t, r.Register(das))
	require.NoError(t, r.Register(secure))

	d, err := NewDispatcher(r, nil, DefaultConfig(), nil)
	require.NoError(t, err)
	from := types.NodeID{0x01}

	require.NoError(t, d.Dispatch(interfaces.Datagram{From: from, Payload: encode(t, protocolids.DAS)}))
	assert.Equal(t, 1, das.count())
	assert.Equal(t, 0, secure.count())

	t.Run("未注册标签", func(t *testing.T) {
		err := d.Dispatch(interfaces.Datagram{From: from, Payload: encode(t, "XYZ")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownProtocol)

		var de *DispatchError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, types.ProtocolTag("XYZ"), de.Tag)
		assert.Equal(t, from, de.From)

		// 其他子网络不受影响
		require.NoError(t, d.Dispatch(interfaces.Datagram{From: from, Payload: encode(t, protocolids.SecureDAS)}))
		assert.Equal(t, 1, secure.count())
	})

	t.Run("无法解析标签", func(t *testing.T) {
		err := d.Dispatch(interfaces.Datagram{From: from, Payload: []byte{0xff}})
		assert.ErrorIs(t, err, types.ErrDecode)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(d.failures.WithLabelValues("unknown_protocol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.dispatched.WithLabelValues(string(protocolids.DAS))))

	t.Log("✅ 按标签分发测试通过")
}

// TestDispatcher_RateLimit 测试按发送方限速
func TestDispatcher_RateLimit(t *testing.T) {
	das := newFakeHandler(protocolids.DAS)
	r := NewRegistry()
	require.NoError(t, r.Register(das))

	cfg := DefaultConfig()
	cfg.Limits[protocolids.DAS] = RateLimit{PerSecond: 0.001, Burst: 2}
	d, err := NewDispatcher(r, nil, cfg, prometheus.NewRegistry())
	require.NoError(t, err)

	noisy, quiet := types.NodeID{0x01}, types.NodeID{0x02}
	payload := encode(t, protocolids.DAS)

	require.NoError(t, d.Dispatch(interfaces.Datagram{From: noisy, Payload: payload}))
	require.NoError(t, d.Dispatch(interfaces.Datagram{From: noisy, Payload: payload}))
	assert.ErrorIs(t, d.Dispatch(interfaces.Datagram{From: noisy, Payload: payload}), ErrRateLimited)

	// 限速按发送方独立计算
	assert.NoError(t, d.Dispatch(interfaces.Datagram{From: quiet, Payload: payload}))
	assert.Equal(t, 3, das.count())
}

// TestDispatcher_Lifecycle 测试启动顺序、逆序停止与入站泵
func TestDispatcher_Lifecycle(t *testing.T) {
	net := memory.NewNetwork()
	local, err := net.NewNode("local")
	require.NoError(t, err)
	remote, err := net.NewNode("remote")
	require.NoError(t, err)

	events, mu := &[]string{}, &sync.Mutex{}
	das, secure := newFakeHandler(protocolids.DAS), newFakeHandler(protocolids.SecureDAS)
	for _, h := range []*fakeHandler{das, secure} {
		h.events, h.eventsMu = events, mu
	}
	r := NewRegistry()
	require.NoError(t, r.Register(das))
	require.NoError(t, r.Register(secure))

	d, err := NewDispatcher(r, local, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, remote.SendDatagram(context.Background(), local.LocalPeerRecord(), encode(t, protocolids.SecureDAS)))
	require.Eventually(t, func() bool { return secure.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, das.count())

	require.NoError(t, d.Stop(context.Background()))
	mu.Lock()
	assert.Equal(t, []string{"start DAS", "start SECURE_DAS", "stop SECURE_DAS", "stop DAS"}, *events)
	mu.Unlock()

	t.Log("✅ 分发器生命周期测试通过")
}

// TestDispatcher_RegistryFrozenAfterStart 测试启动后不能再注册子网络
func TestDispatcher_RegistryFrozenAfterStart(t *testing.T) {
	net := memory.NewNetwork()
	local, err := net.NewNode("local")
	require.NoError(t, err)

	events, mu := &[]string{}, &sync.Mutex{}
	das, late := newFakeHandler(protocolids.DAS), newFakeHandler("LATE")
	for _, h := range []*fakeHandler{das, late} {
		h.events, h.eventsMu = events, mu
	}
	r := NewRegistry()
	require.NoError(t, r.Register(das))

	d, err := NewDispatcher(r, local, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	err = r.Register(late)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistryFrozen)
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, types.ProtocolTag("LATE"), de.Tag)

	// 迟到的标签按未注册处理，未启动的处理器收不到任何数据报
	from := types.NodeID{0x01}
	assert.ErrorIs(t, d.Dispatch(interfaces.Datagram{From: from, Payload: encode(t, "LATE")}), ErrUnknownProtocol)
	assert.Zero(t, late.count())

	// 已启动的子网络照常工作
	require.NoError(t, d.Dispatch(interfaces.Datagram{From: from, Payload: encode(t, protocolids.DAS)}))
	assert.Equal(t, 1, das.count())

	mu.Lock()
	assert.Equal(t, []string{"start DAS"}, *events)
	mu.Unlock()

	t.Log("✅ 注册表冻结测试通过")
}

// TestDispatcher_StartFailureRollsBack 测试启动失败时停止已启动的子网络
func TestDispatcher_StartFailureRollsBack(t *testing.T) {
	net := memory.NewNetwork()
	local, err := net.NewNode("local")
	require.NoError(t, err)

	events, mu := &[]string{}, &sync.Mutex{}
	das, secure := newFakeHandler(protocolids.DAS), newFakeHandler(protocolids.SecureDAS)
	secure.startErr = errors.New("boom")
	for _, h := range []*fakeHandler{das, secure} {
		h.events, h.eventsMu = events, mu
	}
	r := NewRegistry()
	require.NoError(t, r.Register(das))
	require.NoError(t, r.Register(secure))

	d, err := NewDispatcher(r, local, DefaultConfig(), nil)
	require.NoError(t, err)

	err = d.Start(context.Background())
	require.Error(t, err)
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, protocolids.SecureDAS, de.Tag)

	mu.Lock()
	assert.Equal(t, []string{"start DAS", "start SECURE_DAS", "stop DAS"}, *events)
	mu.Unlock()
}

// TestConfigFromUnified 测试从统一配置推导限速
func TestConfigFromUnified(t *testing.T) {
	cfg := ConfigFromUnified(config.NewConfig())
	require.Contains(t, cfg.Limits, protocolids.DAS)
	assert.Equal(t, 200.0, cfg.Limits[protocolids.DAS].PerSecond)
	assert.Equal(t, 400, cfg.Limits[protocolids.SecureDAS].Burst)
	assert.Equal(t, "overlay", cfg.MetricsNamespace)

	assert.Empty(t, ConfigFromUnified(nil).Limits)
}

// TestModule 测试 Fx 模块装配
func TestModule(t *testing.T) {
	net := memory.NewNetwork()
	local, err := net.NewNode("local")
	require.NoError(t, err)

	das := newFakeHandler(protocolids.DAS)
	var d *Dispatcher
	app := fxtest.New(t,
		fx.Provide(fx.Annotate(
			func() *memory.Node { return local },
			fx.As(new(interfaces.Discovery)),
		)),
		fx.Provide(fx.Annotate(
			func() *fakeHandler { return das },
			fx.As(new(Handler)),
			fx.ResultTags(`group:"subnetworks"`),
		)),
		Module(),
		fx.Populate(&d),
	)
	app.RequireStart()
	assert.Equal(t, []types.ProtocolTag{protocolids.DAS}, d.Registry().Tags())
	app.RequireStop()

	t.Log("✅ Fx 模块装配测试通过")
}
