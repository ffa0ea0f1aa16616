package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/internal/overlay/contentkey"
	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/protocolids"
	"github.com/dep2p/go-overlay/pkg/types"
	"github.com/dep2p/go-overlay/tests/mocks"
)

var (
	localRecord = &types.PeerRecord{ID: types.NodeID{0x01}, Addr: "mock://local", Seq: 3}
	peerRecord  = &types.PeerRecord{ID: types.NodeID{0x80}, Addr: "mock://peer", Seq: 1}
	otherRecord = &types.PeerRecord{ID: types.NodeID{0x40}, Addr: "mock://other", Seq: 1}
)

// mockSession 使用 MockDiscovery 与模拟时钟创建会话
func mockSession(t *testing.T, cfg Config) (*Session[contentkey.DASContentKey], *mocks.MockDiscovery, *clock.Mock) {
	t.Helper()
	return mockSessionWithBulk(t, cfg, nil)
}

// mockSessionWithBulk 同 mockSession，并使用给定的可靠流协作方
func mockSessionWithBulk(t *testing.T, cfg Config, bt interfaces.BulkTransport) (*Session[contentkey.DASContentKey], *mocks.MockDiscovery, *clock.Mock) {
	t.Helper()

	disc := mocks.NewMockDiscovery(localRecord)
	require.NoError(t, disc.InsertPeerRecord(peerRecord))
	require.NoError(t, disc.InsertPeerRecord(otherRecord))

	mock := clock.NewMock()
	s, err := DASFactory().New(cfg, Deps{Discovery: disc, Bulk: bt, Clock: mock})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, disc, mock
}

// mockConfig 模拟时钟下使用的配置
func mockConfig() Config {
	cfg := testConfig()
	cfg.QueryPeerTimeout = 30 * time.Second
	cfg.SweepInterval = time.Second
	return cfg
}

// nextSent 等待下一条发往 to 的数据报并解码
func nextSent(t *testing.T, disc *mocks.MockDiscovery, to types.NodeID) *wire.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case d := <-disc.Outbound():
			if d.To != to {
				continue
			}
			msg, err := wire.Decode(d.Payload)
			require.NoError(t, err)
			return msg
		case <-timeout:
			t.Fatal("等待出站数据报超时")
			return nil
		}
	}
}

// reply 以 from 的身份注入响应
func reply(t *testing.T, s *Session[contentkey.DASContentKey], from types.NodeID, id types.RequestID, body wire.Body) {
	t.Helper()
	data, err := wire.Encode(&wire.Message{Tag: protocolids.DAS, RequestID: id, Body: body})
	require.NoError(t, err)
	require.NoError(t, s.HandleDatagram(interfaces.Datagram{From: from, Payload: data}))
}

// drainBootstrap 消耗启动时发给已知节点的 Ping
func drainBootstrap(t *testing.T, s *Session[contentkey.DASContentKey], disc *mocks.MockDiscovery) {
	t.Helper()
	for _, r := range []*types.PeerRecord{otherRecord, peerRecord} {
		msg := nextSent(t, disc, r.ID)
		require.Equal(t, wire.KindPing, msg.Kind())
		reply(t, s, r.ID, msg.RequestID, &wire.Pong{EnrSeq: r.Seq, DataRadius: types.MaxDistance})
	}
	require.Eventually(t, func() bool {
		n, err := s.PendingRequests(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// advanceUntil 推进模拟时钟直到条件成立
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		mock.Add(step)
		return cond()
	}, 3*time.Second, 5*time.Millisecond)
}

// ============================================================================
//                              关联测试
// ============================================================================

// TestCorrelation_Bootstrap 测试启动时 Ping 已知节点并填充路由表
func TestCorrelation_Bootstrap(t *testing.T) {
	s, disc, _ := mockSession(t, mockConfig())
	drainBootstrap(t, s, disc)

	peers, err := s.Peers(testCtx(t))
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	t.Log("✅ 启动引导测试通过")
}

// TestCorrelation_ExactlyOnce 测试重复响应只解决一次
func TestCorrelation_ExactlyOnce(t *testing.T) {
	s, disc, _ := mockSession(t, mockConfig())
	drainBootstrap(t, s, disc)

	type result struct {
		pong *wire.Pong
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := s.Ping(context.Background(), peerRecord.ID)
		done <- result{p, err}
	}()

	msg := nextSent(t, disc, peerRecord.ID)
	reply(t, s, peerRecord.ID, msg.RequestID, &wire.Pong{EnrSeq: 7, DataRadius: types.MaxDistance})
	reply(t, s, peerRecord.ID, msg.RequestID, &wire.Pong{EnrSeq: 8, DataRadius: types.MaxDistance})

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, uint64(7), r.pong.EnrSeq)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.dropped.WithLabelValues("duplicate")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// 从未登记的 ID
	reply(t, s, peerRecord.ID, 999, &wire.Pong{})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.dropped.WithLabelValues("unknown")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	t.Log("✅ 恰好一次解决测试通过")
}

// TestCorrelation_WrongPeerAndKind 测试来源不符与类型不符的响应
func TestCorrelation_WrongPeerAndKind(t *testing.T) {
	s, disc, _ := mockSession(t, mockConfig())
	drainBootstrap(t, s, disc)

	done := make(chan error, 1)
	go func() {
		_, err := s.Ping(context.Background(), peerRecord.ID)
		done <- err
	}()
	msg := nextSent(t, disc, peerRecord.ID)

	// 其他节点冒充响应被丢弃，请求仍未决
	reply(t, s, otherRecord.ID, msg.RequestID, &wire.Pong{})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.dropped.WithLabelValues("peer_mismatch")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	n, err := s.PendingRequests(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 类型不符视为对方拒绝
	reply(t, s, peerRecord.ID, msg.RequestID, &wire.Nodes{Total: 1})
	err = <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRejected)
}

// TestCorrelation_TimeoutAndRetry 测试超时前重试一次，重试沿用同一 ID
func TestCorrelation_TimeoutAndRetry(t *testing.T) {
	cfg := mockConfig()
	cfg.RequestRetries = 1
	s, disc, mock := mockSession(t, cfg)
	drainBootstrap(t, s, disc)

	start := mock.Now()
	done := make(chan error, 1)
	go func() {
		_, err := s.Ping(context.Background(), peerRecord.ID)
		done <- err
	}()
	first := nextSent(t, disc, peerRecord.ID)

	// 两次发送平分请求期限，第一次到期之前不会重发也不会超时
	attempt := cfg.QueryPeerTimeout / time.Duration(cfg.RequestRetries+1)
	mock.Add(attempt - cfg.SweepInterval)
	select {
	case err := <-done:
		t.Fatalf("截止前不应解决: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	var retry *wire.Message
	advanceUntil(t, mock, cfg.SweepInterval, func() bool {
		select {
		case d := <-disc.Outbound():
			m, err := wire.Decode(d.Payload)
			if err == nil && d.To == peerRecord.ID {
				retry = m
			}
		default:
		}
		return retry != nil
	})
	assert.Equal(t, first.RequestID, retry.RequestID)
	assert.Less(t, mock.Now().Sub(start), cfg.QueryPeerTimeout)

	var err error
	advanceUntil(t, mock, cfg.SweepInterval, func() bool {
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, peerRecord.ID, reqErr.Peer)

	// 超时后的迟到响应被识别为重复
	reply(t, s, peerRecord.ID, first.RequestID, &wire.Pong{})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.dropped.WithLabelValues("duplicate")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	t.Log("✅ 超时与重试测试通过")
}

// TestCorrelation_DefaultRetriesStayWithinPeerTimeout 测试默认配置下重试后仍在单节点超时内解决
func TestCorrelation_DefaultRetriesStayWithinPeerTimeout(t *testing.T) {
	cfg := DefaultConfig(protocolids.DAS)
	require.Positive(t, cfg.RequestRetries)
	s, disc, mock := mockSession(t, cfg)
	drainBootstrap(t, s, disc)

	done := make(chan error, 1)
	go func() {
		_, err := s.Ping(context.Background(), peerRecord.ID)
		done <- err
	}()
	nextSent(t, disc, peerRecord.ID)

	sent := 1
	collect := func() {
		for {
			select {
			case d := <-disc.Outbound():
				if d.To == peerRecord.ID {
					sent++
				}
			default:
				return
			}
		}
	}

	// 推进到期限前一个扫描周期，请求仍未解决
	var elapsed time.Duration
	for elapsed < cfg.QueryPeerTimeout-cfg.SweepInterval {
		mock.Add(cfg.SweepInterval)
		elapsed += cfg.SweepInterval
		time.Sleep(2 * time.Millisecond)
		collect()
	}
	select {
	case err := <-done:
		t.Fatalf("期限之前不应解决: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// 时钟最多再推进到期限之后一个扫描周期，请求必须已经超时
	for elapsed < cfg.QueryPeerTimeout+cfg.SweepInterval {
		mock.Add(cfg.SweepInterval)
		elapsed += cfg.SweepInterval
		time.Sleep(2 * time.Millisecond)
	}
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("重试把请求拖过了单节点超时")
	}
	collect()
	assert.Equal(t, 1+cfg.RequestRetries, sent, "每次重试都发出过")

	t.Log("✅ 默认重试期限测试通过")
}

// TestCorrelation_PingQueuePrunes 测试连续 Ping 失败的节点被移出路由表
func TestCorrelation_PingQueuePrunes(t *testing.T) {
	cfg := mockConfig()
	cfg.PingQueueInterval = 10 * time.Second
	cfg.QueryPeerTimeout = 2 * time.Second
	cfg.MaxPingFailures = 2
	s, disc, mock := mockSession(t, cfg)
	drainBootstrap(t, s, disc)

	// other 始终响应，peer 始终沉默
	go func() {
		for d := range disc.Outbound() {
			if d.To != otherRecord.ID {
				continue
			}
			msg, err := wire.Decode(d.Payload)
			if err != nil || msg.Kind() != wire.KindPing {
				continue
			}
			data, _ := wire.Encode(&wire.Message{Tag: protocolids.DAS, RequestID: msg.RequestID, Body: &wire.Pong{EnrSeq: 1, DataRadius: types.MaxDistance}})
			_ = s.HandleDatagram(interfaces.Datagram{From: otherRecord.ID, Payload: data})
		}
	}()

	advanceUntil(t, mock, 5*time.Second, func() bool {
		_, ok, err := s.Peer(context.Background(), peerRecord.ID)
		return err == nil && !ok
	})

	_, ok, err := s.Peer(testCtx(t), otherRecord.ID)
	require.NoError(t, err)
	assert.True(t, ok, "正常响应的节点保留在路由表中")

	t.Log("✅ 存活检测淘汰测试通过")
}

// TestCorrelation_StopFailsPending 测试停止时未决请求以超时结束
func TestCorrelation_StopFailsPending(t *testing.T) {
	s, disc, _ := mockSession(t, mockConfig())
	drainBootstrap(t, s, disc)

	done := make(chan error, 1)
	go func() {
		_, err := s.Ping(context.Background(), peerRecord.ID)
		done <- err
	}()
	nextSent(t, disc, peerRecord.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	err := <-done
	assert.ErrorIs(t, err, ErrTimeout)
}

// TestCorrelation_SendFailure 测试发送失败立即解决
func TestCorrelation_SendFailure(t *testing.T) {
	s, disc, _ := mockSession(t, mockConfig())
	drainBootstrap(t, s, disc)

	disc.SendDatagramFunc = func(context.Context, *types.PeerRecord, []byte) error {
		return errors.New("socket closed")
	}
	_, err := s.Ping(testCtx(t), peerRecord.ID)
	assert.ErrorIs(t, err, ErrNoRoute)
}

// TestCorrelation_StoreWritesGoThroughLoop 测试存储写入只在事件循环运行时发生
func TestCorrelation_StoreWritesGoThroughLoop(t *testing.T) {
	s, err := DASFactory().New(mockConfig(), Deps{Discovery: mocks.NewMockDiscovery(localRecord), Clock: clock.NewMock()})
	require.NoError(t, err)

	key := randomKey(t)
	assert.ErrorIs(t, s.Put(testCtx(t), key, []byte("early")), ErrNotStarted)
	assert.Zero(t, s.Store().Size(), "未启动时不能写入")

	require.NoError(t, s.Start(context.Background()))

	// 并发写入与读取都排队进入事件循环
	keys := make([]contentkey.DASContentKey, 32)
	for i := range keys {
		keys[i] = randomKey(t)
	}
	errs := make(chan error, len(keys))
	for _, k := range keys {
		go func() {
			err := s.Put(testCtx(t), k, []byte(k.String()))
			if err == nil {
				if _, ok := s.Get(k); !ok {
					err = errors.New("写入后读不到")
				}
			}
			errs <- err
		}()
	}
	for range keys {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, float64(s.Store().Size()), testutil.ToFloat64(s.metrics.storeBytes))

	require.NoError(t, s.Stop(testCtx(t)))
	size := s.Store().Size()
	assert.Error(t, s.Put(testCtx(t), key, []byte("late")))
	_, ok := s.Get(keys[0])
	assert.False(t, ok, "停止后不再提供读取")
	assert.Equal(t, size, s.Store().Size(), "停止后不能写入")

	t.Log("✅ 存储访问经由事件循环测试通过")
}
