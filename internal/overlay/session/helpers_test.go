package session

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/internal/bulk"
	"github.com/dep2p/go-overlay/internal/discovery/memory"
	"github.com/dep2p/go-overlay/internal/overlay/contentkey"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/protocolids"
	"github.com/dep2p/go-overlay/pkg/types"
)

// testConfig 返回适合测试的短超时配置
func testConfig() Config {
	cfg := DefaultConfig(protocolids.DAS)
	cfg.PingQueueInterval = 0
	cfg.QueryTimeout = 5 * time.Second
	cfg.QueryPeerTimeout = 2 * time.Second
	cfg.SweepInterval = 20 * time.Millisecond
	cfg.BulkAcceptTimeout = 2 * time.Second
	cfg.InlineContentLimit = 64
	cfg.RequestRetries = 0
	return cfg
}

// testNode 测试节点
type testNode struct {
	disc *memory.Node
	bulk *bulk.MemoryTransport
	sess *Session[contentkey.DASContentKey]
	reg  *prometheus.Registry
}

func (n *testNode) id() types.NodeID {
	return n.disc.LocalID()
}

func (n *testNode) record() *types.PeerRecord {
	return n.disc.LocalPeerRecord()
}

// startNode 在模拟网络中启动一个会话，hub 为 nil 时不配置可靠流
func startNode(t *testing.T, net *memory.Network, hub *bulk.MemoryHub, name string, cfg Config) *testNode {
	t.Helper()

	disc, err := net.NewNode(name)
	require.NoError(t, err)

	n := &testNode{disc: disc, reg: prometheus.NewRegistry()}
	var bt interfaces.BulkTransport
	if hub != nil {
		n.bulk = hub.Transport(disc.LocalID())
		bt = n.bulk
		t.Cleanup(func() { _ = n.bulk.Close() })
	}

	n.sess, err = DASFactory().New(cfg, Deps{Discovery: disc, Bulk: bt, Registerer: n.reg})
	require.NoError(t, err)
	require.NoError(t, n.sess.Start(context.Background()))

	go func() {
		for d := range disc.Inbound() {
			_ = n.sess.HandleDatagram(d)
		}
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = n.sess.Stop(ctx)
		_ = disc.Close()
	})
	return n
}

// connect 让 a 认识 b
func connect(t *testing.T, a, b *testNode) {
	t.Helper()
	require.NoError(t, a.sess.AddPeer(context.Background(), b.record()))
}

// randomKey 生成随机 DAS 内容键
func randomKey(t *testing.T) contentkey.DASContentKey {
	t.Helper()
	var sample [contentkey.SampleLength]byte
	_, err := rand.Read(sample[:])
	require.NoError(t, err)
	return contentkey.NewDASSample(sample)
}

// keyAt 生成 ContentID 与 id 相同的内容键
func keyAt(id types.NodeID) contentkey.DASContentKey {
	return contentkey.NewDASSample([contentkey.SampleLength]byte(id))
}

// randomPayload 生成随机内容
func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	p := make([]byte, n)
	_, err := rand.Read(p)
	require.NoError(t, err)
	return p
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
