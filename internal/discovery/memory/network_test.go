package memory

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/pkg/types"
)

// TestNetwork_SendReceive 测试数据报收发
func TestNetwork_SendReceive(t *testing.T) {
	net := NewNetwork()
	a, err := net.NewNode("a")
	require.NoError(t, err)
	b, err := net.NewNode("b")
	require.NoError(t, err)

	assert.Equal(t, IDForName("a"), a.LocalID())

	payload := []byte("hello")
	require.NoError(t, a.SendDatagram(context.Background(), b.LocalPeerRecord(), payload))
	payload[0] = 'j'

	d := <-b.Inbound()
	assert.Equal(t, a.LocalID(), d.From)
	assert.Equal(t, []byte("hello"), d.Payload)

	// 接收方通过握手获知发送方记录
	r, ok := b.LookupPeerRecord(a.LocalID())
	require.True(t, ok)
	assert.Equal(t, "mem://a", r.Addr)

	t.Log("✅ 模拟网络收发测试通过")
}

// TestNetwork_DuplicateAndUnreachable 测试重复节点与不可达
func TestNetwork_DuplicateAndUnreachable(t *testing.T) {
	net := NewNetwork()
	a, err := net.NewNode("a")
	require.NoError(t, err)
	_, err = net.NewNode("a")
	assert.ErrorIs(t, err, ErrDuplicateNode)

	err = a.SendDatagram(context.Background(), &types.PeerRecord{ID: IDForName("ghost")}, []byte("x"))
	assert.ErrorIs(t, err, ErrUnreachable)
}

// TestNetwork_Block 测试阻断链路时静默丢弃
func TestNetwork_Block(t *testing.T) {
	net := NewNetwork()
	a, _ := net.NewNode("a")
	b, _ := net.NewNode("b")

	net.Block(a.LocalID(), b.LocalID())
	require.NoError(t, a.SendDatagram(context.Background(), b.LocalPeerRecord(), []byte("x")))
	select {
	case <-b.Inbound():
		t.Fatal("被阻断的数据报不应送达")
	default:
	}

	net.Unblock(a.LocalID(), b.LocalID())
	require.NoError(t, a.SendDatagram(context.Background(), b.LocalPeerRecord(), []byte("y")))
	assert.Equal(t, []byte("y"), (<-b.Inbound()).Payload)
}

// TestNetwork_BufferFull 测试缓冲满时丢弃
func TestNetwork_BufferFull(t *testing.T) {
	net := NewNetwork(WithInboundBuffer(1))
	a, _ := net.NewNode("a")
	b, _ := net.NewNode("b")

	require.NoError(t, a.SendDatagram(context.Background(), b.LocalPeerRecord(), []byte("1")))
	require.NoError(t, a.SendDatagram(context.Background(), b.LocalPeerRecord(), []byte("2")))
	assert.Equal(t, uint64(1), b.Dropped())
}

// TestNode_PeerRecords 测试记录的插入、查询与序号
func TestNode_PeerRecords(t *testing.T) {
	net := NewNetwork()
	a, _ := net.NewNode("a")
	id := IDForName("b")

	require.NoError(t, a.InsertPeerRecord(&types.PeerRecord{ID: id, Addr: "v2", Seq: 2}))
	require.NoError(t, a.InsertPeerRecord(&types.PeerRecord{ID: id, Addr: "v1", Seq: 1}))

	r, ok := a.LookupPeerRecord(id)
	require.True(t, ok)
	assert.Equal(t, "v2", r.Addr)

	assert.ErrorIs(t, a.InsertPeerRecord(nil), ErrInvalidRecord)
	assert.ErrorIs(t, a.InsertPeerRecord(&types.PeerRecord{}), ErrInvalidRecord)

	self, ok := a.LookupPeerRecord(a.LocalID())
	require.True(t, ok)
	assert.Equal(t, "mem://a", self.Addr)
	assert.Len(t, a.KnownPeerRecords(), 1)

	a.SetBulkAddr("127.0.0.1:1")
	assert.Equal(t, uint64(2), a.LocalPeerRecord().Seq)
}

// TestNetwork_SeedRandom 测试随机注入记录
func TestNetwork_SeedRandom(t *testing.T) {
	net := NewNetwork()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := net.NewNode(name)
		require.NoError(t, err)
	}

	net.SeedRandom(2, rand.New(rand.NewPCG(7, 7)))
	for _, node := range net.Nodes() {
		records := node.KnownPeerRecords()
		assert.Len(t, records, 2)
		for _, r := range records {
			assert.NotEqual(t, node.LocalID(), r.ID)
		}
	}

	net.SeedAll()
	for _, node := range net.Nodes() {
		assert.Len(t, node.KnownPeerRecords(), 4)
	}
}

// TestNode_Close 测试关闭后离开网络
func TestNode_Close(t *testing.T) {
	net := NewNetwork()
	a, _ := net.NewNode("a")
	b, _ := net.NewNode("b")

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, ok := <-b.Inbound()
	assert.False(t, ok)

	err := a.SendDatagram(context.Background(), &types.PeerRecord{ID: b.LocalID()}, []byte("x"))
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, b.SendDatagram(context.Background(), a.LocalPeerRecord(), nil), ErrNodeClosed)
}
