package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// SentDatagram 记录一次 SendDatagram 调用
type SentDatagram struct {
	To      types.NodeID
	Payload []byte
}

// MockDiscovery 模拟 Discovery 接口实现
type MockDiscovery struct {
	mu      sync.Mutex
	local   *types.PeerRecord
	records map[types.NodeID]*types.PeerRecord
	sent    []SentDatagram
	inbound chan interfaces.Datagram
	notify  chan SentDatagram

	// 可覆盖的方法
	SendDatagramFunc     func(ctx context.Context, to *types.PeerRecord, payload []byte) error
	LookupPeerRecordFunc func(id types.NodeID) (*types.PeerRecord, bool)
	InsertPeerRecordFunc func(record *types.PeerRecord) error
}

// NewMockDiscovery 创建 MockDiscovery
func NewMockDiscovery(local *types.PeerRecord) *MockDiscovery {
	return &MockDiscovery{
		local:   local,
		records: make(map[types.NodeID]*types.PeerRecord),
		inbound: make(chan interfaces.Datagram, 64),
		notify:  make(chan SentDatagram, 256),
	}
}

// LocalID 返回本地节点 ID
func (m *MockDiscovery) LocalID() types.NodeID {
	return m.local.ID
}

// LocalPeerRecord 返回本地节点记录
func (m *MockDiscovery) LocalPeerRecord() *types.PeerRecord {
	return m.local.Clone()
}

// SendDatagram 记录发送
func (m *MockDiscovery) SendDatagram(ctx context.Context, to *types.PeerRecord, payload []byte) error {
	if m.SendDatagramFunc != nil {
		if err := m.SendDatagramFunc(ctx, to, payload); err != nil {
			return err
		}
	}
	d := SentDatagram{To: to.ID, Payload: append([]byte(nil), payload...)}
	m.mu.Lock()
	m.sent = append(m.sent, d)
	m.mu.Unlock()
	select {
	case m.notify <- d:
	default:
	}
	return nil
}

// Inbound 返回入站数据报流
func (m *MockDiscovery) Inbound() <-chan interfaces.Datagram {
	return m.inbound
}

// Inject 注入一条入站数据报
func (m *MockDiscovery) Inject(from types.NodeID, payload []byte) {
	m.inbound <- interfaces.Datagram{From: from, Payload: payload}
}

// LookupPeerRecord 查询节点记录
func (m *MockDiscovery) LookupPeerRecord(id types.NodeID) (*types.PeerRecord, bool) {
	if m.LookupPeerRecordFunc != nil {
		return m.LookupPeerRecordFunc(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// InsertPeerRecord 收录节点记录
func (m *MockDiscovery) InsertPeerRecord(record *types.PeerRecord) error {
	if m.InsertPeerRecordFunc != nil {
		return m.InsertPeerRecordFunc(record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record.Clone()
	return nil
}

// KnownPeerRecords 枚举已知节点记录（按 ID 排序）
func (m *MockDiscovery) KnownPeerRecords() []*types.PeerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.PeerRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
	return out
}

// Sent 返回已发送数据报的副本
func (m *MockDiscovery) Sent() []SentDatagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentDatagram(nil), m.sent...)
}

// Outbound 返回发送通知流，每次成功发送推送一条
func (m *MockDiscovery) Outbound() <-chan SentDatagram {
	return m.notify
}

// 确保实现接口
var _ interfaces.Discovery = (*MockDiscovery)(nil)
