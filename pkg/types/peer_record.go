package types

import "fmt"

// ============================================================================
//                              PeerRecord - 节点记录
// ============================================================================

// PeerRecord 节点记录
//
// 规范记录由 discovery 协作方拥有。overlay 只保存 NodeID，
// 在发送时通过 discovery 重新解析得到最新记录。
type PeerRecord struct {
	// ID 节点 ID
	ID NodeID

	// Addr 数据报地址（discovery 传输使用）
	Addr string

	// BulkAddr 可靠流地址（为空表示不支持可靠流）
	BulkAddr string

	// Seq 记录序列号，记录变化时递增
	Seq uint64
}

// Clone 返回记录副本
func (r *PeerRecord) Clone() *PeerRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// String 返回调试字符串
func (r *PeerRecord) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("PeerRecord{id=%s addr=%s seq=%d}", r.ID.ShortString(), r.Addr, r.Seq)
}
