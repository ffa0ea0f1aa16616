package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-overlay/pkg/types"
)

// fieldFunc 处理一个字段，返回消耗的字节数；返回 0 表示跳过该字段
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// consumeFields 遍历字段序列
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, ErrWrongWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, ErrWrongWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	// 拷贝一份，避免持有调用方缓冲区
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// ============================================================================
//                              节点记录
// ============================================================================

// 节点记录字段
const (
	recordFieldID       protowire.Number = 1
	recordFieldAddr     protowire.Number = 2
	recordFieldBulkAddr protowire.Number = 3
	recordFieldSeq      protowire.Number = 4
)

func appendRecord(b []byte, r *types.PeerRecord) []byte {
	b = appendBytesField(b, recordFieldID, r.ID[:])
	if r.Addr != "" {
		b = appendStringField(b, recordFieldAddr, r.Addr)
	}
	if r.BulkAddr != "" {
		b = appendStringField(b, recordFieldBulkAddr, r.BulkAddr)
	}
	if r.Seq != 0 {
		b = appendVarintField(b, recordFieldSeq, r.Seq)
	}
	return b
}

func decodeRecord(b []byte) (*types.PeerRecord, error) {
	r := &types.PeerRecord{}
	hasID := false
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case recordFieldID:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			id, err := types.NodeIDFromBytes(v)
			if err != nil {
				return 0, fmt.Errorf("%w: record id: %v", ErrInvalidField, err)
			}
			r.ID = id
			hasID = true
			return n, nil
		case recordFieldAddr:
			v, n, err := consumeBytes(typ, b)
			r.Addr = string(v)
			return n, err
		case recordFieldBulkAddr:
			v, n, err := consumeBytes(typ, b)
			r.BulkAddr = string(v)
			return n, err
		case recordFieldSeq:
			v, n, err := consumeVarint(typ, b)
			r.Seq = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !hasID {
		return nil, fmt.Errorf("%w: record without id", ErrInvalidField)
	}
	return r, nil
}
