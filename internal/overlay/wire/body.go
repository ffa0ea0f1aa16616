package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-overlay/pkg/types"
)

// Body 消息体
type Body interface {
	// Kind 消息类型
	Kind() Kind

	appendTo(b []byte) []byte
}

// MaxLogDistance FindNodes 中允许的最大对数距离
const MaxLogDistance = 256

// ============================================================================
//                              Ping / Pong
// ============================================================================

// Ping 存活探测，携带本地记录序号与数据半径
type Ping struct {
	EnrSeq     uint64
	DataRadius types.Distance
}

// Kind 实现 Body
func (*Ping) Kind() Kind { return KindPing }

func (p *Ping) appendTo(b []byte) []byte {
	return appendPingPong(b, p.EnrSeq, p.DataRadius)
}

// Pong 存活探测响应
type Pong struct {
	EnrSeq     uint64
	DataRadius types.Distance
}

// Kind 实现 Body
func (*Pong) Kind() Kind { return KindPong }

func (p *Pong) appendTo(b []byte) []byte {
	return appendPingPong(b, p.EnrSeq, p.DataRadius)
}

func appendPingPong(b []byte, seq uint64, radius types.Distance) []byte {
	b = appendVarintField(b, 1, seq)
	return appendBytesField(b, 2, radius[:])
}

func decodePingPong(b []byte) (uint64, types.Distance, error) {
	var (
		seq    uint64
		radius types.Distance
	)
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			seq = v
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			d, ok := types.DistanceFromBytes(v)
			if !ok {
				return 0, fmt.Errorf("%w: data radius length %d", ErrInvalidField, len(v))
			}
			radius = d
			return n, nil
		}
		return 0, nil
	})
	return seq, radius, err
}

// ============================================================================
//                              FindNodes / Nodes
// ============================================================================

// FindNodes 请求目标节点在指定对数距离上的节点
type FindNodes struct {
	Distances []uint16
}

// Kind 实现 Body
func (*FindNodes) Kind() Kind { return KindFindNodes }

func (f *FindNodes) appendTo(b []byte) []byte {
	for _, d := range f.Distances {
		b = appendVarintField(b, 1, uint64(d))
	}
	return b
}

func decodeFindNodes(b []byte) (*FindNodes, error) {
	f := &FindNodes{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		if v > MaxLogDistance {
			return 0, fmt.Errorf("%w: log distance %d", ErrInvalidField, v)
		}
		f.Distances = append(f.Distances, uint16(v))
		return n, nil
	})
	return f, err
}

// Nodes 节点查询响应
type Nodes struct {
	// Total 响应总条数（分多条消息时使用，单条时为 1）
	Total   uint8
	Records []*types.PeerRecord
}

// Kind 实现 Body
func (*Nodes) Kind() Kind { return KindNodes }

func (m *Nodes) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(m.Total))
	for _, r := range m.Records {
		b = appendBytesField(b, 2, appendRecord(nil, r))
	}
	return b
}

func decodeNodes(b []byte) (*Nodes, error) {
	m := &Nodes{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > 0xff {
				return 0, fmt.Errorf("%w: total %d", ErrInvalidField, v)
			}
			m.Total = uint8(v)
			return n, nil
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			r, err := decodeRecord(v)
			if err != nil {
				return 0, err
			}
			m.Records = append(m.Records, r)
			return n, nil
		}
		return 0, nil
	})
	return m, err
}

// ============================================================================
//                              FindContent / Content
// ============================================================================

// FindContent 按编码后的内容键查询内容
type FindContent struct {
	ContentKey []byte
}

// Kind 实现 Body
func (*FindContent) Kind() Kind { return KindFindContent }

func (f *FindContent) appendTo(b []byte) []byte {
	return appendBytesField(b, 1, f.ContentKey)
}

func decodeFindContent(b []byte) (*FindContent, error) {
	f := &FindContent{}
	seen := false
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		f.ContentKey = v
		seen = true
		return n, err
	})
	if err == nil && !seen {
		err = fmt.Errorf("%w: missing content key", ErrInvalidField)
	}
	return f, err
}

// ContentVariant Content 响应变体
type ContentVariant uint8

const (
	// ContentRecords 未持有内容，返回更近的节点
	ContentRecords ContentVariant = iota
	// ContentPayload 内联内容
	ContentPayload
	// ContentConnectionID 内容过大，通过可靠流传输
	ContentConnectionID
)

// String 返回变体名
func (v ContentVariant) String() string {
	switch v {
	case ContentRecords:
		return "records"
	case ContentPayload:
		return "payload"
	case ContentConnectionID:
		return "connection-id"
	default:
		return "unknown"
	}
}

// Content 内容查询响应，三个变体互斥
type Content struct {
	Variant      ContentVariant
	ConnectionID types.ConnectionID
	Payload      []byte
	Records      []*types.PeerRecord
}

// Kind 实现 Body
func (*Content) Kind() Kind { return KindContent }

func (c *Content) appendTo(b []byte) []byte {
	switch c.Variant {
	case ContentConnectionID:
		return appendVarintField(b, 1, uint64(c.ConnectionID))
	case ContentPayload:
		return appendBytesField(b, 2, c.Payload)
	default:
		for _, r := range c.Records {
			b = appendBytesField(b, 3, appendRecord(nil, r))
		}
		return b
	}
}

func decodeContent(b []byte) (*Content, error) {
	c := &Content{Variant: ContentRecords}
	var hasConn, hasPayload, hasRecords bool
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > 0xffff {
				return 0, fmt.Errorf("%w: connection id %d", ErrInvalidField, v)
			}
			c.ConnectionID = types.ConnectionID(v)
			hasConn = true
			return n, nil
		case 2:
			v, n, err := consumeBytes(typ, b)
			c.Payload = v
			hasPayload = true
			return n, err
		case 3:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			r, err := decodeRecord(v)
			if err != nil {
				return 0, err
			}
			c.Records = append(c.Records, r)
			hasRecords = true
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}

	count := 0
	for _, has := range []bool{hasConn, hasPayload, hasRecords} {
		if has {
			count++
		}
	}
	if count > 1 {
		return nil, ErrAmbiguousContent
	}
	switch {
	case hasConn:
		c.Variant = ContentConnectionID
	case hasPayload:
		c.Variant = ContentPayload
	}
	return c, nil
}

// ============================================================================
//                              Offer / Accept
// ============================================================================

// Offer 推送内容键
type Offer struct {
	ContentKeys [][]byte
}

// Kind 实现 Body
func (*Offer) Kind() Kind { return KindOffer }

func (o *Offer) appendTo(b []byte) []byte {
	for _, k := range o.ContentKeys {
		b = appendBytesField(b, 1, k)
	}
	return b
}

func decodeOffer(b []byte) (*Offer, error) {
	o := &Offer{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		o.ContentKeys = append(o.ContentKeys, v)
		return n, nil
	})
	return o, err
}

// Accept 推送响应
//
// Accepted[i] 对应 Offer.ContentKeys[i]。全部拒绝时 ConnectionID 无意义。
type Accept struct {
	ConnectionID types.ConnectionID
	Accepted     []bool
}

// Kind 实现 Body
func (*Accept) Kind() Kind { return KindAccept }

// Any 是否接受了至少一个键
func (a *Accept) Any() bool {
	for _, ok := range a.Accepted {
		if ok {
			return true
		}
	}
	return false
}

func (a *Accept) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(a.ConnectionID))
	bits := make([]byte, len(a.Accepted))
	for i, ok := range a.Accepted {
		if ok {
			bits[i] = 1
		}
	}
	return appendBytesField(b, 2, bits)
}

func decodeAccept(b []byte) (*Accept, error) {
	a := &Accept{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > 0xffff {
				return 0, fmt.Errorf("%w: connection id %d", ErrInvalidField, v)
			}
			a.ConnectionID = types.ConnectionID(v)
			return n, nil
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			a.Accepted = make([]bool, len(v))
			for i, bit := range v {
				switch bit {
				case 0:
				case 1:
					a.Accepted[i] = true
				default:
					return 0, fmt.Errorf("%w: accept flag %d", ErrInvalidField, bit)
				}
			}
			return n, nil
		}
		return 0, nil
	})
	return a, err
}
