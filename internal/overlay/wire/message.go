package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-overlay/pkg/types"
)

// 消息字段编号
const (
	fieldTag       protowire.Number = 1
	fieldRequestID protowire.Number = 2
	fieldKind      protowire.Number = 3
	fieldBody      protowire.Number = 4
)

// Message 线路消息
type Message struct {
	Tag       types.ProtocolTag
	RequestID types.RequestID
	Body      Body
}

// Kind 返回消息类型
func (m *Message) Kind() Kind {
	if m.Body == nil {
		return 0
	}
	return m.Body.Kind()
}

// IsRequest 是否为请求
func (m *Message) IsRequest() bool {
	return m.Kind().IsRequest()
}

// String 返回诊断表示
func (m *Message) String() string {
	return fmt.Sprintf("%s/%s#%d", m.Tag, m.Kind(), m.RequestID)
}

// Encode 编码消息
func Encode(m *Message) ([]byte, error) {
	if m == nil || m.Body == nil {
		return nil, ErrEmptyMessage
	}
	if m.Tag == "" {
		return nil, ErrMissingTag
	}
	if !m.Body.Kind().IsValid() {
		return nil, ErrUnknownKind
	}

	b := make([]byte, 0, 64)
	b = appendStringField(b, fieldTag, string(m.Tag))
	b = appendVarintField(b, fieldRequestID, uint64(m.RequestID))
	b = appendVarintField(b, fieldKind, uint64(m.Body.Kind()))
	b = appendBytesField(b, fieldBody, m.Body.appendTo(nil))
	return b, nil
}

// Decode 解码消息
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, types.NewDecodeError("wire message", ErrEmptyMessage)
	}

	var (
		m       = &Message{}
		kind    Kind
		body    []byte
		hasBody bool
	)
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldTag:
			v, n, err := consumeBytes(typ, b)
			m.Tag = types.ProtocolTag(v)
			return n, err
		case fieldRequestID:
			v, n, err := consumeVarint(typ, b)
			m.RequestID = types.RequestID(v)
			return n, err
		case fieldKind:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > 0xff || !Kind(v).IsValid() {
				return 0, fmt.Errorf("%w: %d", ErrUnknownKind, v)
			}
			kind = Kind(v)
			return n, nil
		case fieldBody:
			v, n, err := consumeBytes(typ, b)
			body = v
			hasBody = true
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, types.NewDecodeError("wire message", err)
	}
	if m.Tag == "" {
		return nil, types.NewDecodeError("wire message", ErrMissingTag)
	}
	if kind == 0 {
		return nil, types.NewDecodeError("wire message", ErrUnknownKind)
	}
	if !hasBody {
		body = nil
	}

	m.Body, err = decodeBody(kind, body)
	if err != nil {
		return nil, types.NewDecodeError("wire "+kind.String(), err)
	}
	return m, nil
}

func decodeBody(kind Kind, b []byte) (Body, error) {
	switch kind {
	case KindPing:
		seq, radius, err := decodePingPong(b)
		if err != nil {
			return nil, err
		}
		return &Ping{EnrSeq: seq, DataRadius: radius}, nil
	case KindPong:
		seq, radius, err := decodePingPong(b)
		if err != nil {
			return nil, err
		}
		return &Pong{EnrSeq: seq, DataRadius: radius}, nil
	case KindFindNodes:
		return decodeFindNodes(b)
	case KindNodes:
		return decodeNodes(b)
	case KindFindContent:
		return decodeFindContent(b)
	case KindContent:
		return decodeContent(b)
	case KindOffer:
		return decodeOffer(b)
	case KindAccept:
		return decodeAccept(b)
	default:
		return nil, ErrUnknownKind
	}
}

// PeekTag 只读取协议标签，供分发器使用
//
// 不解码消息体；消息体的合法性由目标会话检查。
func PeekTag(data []byte) (types.ProtocolTag, error) {
	if len(data) == 0 {
		return "", types.NewDecodeError("wire tag", ErrEmptyMessage)
	}
	var tag types.ProtocolTag
	found := false
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldTag || found {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		tag = types.ProtocolTag(v)
		found = true
		return n, err
	})
	if err != nil {
		return "", types.NewDecodeError("wire tag", err)
	}
	if !found || tag == "" {
		return "", types.NewDecodeError("wire tag", ErrMissingTag)
	}
	return tag, nil
}
