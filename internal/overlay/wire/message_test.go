package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-overlay/pkg/types"
)

func testRecord(b byte) *types.PeerRecord {
	var id types.NodeID
	id[0] = b
	id[31] = b
	return &types.PeerRecord{ID: id, Addr: "node-addr", BulkAddr: "127.0.0.1:9000", Seq: uint64(b)}
}

// TestEncodeDecode_AllKinds 测试所有消息类型的编解码
func TestEncodeDecode_AllKinds(t *testing.T) {
	var radius types.Distance
	radius[0] = 0x7f

	bodies := []Body{
		&Ping{EnrSeq: 3, DataRadius: types.MaxDistance},
		&Pong{EnrSeq: 9, DataRadius: radius},
		&FindNodes{Distances: []uint16{0, 255, 256}},
		&Nodes{Total: 1, Records: []*types.PeerRecord{testRecord(1), testRecord(2)}},
		&FindContent{ContentKey: append([]byte{0}, make([]byte, 32)...)},
		&Content{Variant: ContentPayload, Payload: []byte("payload")},
		&Content{Variant: ContentConnectionID, ConnectionID: 4242},
		&Content{Variant: ContentRecords, Records: []*types.PeerRecord{testRecord(3)}},
		&Offer{ContentKeys: [][]byte{{0, 1}, {0, 2}}},
		&Accept{ConnectionID: 7, Accepted: []bool{true, false, true}},
	}

	for _, body := range bodies {
		t.Run(body.Kind().String(), func(t *testing.T) {
			msg := &Message{Tag: "DAS", RequestID: 0xdeadbeef, Body: body}
			data, err := Encode(msg)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, msg, decoded)
		})
	}

	t.Log("✅ 消息编解码测试通过")
}

// TestDecode_Malformed 测试非法输入返回 DecodeError
func TestDecode_Malformed(t *testing.T) {
	valid, err := Encode(&Message{Tag: "DAS", RequestID: 1, Body: &Ping{}})
	require.NoError(t, err)

	noTag := appendVarintField(nil, fieldKind, uint64(KindPing))
	badKind := appendStringField(nil, fieldTag, "DAS")
	badKind = appendVarintField(badKind, fieldKind, 99)
	wrongType := appendVarintField(nil, fieldTag, 5)
	badRadius := appendStringField(nil, fieldTag, "DAS")
	badRadius = appendVarintField(badRadius, fieldKind, uint64(KindPing))
	badRadius = appendBytesField(badRadius, fieldBody, appendBytesField(nil, 2, []byte{1, 2, 3}))
	ambiguous := appendStringField(nil, fieldTag, "DAS")
	ambiguous = appendVarintField(ambiguous, fieldKind, uint64(KindContent))
	body := appendVarintField(nil, 1, 3)
	body = appendBytesField(body, 2, []byte("x"))
	ambiguous = appendBytesField(ambiguous, fieldBody, body)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-3]},
		{"garbage", []byte{0xff, 0xff, 0xff}},
		{"missing tag", noTag},
		{"unknown kind", badKind},
		{"wrong wire type", wrongType},
		{"bad radius", badRadius},
		{"ambiguous content", ambiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := Decode(tt.data)
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrDecode)
			})
		})
	}
}

// TestDecode_SkipsUnknownFields 测试跳过未知字段
func TestDecode_SkipsUnknownFields(t *testing.T) {
	data, err := Encode(&Message{Tag: "SECURE_DAS", RequestID: 5, Body: &FindNodes{Distances: []uint16{256}}})
	require.NoError(t, err)
	data = protowire.AppendTag(data, 15, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolTag("SECURE_DAS"), msg.Tag)
	assert.Equal(t, KindFindNodes, msg.Kind())
}

// TestFindNodes_DistanceBound 测试对数距离上限
func TestFindNodes_DistanceBound(t *testing.T) {
	tag := appendStringField(nil, fieldTag, "DAS")
	tag = appendVarintField(tag, fieldKind, uint64(KindFindNodes))
	tag = appendBytesField(tag, fieldBody, appendVarintField(nil, 1, 257))

	_, err := Decode(tag)
	assert.ErrorIs(t, err, ErrInvalidField)
}

// TestEncode_Invalid 测试编码前检查
func TestEncode_Invalid(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = Encode(&Message{Body: &Ping{}})
	assert.ErrorIs(t, err, ErrMissingTag)
}

// TestPeekTag 测试只读取协议标签
func TestPeekTag(t *testing.T) {
	data, err := Encode(&Message{Tag: "UNKNOWN_NET", RequestID: 1, Body: &Ping{}})
	require.NoError(t, err)

	tag, err := PeekTag(data)
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolTag("UNKNOWN_NET"), tag)

	_, err = PeekTag(nil)
	assert.ErrorIs(t, err, types.ErrDecode)

	_, err = PeekTag(appendVarintField(nil, fieldKind, 1))
	assert.ErrorIs(t, err, ErrMissingTag)
}

// TestKind 测试请求与响应类型映射
func TestKind(t *testing.T) {
	pairs := map[Kind]Kind{
		KindPing:        KindPong,
		KindFindNodes:   KindNodes,
		KindFindContent: KindContent,
		KindOffer:       KindAccept,
	}
	for req, resp := range pairs {
		assert.True(t, req.IsRequest())
		assert.False(t, resp.IsRequest())
		assert.Equal(t, resp, req.ResponseKind())
		assert.Equal(t, Kind(0), resp.ResponseKind())
	}
	assert.False(t, Kind(0).IsValid())
	assert.Equal(t, "unknown", Kind(42).String())
}

// TestAccept_Any 测试 Accept 汇总
func TestAccept_Any(t *testing.T) {
	assert.False(t, (&Accept{Accepted: []bool{false, false}}).Any())
	assert.True(t, (&Accept{Accepted: []bool{false, true}}).Any())
}
