package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/internal/bulk"
	"github.com/dep2p/go-overlay/internal/overlay/contentkey"
	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
	"github.com/dep2p/go-overlay/tests/mocks"
)

// framed 把 payload 编码为一帧
func framed(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bulk.NewFrameWriter(&buf, true).WriteFrame(payload))
	return buf.Bytes()
}

// TestBulk_FetchOverStream 测试收到连接 ID 后经可靠流读取内容
func TestBulk_FetchOverStream(t *testing.T) {
	payload := randomPayload(t, 4096)
	stream := mocks.NewMockStreamWithData(framed(t, payload))

	bt := mocks.NewMockBulkTransport()
	bt.ConnectStreamFunc = func(context.Context, *types.PeerRecord, types.ConnectionID) (interfaces.Stream, error) {
		return stream, nil
	}
	s, disc, _ := mockSessionWithBulk(t, mockConfig(), bt)
	drainBootstrap(t, s, disc)

	key := randomKey(t)
	type result struct {
		res *ContentResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := s.FindContent(context.Background(), peerRecord.ID, key)
		done <- result{r, err}
	}()

	msg := nextSent(t, disc, peerRecord.ID)
	require.Equal(t, wire.KindFindContent, msg.Kind())
	reply(t, s, peerRecord.ID, msg.RequestID, &wire.Content{Variant: wire.ContentConnectionID, ConnectionID: 42})

	r := <-done
	require.NoError(t, r.err)
	assert.True(t, r.res.Transferred)
	assert.Equal(t, payload, r.res.Payload)
	assert.True(t, stream.IsClosed())
	require.Len(t, bt.ConnectCalls, 1)
	assert.Equal(t, mocks.ConnectCall{Peer: peerRecord.ID, ID: 42}, bt.ConnectCalls[0])

	got, ok := s.Get(key)
	require.True(t, ok, "读取完成的内容写入本地存储")
	assert.Equal(t, payload, got)

	t.Log("✅ 可靠流读取测试通过")
}

// TestBulk_FetchConnectFailure 测试接入可靠流失败时请求以错误结束
func TestBulk_FetchConnectFailure(t *testing.T) {
	bt := mocks.NewMockBulkTransport()
	s, disc, _ := mockSessionWithBulk(t, mockConfig(), bt)
	drainBootstrap(t, s, disc)

	key := randomKey(t)
	done := make(chan error, 1)
	go func() {
		_, err := s.FindContent(context.Background(), peerRecord.ID, key)
		done <- err
	}()

	msg := nextSent(t, disc, peerRecord.ID)
	reply(t, s, peerRecord.ID, msg.RequestID, &wire.Content{Variant: wire.ContentConnectionID, ConnectionID: 7})

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, mocks.ErrNotImplemented)

	n, err := s.PendingRequests(testCtx(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestBulk_ServeOverStream 测试超过内联上限的内容经预留的可靠流写出
func TestBulk_ServeOverStream(t *testing.T) {
	stream := mocks.NewMockStream()
	bt := mocks.NewMockBulkTransport()
	bt.AcceptStreamFunc = func(context.Context, types.ConnectionID) (interfaces.Stream, error) {
		return stream, nil
	}
	s, disc, _ := mockSessionWithBulk(t, mockConfig(), bt)
	drainBootstrap(t, s, disc)

	key := randomKey(t)
	payload := randomPayload(t, 2048)
	require.NoError(t, s.Put(testCtx(t), key, payload))

	reply(t, s, peerRecord.ID, 77, &wire.FindContent{ContentKey: contentkey.DASCodec{}.Encode(key)})

	resp := nextSent(t, disc, peerRecord.ID)
	assert.Equal(t, types.RequestID(77), resp.RequestID)
	content, ok := resp.Body.(*wire.Content)
	require.True(t, ok)
	assert.Equal(t, wire.ContentConnectionID, content.Variant)
	assert.Equal(t, types.ConnectionID(1), content.ConnectionID)
	require.Len(t, bt.OpenCalls, 1)
	assert.Equal(t, peerRecord.ID, bt.OpenCalls[0])

	require.Eventually(t, stream.IsClosed, 2*time.Second, 5*time.Millisecond)
	got, err := bulk.NewFrameReader(bytes.NewReader(stream.Written()), 1<<20).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	t.Log("✅ 可靠流写出测试通过")
}
