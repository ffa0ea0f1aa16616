package bulk

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrame_RoundTrip 测试帧往返（压缩与不压缩）
func TestFrame_RoundTrip(t *testing.T) {
	random := make([]byte, 4096)
	_, err := rand.Read(random)
	require.NoError(t, err)

	payloads := [][]byte{
		{},
		[]byte("short"),
		bytes.Repeat([]byte("compressible "), 1000),
		random,
	}

	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		w := NewFrameWriter(&buf, compress)
		for _, p := range payloads {
			require.NoError(t, w.WriteFrame(p))
		}

		r := NewFrameReader(&buf, 0)
		for _, want := range payloads {
			got, err := r.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, io.EOF)
	}

	t.Log("✅ 帧往返测试通过")
}

// TestFrame_CompressionShrinks 测试可压缩内容确实被压缩
func TestFrame_CompressionShrinks(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 10000)

	var plain, packed bytes.Buffer
	require.NoError(t, NewFrameWriter(&plain, false).WriteFrame(payload))
	require.NoError(t, NewFrameWriter(&packed, true).WriteFrame(payload))
	assert.Less(t, packed.Len(), plain.Len())
}

// TestFrame_DigestMismatch 测试篡改内容被发现
func TestFrame_DigestMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf, false).WriteFrame([]byte("hello world")))

	data := buf.Bytes()
	data[3] ^= 0xff

	_, err := NewFrameReader(bytes.NewReader(data), 0).ReadFrame()
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

// TestFrame_TooLarge 测试超过上限的帧
func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf, false).WriteFrame(make([]byte, 100)))

	_, err := NewFrameReader(&buf, 10).ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// TestFrame_Truncated 测试截断
func TestFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf, false).WriteFrame([]byte("hello world")))
	data := buf.Bytes()[:buf.Len()-5]

	_, err := NewFrameReader(bytes.NewReader(data), 0).ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestFrame_UnknownFlags 测试未知标志
func TestFrame_UnknownFlags(t *testing.T) {
	_, err := NewFrameReader(bytes.NewReader([]byte{0x02, 0x00}), 0).ReadFrame()
	assert.ErrorIs(t, err, ErrUnknownFlags)
}
