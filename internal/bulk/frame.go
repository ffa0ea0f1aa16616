package bulk

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-varint"
	"lukechampine.com/blake3"
)

const (
	// DigestSize 摘要长度
	DigestSize = 32

	// MaxFrameSize 单帧内容上限
	MaxFrameSize = 64 << 20

	// compressThreshold 小于该长度的内容不压缩
	compressThreshold = 256

	flagCompressed uint64 = 1 << 0
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// zstdCodec 返回共享的 zstd 编解码器，EncodeAll/DecodeAll 可并发调用
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(MaxFrameSize))
	})
	return encoder, decoder, codecErr
}

// FrameWriter 帧写入器
type FrameWriter struct {
	w        io.Writer
	compress bool
}

// NewFrameWriter 创建帧写入器
func NewFrameWriter(w io.Writer, compress bool) *FrameWriter {
	return &FrameWriter{w: w, compress: compress}
}

// WriteFrame 写入一帧
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	digest := blake3.Sum256(payload)
	body := payload
	var flags uint64

	if fw.compress && len(payload) >= compressThreshold {
		enc, _, err := zstdCodec()
		if err != nil {
			return fmt.Errorf("init zstd: %w", err)
		}
		compressed := enc.EncodeAll(payload, nil)
		if len(compressed) < len(payload) {
			body = compressed
			flags |= flagCompressed
		}
	}

	header := append(varint.ToUvarint(flags), varint.ToUvarint(uint64(len(body)))...)
	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	if _, err := fw.w.Write(body); err != nil {
		return err
	}
	_, err := fw.w.Write(digest[:])
	return err
}

// FrameReader 帧读取器
type FrameReader struct {
	r       *bufio.Reader
	maxSize int
}

// NewFrameReader 创建帧读取器
//
// maxSize <= 0 时使用 MaxFrameSize。
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 || maxSize > MaxFrameSize {
		maxSize = MaxFrameSize
	}
	return &FrameReader{r: bufio.NewReader(r), maxSize: maxSize}
}

// ReadFrame 读取一帧并校验摘要
//
// 流在帧边界处结束时返回 io.EOF。
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	flags, err := varint.ReadUvarint(fr.r)
	if err != nil {
		return nil, err
	}
	if flags&^flagCompressed != 0 {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownFlags, flags)
	}

	length, err := varint.ReadUvarint(fr.r)
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	if length > uint64(fr.maxSize) {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrFrameTooLarge, length, fr.maxSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, unexpectedEOF(err)
	}
	var digest [DigestSize]byte
	if _, err := io.ReadFull(fr.r, digest[:]); err != nil {
		return nil, unexpectedEOF(err)
	}

	payload := body
	if flags&flagCompressed != 0 {
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("init zstd: %w", err)
		}
		payload, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		if len(payload) > fr.maxSize {
			return nil, fmt.Errorf("%w: %d bytes > %d", ErrFrameTooLarge, len(payload), fr.maxSize)
		}
	}

	sum := blake3.Sum256(payload)
	if subtle.ConstantTimeCompare(sum[:], digest[:]) != 1 {
		return nil, ErrDigestMismatch
	}
	return payload, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
