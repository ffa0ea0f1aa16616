package quic

import (
	"github.com/quic-go/quic-go"
)

// stream QUIC 流封装
//
// quic.Stream.Close 只关闭写端，这里同时取消读端，
// 使 Close 的语义与 io.ReadWriteCloser 一致。
type stream struct {
	*quic.Stream
}

// Close 关闭读写两端
func (s stream) Close() error {
	s.Stream.CancelRead(0)
	return s.Stream.Close()
}
