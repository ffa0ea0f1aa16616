package quic

import "errors"

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("quic bulk: transport closed")

	// ErrNoBulkAddr 对方记录中没有可靠流地址
	ErrNoBulkAddr = errors.New("quic bulk: peer has no bulk address")
)
