package wire

import "errors"

var (
	// ErrEmptyMessage 空消息
	ErrEmptyMessage = errors.New("wire: empty message")

	// ErrMissingTag 缺少协议标签
	ErrMissingTag = errors.New("wire: missing protocol tag")

	// ErrUnknownKind 未知消息类型
	ErrUnknownKind = errors.New("wire: unknown message kind")

	// ErrWrongWireType 字段线路类型错误
	ErrWrongWireType = errors.New("wire: wrong wire type")

	// ErrInvalidField 字段取值非法
	ErrInvalidField = errors.New("wire: invalid field value")

	// ErrAmbiguousContent Content 消息同时携带多个变体
	ErrAmbiguousContent = errors.New("wire: content carries more than one variant")
)
