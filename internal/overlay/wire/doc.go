// Package wire 实现 overlay 线路消息编解码
//
// 每条消息是一个 protobuf 兼容的字段序列：
//
//	1: tag        (bytes)   子网络协议标签
//	2: request_id (varint)  请求关联 ID
//	3: kind       (varint)  消息类型
//	4: body       (bytes)   按类型编码的消息体
//
// 编码使用 google.golang.org/protobuf/encoding/protowire 直接拼装，
// 未知字段在解码时跳过，便于后续扩展。
//
// 所有解码错误都以 *types.DecodeError 返回，不会 panic。
package wire
