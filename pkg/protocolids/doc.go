// Package protocolids 是 overlay 所有协议标签的唯一注册表。
//
// # 唯一真源原则
//
// 所有模块、测试在需要子网络协议标签或可靠流 ALPN 时，
// 必须引用本包中的常量，禁止在其他位置定义字面量。
//
// # 协议标签
//
//   - DAS:        数据可用性采样子网络
//   - SECURE_DAS: 安全数据可用性采样子网络
//
// 标签出现在每条线路消息中，由 dispatch.Registry 统一比较。
package protocolids
