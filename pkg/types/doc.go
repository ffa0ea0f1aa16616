// Package types 定义 overlay 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据：
//
//   - NodeID / ContentID: 256 位标识（节点身份 / 内容在距离空间中的投影）
//   - Distance: 256 位 XOR 距离，支持全序比较
//   - PeerRecord: 由 discovery 协作方拥有的节点记录
//   - ProtocolTag: 子网络协议标签（如 "DAS"、"SECURE_DAS"）
//   - RequestID / ConnectionID: 请求关联 ID 与可靠流连接 ID
package types
