// Package bulk 实现可靠流传输的公共部分
//
// 当内容超过数据报内联上限时，持有方预留一个 ConnectionID 并在响应中告知对方，
// 对方使用该 ID 接入可靠流，内容以帧的形式传输：
//
//	+-------------+--------------+-----------+------------------+
//	| flags (uv)  | length (uv)  |   body    | blake3 digest 32 |
//	+-------------+--------------+-----------+------------------+
//
// flags 的最低位表示 body 经过 zstd 压缩；摘要始终针对未压缩内容计算。
//
// 本包还提供：
//   - Reservations: 连接 ID 预留表，由各传输实现共享
//   - MemoryHub / MemoryTransport: 进程内传输，用于模拟网络与测试
package bulk
