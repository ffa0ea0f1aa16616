// Package quic 实现基于 QUIC 的可靠流传输
//
// 每个节点在一个 UDP socket 上同时监听与拨号（共享 quic.Transport）。
// 接入方拨号到对方的 BulkAddr，打开一个双向流并先写入流头：
//
//	+--------------------+------------------+
//	| connection id (2B) | node id (32B)    |
//	+--------------------+------------------+
//
// 接收方按连接 ID 查找预留，校验节点 ID 与预留一致后把流交给等待者。
// 到同一地址的连接会被复用。
package quic
