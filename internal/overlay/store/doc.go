// Package store 提供内存内容存储
//
// MemoryContentStore 按内容 ID 到本地节点 ID 的距离索引内容：
//   - 未配置容量时半径为 types.MaxDistance，接受任何内容
//   - 配置容量后，超出容量时按距离从远到近驱逐，距离相同则先驱逐最早写入的条目
//   - 发生驱逐后，半径收缩为剩余条目中的最远距离
//
// 存储不落盘。
package store
