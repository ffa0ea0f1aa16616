// Package routing 实现子网络会话的 K 桶路由表
//
// 每个子网络会话拥有独立的路由表，只由会话自身的事件循环访问，
// 因此路由表不加锁。
//
// 桶按对数距离划分：第 i 个桶（0..255）保存对数距离为 i+1 的节点，
// 这样 FindNodes 请求中的距离可以直接映射到桶。
package routing
