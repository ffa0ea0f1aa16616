// Package request 实现出站请求关联表
//
// 关联表为每个出站请求分配 RequestID，记录目标节点、请求体、
// 截止时间与重试次数，并保证每个请求恰好被解决一次：
//
//	Issued -> AwaitingResponse -> Resolved(Success | Failure | Timeout)
//
// 关联表由会话的事件循环独占，不加锁。已解决的 ID 保存在一个
// 有界 LRU 中，迟到或重复的响应据此被识别为重复而不是未知请求。
package request
