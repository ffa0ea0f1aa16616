// Package session 实现子网络会话
//
// Session[K] 是按内容键类型参数化的单个子网络实例，持有：
//   - 路由表（routing.Table）
//   - 内容存储（interfaces.ContentStore）
//   - 出站请求关联表（request.Table）
//
// 会话只有一个事件循环 goroutine，它独占路由表与关联表，依次处理：
//
//	入站数据报 | 命令 | 过期扫描 | 存活检测
//
// 其他 goroutine（客户端调用、为单个入站请求派生的任务、可靠流传输任务）
// 通过命令 channel 访问会话状态，不直接修改，因此会话状态不加锁。
//
// 出站请求状态：
//
//	Issued -> AwaitingResponse -> Resolved(Success | Failure | Timeout)
//
// 内容超过内联上限时，持有方预留可靠流连接 ID 并在 Content 响应中返回，
// 请求方接入可靠流读取完整内容后，原请求才被解决。
package session
