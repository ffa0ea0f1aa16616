// Package dispatch 实现子网络分发
//
// 多个子网络共享一个 discovery 实例。分发器读取 discovery 交付的入站数据报，
// 按协议标签找到对应子网络会话并投递：
//
//	discovery.Inbound() -> Dispatcher -> Registry[tag] -> Handler.HandleDatagram
//
// 未注册的标签返回 *DispatchError，不影响其他子网络。
// 分发器还按发送方做入站限速。
package dispatch
