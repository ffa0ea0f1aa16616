// Package mocks 提供统一的测试 Mock 实现
//
// # 协作方 Mock
//
//   - MockDiscovery: 模拟 interfaces.Discovery，记录发出的数据报，可注入入站数据报
//   - MockBulkTransport: 模拟 interfaces.BulkTransport
//   - MockStream: 模拟 interfaces.Stream，支持读写数据模拟
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 关键 Mock 记录调用历史，便于验证测试行为
// 3. 并发安全: 会话在多个 goroutine 中调用协作方，调用记录加锁
//
// # 使用示例
//
//	disc := mocks.NewMockDiscovery(localRecord)
//	disc.SendDatagramFunc = func(ctx context.Context, to *types.PeerRecord, payload []byte) error {
//	    return errors.New("unreachable")
//	}
//	...
//	sent := disc.Sent()
package mocks
