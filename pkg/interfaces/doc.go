// Package interfaces 定义 overlay 的公共接口
//
// 按协作关系组织：
//
// # 外部协作方（由 overlay 消费）
//
//   - discovery.go  - 节点发现传输：发送数据报、入站数据报、节点记录查询/插入
//   - bulk.go       - 可靠流传输：内容超过数据报上限时的大块传输
//
// # 可插拔组件（由每个子网络提供）
//
//   - content.go    - ContentKey / KeyCodec / Validator / ContentStore / Metric
//
// overlay 从不拥有节点记录，也从不直接修改 discovery 的路由表，
// 只通过 Discovery 接口请求插入。
package interfaces
