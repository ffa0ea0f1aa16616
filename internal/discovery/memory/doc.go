// Package memory 实现进程内模拟的 discovery 协作方
//
// 同一个 Network 中的节点通过带缓冲的 channel 互相投递数据报，
// 语义与 UDP 一致：接收方缓冲满或链路被阻断时数据报被丢弃。
//
// Network.SeedRandom 用于测试与模拟：为每个节点随机注入若干其他节点的记录，
// 代替真实的引导流程。
package memory
