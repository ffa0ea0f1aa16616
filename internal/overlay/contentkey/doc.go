// Package contentkey 定义子网络内容键及其校验器
//
// 内容键是带选择字节的联合类型：
//
//	+----------+----------------------+
//	| selector | 定长载荷（按变体）    |
//	+----------+----------------------+
//
// 当前只有 Sample 变体（选择字节 0x00，载荷 32 字节），
// ContentID 即为这 32 字节本身。
//
// DAS 与 SECURE_DAS 两个子网络各自拥有独立的键类型，
// 以便在编译期区分，避免把一个子网络的键送入另一个子网络。
package contentkey
