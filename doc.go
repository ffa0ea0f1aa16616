// Package overlay 提供多子网络复用的内容寻址 Kademlia overlay
//
// 多个逻辑上独立的子网络（如 "DAS" 与 "SECURE_DAS"）共用同一个节点发现传输与
// 同一个可靠流设施，各自拥有独立的路由表、内容存储与内容校验策略。
//
// # 核心概念
//
//   - Node: 节点门面，持有共享的协作方并装配所有子网络
//   - Subnetwork: 由协议标签区分的一个 overlay 会话（路由表 + 内容存储 + 关联表）
//   - Dispatcher: 按协议标签把入站数据报投递到唯一的子网络
//
// # 快速开始
//
//	import overlay "github.com/dep2p/go-overlay"
//
//	node, err := overlay.Start(ctx,
//	    overlay.WithDiscovery(disc),        // 节点发现协作方（必须）
//	    overlay.WithBulkTransport(bt),      // 可靠流协作方（可选）
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	das, _ := node.DAS()
//	pong, err := das.Ping(ctx, peerID)
//	res, err := das.LookupContent(ctx, key)
//
// # 分层结构
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  API Layer        overlay.New(), overlay.Start()            │
//	├─────────────────────────────────────────────────────────────┤
//	│  Dispatch Layer   internal/overlay/dispatch                 │
//	│                   协议标签 → 子网络，按发送方限速             │
//	├─────────────────────────────────────────────────────────────┤
//	│  Session Layer    internal/overlay/session                  │
//	│                   请求关联、迭代查询、存活检测、可靠流桥接     │
//	├─────────────────────────────────────────────────────────────┤
//	│  Building Blocks  contentkey / store / routing / request /  │
//	│                   wire                                      │
//	├─────────────────────────────────────────────────────────────┤
//	│  Collaborators    Discovery（数据报）、BulkTransport（可靠流）│
//	└─────────────────────────────────────────────────────────────┘
//
// # 文件组织
//
//	├── node.go     # Node 结构、生命周期、子网络访问
//	├── fx.go       # Fx 模块装配
//	├── options.go  # WithXxx 配置选项
//	└── errors.go   # 错误定义
package overlay
