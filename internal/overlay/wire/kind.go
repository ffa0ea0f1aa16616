package wire

// Kind 消息类型
type Kind uint8

const (
	// KindPing 存活探测
	KindPing Kind = iota + 1
	// KindPong 存活探测响应
	KindPong
	// KindFindNodes 按对数距离查询节点
	KindFindNodes
	// KindNodes 节点查询响应
	KindNodes
	// KindFindContent 查询内容
	KindFindContent
	// KindContent 内容查询响应
	KindContent
	// KindOffer 推送内容键
	KindOffer
	// KindAccept 推送响应
	KindAccept
)

// String 返回类型名
func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindFindNodes:
		return "find-nodes"
	case KindNodes:
		return "nodes"
	case KindFindContent:
		return "find-content"
	case KindContent:
		return "content"
	case KindOffer:
		return "offer"
	case KindAccept:
		return "accept"
	default:
		return "unknown"
	}
}

// IsValid 是否为已知类型
func (k Kind) IsValid() bool {
	return k >= KindPing && k <= KindAccept
}

// IsRequest 是否为请求类型
func (k Kind) IsRequest() bool {
	switch k {
	case KindPing, KindFindNodes, KindFindContent, KindOffer:
		return true
	default:
		return false
	}
}

// ResponseKind 返回请求对应的响应类型，非请求类型返回 0
func (k Kind) ResponseKind() Kind {
	switch k {
	case KindPing:
		return KindPong
	case KindFindNodes:
		return KindNodes
	case KindFindContent:
		return KindContent
	case KindOffer:
		return KindAccept
	default:
		return 0
	}
}
