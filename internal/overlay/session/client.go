package session

import (
	"context"
	"fmt"

	"github.com/dep2p/go-overlay/internal/overlay/request"
	"github.com/dep2p/go-overlay/internal/overlay/routing"
	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              出站请求
// ============================================================================

// roundTrip 发出请求并等待结果
//
// ctx 结束只影响调用方的等待，请求本身仍由截止时间负责清理。
func (s *Session[K]) roundTrip(ctx context.Context, op string, peer types.NodeID, body wire.Body) (wire.Body, error) {
	responder := make(chan request.Outcome, 1)
	if err := s.exec(ctx, func() {
		s.issue(peer, body, s.cfg.QueryPeerTimeout, responder)
	}); err != nil {
		return nil, newRequestError(op, peer, err)
	}

	select {
	case out := <-responder:
		if out.Err != nil {
			return nil, newRequestError(op, peer, out.Err)
		}
		return out.Response, nil
	case <-ctx.Done():
		return nil, newRequestError(op, peer, ctx.Err())
	}
}

// Ping 存活探测，成功时对方的记录序号与数据半径写入路由表
func (s *Session[K]) Ping(ctx context.Context, peer types.NodeID) (*wire.Pong, error) {
	body, err := s.roundTrip(ctx, "ping", peer, s.localPing())
	if err != nil {
		return nil, err
	}
	return body.(*wire.Pong), nil
}

// FindNodes 查询对方在指定对数距离上的节点
func (s *Session[K]) FindNodes(ctx context.Context, peer types.NodeID, distances ...uint16) ([]*types.PeerRecord, error) {
	for _, d := range distances {
		if d > wire.MaxLogDistance {
			return nil, newRequestError("find_nodes", peer, fmt.Errorf("%w: log distance %d", wire.ErrInvalidField, d))
		}
	}
	body, err := s.roundTrip(ctx, "find_nodes", peer, &wire.FindNodes{Distances: distances})
	if err != nil {
		return nil, err
	}
	return body.(*wire.Nodes).Records, nil
}

// ContentResult 内容查询结果
type ContentResult struct {
	// Payload 内容，未找到时为 nil
	Payload []byte

	// Records 对方返回的更近节点
	Records []*types.PeerRecord

	// Transferred 内容是否经可靠流传输
	Transferred bool
}

// Found 是否取得内容
func (r *ContentResult) Found() bool {
	return r.Payload != nil
}

// FindContent 向单个节点查询内容
//
// 取得的内容先经校验器校验，校验失败返回 *interfaces.ValidationError；
// 通过校验且落在本地半径内的内容写入存储。
func (s *Session[K]) FindContent(ctx context.Context, peer types.NodeID, key K) (*ContentResult, error) {
	body, err := s.roundTrip(ctx, "find_content", peer, &wire.FindContent{ContentKey: s.codec.Encode(key)})
	if err != nil {
		return nil, err
	}
	content := body.(*wire.Content)

	switch content.Variant {
	case wire.ContentRecords:
		return &ContentResult{Records: content.Records}, nil
	case wire.ContentPayload, wire.ContentConnectionID:
		// ContentConnectionID 变体只会在可靠流读取完成后出现，此时 Payload 已就绪
		transferred := content.Variant == wire.ContentConnectionID
		if err := s.validator.Validate(ctx, key, content.Payload); err != nil {
			return nil, err
		}
		s.cache(ctx, key, content.Payload)
		payload := content.Payload
		if payload == nil {
			payload = []byte{}
		}
		return &ContentResult{Payload: payload, Transferred: transferred}, nil
	default:
		return nil, newRequestError("find_content", peer, ErrRemoteRejected)
	}
}

// cache 把已校验内容交给事件循环写入本地存储（半径外或已持有时跳过）
func (s *Session[K]) cache(ctx context.Context, key K, payload []byte) {
	var err error
	if execErr := s.exec(ctx, func() {
		if s.wants(key.ContentID()) {
			err = s.storePut(key.ContentID(), payload)
		}
	}); execErr != nil {
		err = execErr
	}
	if err != nil {
		logger.Debug("缓存内容失败", "tag", s.cfg.Tag, "key", key.String(), "err", err)
	}
}

// Offer 向节点推送本地持有的内容
//
// 返回对方对每个键的接受情况，被接受的内容按顺序通过可靠流写出。
func (s *Session[K]) Offer(ctx context.Context, peer types.NodeID, keys []K) ([]bool, error) {
	if s.bulk == nil {
		return nil, newRequestError("offer", peer, ErrNoBulkTransport)
	}
	encoded := make([][]byte, len(keys))
	payloads := make([][]byte, len(keys))
	var missing error
	if err := s.exec(ctx, func() {
		for i, key := range keys {
			p, ok := s.store.Get(key.ContentID())
			if !ok {
				missing = fmt.Errorf("%w: %s", ErrNotHeld, key.String())
				return
			}
			payloads[i] = p
		}
	}); err != nil {
		return nil, newRequestError("offer", peer, err)
	}
	if missing != nil {
		return nil, missing
	}
	for i, key := range keys {
		encoded[i] = s.codec.Encode(key)
	}

	body, err := s.roundTrip(ctx, "offer", peer, &wire.Offer{ContentKeys: encoded})
	if err != nil {
		return nil, err
	}
	accept := body.(*wire.Accept)
	if len(accept.Accepted) != len(keys) {
		return nil, newRequestError("offer", peer, fmt.Errorf("%w: accept length %d, offered %d", ErrRemoteRejected, len(accept.Accepted), len(keys)))
	}
	if !accept.Any() {
		return accept.Accepted, nil
	}

	var selected [][]byte
	for i, ok := range accept.Accepted {
		if ok {
			selected = append(selected, payloads[i])
		}
	}
	record, ok := s.discovery.LookupPeerRecord(peer)
	if !ok {
		return nil, newRequestError("offer", peer, ErrNoRoute)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryPeerTimeout)
	defer cancel()
	if err := s.pushStream(ctx, record, accept.ConnectionID, selected); err != nil {
		return nil, newRequestError("offer", peer, err)
	}
	return accept.Accepted, nil
}

// Gossip 写入本地存储并推送给半径覆盖该内容的节点
//
// 返回接受内容的节点数。
func (s *Session[K]) Gossip(ctx context.Context, key K, payload []byte) (int, error) {
	if err := s.Put(ctx, key, payload); err != nil {
		return 0, err
	}

	var peers []types.NodeID
	if err := s.exec(ctx, func() {
		peers = s.table.PeersCovering(key.ContentID())
	}); err != nil {
		return 0, err
	}
	if len(peers) > s.cfg.GossipFanout {
		peers = peers[:s.cfg.GossipFanout]
	}

	accepted := 0
	for _, peer := range peers {
		result, err := s.Offer(ctx, peer, []K{key})
		if err != nil {
			logger.Debug("推送失败", "tag", s.cfg.Tag, "peer", peer.ShortString(), "key", key.String(), "err", err)
			continue
		}
		if result[0] {
			accepted++
		}
	}
	return accepted, nil
}

// ============================================================================
//                              本地操作
// ============================================================================

// Put 校验后写入本地存储
func (s *Session[K]) Put(ctx context.Context, key K, payload []byte) error {
	return s.admit(ctx, key, payload)
}

// Get 读取本地内容，会话未运行时返回 false
func (s *Session[K]) Get(key K) ([]byte, bool) {
	var (
		payload []byte
		ok      bool
	)
	if err := s.exec(context.Background(), func() {
		payload, ok = s.store.Get(key.ContentID())
	}); err != nil {
		return nil, false
	}
	return payload, ok
}

// AddPeer 收录节点记录并加入路由表
func (s *Session[K]) AddPeer(ctx context.Context, record *types.PeerRecord) error {
	if record == nil || record.ID.IsEmpty() {
		return fmt.Errorf("%w: empty record", ErrInvalidConfig)
	}
	if err := s.discovery.InsertPeerRecord(record); err != nil {
		return err
	}
	return s.exec(ctx, func() { s.touch(record.ID) })
}

// Peers 返回路由表节点快照
func (s *Session[K]) Peers(ctx context.Context) ([]*routing.Node, error) {
	var nodes []*routing.Node
	err := s.exec(ctx, func() { nodes = s.table.All() })
	return nodes, err
}

// Peer 返回单个路由表节点
func (s *Session[K]) Peer(ctx context.Context, id types.NodeID) (*routing.Node, bool, error) {
	var (
		node *routing.Node
		ok   bool
	)
	err := s.exec(ctx, func() { node, ok = s.table.Get(id) })
	return node, ok, err
}

// NearestPeers 返回路由表中距离 target 最近的 count 个节点
func (s *Session[K]) NearestPeers(ctx context.Context, target [types.IDLength]byte, count int) ([]types.NodeID, error) {
	var ids []types.NodeID
	err := s.exec(ctx, func() { ids = s.table.NearestPeers(target, count) })
	return ids, err
}

// PendingRequests 返回未决请求数量
func (s *Session[K]) PendingRequests(ctx context.Context) (int, error) {
	n := 0
	err := s.exec(ctx, func() { n = s.requests.Len() })
	return n, err
}
