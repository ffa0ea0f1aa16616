package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/internal/overlay/request"
	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              入站分派
// ============================================================================

// handleDatagram 处理一条入站数据报，只能在事件循环中调用
func (s *Session[K]) handleDatagram(d interfaces.Datagram) {
	msg, err := wire.Decode(d.Payload)
	if err != nil {
		s.metrics.dropped.WithLabelValues("decode").Inc()
		logger.Debug("丢弃无法解码的消息", "tag", s.cfg.Tag, "from", d.From.ShortString(), "err", err)
		return
	}
	if msg.Tag != s.cfg.Tag {
		s.metrics.dropped.WithLabelValues("tag").Inc()
		return
	}
	s.metrics.inbound.WithLabelValues(msg.Kind().String()).Inc()

	if msg.IsRequest() {
		s.handleRequest(d.From, msg)
		return
	}
	s.handleResponse(d.From, msg)
}

// handleRequest 为入站请求派生处理任务
func (s *Session[K]) handleRequest(from types.NodeID, msg *wire.Message) {
	if s.draining {
		s.metrics.dropped.WithLabelValues("stopping").Inc()
		return
	}
	s.touch(from)
	if ping, ok := msg.Body.(*wire.Ping); ok {
		s.table.RecordSuccess(from, s.clock.Now(), ping.EnrSeq, ping.DataRadius)
	}

	s.spawn(func(ctx context.Context) {
		resp, err := s.ProcessOneRequest(ctx, from, msg)
		if err != nil {
			logger.Debug("处理入站请求失败", "tag", s.cfg.Tag, "from", from.ShortString(), "msg", msg, "err", err)
			return
		}
		record, ok := s.discovery.LookupPeerRecord(from)
		if !ok {
			logger.Debug("无法解析请求方记录，丢弃响应", "tag", s.cfg.Tag, "from", from.ShortString())
			return
		}
		if err := s.transmit(record, resp.RequestID, resp.Body); err != nil {
			logger.Debug("发送响应失败", "tag", s.cfg.Tag, "to", from.ShortString(), "err", err)
		}
	})
}

// handleResponse 把响应与未决请求关联
func (s *Session[K]) handleResponse(from types.NodeID, msg *wire.Message) {
	e, ok := s.requests.Get(msg.RequestID)
	if !ok {
		reason := "unknown"
		if errors.Is(s.requests.Classify(msg.RequestID), request.ErrAlreadyResolved) {
			reason = "duplicate"
		}
		s.metrics.dropped.WithLabelValues(reason).Inc()
		logger.Debug("丢弃无对应请求的响应", "tag", s.cfg.Tag, "from", from.ShortString(), "id", msg.RequestID, "reason", reason)
		return
	}
	if e.Peer != from {
		s.metrics.dropped.WithLabelValues("peer_mismatch").Inc()
		logger.Debug("响应来源与请求目标不符", "tag", s.cfg.Tag, "from", from.ShortString(), "expected", e.Peer.ShortString())
		return
	}
	if e.Transferring() {
		s.metrics.dropped.WithLabelValues("duplicate").Inc()
		return
	}
	if msg.Kind() != e.Expect() {
		s.resolve(e.ID, request.Outcome{Err: fmt.Errorf("%w: expected %s, got %s", ErrRemoteRejected, e.Expect(), msg.Kind())})
		return
	}

	s.touch(from)

	switch body := msg.Body.(type) {
	case *wire.Pong:
		s.table.RecordSuccess(from, s.clock.Now(), body.EnrSeq, body.DataRadius)
	case *wire.Nodes:
		s.learnRecords(body.Records)
	case *wire.Content:
		switch body.Variant {
		case wire.ContentRecords:
			s.learnRecords(body.Records)
		case wire.ContentConnectionID:
			s.beginFetch(e, body.ConnectionID)
			return
		}
	}
	s.resolve(e.ID, request.Outcome{Response: msg.Body})
}

// learnRecords 把响应中的节点记录交给 discovery
func (s *Session[K]) learnRecords(records []*types.PeerRecord) {
	local := s.LocalID()
	for _, r := range records {
		if r == nil || r.ID == local {
			continue
		}
		if err := s.discovery.InsertPeerRecord(r); err != nil {
			logger.Debug("收录节点记录失败", "tag", s.cfg.Tag, "peer", r.ID.ShortString(), "err", err)
		}
	}
}

// beginFetch 进入可靠流传输阶段，传输完成后才解决原请求
func (s *Session[K]) beginFetch(e *request.Entry, id types.ConnectionID) {
	if s.bulk == nil {
		s.resolve(e.ID, request.Outcome{Err: ErrNoBulkTransport})
		return
	}
	record, ok := s.discovery.LookupPeerRecord(e.Peer)
	if !ok {
		s.resolve(e.ID, request.Outcome{Err: ErrNoRoute})
		return
	}
	s.requests.MarkTransferring(e.ID, s.clock.Now().Add(s.cfg.QueryPeerTimeout))

	reqID := e.ID
	s.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryPeerTimeout)
		defer cancel()

		payload, err := s.fetchStream(ctx, record, id)
		outcome := request.Outcome{Err: err}
		if err == nil {
			outcome.Response = &wire.Content{Variant: wire.ContentConnectionID, ConnectionID: id, Payload: payload}
		}
		if err := s.exec(context.Background(), func() { s.resolve(reqID, outcome) }); err != nil {
			logger.Debug("传输完成时会话已关闭", "tag", s.cfg.Tag, "id", reqID)
		}
	})
}

// ============================================================================
//                              请求处理
// ============================================================================

// ProcessOneRequest 为一个入站请求生成响应
//
// 路由信息通过命令向事件循环查询，不能在事件循环中调用。
// 解码失败的请求返回 *types.DecodeError，不产生响应。
func (s *Session[K]) ProcessOneRequest(ctx context.Context, from types.NodeID, msg *wire.Message) (*wire.Message, error) {
	var (
		body wire.Body
		err  error
	)
	switch req := msg.Body.(type) {
	case *wire.Ping:
		body = s.localPong()
	case *wire.FindNodes:
		body, err = s.serveFindNodes(ctx, from, req)
	case *wire.FindContent:
		body, err = s.serveFindContent(ctx, from, req)
	case *wire.Offer:
		body, err = s.serveOffer(ctx, from, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotRequest, msg.Kind())
	}
	if err != nil {
		return nil, err
	}
	return &wire.Message{Tag: s.cfg.Tag, RequestID: msg.RequestID, Body: body}, nil
}

func (s *Session[K]) localPong() *wire.Pong {
	p := s.localPing()
	return &wire.Pong{EnrSeq: p.EnrSeq, DataRadius: p.DataRadius}
}

func (s *Session[K]) serveFindNodes(ctx context.Context, from types.NodeID, req *wire.FindNodes) (*wire.Nodes, error) {
	var ids []types.NodeID
	includeLocal := false
	err := s.exec(ctx, func() {
		seen := make(map[uint16]struct{}, len(req.Distances))
		for _, d := range req.Distances {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			if d == 0 {
				includeLocal = true
				continue
			}
			ids = append(ids, s.table.NodesAtLogDistance(int(d))...)
		}
	})
	if err != nil {
		return nil, err
	}

	records := make([]*types.PeerRecord, 0, s.cfg.BucketSize)
	if includeLocal {
		if r := s.discovery.LocalPeerRecord(); r != nil {
			records = append(records, r)
		}
	}
	for _, id := range ids {
		if len(records) >= s.cfg.BucketSize {
			break
		}
		if id == from {
			continue
		}
		if r, ok := s.discovery.LookupPeerRecord(id); ok {
			records = append(records, r)
		}
	}
	return &wire.Nodes{Total: 1, Records: records}, nil
}

func (s *Session[K]) serveFindContent(ctx context.Context, from types.NodeID, req *wire.FindContent) (*wire.Content, error) {
	key, err := s.codec.Decode(req.ContentKey)
	if err != nil {
		return nil, err
	}
	id := key.ContentID()

	if payload, ok := s.store.Get(id); ok {
		if err := s.validator.Validate(ctx, key, payload); err != nil {
			logger.Warn("本地内容未通过校验，删除且不提供", "tag", s.cfg.Tag, "key", key.String(), "err", err)
			if err := s.exec(ctx, func() { s.storeDelete(id) }); err != nil {
				return nil, err
			}
		} else if len(payload) <= s.cfg.InlineContentLimit {
			return &wire.Content{Variant: wire.ContentPayload, Payload: payload}, nil
		} else if s.bulk != nil {
			connID, err := s.bulk.OpenStream(from)
			if err == nil {
				s.serveStream(connID, payload)
				return &wire.Content{Variant: wire.ContentConnectionID, ConnectionID: connID}, nil
			}
			logger.Warn("预留可靠流失败", "tag", s.cfg.Tag, "peer", from.ShortString(), "err", err)
		} else {
			logger.Debug("内容超过内联上限且无可靠流", "tag", s.cfg.Tag, "key", key.String(), "size", len(payload))
		}
	}

	records, err := s.closestRecords(ctx, id, from)
	if err != nil {
		return nil, err
	}
	return &wire.Content{Variant: wire.ContentRecords, Records: records}, nil
}

func (s *Session[K]) serveOffer(ctx context.Context, from types.NodeID, req *wire.Offer) (*wire.Accept, error) {
	accept := &wire.Accept{Accepted: make([]bool, len(req.ContentKeys))}
	if s.bulk == nil {
		return accept, nil
	}

	decoded := make([]*K, len(req.ContentKeys))
	for i, raw := range req.ContentKeys {
		key, err := s.codec.Decode(raw)
		if err != nil {
			logger.Debug("推送中的键无法解码", "tag", s.cfg.Tag, "from", from.ShortString(), "err", err)
			continue
		}
		decoded[i] = &key
	}

	var keys []K
	if err := s.exec(ctx, func() {
		for i, key := range decoded {
			if key != nil && s.wants((*key).ContentID()) {
				accept.Accepted[i] = true
				keys = append(keys, *key)
			}
		}
	}); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return accept, nil
	}

	connID, err := s.bulk.OpenStream(from)
	if err != nil {
		logger.Warn("预留可靠流失败", "tag", s.cfg.Tag, "peer", from.ShortString(), "err", err)
		clear(accept.Accepted)
		return accept, nil
	}
	accept.ConnectionID = connID
	s.receiveOffered(connID, keys)
	return accept, nil
}

// wants 判断是否接收一条内容：未持有且落在半径内，只能在事件循环中调用
func (s *Session[K]) wants(id types.ContentID) bool {
	return !s.store.Has(id) && s.store.IsWithinRadius(id)
}

// closestRecords 查询距离 target 最近的节点记录，排除 exclude
func (s *Session[K]) closestRecords(ctx context.Context, target [types.IDLength]byte, exclude types.NodeID) ([]*types.PeerRecord, error) {
	var ids []types.NodeID
	if err := s.exec(ctx, func() {
		ids = s.table.NearestPeers(target, s.cfg.BucketSize+1)
	}); err != nil {
		return nil, err
	}
	records := make([]*types.PeerRecord, 0, len(ids))
	for _, id := range ids {
		if id == exclude || len(records) >= s.cfg.BucketSize {
			continue
		}
		if r, ok := s.discovery.LookupPeerRecord(id); ok {
			records = append(records, r)
		}
	}
	return records, nil
}
