package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/internal/bulk"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              可靠流传输
// ============================================================================

// serveStream 等待请求方接入并写出一帧内容
func (s *Session[K]) serveStream(connID types.ConnectionID, payload []byte) {
	s.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.BulkAcceptTimeout)
		defer cancel()

		stream, err := s.bulk.AcceptStream(ctx, connID)
		if err != nil {
			logger.Debug("对方未接入可靠流", "tag", s.cfg.Tag, "conn", connID, "err", err)
			return
		}
		defer stream.Close()

		if err := bulk.NewFrameWriter(stream, s.cfg.Compression).WriteFrame(payload); err != nil {
			logger.Debug("写出内容失败", "tag", s.cfg.Tag, "conn", connID, "err", err)
		}
	})
}

// receiveOffered 等待推送方接入，按顺序读取并校验被接受的内容
func (s *Session[K]) receiveOffered(connID types.ConnectionID, keys []K) {
	s.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.BulkAcceptTimeout)
		defer cancel()

		stream, err := s.bulk.AcceptStream(ctx, connID)
		if err != nil {
			logger.Debug("推送方未接入可靠流", "tag", s.cfg.Tag, "conn", connID, "err", err)
			return
		}
		defer stream.Close()

		fr := bulk.NewFrameReader(stream, s.cfg.MaxContentSize)
		for _, key := range keys {
			payload, err := fr.ReadFrame()
			if err != nil {
				logger.Debug("读取推送内容失败", "tag", s.cfg.Tag, "key", key.String(), "err", err)
				return
			}
			if err := s.admit(ctx, key, payload); err != nil {
				logger.Debug("推送内容未入库", "tag", s.cfg.Tag, "key", key.String(), "err", err)
			}
		}
	})
}

// fetchStream 接入对方预留的可靠流并读取一帧内容
func (s *Session[K]) fetchStream(ctx context.Context, record *types.PeerRecord, connID types.ConnectionID) ([]byte, error) {
	stream, err := s.bulk.ConnectStream(ctx, record, connID)
	if err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	defer stream.Close()

	type result struct {
		payload []byte
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := bulk.NewFrameReader(stream, s.cfg.MaxContentSize).ReadFrame()
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("read frame: %w", r.err)
		}
		return r.payload, nil
	case <-ctx.Done():
		// 关闭流以解除读阻塞
		_ = stream.Close()
		return nil, ErrTimeout
	}
}

// pushStream 接入接收方预留的可靠流并按顺序写出内容
func (s *Session[K]) pushStream(ctx context.Context, record *types.PeerRecord, connID types.ConnectionID, payloads [][]byte) error {
	stream, err := s.bulk.ConnectStream(ctx, record, connID)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		fw := bulk.NewFrameWriter(stream, s.cfg.Compression)
		var werr error
		for _, p := range payloads {
			if werr = fw.WriteFrame(p); werr != nil {
				break
			}
		}
		done <- werr
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ErrTimeout
	}
	return errors.Join(err, stream.Close())
}

// admit 校验后交给事件循环写入本地存储
//
// 校验在调用方所在的 goroutine 中完成，不占用事件循环。
func (s *Session[K]) admit(ctx context.Context, key K, payload []byte) error {
	if err := s.validator.Validate(ctx, key, payload); err != nil {
		return err
	}
	var err error
	if execErr := s.exec(ctx, func() {
		err = s.storePut(key.ContentID(), payload)
	}); execErr != nil {
		return execErr
	}
	return err
}

// storePut 写入存储并更新指标，只能在事件循环中调用
func (s *Session[K]) storePut(id types.ContentID, payload []byte) error {
	if err := s.store.Put(id, payload); err != nil {
		return err
	}
	s.metrics.storeBytes.Set(float64(s.store.Size()))
	return nil
}

// storeDelete 删除内容并更新指标，只能在事件循环中调用
func (s *Session[K]) storeDelete(id types.ContentID) {
	if s.store.Delete(id) {
		s.metrics.storeBytes.Set(float64(s.store.Size()))
	}
}
