package quic

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-overlay/internal/bulk"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("bulk/quic")

// headerSize 流头长度
const headerSize = 2 + types.IDLength

// Config 传输配置
type Config struct {
	// ListenAddr 监听地址，如 "127.0.0.1:0"
	ListenAddr string

	// DialTimeout 拨号并写入流头的超时
	DialTimeout time.Duration

	// MaxIdleTimeout 连接空闲超时
	MaxIdleTimeout time.Duration
}

// Transport QUIC 可靠流传输
type Transport struct {
	local        types.NodeID
	cfg          Config
	reservations *bulk.Reservations

	udpConn       *net.UDPConn
	quicTransport *quic.Transport
	listener      *quic.Listener
	serverTLS     *tls.Config
	clientTLS     *tls.Config
	quicConfig    *quic.Config

	mu     sync.Mutex
	conns  map[string]*quic.Conn
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ interfaces.BulkTransport = (*Transport)(nil)

// New 创建传输并开始监听
func New(local types.NodeID, cfg Config) (*Transport, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxIdleTimeout <= 0 {
		cfg.MaxIdleTimeout = 30 * time.Second
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	serverTLS, clientTLS, err := newTLSConfigs(local)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	t := &Transport{
		local:         local,
		cfg:           cfg,
		reservations:  bulk.NewReservations(),
		udpConn:       conn,
		quicTransport: &quic.Transport{Conn: conn},
		serverTLS:     serverTLS,
		clientTLS:     clientTLS,
		quicConfig: &quic.Config{
			MaxIdleTimeout:  cfg.MaxIdleTimeout,
			KeepAlivePeriod: cfg.MaxIdleTimeout / 2,
		},
		conns: make(map[string]*quic.Conn),
	}

	// 共享 quic.Transport 监听，后续拨号复用同一端口
	t.listener, err = t.quicTransport.Listen(t.serverTLS, t.quicConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(1)
	go t.acceptLoop()

	logger.Info("QUIC 可靠流传输已启动", "addr", t.Addr(), "local", local.ShortString())
	return t, nil
}

// Addr 返回实际监听地址（填入 PeerRecord.BulkAddr）
func (t *Transport) Addr() string {
	return t.udpConn.LocalAddr().String()
}

// OpenStream 实现 interfaces.BulkTransport
func (t *Transport) OpenStream(peer types.NodeID) (types.ConnectionID, error) {
	return t.reservations.Reserve(peer)
}

// AcceptStream 实现 interfaces.BulkTransport
func (t *Transport) AcceptStream(ctx context.Context, id types.ConnectionID) (interfaces.Stream, error) {
	return t.reservations.Wait(ctx, id)
}

// ReleaseStream 实现 interfaces.BulkTransport
func (t *Transport) ReleaseStream(id types.ConnectionID) {
	t.reservations.Release(id)
}

// ConnectStream 实现 interfaces.BulkTransport
func (t *Transport) ConnectStream(ctx context.Context, peer *types.PeerRecord, id types.ConnectionID) (interfaces.Stream, error) {
	if peer == nil || peer.BulkAddr == "" {
		return nil, ErrNoBulkAddr
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	conn, err := t.dial(ctx, peer.BulkAddr)
	if err != nil {
		return nil, err
	}

	qs, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.forget(peer.BulkAddr, conn)
		return nil, fmt.Errorf("open stream: %w", err)
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint16(header[:2], uint16(id))
	copy(header[2:], t.local[:])

	if deadline, ok := ctx.Deadline(); ok {
		_ = qs.SetWriteDeadline(deadline)
	}
	if _, err := qs.Write(header[:]); err != nil {
		qs.CancelRead(0)
		qs.CancelWrite(0)
		return nil, fmt.Errorf("write header: %w", err)
	}
	_ = qs.SetWriteDeadline(time.Time{})

	return stream{qs}, nil
}

// dial 返回到 addr 的连接，优先复用
func (t *Transport) dial(ctx context.Context, addr string) (*quic.Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	if conn, ok := t.conns[addr]; ok && conn.Context().Err() == nil {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	conn, err := t.quicTransport.Dial(ctx, udpAddr, t.clientTLS, t.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = conn.CloseWithError(0, "transport closed")
		return nil, ErrTransportClosed
	}
	if existing, ok := t.conns[addr]; ok && existing.Context().Err() == nil {
		// 并发拨号，保留先建立的连接
		_ = conn.CloseWithError(0, "duplicate")
		return existing, nil
	}
	t.conns[addr] = conn
	return conn, nil
}

func (t *Transport) forget(addr string, conn *quic.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.conns[addr]; ok && cur == conn {
		delete(t.conns, addr)
	}
}

// acceptLoop 接受入站连接
func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				logger.Debug("接受连接失败", "err", err)
			}
			return
		}
		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

// handleConn 接受连接上的所有流
func (t *Transport) handleConn(conn *quic.Conn) {
	defer t.wg.Done()
	for {
		qs, err := conn.AcceptStream(t.ctx)
		if err != nil {
			return
		}
		go t.handleStream(qs)
	}
}

// handleStream 读取流头并交给预留方
func (t *Transport) handleStream(qs *quic.Stream) {
	_ = qs.SetReadDeadline(time.Now().Add(t.cfg.DialTimeout))

	var header [headerSize]byte
	if _, err := io.ReadFull(qs, header[:]); err != nil {
		logger.Debug("读取流头失败", "err", err)
		_ = stream{qs}.Close()
		return
	}
	_ = qs.SetReadDeadline(time.Time{})

	id := types.ConnectionID(binary.BigEndian.Uint16(header[:2]))
	var from types.NodeID
	copy(from[:], header[2:])

	if err := t.reservations.Deliver(id, from, stream{qs}); err != nil {
		logger.Debug("拒绝可靠流", "conn", id, "from", from.ShortString(), "err", err)
		qs.CancelWrite(1)
		_ = stream{qs}.Close()
	}
}

// Close 关闭传输
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()

	t.cancel()
	t.reservations.Close()
	for _, conn := range conns {
		_ = conn.CloseWithError(0, "transport closed")
	}
	err := t.listener.Close()
	t.wg.Wait()
	_ = t.quicTransport.Close()
	// quic.Transport 不关闭外部传入的 socket
	_ = t.udpConn.Close()
	return err
}
