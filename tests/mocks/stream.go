package mocks

import (
	"bytes"
	"io"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// MockStream 模拟 Stream 接口实现
type MockStream struct {
	mu     sync.Mutex
	reader *bytes.Reader
	buf    bytes.Buffer
	closed bool

	// 可覆盖的方法
	ReadFunc  func(p []byte) (int, error)
	WriteFunc func(p []byte) (int, error)
	CloseFunc func() error
}

// NewMockStream 创建空 MockStream
func NewMockStream() *MockStream {
	return &MockStream{reader: bytes.NewReader(nil)}
}

// NewMockStreamWithData 创建带有预设读取数据的 MockStream
func NewMockStreamWithData(data []byte) *MockStream {
	return &MockStream{reader: bytes.NewReader(data)}
}

// Read 读取预设数据
func (m *MockStream) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.EOF
	}
	return m.reader.Read(p)
}

// Write 记录写入数据
func (m *MockStream) Write(p []byte) (int, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.buf.Write(p)
}

// Close 关闭流
func (m *MockStream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Written 返回已写入的数据
func (m *MockStream) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf.Bytes()...)
}

// IsClosed 是否已关闭
func (m *MockStream) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// 确保实现接口
var _ interfaces.Stream = (*MockStream)(nil)
