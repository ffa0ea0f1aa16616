package request

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/types"
)

var peerA = types.NodeID{0xaa}

// TestTable_RegisterAndResolve 测试登记与解决
func TestTable_RegisterAndResolve(t *testing.T) {
	tbl := NewTable(WithClock(clock.NewMock()))
	ch := make(chan Outcome, 1)

	e := tbl.Register(peerA, &wire.Ping{}, time.Second, ch)
	assert.Equal(t, types.RequestID(1), e.ID)
	assert.Equal(t, wire.KindPong, e.Expect())
	assert.Equal(t, 1, tbl.Len())

	got, ok := tbl.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, peerA, got.Peer)

	require.NoError(t, tbl.Resolve(e.ID, Outcome{Response: &wire.Pong{EnrSeq: 2}}))
	out := <-ch
	assert.NoError(t, out.Err)
	assert.Equal(t, &wire.Pong{EnrSeq: 2}, out.Response)
	assert.Equal(t, 0, tbl.Len())

	t.Log("✅ 关联表登记与解决测试通过")
}

// TestTable_ExactlyOnce 测试第二次解决是空操作，调用方只看到第一次的结果
func TestTable_ExactlyOnce(t *testing.T) {
	tbl := NewTable(WithClock(clock.NewMock()))
	ch := make(chan Outcome, 1)
	e := tbl.Register(peerA, &wire.Ping{}, time.Second, ch)

	first := Outcome{Response: &wire.Pong{EnrSeq: 1}}
	second := Outcome{Err: errors.New("late failure")}

	require.NoError(t, tbl.Resolve(e.ID, first))
	assert.ErrorIs(t, tbl.Resolve(e.ID, second), ErrAlreadyResolved)

	assert.Equal(t, first, <-ch)
	select {
	case o := <-ch:
		t.Fatalf("unexpected second outcome: %+v", o)
	default:
	}
}

// TestTable_UnknownRequest 测试从未登记过的 ID
func TestTable_UnknownRequest(t *testing.T) {
	tbl := NewTable()
	assert.ErrorIs(t, tbl.Resolve(42, Outcome{}), ErrUnknownRequest)
	assert.ErrorIs(t, tbl.Classify(42), ErrUnknownRequest)
}

// TestTable_TimeoutNotBeforeDeadline 测试超时不会早于截止时间
func TestTable_TimeoutNotBeforeDeadline(t *testing.T) {
	clk := clock.NewMock()
	tbl := NewTable(WithClock(clk), WithRetries(0))
	ch := make(chan Outcome, 1)
	e := tbl.Register(peerA, &wire.FindNodes{Distances: []uint16{256}}, 5*time.Second, ch)

	clk.Add(5*time.Second - time.Nanosecond)
	expired, retry := tbl.SweepExpired(clk.Now())
	assert.Empty(t, expired)
	assert.Empty(t, retry)
	assert.Equal(t, 1, tbl.Len())

	clk.Add(time.Nanosecond)
	expired, retry = tbl.SweepExpired(clk.Now())
	require.Len(t, expired, 1)
	assert.Empty(t, retry)
	assert.Equal(t, e.ID, expired[0].ID)

	out := <-ch
	assert.ErrorIs(t, out.Err, ErrTimeout)
	assert.ErrorIs(t, tbl.Classify(e.ID), ErrAlreadyResolved)
}

// TestTable_Retry 测试首次发送与重试平分请求期限
func TestTable_Retry(t *testing.T) {
	clk := clock.NewMock()
	tbl := NewTable(WithClock(clk), WithRetries(1))
	ch := make(chan Outcome, 1)
	e := tbl.Register(peerA, &wire.Ping{}, time.Second, ch)
	assert.Equal(t, clk.Now().Add(500*time.Millisecond), e.Deadline)
	assert.Equal(t, clk.Now().Add(time.Second), e.Final)

	clk.Add(500 * time.Millisecond)
	expired, retry := tbl.SweepExpired(clk.Now())
	assert.Empty(t, expired)
	require.Len(t, retry, 1)
	assert.Equal(t, 2, retry[0].Attempts)
	assert.Equal(t, e.Final, retry[0].Deadline)

	clk.Add(500 * time.Millisecond)
	expired, retry = tbl.SweepExpired(clk.Now())
	require.Len(t, expired, 1)
	assert.Empty(t, retry)
	assert.Equal(t, e.ID, expired[0].ID)
	assert.ErrorIs(t, (<-ch).Err, ErrTimeout)
}

// TestTable_RetryNeverPassesFinal 测试扫描滞后时重试也不会越过最终截止时间
func TestTable_RetryNeverPassesFinal(t *testing.T) {
	clk := clock.NewMock()
	tbl := NewTable(WithClock(clk), WithRetries(2))
	ch := make(chan Outcome, 1)
	e := tbl.Register(peerA, &wire.Ping{}, 3*time.Second, ch)
	final := e.Final

	// 第一次到期时扫描滞后了半秒
	clk.Add(1500 * time.Millisecond)
	_, retry := tbl.SweepExpired(clk.Now())
	require.Len(t, retry, 1)
	assert.Equal(t, clk.Now().Add(time.Second), e.Deadline)

	// 第二次重试只剩半秒，截止时间被截到 Final
	clk.Add(time.Second)
	_, retry = tbl.SweepExpired(clk.Now())
	require.Len(t, retry, 1)
	assert.Equal(t, 3, e.Attempts)
	assert.Equal(t, final, e.Deadline)

	clk.Add(500 * time.Millisecond)
	expired, retry := tbl.SweepExpired(clk.Now())
	require.Len(t, expired, 1)
	assert.Empty(t, retry)
	assert.Equal(t, final, clk.Now())
	assert.ErrorIs(t, (<-ch).Err, ErrTimeout)
}

// TestTable_LateSweepExpiresAtFinal 测试到达最终截止时间后不再重试
func TestTable_LateSweepExpiresAtFinal(t *testing.T) {
	clk := clock.NewMock()
	tbl := NewTable(WithClock(clk), WithRetries(3))
	tbl.Register(peerA, &wire.Ping{}, 2*time.Second, nil)

	clk.Add(2 * time.Second)
	expired, retry := tbl.SweepExpired(clk.Now())
	assert.Len(t, expired, 1)
	assert.Empty(t, retry)
}

// TestTable_Transferring 测试传输阶段不重试并使用新的截止时间
func TestTable_Transferring(t *testing.T) {
	clk := clock.NewMock()
	tbl := NewTable(WithClock(clk), WithRetries(3))
	e := tbl.Register(peerA, &wire.FindContent{ContentKey: []byte{0}}, time.Second, nil)

	assert.True(t, tbl.MarkTransferring(e.ID, clk.Now().Add(10*time.Second)))
	assert.False(t, tbl.MarkTransferring(e.ID, clk.Now()), "重复标记无效")
	assert.True(t, e.Transferring())

	clk.Add(5 * time.Second)
	expired, retry := tbl.SweepExpired(clk.Now())
	assert.Empty(t, expired)
	assert.Empty(t, retry)

	clk.Add(5 * time.Second)
	expired, retry = tbl.SweepExpired(clk.Now())
	assert.Len(t, expired, 1)
	assert.Empty(t, retry)
}

// TestTable_FailAll 测试批量失败
func TestTable_FailAll(t *testing.T) {
	tbl := NewTable(WithClock(clock.NewMock()))
	chs := make([]chan Outcome, 3)
	for i := range chs {
		chs[i] = make(chan Outcome, 1)
		tbl.Register(peerA, &wire.Ping{}, time.Minute, chs[i])
	}

	assert.Equal(t, 3, tbl.FailAll(ErrTimeout))
	for _, ch := range chs {
		assert.ErrorIs(t, (<-ch).Err, ErrTimeout)
	}
	assert.Equal(t, 0, tbl.Len())
}

// TestTable_AllocateSkipsBusy 测试 ID 回绕时跳过占用的 ID
func TestTable_AllocateSkipsBusy(t *testing.T) {
	tbl := NewTable(WithClock(clock.NewMock()))
	tbl.nextID = ^types.RequestID(0)
	a := tbl.Register(peerA, &wire.Ping{}, time.Second, nil)
	b := tbl.Register(peerA, &wire.Ping{}, time.Second, nil)
	assert.Equal(t, ^types.RequestID(0), a.ID)
	assert.Equal(t, types.RequestID(0), b.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
