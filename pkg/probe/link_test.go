package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLinkPair(t *testing.T) (host, probe *StreamLink) {
	hostConn, probeConn := net.Pipe()
	host, probe = NewStreamLink(hostConn), NewStreamLink(probeConn)
	t.Cleanup(func() {
		host.End()
		probe.End()
	})
	return
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLinkWordRoundTrip(t *testing.T) {
	host, probe := newLinkPair(t)
	ctx := testCtx(t)
	for _, v := range []uint16{0, 1, 0x1234, 0x00ff, 0xff00, 0xffff} {
		require.NoError(t, host.SendWord(v))
		require.NoError(t, host.Flush())
		got, err := probe.ReceiveWord(ctx)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	for _, v := range []uint32{0, 0x12345678, 0xffffffff} {
		require.NoError(t, probe.SendDWord(v))
		require.NoError(t, probe.Flush())
		got, err := host.ReceiveDWord(ctx)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestLinkLittleEndian(t *testing.T) {
	host, probe := newLinkPair(t)
	ctx := testCtx(t)
	require.NoError(t, host.SendWord(0x1234))
	require.NoError(t, host.SendDWord(0x12345678))
	require.NoError(t, host.Flush())
	data, err := probe.Receive(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, []byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12}, data)
}

func TestLinkReceiveBlocksForAllBytes(t *testing.T) {
	host, probe := newLinkPair(t)
	require.NoError(t, host.SendByte(0x34))
	require.NoError(t, host.Flush())
	require.Eventually(t, probe.CanReadByte, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := probe.ReceiveWord(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, probe.Buffered())

	resultCh := make(chan uint16, 1)
	waitCtx := testCtx(t)
	go func() {
		v, err := probe.ReceiveWord(waitCtx)
		if err == nil {
			resultCh <- v
		}
		close(resultCh)
	}()
	require.NoError(t, host.SendByte(0x12))
	require.NoError(t, host.Flush())
	select {
	case v := <-resultCh:
		require.Equal(t, uint16(0x1234), v)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestLinkReadTimeout(t *testing.T) {
	_, probe := newLinkPair(t)
	probe.ReadTimeout = 10 * time.Millisecond
	_, err := probe.ReceiveByte(context.Background())
	require.ErrorIs(t, err, ErrLinkTimeout)
}

func TestLinkDump(t *testing.T) {
	host, probe := newLinkPair(t)
	require.NoError(t, host.SendDWord(0x34023301))
	require.NoError(t, host.Flush())
	require.Eventually(t, func() bool { return probe.Buffered() == 4 }, time.Second, time.Millisecond)

	dumped := probe.DumpUntil(DefaultVocabulary().IsCommand)
	require.Equal(t, []byte{0x01}, dumped)
	require.Equal(t, 3, probe.Buffered())
	require.Equal(t, []byte{0x33, 0x02, 0x34}, probe.Dump())
	require.False(t, probe.CanReadByte())
	require.Empty(t, probe.Dump())
}

func TestLinkDumpN(t *testing.T) {
	host, probe := newLinkPair(t)
	require.NoError(t, host.SendDWord(0x34023301))
	require.NoError(t, host.Flush())
	require.Eventually(t, func() bool { return probe.Buffered() == 4 }, time.Second, time.Millisecond)

	require.Equal(t, []byte{0x01, 0x33}, probe.DumpN(2, nil))
	require.Equal(t, 2, probe.Buffered())
	// 0x02 isn't a command but the limit stops before it.
	require.Empty(t, probe.DumpN(0, DefaultVocabulary().IsCommand))
	require.Equal(t, []byte{0x02}, probe.DumpN(2, DefaultVocabulary().IsCommand))
	require.Equal(t, []byte{0x34}, probe.DumpN(10, nil))
	require.Empty(t, probe.DumpN(10, nil))
}

func TestLinkReadable(t *testing.T) {
	host, probe := newLinkPair(t)
	readable := probe.Readable()
	select {
	case <-readable:
		t.Fatal("readable without bytes")
	default:
	}
	require.NoError(t, host.SendByte(0x31))
	require.NoError(t, host.Flush())
	select {
	case <-readable:
	case <-time.After(time.Second):
		t.Fatal("not woken by arrival")
	}
	// stays readable until the byte is consumed.
	<-probe.Readable()
	_, err := probe.ReceiveByte(testCtx(t))
	require.NoError(t, err)

	readable = probe.Readable()
	require.NoError(t, host.End())
	select {
	case <-readable:
	case <-time.After(time.Second):
		t.Fatal("not woken by close")
	}
	<-probe.Readable()
	_, err = probe.ReceiveByte(testCtx(t))
	require.ErrorIs(t, err, ErrLinkClosed)
}

func TestLinkInitSendsHandshake(t *testing.T) {
	host, probe := newLinkPair(t)
	require.NoError(t, probe.Init())
	data, err := host.Receive(testCtx(t), len(Handshake))
	require.NoError(t, err)
	require.Equal(t, "HELO PROBE\n", string(data))
}

func TestLinkEnd(t *testing.T) {
	host, probe := newLinkPair(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := probe.ReceiveByte(context.Background())
		errCh <- err
	}()
	require.NoError(t, host.End())
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrLinkClosed)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	_, err := host.ReceiveByte(context.Background())
	require.ErrorIs(t, err, ErrLinkClosed)
}
