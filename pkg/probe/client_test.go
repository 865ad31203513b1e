package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clientTestEnv struct {
	t      *testing.T
	client *Client
	act    *fakeActuator
	disp   *Dispatcher
}

func newClientTestEnv(t *testing.T, setup ...func(*Dispatcher)) *clientTestEnv {
	host, probe := newLinkPair(t)
	env := &clientTestEnv{
		t:      t,
		client: NewClient(host),
		act:    newFakeActuator(),
	}
	env.disp = NewDispatcher(probe, env.act)
	for _, fn := range setup {
		fn(env.disp)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := probe.Init(); err == nil {
			env.disp.Run(ctx)
		}
	}()
	require.NoError(t, env.client.Handshake(testCtx(t)))
	return env
}

func TestClientHandshake(t *testing.T) {
	host, probe := newLinkPair(t)
	client := NewClient(host)
	go func() {
		probe.SendDWord(0xdeadbeef)
		probe.Init()
	}()
	require.NoError(t, client.Handshake(testCtx(t)))
}

func TestClientHandshakeTimeout(t *testing.T) {
	host, probe := newLinkPair(t)
	host.ReadTimeout = 20 * time.Millisecond
	client := NewClient(host)
	go func() {
		probe.SendWord(0x4548)
		probe.Flush()
	}()
	err := client.Handshake(context.Background())
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "PROBE-WELCOME", perr.Step)
	require.ErrorIs(t, err, ErrLinkTimeout)
	require.Equal(t, []byte{0x48, 0x45}, perr.Dump)
}

func TestClientCommands(t *testing.T) {
	env := newClientTestEnv(t)
	ctx := testCtx(t)

	require.NoError(t, env.client.SetDAC(ctx, 0, 0x1234))
	require.NoError(t, env.client.SetDAC(ctx, 1, 0x0042))
	require.NoError(t, env.client.SetDACBuffer(ctx, 1, 0x0100))
	require.NoError(t, env.client.DisableDACBuffer(ctx, 1))
	require.NoError(t, env.client.SetPotentiometer(ctx, 0, 0x0080))
	env.act.setADC(0x0321)
	value, err := env.client.GetADC(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0321), value)

	require.Equal(t, []string{
		"SetDAC(0,0x1234)",
		"SetDAC(1,0x0042)",
		"SetDACBuffer(1,0x0100)",
		"DisableDACBuffer(1)",
		"SetPotentiometer(0,0x0080)",
		"ReadADC",
	}, env.act.Calls())

	err = env.client.SetDAC(ctx, 2, 0)
	require.Error(t, err)
}

func TestClientRejected(t *testing.T) {
	env := newClientTestEnv(t)
	env.act.setErr(errors.New("busy"))
	err := env.client.SetDAC(testCtx(t), 0, 1)
	require.ErrorIs(t, err, ErrRejected)
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "SET-DAC-ACK", perr.Step)
}

func TestClientStream(t *testing.T) {
	env := newClientTestEnv(t)
	ctx := testCtx(t)

	stream, err := env.client.StartStream(ctx, 0)
	require.NoError(t, err)
	for n := 0; n < 8; n++ {
		v, err := stream.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, uint16(n), v)
	}

	_, err = env.client.GetADC(ctx)
	require.ErrorIs(t, err, ErrStreamActive)

	tail, err := stream.Stop(ctx)
	require.NoError(t, err)
	for n, v := range tail {
		require.Equal(t, uint16(8+n), v)
	}
	_, err = stream.Next(ctx)
	require.ErrorIs(t, err, ErrStreamClosed)
	require.Equal(t, SessionIdle, env.disp.Session().State)

	_, err = env.client.GetADC(ctx)
	require.NoError(t, err)
}

func TestClientStreamSlowStop(t *testing.T) {
	env := newClientTestEnv(t)
	ctx := testCtx(t)

	stream, err := env.client.StartStream(ctx, 5)
	require.NoError(t, err)
	v, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(0), v)
	tail, err := stream.Stop(ctx)
	require.NoError(t, err)
	for n, v := range tail {
		require.Equal(t, uint16(1+n), v)
	}
	require.Equal(t, SessionIdle, env.disp.Session().State)

	// no late Finish is left behind.
	env.act.setADC(9)
	value, err := env.client.GetADC(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(9), value)
}

func TestClientStreamTooFast(t *testing.T) {
	env := newClientTestEnv(t, func(d *Dispatcher) {
		d.MaxRate = 500
	})
	_, err := env.client.StartStream(testCtx(t), 501)
	require.ErrorIs(t, err, ErrTooFast)
	require.NoError(t, env.client.SetDAC(testCtx(t), 0, 1))
}

func TestClientCustomVocabulary(t *testing.T) {
	cmds := make([]CommandSpec, len(DefaultCommands))
	for n, cmd := range DefaultCommands {
		cmd.Code += 0x31 // 'a'...
		cmds[n] = cmd
	}
	vocab := MustNewVocabulary(cmds, DefaultResponses)
	env := newClientTestEnv(t, func(d *Dispatcher) {
		d.Vocabulary = vocab
	})
	env.client.Vocabulary = vocab
	ctx := testCtx(t)
	require.NoError(t, env.client.SetDAC(ctx, 0, 5))
	stream, err := env.client.StartStream(ctx, 2000)
	require.NoError(t, err)
	_, err = stream.Next(ctx)
	require.NoError(t, err)
	_, err = stream.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"SetDAC(0,0x0005)", "BeginSampling(2000)", "EndSampling"}, env.act.Calls())
}
