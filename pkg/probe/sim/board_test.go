package sim_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/probe.go/pkg/probe"
	"github.com/robotalks/probe.go/pkg/probe/sim"
)

var (
	_ probe.Actuator = (*sim.Board)(nil)
	_ probe.Hardware = (*sim.Board)(nil)
)

func TestBoardOutputs(t *testing.T) {
	b := sim.NewBoard()
	require.NoError(t, b.Init())
	require.NoError(t, b.SetDAC(0, 100))
	require.NoError(t, b.SetDAC(1, 200))
	require.Error(t, b.SetDAC(2, 1))

	v, err := b.ReadADC()
	require.NoError(t, err)
	require.Equal(t, uint16(100), v)

	require.NoError(t, b.SetDACBuffer(0, 0x0500))
	v, err = b.ReadADC()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0500), v)

	require.NoError(t, b.DisableDACBuffer(0))
	v, err = b.ReadADC()
	require.NoError(t, err)
	require.Equal(t, uint16(100), v)

	require.NoError(t, b.SetPotentiometer(0, 42))
	require.Error(t, b.SetPotentiometer(1, 42))

	state := b.State()
	require.True(t, state.Initialized)
	require.Equal(t, uint16(200), state.Output(1))
	require.Equal(t, uint16(42), state.Potentiometer[0])
}

func TestBoardSampling(t *testing.T) {
	b := sim.NewBoard()
	b.MaxRate = 100
	b.Source = sim.Ramp(10, 5)

	ok, err := b.BeginSampling(101)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = b.BeginSampling(100)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = b.BeginSampling(100)
	require.Error(t, err)

	for _, expect := range []uint16{10, 15, 20} {
		v, err := b.SampleOnce()
		require.NoError(t, err)
		require.Equal(t, expect, v)
	}
	require.NoError(t, b.EndSampling())
	require.False(t, b.State().Sampling)
}

func TestBoardBeep(t *testing.T) {
	b := sim.NewBoard()
	b.Beep(1)
	b.Beep(0)
	require.NoError(t, b.Init())
	b.Beep(2)
	require.Equal(t, 3, b.State().Beeps)
}

func TestBoardBehindDispatcher(t *testing.T) {
	hostConn, probeConn := net.Pipe()
	host, link := probe.NewStreamLink(hostConn), probe.NewStreamLink(probeConn)
	defer host.End()
	defer link.End()

	board := sim.NewBoard()
	board.Source = sim.Constant(0x0abc)
	disp := probe.NewDispatcher(link, board)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		if link.Init() == nil {
			disp.Run(ctx)
		}
	}()

	client := probe.NewClient(host)
	require.NoError(t, client.Handshake(ctx))
	require.NoError(t, client.SetDAC(ctx, 1, 0x0123))
	require.NoError(t, client.SetPotentiometer(ctx, 0, 9))
	v, err := client.GetADC(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0abc), v)

	_, err = client.StartStream(ctx, sim.DefaultMaxRate+1)
	require.ErrorIs(t, err, probe.ErrTooFast)

	stream, err := client.StartStream(ctx, 500)
	require.NoError(t, err)
	v, err = stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0abc), v)
	require.True(t, board.State().Sampling)
	_, err = stream.Stop(ctx)
	require.NoError(t, err)
	require.False(t, board.State().Sampling)

	state := board.State()
	require.Equal(t, uint16(0x0123), state.DAC[1])
	require.Equal(t, uint16(9), state.Potentiometer[0])
}
