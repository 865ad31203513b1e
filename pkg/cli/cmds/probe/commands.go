// Package probe exposes the probe commands in the shell.
package probe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/probe.go/pkg/cli/sh"
	"github.com/robotalks/probe.go/pkg/probe"
)

// ADCResult is the output of adc.
type ADCResult struct {
	Value uint16 `json:"value"`
}

// StreamResult is the output of stream.
type StreamResult struct {
	Rate    uint16   `json:"rate"`
	Samples []uint16 `json:"samples"`
	// Trailing counts samples received after the stop request.
	Trailing int `json:"trailing"`
}

// ReadStream streams at rate until n samples are read, then stops.
func ReadStream(ctx context.Context, client *probe.Client, rate uint16, n int) (*StreamResult, error) {
	stream, err := client.StartStream(ctx, rate)
	if err != nil {
		return nil, err
	}
	res := &StreamResult{Rate: rate, Samples: make([]uint16, 0, n)}
	for len(res.Samples) < n {
		val, err := stream.Next(ctx)
		if err != nil {
			stream.Stop(context.Background())
			return nil, err
		}
		res.Samples = append(res.Samples, val)
	}
	rest, err := stream.Stop(ctx)
	if err != nil {
		return nil, err
	}
	res.Trailing = len(rest)
	return res, nil
}

func parseArg(c *ishell.Context, index int, name string, bits int) (uint64, error) {
	if len(c.Args) <= index {
		return 0, fmt.Errorf("%s required", name)
	}
	val, err := strconv.ParseUint(c.Args[index], 0, bits)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s: %v", name, err)
	}
	return val, nil
}

func parseArgs(c *ishell.Context, names ...string) ([]uint64, bool) {
	vals := make([]uint64, len(names))
	for n, name := range names {
		bits := 16
		if name == "CH" {
			bits = 8
		}
		val, err := parseArg(c, n, name, bits)
		if err != nil {
			c.Err(err)
			return nil, false
		}
		vals[n] = val
	}
	return vals, true
}

var (
	// SetDACCmd exposes SetDAC.
	SetDACCmd = ishell.Cmd{
		Name: "dac",
		Help: "CH VALUE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, ok := parseArgs(c, "CH", "VALUE")
			if !ok {
				return
			}
			sh.DoCommand(c, func(ctx context.Context, client *probe.Client) (interface{}, error) {
				return nil, client.SetDAC(ctx, uint8(args[0]), uint16(args[1]))
			}, nil)
		}),
	}

	// GetADCCmd exposes GetADC.
	GetADCCmd = ishell.Cmd{
		Name: "adc",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, func(ctx context.Context, client *probe.Client) (interface{}, error) {
				val, err := client.GetADC(ctx)
				if err != nil {
					return nil, err
				}
				return &ADCResult{Value: val}, nil
			}, func(res interface{}) string {
				return strconv.Itoa(int(res.(*ADCResult).Value))
			})
		}),
	}

	// SetDACBufferCmd exposes SetDACBuffer.
	SetDACBufferCmd = ishell.Cmd{
		Name: "buffer",
		Help: "CH DATA",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, ok := parseArgs(c, "CH", "DATA")
			if !ok {
				return
			}
			sh.DoCommand(c, func(ctx context.Context, client *probe.Client) (interface{}, error) {
				return nil, client.SetDACBuffer(ctx, uint8(args[0]), uint16(args[1]))
			}, nil)
		}),
	}

	// DisableDACBufferCmd exposes DisableDACBuffer.
	DisableDACBufferCmd = ishell.Cmd{
		Name: "nobuffer",
		Help: "CH",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, ok := parseArgs(c, "CH")
			if !ok {
				return
			}
			sh.DoCommand(c, func(ctx context.Context, client *probe.Client) (interface{}, error) {
				return nil, client.DisableDACBuffer(ctx, uint8(args[0]))
			}, nil)
		}),
	}

	// SetPotentiometerCmd exposes SetPotentiometer.
	SetPotentiometerCmd = ishell.Cmd{
		Name:    "poti",
		Aliases: []string{"pot"},
		Help:    "VALUE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, ok := parseArgs(c, "VALUE")
			if !ok {
				return
			}
			sh.DoCommand(c, func(ctx context.Context, client *probe.Client) (interface{}, error) {
				return nil, client.SetPotentiometer(ctx, 0, uint16(args[0]))
			}, nil)
		}),
	}

	// StreamCmd streams a number of samples.
	StreamCmd = ishell.Cmd{
		Name: "stream",
		Help: "RATE(samples/s, 0 for free running) COUNT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, ok := parseArgs(c, "RATE", "COUNT")
			if !ok {
				return
			}
			var expected time.Duration
			if args[0] > 0 {
				expected = time.Duration(args[1]) * time.Second / time.Duration(args[0])
			}
			sh.DoCommandWithin(c, expected, func(ctx context.Context, client *probe.Client) (interface{}, error) {
				return ReadStream(ctx, client, uint16(args[0]), int(args[1]))
			}, func(res interface{}) string {
				r := res.(*StreamResult)
				return fmt.Sprintf("%d samples at %d/s (+%d after stop): %v", len(r.Samples), r.Rate, r.Trailing, r.Samples)
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&SetDACCmd,
		&GetADCCmd,
		&SetDACBufferCmd,
		&DisableDACBufferCmd,
		&SetPotentiometerCmd,
		&StreamCmd,
	)
}
