package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/probe.go/pkg/env"
	fx "github.com/robotalks/probe.go/pkg/framework"
	"github.com/robotalks/probe.go/pkg/probe"
	"github.com/robotalks/probe.go/pkg/probe/sim"
	"github.com/robotalks/probe.go/pkg/telemetry/mqtt"
	"github.com/robotalks/probe.go/pkg/transport"
)

var simMaxRate = uint(sim.DefaultMaxRate)

func init() {
	env.SetupFlags()
	flag.UintVar(&simMaxRate, "sim-max-rate", simMaxRate, "Fastest sampling rate of the simulated board")
}

// server accepts one host at a time and runs a Dispatcher for it.
type server struct {
	conf     *env.Config
	listener transport.Listener
	board    *sim.Board
	tap      probe.SampleTap
}

func (s *server) Run(ctx context.Context) error {
	defer s.listener.Close()
	glog.Infof("probe listening on %s", s.listener.Addr())
	for {
		rw, err := s.listener.Accept(ctx)
		if err != nil {
			return err
		}
		link := s.conf.NewStreamLink(rw)
		err = s.serve(ctx, link)
		link.End()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, probe.ErrLinkClosed) {
			glog.Info("host disconnected")
		} else {
			glog.Warningf("link error: %v", err)
		}
	}
}

func (s *server) serve(ctx context.Context, link *probe.StreamLink) error {
	disp, err := s.conf.NewDispatcher(link, s.board)
	if err != nil {
		return err
	}
	disp.Tap = s.tap
	if err := link.Init(); err != nil {
		return err
	}
	return disp.Run(ctx)
}

func newTelemetry(conf *env.Config, linkAddr string) (*mqtt.Publisher, fx.Runnable, error) {
	q, err := mqtt.NewProbeQueue(conf.MQTTBrokerURL, conf.ProbeID)
	if err != nil {
		return nil, nil, err
	}
	pub := mqtt.NewPublisher(q, conf.ProbeID)
	pub.BurstSize = conf.BurstSize
	pub.Meta.Link = linkAddr
	pub.Meta.MaxRate = conf.MaxRate
	for _, cmd := range probe.DefaultVocabulary().Commands() {
		pub.Meta.Commands = append(pub.Meta.Commands, cmd.Name)
	}
	q.OnConnect = func(*mqtt.Queue) { pub.PublishMeta() }
	return pub, fx.RunFunc(func(ctx context.Context) error {
		if token := q.Connect(); token.Wait() && token.Error() != nil {
			glog.Warningf("telemetry broker unavailable: %v", token.Error())
		}
		defer q.Close()
		return pub.Run(ctx)
	}), nil
}

func main() {
	flag.Parse()
	conf := env.MustLoad()

	board := sim.NewBoard()
	board.MaxRate = uint16(simMaxRate)
	if err := board.Init(); err != nil {
		log.Fatalln(err)
	}

	listener, err := transport.Listen(conf.LinkURL)
	if err != nil {
		log.Fatalln(err)
	}

	srv := &server{conf: conf, listener: listener, board: board}
	runner := fx.NewRunner().HandleSignals()
	if conf.MQTTBrokerURL != "" {
		pub, run, err := newTelemetry(conf, listener.Addr())
		if err != nil {
			log.Fatalln(err)
		}
		srv.tap = pub
		runner.Go(fx.NamedRun("telemetry", run))
	}
	board.Beep(1)
	err = runner.Go(fx.NamedRun("link", srv)).Wait()
	board.Beep(2)
	glog.Flush()
	if err != nil {
		log.Fatalln(err)
	}
}
