package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	pb "github.com/robotalks/probe.go/pkg/proto/probe/v1"
)

// Defaults of Publisher.
const (
	DefaultBurstSize     = 64
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultQueueSize     = 4096
)

// Sink is where telemetry gets published. Queue is a Sink.
type Sink interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Meta is published retained on the meta topic while the probe is online.
type Meta struct {
	ProbeID  string   `json:"probe-id"`
	Link     string   `json:"link,omitempty"`
	MaxRate  uint16   `json:"max-rate"`
	Commands []string `json:"commands,omitempty"`
}

type tapEventKind int

const (
	tapStarted tapEventKind = iota
	tapSample
	tapStopped
)

type tapEvent struct {
	kind  tapEventKind
	value uint16
}

// Publisher implements probe.SampleTap. Samples are batched into
// SampleBurst messages and session changes become SessionEvent messages.
// The tap side never blocks: events are dropped and counted when the
// internal queue is full.
type Publisher struct {
	Sink          Sink
	ProbeID       string
	BurstSize     int
	FlushInterval time.Duration
	Meta          Meta

	events  chan tapEvent
	dropped uint64

	seq     uint64
	rate    uint16
	samples uint64
	burst   []uint32
}

// NewPublisher creates a Publisher.
func NewPublisher(sink Sink, probeID string) *Publisher {
	return &Publisher{
		Sink:          sink,
		ProbeID:       probeID,
		BurstSize:     DefaultBurstSize,
		FlushInterval: DefaultFlushInterval,
		Meta:          Meta{ProbeID: probeID},
		events:        make(chan tapEvent, DefaultQueueSize),
	}
}

// WithQueueSize replaces the event queue. Must be called before Run.
func (p *Publisher) WithQueueSize(size int) *Publisher {
	p.events = make(chan tapEvent, size)
	return p
}

// Dropped returns the number of events dropped so far.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// StreamStarted implements probe.SampleTap.
func (p *Publisher) StreamStarted(rate uint16) {
	p.enqueue(tapEvent{kind: tapStarted, value: rate})
}

// Sample implements probe.SampleTap.
func (p *Publisher) Sample(value uint16) {
	p.enqueue(tapEvent{kind: tapSample, value: value})
}

// StreamStopped implements probe.SampleTap.
func (p *Publisher) StreamStopped() {
	p.enqueue(tapEvent{kind: tapStopped})
}

func (p *Publisher) enqueue(ev tapEvent) {
	select {
	case p.events <- ev:
	default:
		if n := atomic.AddUint64(&p.dropped, 1); n&(n-1) == 0 {
			glog.Warningf("telemetry queue full, %d events dropped", n)
		}
	}
}

// PublishMeta publishes the retained meta message. It's meant to be
// called whenever the connection to the broker is established.
func (p *Publisher) PublishMeta() {
	payload, err := json.Marshal(&p.Meta)
	if err != nil {
		panic(err)
	}
	p.Sink.PubWith(MetaTopic(p.ProbeID), payload, 1, true)
}

// Run implements Runnable. On exit, pending samples are flushed and the
// retained meta is cleared.
func (p *Publisher) Run(ctx context.Context) error {
	interval := p.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		case <-ticker.C:
			p.flush()
		case <-ctx.Done():
			p.drain()
			p.flush()
			token := p.Sink.PubWith(MetaTopic(p.ProbeID), nil, 1, true)
			token.WaitTimeout(time.Second)
			return ctx.Err()
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		default:
			return
		}
	}
}

func (p *Publisher) handle(ev tapEvent) {
	switch ev.kind {
	case tapStarted:
		p.flush()
		p.rate, p.samples = ev.value, 0
		p.publishSession(pb.SessionEvent_STREAMING)
	case tapSample:
		p.samples++
		p.burst = append(p.burst, uint32(ev.value))
		size := p.BurstSize
		if size <= 0 {
			size = DefaultBurstSize
		}
		if len(p.burst) >= size {
			p.flush()
		}
	case tapStopped:
		p.flush()
		p.publishSession(pb.SessionEvent_IDLE)
	}
}

func (p *Publisher) flush() {
	if len(p.burst) == 0 {
		return
	}
	msg := &pb.SampleBurst{
		ProbeId:           p.ProbeID,
		Sequence:          p.seq,
		Rate:              uint32(p.rate),
		Samples:           p.burst,
		Dropped:           p.Dropped(),
		TimestampUnixNano: time.Now().UnixNano(),
	}
	p.seq++
	p.burst = nil
	p.publish(SamplesTopic(p.ProbeID), msg)
}

func (p *Publisher) publishSession(state pb.SessionEvent_State) {
	p.publish(SessionTopic(p.ProbeID), &pb.SessionEvent{
		ProbeId:           p.ProbeID,
		State:             state,
		Rate:              uint32(p.rate),
		Samples:           p.samples,
		TimestampUnixNano: time.Now().UnixNano(),
	})
}

func (p *Publisher) publish(topic string, msg proto.Message) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		glog.Errorf("encode %s error: %v", topic, err)
		return
	}
	p.Sink.PubWith(topic, payload, 0, false)
}
