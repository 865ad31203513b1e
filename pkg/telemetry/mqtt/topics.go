package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/protobuf/proto"

	pb "github.com/robotalks/probe.go/pkg/proto/probe/v1"
)

// Topic kinds under <prefix><probe-id>/.
const (
	KindSamples = "samples"
	KindSession = "session"
	KindMeta    = "meta"
)

// SamplesTopic is the topic of SampleBurst messages.
func SamplesTopic(probeID string) string { return probeID + "/" + KindSamples }

// SessionTopic is the topic of SessionEvent messages.
func SessionTopic(probeID string) string { return probeID + "/" + KindSession }

// MetaTopic is the topic of the retained Meta.
func MetaTopic(probeID string) string { return probeID + "/" + KindMeta }

// NewProbeQueue creates a Queue for publishing telemetry of probeID.
// The broker clears the retained meta if the probe disconnects abruptly.
func NewProbeQueue(brokerURL, probeID string) (*Queue, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+MetaTopic(probeID), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("probe:" + probeID)
	}
	return NewQueue(opts, prefix), nil
}

// Message is a decoded telemetry message. Exactly one of Burst, Session
// and Meta is set, except for an empty meta which means offline.
type Message struct {
	ProbeID string
	Kind    string
	Burst   *pb.SampleBurst
	Session *pb.SessionEvent
	Meta    *Meta
}

// Decode decodes a message received on topic (prefix stripped).
func Decode(topic string, payload []byte) (*Message, error) {
	pos := strings.LastIndex(topic, "/")
	if pos <= 0 {
		return nil, fmt.Errorf("invalid telemetry topic %q", topic)
	}
	msg := &Message{ProbeID: topic[:pos], Kind: topic[pos+1:]}
	switch msg.Kind {
	case KindSamples:
		msg.Burst = &pb.SampleBurst{}
		if err := proto.Unmarshal(payload, msg.Burst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", topic, err)
		}
	case KindSession:
		msg.Session = &pb.SessionEvent{}
		if err := proto.Unmarshal(payload, msg.Session); err != nil {
			return nil, fmt.Errorf("decode %s: %w", topic, err)
		}
	case KindMeta:
		if len(payload) == 0 {
			break
		}
		msg.Meta = &Meta{}
		if err := json.Unmarshal(payload, msg.Meta); err != nil {
			return nil, fmt.Errorf("decode %s: %w", topic, err)
		}
	default:
		return nil, fmt.Errorf("unknown telemetry kind %q", msg.Kind)
	}
	return msg, nil
}
