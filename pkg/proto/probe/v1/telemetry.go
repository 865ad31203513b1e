// Package v1 holds the telemetry messages defined in telemetry.proto.
// They're maintained by hand with the struct tags golang/protobuf
// marshals by.
package v1

import (
	proto "github.com/golang/protobuf/proto"
)

type SessionEvent_State int32

const (
	SessionEvent_IDLE      SessionEvent_State = 0
	SessionEvent_STREAMING SessionEvent_State = 1
)

var SessionEvent_State_name = map[int32]string{
	0: "IDLE",
	1: "STREAMING",
}

var SessionEvent_State_value = map[string]int32{
	"IDLE":      0,
	"STREAMING": 1,
}

func (x SessionEvent_State) String() string {
	return proto.EnumName(SessionEvent_State_name, int32(x))
}

// SampleBurst carries consecutive samples of a streaming session.
type SampleBurst struct {
	ProbeId              string   `protobuf:"bytes,1,opt,name=probe_id,json=probeId,proto3" json:"probe_id,omitempty"`
	Sequence             uint64   `protobuf:"varint,2,opt,name=sequence,proto3" json:"sequence,omitempty"`
	Rate                 uint32   `protobuf:"varint,3,opt,name=rate,proto3" json:"rate,omitempty"`
	Samples              []uint32 `protobuf:"varint,4,rep,packed,name=samples,proto3" json:"samples,omitempty"`
	Dropped              uint64   `protobuf:"varint,5,opt,name=dropped,proto3" json:"dropped,omitempty"`
	TimestampUnixNano    int64    `protobuf:"varint,6,opt,name=timestamp_unix_nano,json=timestampUnixNano,proto3" json:"timestamp_unix_nano,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *SampleBurst) Reset()         { *m = SampleBurst{} }
func (m *SampleBurst) String() string { return proto.CompactTextString(m) }
func (*SampleBurst) ProtoMessage()    {}

func (m *SampleBurst) GetProbeId() string {
	if m != nil {
		return m.ProbeId
	}
	return ""
}

func (m *SampleBurst) GetSequence() uint64 {
	if m != nil {
		return m.Sequence
	}
	return 0
}

func (m *SampleBurst) GetRate() uint32 {
	if m != nil {
		return m.Rate
	}
	return 0
}

func (m *SampleBurst) GetSamples() []uint32 {
	if m != nil {
		return m.Samples
	}
	return nil
}

func (m *SampleBurst) GetDropped() uint64 {
	if m != nil {
		return m.Dropped
	}
	return 0
}

func (m *SampleBurst) GetTimestampUnixNano() int64 {
	if m != nil {
		return m.TimestampUnixNano
	}
	return 0
}

// SessionEvent reports a session state change.
type SessionEvent struct {
	ProbeId              string             `protobuf:"bytes,1,opt,name=probe_id,json=probeId,proto3" json:"probe_id,omitempty"`
	State                SessionEvent_State `protobuf:"varint,2,opt,name=state,proto3,enum=probe.v1.SessionEvent_State" json:"state,omitempty"`
	Rate                 uint32             `protobuf:"varint,3,opt,name=rate,proto3" json:"rate,omitempty"`
	Samples              uint64             `protobuf:"varint,4,opt,name=samples,proto3" json:"samples,omitempty"`
	TimestampUnixNano    int64              `protobuf:"varint,5,opt,name=timestamp_unix_nano,json=timestampUnixNano,proto3" json:"timestamp_unix_nano,omitempty"`
	XXX_NoUnkeyedLiteral struct{}           `json:"-"`
	XXX_unrecognized     []byte             `json:"-"`
	XXX_sizecache        int32              `json:"-"`
}

func (m *SessionEvent) Reset()         { *m = SessionEvent{} }
func (m *SessionEvent) String() string { return proto.CompactTextString(m) }
func (*SessionEvent) ProtoMessage()    {}

func (m *SessionEvent) GetProbeId() string {
	if m != nil {
		return m.ProbeId
	}
	return ""
}

func (m *SessionEvent) GetState() SessionEvent_State {
	if m != nil {
		return m.State
	}
	return SessionEvent_IDLE
}

func (m *SessionEvent) GetRate() uint32 {
	if m != nil {
		return m.Rate
	}
	return 0
}

func (m *SessionEvent) GetSamples() uint64 {
	if m != nil {
		return m.Samples
	}
	return 0
}

func (m *SessionEvent) GetTimestampUnixNano() int64 {
	if m != nil {
		return m.TimestampUnixNano
	}
	return 0
}

func init() {
	proto.RegisterEnum("probe.v1.SessionEvent_State", SessionEvent_State_name, SessionEvent_State_value)
	proto.RegisterType((*SampleBurst)(nil), "probe.v1.SampleBurst")
	proto.RegisterType((*SessionEvent)(nil), "probe.v1.SessionEvent")
}
