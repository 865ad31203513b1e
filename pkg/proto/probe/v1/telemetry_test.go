package v1

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestSampleBurstWireFormat(t *testing.T) {
	data, err := proto.Marshal(&SampleBurst{Rate: 5, Samples: []uint32{1, 2}})
	require.NoError(t, err)
	// rate is field 3 varint, samples field 4 packed.
	require.Equal(t, []byte{0x18, 0x05, 0x22, 0x02, 0x01, 0x02}, data)
}

func TestSessionEventWireFormat(t *testing.T) {
	data, err := proto.Marshal(&SessionEvent{ProbeId: "a", State: SessionEvent_STREAMING})
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x01, 'a', 0x10, 0x01}, data)

	var ev SessionEvent
	require.NoError(t, proto.Unmarshal(data, &ev))
	require.Equal(t, "STREAMING", ev.GetState().String())
}
