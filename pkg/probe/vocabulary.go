package probe

import "fmt"

// ParamWidth is the width of the parameter following a command byte.
type ParamWidth int

// Parameter widths.
const (
	ParamNone  ParamWidth = 0
	ParamWord  ParamWidth = 2
	ParamDWord ParamWidth = 4
)

// String implements fmt.Stringer.
func (w ParamWidth) String() string {
	switch w {
	case ParamNone:
		return "none"
	case ParamWord:
		return "word"
	case ParamDWord:
		return "dword"
	}
	return fmt.Sprintf("ParamWidth(%d)", int(w))
}

// Operation tags the actuator operation a command triggers.
type Operation int

// Operations.
const (
	OpStartStream Operation = iota + 1
	OpStopStream
	OpSetDAC
	OpGetADC
	OpSetDACBuffer
	OpDisableDACBuffer
	OpSetPotentiometer
)

var operationNames = map[Operation]string{
	OpStartStream:      "StartStream",
	OpStopStream:       "StopStream",
	OpSetDAC:           "SetDAC",
	OpGetADC:           "GetADC",
	OpSetDACBuffer:     "SetDACBuffer",
	OpDisableDACBuffer: "DisableDACBuffer",
	OpSetPotentiometer: "SetPotentiometer",
}

// String implements fmt.Stringer.
func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// CommandSpec describes one command of the vocabulary.
type CommandSpec struct {
	Code    byte
	Name    string
	Param   ParamWidth
	Op      Operation
	Channel uint8
}

// ResponseKind is the meaning of a response code.
type ResponseKind int

// Response kinds.
const (
	ResponseAck ResponseKind = iota + 1
	ResponseError
	ResponseFinish
	ResponseStreaming
	ResponseErrorTooFast
)

var responseKindNames = map[ResponseKind]string{
	ResponseAck:          "Ack",
	ResponseError:        "Error",
	ResponseFinish:       "Finish",
	ResponseStreaming:    "Streaming",
	ResponseErrorTooFast: "ErrorTooFast",
}

// String implements fmt.Stringer.
func (k ResponseKind) String() string {
	if name, ok := responseKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ResponseKind(%d)", int(k))
}

// ResponseSpec maps a response kind to its wire code.
type ResponseSpec struct {
	Code byte
	Kind ResponseKind
}

// Handshake is sent by the probe when the link is initialized.
const Handshake = "HELO PROBE\n"

// DefaultCommands is the command table of the probe firmware.
var DefaultCommands = []CommandSpec{
	{Code: 0x30, Name: "StartStream", Param: ParamWord, Op: OpStartStream},
	{Code: 0x31, Name: "StopStream", Param: ParamNone, Op: OpStopStream},
	{Code: 0x32, Name: "SetDAC0", Param: ParamWord, Op: OpSetDAC, Channel: 0},
	{Code: 0x33, Name: "SetDAC1", Param: ParamWord, Op: OpSetDAC, Channel: 1},
	{Code: 0x34, Name: "GetADC", Param: ParamNone, Op: OpGetADC},
	{Code: 0x35, Name: "SetDAC0Buffer", Param: ParamWord, Op: OpSetDACBuffer, Channel: 0},
	{Code: 0x36, Name: "SetDAC1Buffer", Param: ParamWord, Op: OpSetDACBuffer, Channel: 1},
	{Code: 0x37, Name: "DisableDAC0Buffer", Param: ParamNone, Op: OpDisableDACBuffer, Channel: 0},
	{Code: 0x38, Name: "DisableDAC1Buffer", Param: ParamNone, Op: OpDisableDACBuffer, Channel: 1},
	{Code: 0x39, Name: "SetPoti0", Param: ParamWord, Op: OpSetPotentiometer, Channel: 0},
}

// DefaultResponses is the response table of the probe firmware.
var DefaultResponses = []ResponseSpec{
	{Code: 0x40, Kind: ResponseAck},          // '@'
	{Code: 0x45, Kind: ResponseError},        // 'E'
	{Code: 0x46, Kind: ResponseFinish},       // 'F'
	{Code: 0x47, Kind: ResponseStreaming},    // 'G'
	{Code: 0x48, Kind: ResponseErrorTooFast}, // 'H'
}

type opChannel struct {
	op      Operation
	channel uint8
}

// Vocabulary is the immutable set of command and response codes.
// It is built once and shared by Dispatcher and Client.
type Vocabulary struct {
	commands  map[byte]CommandSpec
	byOp      map[opChannel]CommandSpec
	responses map[ResponseKind]byte
	kinds     map[byte]ResponseKind
}

// NewVocabulary builds a Vocabulary from tables. Every response kind must
// be present and codes must be unique across both tables.
func NewVocabulary(cmds []CommandSpec, resps []ResponseSpec) (*Vocabulary, error) {
	v := &Vocabulary{
		commands:  make(map[byte]CommandSpec, len(cmds)),
		byOp:      make(map[opChannel]CommandSpec, len(cmds)),
		responses: make(map[ResponseKind]byte, len(resps)),
		kinds:     make(map[byte]ResponseKind, len(resps)),
	}
	for _, cmd := range cmds {
		if _, exists := v.commands[cmd.Code]; exists {
			return nil, fmt.Errorf("duplicated command code 0x%02x", cmd.Code)
		}
		if _, ok := operationNames[cmd.Op]; !ok {
			return nil, fmt.Errorf("command 0x%02x: unknown operation %v", cmd.Code, cmd.Op)
		}
		switch cmd.Param {
		case ParamNone, ParamWord, ParamDWord:
		default:
			return nil, fmt.Errorf("command 0x%02x: invalid param width %d", cmd.Code, int(cmd.Param))
		}
		key := opChannel{op: cmd.Op, channel: cmd.Channel}
		if _, exists := v.byOp[key]; exists {
			return nil, fmt.Errorf("duplicated command for %v channel %d", cmd.Op, cmd.Channel)
		}
		v.commands[cmd.Code], v.byOp[key] = cmd, cmd
	}
	for _, resp := range resps {
		if _, exists := v.commands[resp.Code]; exists {
			return nil, fmt.Errorf("response code 0x%02x collides with a command", resp.Code)
		}
		if _, exists := v.kinds[resp.Code]; exists {
			return nil, fmt.Errorf("duplicated response code 0x%02x", resp.Code)
		}
		if _, exists := v.responses[resp.Kind]; exists {
			return nil, fmt.Errorf("duplicated response kind %v", resp.Kind)
		}
		v.responses[resp.Kind], v.kinds[resp.Code] = resp.Code, resp.Kind
	}
	for kind := range responseKindNames {
		if _, ok := v.responses[kind]; !ok {
			return nil, fmt.Errorf("missing response code for %v", kind)
		}
	}
	return v, nil
}

// MustNewVocabulary is NewVocabulary which panics on error.
func MustNewVocabulary(cmds []CommandSpec, resps []ResponseSpec) *Vocabulary {
	v, err := NewVocabulary(cmds, resps)
	if err != nil {
		panic(err)
	}
	return v
}

var defaultVocabulary = MustNewVocabulary(DefaultCommands, DefaultResponses)

// DefaultVocabulary returns the vocabulary of the probe firmware.
func DefaultVocabulary() *Vocabulary {
	return defaultVocabulary
}

// Command looks up a command by code.
func (v *Vocabulary) Command(code byte) (CommandSpec, bool) {
	cmd, ok := v.commands[code]
	return cmd, ok
}

// IsCommand tells whether code is a known command.
func (v *Vocabulary) IsCommand(code byte) bool {
	_, ok := v.commands[code]
	return ok
}

// CommandFor finds the command performing op on channel.
func (v *Vocabulary) CommandFor(op Operation, channel uint8) (CommandSpec, bool) {
	cmd, ok := v.byOp[opChannel{op: op, channel: channel}]
	return cmd, ok
}

// Response returns the wire code of a response kind.
func (v *Vocabulary) Response(kind ResponseKind) byte {
	return v.responses[kind]
}

// ResponseKindOf returns the kind of a response code.
func (v *Vocabulary) ResponseKindOf(code byte) (ResponseKind, bool) {
	kind, ok := v.kinds[code]
	return kind, ok
}

// Commands lists all commands ordered by code.
func (v *Vocabulary) Commands() []CommandSpec {
	cmds := make([]CommandSpec, 0, len(v.commands))
	for code := 0; code < 256; code++ {
		if cmd, ok := v.commands[byte(code)]; ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}
