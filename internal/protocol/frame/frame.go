package frame

import "fmt"

const (
	// Marker begins every frame on the wire.
	Marker byte = 0x1F
	// TypeStream marks a fixed-size telemetry sample frame. Any other type
	// byte marks a CRLF-terminated text frame.
	TypeStream byte = 0x00
	// TypeText is the type byte the firmware uses for text frames.
	TypeText byte = 0x01

	// StreamFrameLen is marker + type + channel + float64.
	StreamFrameLen = 11
	// HeaderLen is marker + type.
	HeaderLen = 2
)

// Message is one decoded application message: TextMessage or StreamSample.
type Message interface {
	isMessage()
}

// TextMessage is a human-readable line from the device.
type TextMessage struct {
	Text string
}

// StreamSample is one telemetry reading. Channel is the 1-based wire value,
// unvalidated; the registry bounds-checks it at dispatch.
type StreamSample struct {
	Channel int
	Value   float64
}

func (TextMessage) isMessage()  {}
func (StreamSample) isMessage() {}

func (m TextMessage) String() string { return fmt.Sprintf("text(%q)", m.Text) }

func (m StreamSample) String() string {
	return fmt.Sprintf("sample(ch=%d value=%g)", m.Channel, m.Value)
}

// Mode is the decoder state between frames.
type Mode int

const (
	ModeAny Mode = iota
	ModeText
	ModeStream
)

func (m Mode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeText:
		return "text"
	case ModeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Limits constrains decoder memory use.
type Limits struct {
	// MaxTextBytes caps a text frame (header included) that has not yet seen
	// its CRLF terminator. Zero disables the cap.
	MaxTextBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxTextBytes: 64 * 1024,
	}
}

// Stats counts decoder activity since construction.
type Stats struct {
	TextFrames    uint64
	StreamFrames  uint64
	DiscardBytes  uint64
	Resyncs       uint64
	AbandonedText uint64
}
