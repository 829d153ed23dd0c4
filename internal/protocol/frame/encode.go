package frame

import (
	"encoding/binary"
	"math"
)

// AppendStream appends an 11-byte stream-sample frame to dst.
func AppendStream(dst []byte, channel byte, value float64) []byte {
	dst = append(dst, Marker, TypeStream, channel)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(value))
}

// AppendText appends a CRLF-terminated text frame using type byte typ.
// typ must not be TypeStream.
func AppendText(dst []byte, typ byte, text string) []byte {
	if typ == TypeStream {
		typ = TypeText
	}
	dst = append(dst, Marker, typ)
	dst = append(dst, text...)
	return append(dst, '\r', '\n')
}

// Encode renders msg as a wire frame. Sample channels are truncated to a byte.
func Encode(msg Message) []byte {
	switch m := msg.(type) {
	case StreamSample:
		return AppendStream(nil, byte(m.Channel), m.Value)
	case TextMessage:
		return AppendText(nil, TypeText, m.Text)
	default:
		return nil
	}
}
