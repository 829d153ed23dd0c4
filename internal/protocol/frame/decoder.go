package frame

import (
	"bytes"
	"encoding/binary"
	"math"
)

var crlf = []byte{'\r', '\n'}

// Decoder turns an append-only byte stream into Messages. Bytes that do not
// yet form a complete frame are carried to the next Feed call.
//
// Decoder is not safe for concurrent use; the session read loop owns it.
type Decoder struct {
	limits Limits
	mode   Mode
	carry  []byte
	// textScan is the offset from which the CRLF search resumes in text mode,
	// so a long partial line is not rescanned on every chunk.
	textScan int
	stats    Stats
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Feed consumes chunk and returns every message completed by it, in wire
// order. Insufficient data is not an error: partial frames stay in the carry.
func (d *Decoder) Feed(chunk []byte) []Message {
	data := chunk
	owned := len(d.carry) > 0
	if owned {
		data = append(d.carry, chunk...)
	}

	var out []Message
	for len(data) > 0 {
		var (
			msg      Message
			consumed int
			more     bool
		)
		switch d.mode {
		case ModeAny:
			consumed, more = d.stepAny(data)
		case ModeText:
			msg, consumed, more = d.stepText(data)
		case ModeStream:
			msg, consumed, more = d.stepStream(data)
		}
		if msg != nil {
			out = append(out, msg)
		}
		data = data[consumed:]
		if !more {
			break
		}
	}

	// Keep the carry in its own storage so callers may reuse chunk. A tail
	// that already lives there is resliced, which keeps long partial lines
	// from being copied on every chunk.
	switch {
	case len(data) == 0:
		d.carry = d.carry[:0]
	case owned:
		d.carry = data
	default:
		d.carry = append(d.carry[:0:0], data...)
	}
	return out
}

// stepAny selects a frame mode or resynchronizes to the next marker.
func (d *Decoder) stepAny(data []byte) (int, bool) {
	if data[0] == Marker {
		if len(data) < HeaderLen {
			return 0, false
		}
		if data[1] == TypeStream {
			d.mode = ModeStream
		} else {
			d.mode = ModeText
			d.textScan = HeaderLen
		}
		return 0, true
	}

	i := bytes.IndexByte(data[1:], Marker)
	if i < 0 {
		d.discard(len(data))
		return len(data), false
	}
	d.discard(i + 1)
	return i + 1, true
}

func (d *Decoder) stepText(data []byte) (Message, int, bool) {
	from := d.textScan
	if from < HeaderLen {
		from = HeaderLen
	}
	// Back up one byte in case the previous chunk ended on CR.
	if from > HeaderLen {
		from--
	}
	// Only the first MaxTextBytes of a frame may hold its terminator, so the
	// outcome does not depend on how much has been buffered.
	window := len(data)
	capped := d.limits.MaxTextBytes > 0 && window >= d.limits.MaxTextBytes
	if capped {
		window = d.limits.MaxTextBytes
	}
	if from < window {
		if i := bytes.Index(data[from:window], crlf); i >= 0 {
			end := from + i
			d.mode = ModeAny
			d.textScan = 0
			d.stats.TextFrames++
			return TextMessage{Text: string(data[HeaderLen:end])}, end + len(crlf), true
		}
	}
	if capped {
		// Abandon the frame: drop its marker and rescan from the next byte.
		d.mode = ModeAny
		d.textScan = 0
		d.stats.AbandonedText++
		d.discard(1)
		return nil, 1, true
	}
	d.textScan = len(data)
	return nil, 0, false
}

func (d *Decoder) stepStream(data []byte) (Message, int, bool) {
	if len(data) < StreamFrameLen {
		return nil, 0, false
	}
	sample := StreamSample{
		Channel: int(data[2]),
		Value:   math.Float64frombits(binary.LittleEndian.Uint64(data[3:StreamFrameLen])),
	}
	d.mode = ModeAny
	d.stats.StreamFrames++
	return sample, StreamFrameLen, true
}

func (d *Decoder) discard(n int) {
	d.stats.Resyncs++
	d.stats.DiscardBytes += uint64(n)
}

// Mode reports the current parser state.
func (d *Decoder) Mode() Mode { return d.mode }

// Carry returns a copy of the bytes awaiting more input.
func (d *Decoder) Carry() []byte {
	return append([]byte(nil), d.carry...)
}

func (d *Decoder) Stats() Stats { return d.stats }

// Reset drops the carry and returns to ModeAny. Stats are kept.
func (d *Decoder) Reset() {
	d.mode = ModeAny
	d.carry = nil
	d.textScan = 0
}
