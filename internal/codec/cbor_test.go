package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/danmuck/useqlink/internal/testutil/testlog"
)

type samples struct {
	Channel int       `cbor:"channel"`
	Values  []float64 `cbor:"values"`
}

func TestSamplesKeepNonFiniteValues(t *testing.T) {
	testlog.Start(t)
	in := samples{Channel: 3, Values: []float64{0.5, math.Inf(1), math.NaN()}}
	raw, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out samples
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Channel != 3 || len(out.Values) != 3 {
		t.Fatalf("decoded got=%+v", out)
	}
	if out.Values[0] != 0.5 || !math.IsInf(out.Values[1], 1) || !math.IsNaN(out.Values[2]) {
		t.Fatalf("values got=%v", out.Values)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	testlog.Start(t)
	a, err := Marshal(map[string]any{"b": 1, "a": 2, "channel": 8})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := Marshal(map[string]any{"channel": 8, "a": 2, "b": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encodings differ: %x vs %x", a, b)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	testlog.Start(t)
	raw, err := Marshal(map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["text"] != "hello" {
		t.Fatalf("decoded got=%#v", out)
	}
}
