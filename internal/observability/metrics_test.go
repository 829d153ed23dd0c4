package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/useqlink/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("useq-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordCommand(true, nil)
	RecordCommand(false, errors.New("command: not connected"))
	RecordConnect(false)
}

func TestRecordDecodeAddsDeltas(t *testing.T) {
	testlog.Start(t)
	beforeText := testutil.ToFloat64(decodedFrames.WithLabelValues("text"))
	beforeDiscard := testutil.ToFloat64(discardedBytes)

	RecordDecode(2, 0, 5, 0)

	if got := testutil.ToFloat64(decodedFrames.WithLabelValues("text")) - beforeText; got != 2 {
		t.Fatalf("text frames delta got=%v want=2", got)
	}
	if got := testutil.ToFloat64(discardedBytes) - beforeDiscard; got != 5 {
		t.Fatalf("discard delta got=%v want=5", got)
	}
}

func TestRecordSampleFoldsInvalidChannels(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(samples.WithLabelValues("invalid", "false"))
	RecordSample(0, false)
	RecordSample(200, false)
	RecordSample(3, true)
	if got := testutil.ToFloat64(samples.WithLabelValues("invalid", "false")) - before; got != 2 {
		t.Fatalf("invalid samples delta got=%v want=2", got)
	}
}

func TestSetSessionStateIsExclusive(t *testing.T) {
	testlog.Start(t)
	SetSessionState("connected")
	if got := testutil.ToFloat64(sessionState.WithLabelValues("connected")); got != 1 {
		t.Fatalf("connected gauge got=%v", got)
	}
	SetSessionState("disconnected")
	if got := testutil.ToFloat64(sessionState.WithLabelValues("connected")); got != 0 {
		t.Fatalf("connected gauge after disconnect got=%v", got)
	}
	if got := testutil.ToFloat64(sessionState.WithLabelValues("disconnected")); got != 1 {
		t.Fatalf("disconnected gauge got=%v", got)
	}
}
