package console

import (
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/useqlink/internal/testutil/testlog"
)

func TestRecentKeepsNewestLines(t *testing.T) {
	testlog.Start(t)
	c := New(3)
	for i := 0; i < 5; i++ {
		c.Post(fmt.Sprintf("line %d", i))
	}
	got := c.Recent(0)
	if len(got) != 3 || got[0].Text != "line 2" || got[2].Text != "line 4" {
		t.Fatalf("recent got=%v", got)
	}
	if got := c.Recent(1); len(got) != 1 || got[0].Text != "line 4" {
		t.Fatalf("recent(1) got=%v", got)
	}
}

func TestPostStampsTime(t *testing.T) {
	testlog.Start(t)
	c := New(2)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	c.Post("uSEQ connected")
	if got := c.Recent(0); !got[0].Time.Equal(fixed) {
		t.Fatalf("time got=%v", got[0].Time)
	}
}

func TestSubscribeReceivesAndCancels(t *testing.T) {
	testlog.Start(t)
	c := New(10)
	ch, cancel := c.Subscribe(4)
	c.Post("hello")
	select {
	case line := <-ch:
		if line.Text != "hello" {
			t.Fatalf("line got=%q", line.Text)
		}
	case <-time.After(time.Second):
		t.Fatalf("no line delivered")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after cancel")
	}
	c.Post("after cancel")
}

func TestSlowSubscriberDropsLines(t *testing.T) {
	testlog.Start(t)
	c := New(10)
	ch, cancel := c.Subscribe(1)
	defer cancel()
	c.Post("first")
	c.Post("second")
	if line := <-ch; line.Text != "first" {
		t.Fatalf("line got=%q", line.Text)
	}
	select {
	case line := <-ch:
		t.Fatalf("unexpected buffered line %q", line.Text)
	default:
	}
	if got := len(c.Recent(0)); got != 2 {
		t.Fatalf("history len got=%d want=2", got)
	}
}
