package ring

import (
	"testing"

	"github.com/danmuck/useqlink/internal/testutil/testlog"
)

func TestPushNeverGrowsPastCapacity(t *testing.T) {
	testlog.Start(t)
	b := New[int](4)
	for i := 0; i < 10; i++ {
		b.Push(i)
		if b.Len() > b.Cap() {
			t.Fatalf("len=%d exceeds cap=%d", b.Len(), b.Cap())
		}
	}
	if !b.Full() {
		t.Fatalf("expected full buffer")
	}
}

func TestWraparoundOldestAndLast(t *testing.T) {
	testlog.Start(t)
	const n = DefaultCapacity
	b := New[float64](n)
	for i := 1; i <= n+3; i++ {
		b.Push(float64(i))
	}
	if got := b.Last(0); got != float64(n+3) {
		t.Fatalf("last(0) got=%v want=%v", got, n+3)
	}
	if got := b.Oldest(0); got != 4 {
		t.Fatalf("oldest(0) got=%v want=4", got)
	}
	if got := b.Pointer(); got != 3 {
		t.Fatalf("pointer got=%d want=3", got)
	}
	if got := b.Oldest(n - 1); got != float64(n+3) {
		t.Fatalf("oldest(n-1) got=%v want=%v", got, n+3)
	}
	if got := b.Last(n - 1); got != 4 {
		t.Fatalf("last(n-1) got=%v want=4", got)
	}
}

func TestLastBeforeFull(t *testing.T) {
	testlog.Start(t)
	b := New[string](5)
	b.Push("a")
	b.Push("b")
	b.Push("c")
	if got := b.Last(0); got != "c" {
		t.Fatalf("last(0) got=%q", got)
	}
	if got := b.Last(2); got != "a" {
		t.Fatalf("last(2) got=%q", got)
	}
	if got := b.Oldest(0); got != "a" {
		t.Fatalf("oldest(0) got=%q", got)
	}
	if got := b.Last(3); got != "" {
		t.Fatalf("last beyond len got=%q want zero value", got)
	}
}

func TestValuesChronological(t *testing.T) {
	testlog.Start(t)
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	got := b.Values()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("len got=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values[%d] got=%d want=%d", i, got[i], want[i])
		}
	}
}

func TestNewClampsCapacity(t *testing.T) {
	testlog.Start(t)
	b := New[int](0)
	b.Push(7)
	b.Push(8)
	if b.Cap() != 1 || b.Last(0) != 8 {
		t.Fatalf("unexpected buffer cap=%d last=%d", b.Cap(), b.Last(0))
	}
}
