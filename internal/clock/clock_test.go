package clock

import (
	"testing"
	"time"
)

func TestFake_AfterAdvances(t *testing.T) {
	start := time.Date(2024, 8, 13, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	got := <-f.After(11 * time.Millisecond)
	if want := start.Add(11 * time.Millisecond); !got.Equal(want) {
		t.Errorf("After fired at %v, want %v", got, want)
	}
	if !f.Now().Equal(start.Add(11 * time.Millisecond)) {
		t.Errorf("Now = %v, want clock advanced", f.Now())
	}
}

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 8, 13, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	f.Advance(time.Second)
	if !f.Now().Equal(start.Add(time.Second)) {
		t.Errorf("Now = %v after Advance", f.Now())
	}
	f.Set(start)
	if !f.Now().Equal(start) {
		t.Errorf("Now = %v after Set", f.Now())
	}
}

func TestReal_Now(t *testing.T) {
	var c Clock = Real{}
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Error("Real clock went backwards")
	}
}
