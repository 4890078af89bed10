package queue

import (
	"testing"
	"time"
)

func TestTryPushRespectsCapacity(t *testing.T) {
	q := New[int](2)
	if err := q.TryPush(1); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := q.TryPush(2); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := q.TryPush(3); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if _, ok := q.WaitAndPop(); !ok {
		t.Fatalf("expected an item")
	}
	if err := q.TryPush(3); err != nil {
		t.Fatalf("push after pop should succeed: %v", err)
	}
}

func TestWaitAndPopFIFO(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	for _, want := range []int{1, 2, 3} {
		got, ok := q.WaitAndPop()
		if !ok || got != want {
			t.Fatalf("got %v,%v want %v", got, ok, want)
		}
	}
}

func TestStopWakesWaiters(t *testing.T) {
	q := New[int](0)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitAndPop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Stop()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected ok=false after stop on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitAndPop did not wake up after Stop")
	}
}

func TestDrainTo(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	out := q.DrainTo(nil)
	if len(out) != 2 || out[0] != 1 || out[1] != 2 {
		t.Fatalf("unexpected drain result: %v", out)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after drain")
	}
}

func TestOnPushWakeup(t *testing.T) {
	q := New[int](0)
	fired := make(chan struct{}, 1)
	q.SetWakeup(func() { fired <- struct{}{} })
	q.Push(1)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("wakeup callback not invoked on push")
	}
}
