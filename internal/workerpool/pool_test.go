package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRoundRobinSpreadsAcrossQueues(t *testing.T) {
	p := New(4, 100, nil)
	defer p.Close()

	var wg sync.WaitGroup
	var ran atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		if err := p.Submit(func() { defer wg.Done(); ran.Add(1) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	if ran.Load() != 8 {
		t.Fatalf("ran = %d, want 8", ran.Load())
	}
}

func TestSubmitFullQueueReturnsError(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	block := make(chan struct{})
	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func() { close(started); <-block }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started
	// Queue capacity is 1; this one should land in the queue while the
	// first task is executing.
	if err := p.Submit(func() { <-release }); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if err := p.Submit(func() {}); err == nil {
		t.Fatalf("expected ErrFull on third submit")
	}
	close(block)
	close(release)
}

func TestPanicRecoveredWithoutKillingWorker(t *testing.T) {
	p := New(1, 10, nil)
	defer p.Close()

	if err := p.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	ok := false
	if err := p.Submit(func() { defer wg.Done(); ok = true }); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	wg.Wait()
	if !ok {
		t.Fatalf("worker did not continue processing after a panic")
	}
}

func TestStatsPending(t *testing.T) {
	p := New(1, 10, nil)
	defer p.Close()

	block := make(chan struct{})
	if err := p.Submit(func() { <-block }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if p.Stats().Pending == 0 {
		t.Fatalf("expected at least one pending task while first blocks")
	}
	close(block)
}

func TestPendingCountsExecutingTask(t *testing.T) {
	p := New(1, 10, nil)
	defer p.Close()

	block := make(chan struct{})
	if err := p.Submit(func() { <-block }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	// The task has been popped off its queue and is executing, so the
	// queue itself is empty, but Pending must still report outstanding
	// work — this is what the shutdown drain loop relies on.
	if p.Stats().Pending != 0 {
		t.Fatalf("expected empty queue while task executes, got %d", p.Stats().Pending)
	}
	if p.Pending() == 0 {
		t.Fatalf("expected Pending to count the executing task")
	}
	close(block)
}
