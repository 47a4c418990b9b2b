package dispatch

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolCloseWaitsForInFlightJobs(t *testing.T) {
	p := NewPool(1)
	var ran int32
	p.Submit(func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
	})
	p.Close(time.Second)
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("job did not run to completion before Close returned")
	}
}

func TestPoolCloseReturnsAtTimeout(t *testing.T) {
	p := NewPool(1)
	block := make(chan struct{})
	p.Submit(func() {
		<-block
	})

	start := time.Now()
	p.Close(20 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed >= time.Second {
		t.Fatalf("Close blocked for %v, want it bounded by the grace period", elapsed)
	}
	close(block)
}
