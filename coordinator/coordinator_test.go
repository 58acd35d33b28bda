package coordinator_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreweave-labs/filesyncd/coordinator"
)

type neverCancel struct{}

func (neverCancel) Cancelled() bool { return false }

type flagCancel struct{ v int32 }

func (f *flagCancel) Cancelled() bool { return atomic.LoadInt32(&f.v) != 0 }
func (f *flagCancel) set()            { atomic.StoreInt32(&f.v, 1) }

func TestAcquireReleaseMutualExclusion(t *testing.T) {
	c := coordinator.New()
	if !c.Acquire("/data", 1, neverCancel{}, nil) {
		t.Fatal("expected immediate acquire for sole waiter")
	}
	done := make(chan struct{})
	go func() {
		if !c.Acquire("/data", 2, neverCancel{}, nil) {
			t.Error("expected id 2 to eventually acquire")
		}
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("id 2 acquired while id 1 still holds the slot")
	default:
	}
	c.Release("/data", 1)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("id 2 never acquired after release")
	}
	c.Release("/data", 2)
}

func TestFairnessRoundRobin(t *testing.T) {
	c := coordinator.New()
	c.Acquire("/data", 5, neverCancel{}, nil)

	var mu sync.Mutex
	var order []int64
	var wg sync.WaitGroup
	for _, id := range []int64{3, 7, 1} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c.Acquire("/data", id, neverCancel{}, nil)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			c.Release("/data", id)
		}(id)
	}
	time.Sleep(100 * time.Millisecond) // let all three queue up as waiters
	c.Release("/data", 5)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("expected 3 acquires, got %v", order)
	}
	// last_served_id starts at 5: smallest waiter > 5 is 7, then last_served=7
	// so smallest waiter > 7 doesn't exist among {1,3} -> smallest overall -> 1,
	// then last_served=1 -> smallest > 1 among {3} -> 3.
	want := []int64{7, 1, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAcquireUnblocksOnCancel(t *testing.T) {
	c := coordinator.New()
	c.Acquire("/data", 1, neverCancel{}, nil)
	cancel := &flagCancel{}
	done := make(chan bool)
	go func() {
		done <- c.Acquire("/data", 2, cancel, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel.set()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected Acquire to return false after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire never returned after cancel")
	}
}

func TestAbandonRemovesWaiter(t *testing.T) {
	c := coordinator.New()
	c.Acquire("/data", 1, neverCancel{}, nil)
	c.Abandon("/data", 1)
	// lane is now free; id 2 should acquire immediately
	done := make(chan bool, 1)
	go func() { done <- c.Acquire("/data", 2, neverCancel{}, nil) }()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected acquire to succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("acquire after abandon never completed")
	}
}

func TestOnWaitCallsBack(t *testing.T) {
	c := coordinator.New()
	c.Acquire("/data", 1, neverCancel{}, nil)
	var calls int32
	done := make(chan struct{})
	go func() {
		c.Acquire("/data", 2, neverCancel{}, func(blocker int64) {
			if blocker != 1 {
				t.Errorf("blocker id = %d, want 1", blocker)
			}
			atomic.AddInt32(&calls, 1)
		})
		close(done)
	}()
	time.Sleep(600 * time.Millisecond)
	c.Release("/data", 1)
	<-done
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected onWait to be invoked at least once")
	}
}

func TestDistinctSourceRootsDoNotContend(t *testing.T) {
	c := coordinator.New()
	if !c.Acquire("/data/a", 1, neverCancel{}, nil) {
		t.Fatal("expected immediate acquire")
	}
	if !c.Acquire("/data/b", 2, neverCancel{}, nil) {
		t.Fatal("expected immediate acquire on a distinct source root")
	}
}
