package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestAddTaskRunsOnce(t *testing.T) {
	s := Create(testLogger())
	var n atomic.Int32
	s.AddTask(time.Now(), func(arg any) time.Duration {
		n.Add(1)
		return Done
	}, nil, nil, nil, 0)

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after last task finished")
	}
	assert.Equal(t, int32(1), n.Load())
}

func TestAddTaskRepeatsOnInterval(t *testing.T) {
	s := Create(testLogger())
	var n atomic.Int32
	s.AddTask(time.Now(), func(arg any) time.Duration {
		c := n.Add(1)
		if c >= 3 {
			return Done
		}
		return Repeat
	}, nil, nil, nil, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never drained")
	}
	assert.Equal(t, int32(3), n.Load())
}

func TestTiesBreakByInsertionOrder(t *testing.T) {
	s := Create(testLogger())
	var mu sync.Mutex
	var order []int

	now := time.Now()
	for i := 0; i < 5; i++ {
		i := i
		s.AddTask(now, func(arg any) time.Duration {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return Done
		}, nil, nil, nil, 0)
	}

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestStopFromWithinActionTakesEffectAfterReturn(t *testing.T) {
	s := Create(testLogger())
	var secondRan atomic.Bool

	now := time.Now()
	s.AddTask(now, func(arg any) time.Duration {
		s.Stop()
		return Done
	}, nil, nil, nil, 0)
	s.AddTask(now, func(arg any) time.Duration {
		secondRan.Store(true)
		return Done
	}, nil, nil, nil, 0)

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, secondRan.Load(), "Stop issued inside an action must prevent any later dequeue")
}

func TestCleanupInvokedExactlyOnceOnFinish(t *testing.T) {
	s := Create(testLogger())
	var cleanups atomic.Int32
	arg := new(int)

	s.AddTask(time.Now(), func(any) time.Duration {
		return Done
	}, arg, func(any) {
		cleanups.Add(1)
	}, arg, 0)

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	<-done
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestDestroyCleansRemainingEntries(t *testing.T) {
	s := Create(testLogger())
	var cleanups atomic.Int32
	arg := new(int)

	// Schedule far in the future so Start (never called) would not run it.
	s.AddTask(time.Now().Add(time.Hour), func(any) time.Duration {
		return Done
	}, arg, func(any) {
		cleanups.Add(1)
	}, arg, 0)

	s.Destroy()
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestTaskMayAddFurtherTasksToOwnScheduler(t *testing.T) {
	s := Create(testLogger())
	var chainRan atomic.Bool

	s.AddTask(time.Now(), func(any) time.Duration {
		s.AddTask(time.Now(), func(any) time.Duration {
			chainRan.Store(true)
			return Done
		}, nil, nil, nil, 0)
		return Done
	}, nil, nil, nil, 0)

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("chained task never ran")
	}
	assert.True(t, chainRan.Load())
}
