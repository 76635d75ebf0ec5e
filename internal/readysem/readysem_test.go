package readysem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitBlocksUntilPost(t *testing.T) {
	name := "sentrymon-test-wait-blocks"
	creator, err := Create(name)
	require.NoError(t, err)
	defer creator.Unlink()

	waiter, err := Open(name)
	require.NoError(t, err)
	defer waiter.Close()

	var wg sync.WaitGroup
	waited := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = waiter.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("waiter returned before Post was called")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, creator.Post())

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock after Post")
	}
	wg.Wait()
}

func TestWaitOnCreatorIsRejected(t *testing.T) {
	name := "sentrymon-test-wait-on-creator"
	sem, err := Create(name)
	require.NoError(t, err)
	defer sem.Unlink()

	assert.Error(t, sem.Wait(), "Wait must only be called on a handle obtained via Open")
}

func TestPostOnOpenerIsRejected(t *testing.T) {
	name := "sentrymon-test-post-on-opener"
	creator, err := Create(name)
	require.NoError(t, err)
	defer creator.Unlink()

	opener, err := Open(name)
	require.NoError(t, err)
	defer opener.Close()

	assert.Error(t, opener.Post(), "Post must only be called on the handle that created the latch")
}

func TestPostIsIdempotent(t *testing.T) {
	name := "sentrymon-test-post-idempotent"
	sem, err := Create(name)
	require.NoError(t, err)
	defer sem.Unlink()

	assert.NoError(t, sem.Post())
	assert.NoError(t, sem.Post())
}

func TestUnlinkRemovesBackingFile(t *testing.T) {
	name := "sentrymon-test-unlink"
	sem, err := Create(name)
	require.NoError(t, err)
	require.NoError(t, sem.Post())
	require.NoError(t, sem.Unlink())

	// A fresh Create after Unlink must succeed as if the name were new.
	again, err := Create(name)
	require.NoError(t, err)
	assert.NoError(t, again.Unlink())
}
