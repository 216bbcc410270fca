package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "WH1/C1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locker.Len())
}

func TestLocalLocker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	locker := NewLocalLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		keys := []string{"WH1/A", "WH1/B"}
		if i%2 == 1 {
			keys = []string{"WH1/B", "WH1/A"}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, keys...)
			if !assert.NoError(t, err) {
				return
			}
			unlock()
		}(keys)
	}
	wg.Wait()
	assert.Equal(t, 0, locker.Len())
}

func TestLocalLocker_ContextCanceled(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "WH1/C1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "WH1/C0", "WH1/C1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// C0 was acquired first and must have been released on failure.
	unlockC0, err := locker.Lock(context.Background(), "WH1/C0")
	require.NoError(t, err)
	unlockC0()

	unlock()
	assert.Equal(t, 0, locker.Len())
}

func TestLocalLocker_UnlockTwice(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k", "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, 0, locker.Len())
}

func TestOrderKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, orderKeys([]string{"c", "a", "b", "a"}))
	assert.Empty(t, orderKeys(nil))
}
