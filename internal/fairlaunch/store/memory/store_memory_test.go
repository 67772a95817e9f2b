package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/pkg/sentinel"
)

func testKey(s string) keys.Key {
	return keys.Derive(keys.Namespace, []byte(s))
}

func TestCreateReadWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := testKey("a")

	require.NoError(t, s.CreateIfAbsent(ctx, k, 16))

	data, err := s.Read(ctx, k)
	require.NoError(t, err)
	assert.Empty(t, data, "reserved but unwritten record reads empty")

	require.NoError(t, s.Write(ctx, k, []byte("hello")))
	data, err = s.Read(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	ok, err := s.Exists(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, testKey("other"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateIfAbsent_Conflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := testKey("a")

	require.NoError(t, s.CreateIfAbsent(ctx, k, 16))
	assert.ErrorIs(t, s.CreateIfAbsent(ctx, k, 16), sentinel.ErrConflict)
}

func TestWrite_Errors(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := testKey("a")

	assert.ErrorIs(t, s.Write(ctx, k, []byte("x")), sentinel.ErrNotFound)

	require.NoError(t, s.CreateIfAbsent(ctx, k, 4))
	assert.ErrorIs(t, s.Write(ctx, k, []byte("too long")), sentinel.ErrSizeExceeded)
}

func TestRead_NotFound(t *testing.T) {
	_, err := New().Read(context.Background(), testKey("missing"))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

// TestConcurrentCreate verifies that concurrent create attempts for the same
// key result in exactly one success, which is what prevents double-ticketing.
func TestConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := testKey("contested")
	const goroutines = 50

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.CreateIfAbsent(ctx, k, 82); {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(goroutines-1), conflicts.Load())
}

func TestRead_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := testKey("a")

	require.NoError(t, s.CreateIfAbsent(ctx, k, 8))
	require.NoError(t, s.Write(ctx, k, []byte("abc")))

	data, err := s.Read(ctx, k)
	require.NoError(t, err)
	data[0] = 'Z'

	again, err := s.Read(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
