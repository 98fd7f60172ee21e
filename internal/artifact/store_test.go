package artifact

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	at := time.UnixMilli(1767225600123)

	key := NewKey("user-1", "evt-9", at, "My Scan.PNG")
	assert.Regexp(t, regexp.MustCompile(`^user-1/evt-9_1767225600123_[0-9a-f]{12}\.png$`), key)
	require.NoError(t, ValidateKey(key))

	other := NewKey("user-1", "evt-9", at, "My Scan.PNG")
	assert.NotEqual(t, key, other, "keys for the same identity, event and instant must differ")

	t.Run("hostile ids are escaped", func(t *testing.T) {
		k := NewKey("../../etc", "a/b", at, "x.pdf")
		require.NoError(t, ValidateKey(k))
		assert.True(t, strings.HasPrefix(k, "_2e_2e_2f_2e_2e_2fetc/a_2fb_"), k)
		assert.Equal(t, "_2e_2e_2f_2e_2e_2fetc", KeyOwner(k))
	})

	t.Run("owner segments do not collide", func(t *testing.T) {
		assert.Equal(t, "alice", OwnerSegment("alice"))
		assert.NotEqual(t, OwnerSegment("a.b"), OwnerSegment("a_b"))
		assert.NotEqual(t, OwnerSegment("a_b"), OwnerSegment("a_5fb"))
		assert.Equal(t, "_", OwnerSegment(""))
		assert.Equal(t, OwnerSegment("auth0|123"), KeyOwner(NewKey("auth0|123", "e", at, "x.png")))
	})

	t.Run("odd extensions are dropped", func(t *testing.T) {
		assert.NotContains(t, NewKey("u", "e", at, "noext"), ".")
		assert.False(t, strings.HasSuffix(NewKey("u", "e", at, "x.p$f"), "$f"))
	})
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "/abs", "a/../b", "a//b", `a\b`, "./a"} {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
	assert.NoError(t, ValidateKey("user/event_1_abc.png"))
}

// contract runs the behaviour every backend must share.
func contract(t *testing.T, store Store) {
	ctx := context.Background()
	key := NewKey("alice", "event", time.Now(), "id.png")

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.Put(ctx, key, strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.EqualValues(t, len("png-bytes"), n)

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, contentType, err := store.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", contentType)

	_, err = store.Put(ctx, key, strings.NewReader("other"), "image/png")
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "delete must be idempotent")

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, "http://files.test/id-cards/"+key, store.URL(key))

	t.Run("every operation rejects invalid keys", func(t *testing.T) {
		for _, bad := range []string{"", "/abs.png", "a/../b.png", `a\b.png`} {
			_, err := store.Put(ctx, bad, strings.NewReader("x"), "image/png")
			assert.ErrorIs(t, err, ErrInvalidKey, "put %q", bad)
			_, _, err = store.Open(ctx, bad)
			assert.ErrorIs(t, err, ErrInvalidKey, "open %q", bad)
			_, err = store.Exists(ctx, bad)
			assert.ErrorIs(t, err, ErrInvalidKey, "exists %q", bad)
			assert.ErrorIs(t, store.Delete(ctx, bad), ErrInvalidKey, "delete %q", bad)
		}
	})
}

func TestFSStore(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "http://files.test/id-cards/")
	require.NoError(t, err)
	contract(t, store)

	t.Run("failed write leaves nothing behind", func(t *testing.T) {
		key := NewKey("bob", "event", time.Now(), "id.pdf")
		_, err := store.Put(context.Background(), key, iotest.ErrReader(errors.New("client went away")), "application/pdf")
		require.Error(t, err)

		ok, err := store.Exists(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cancelled context stops the write", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.Put(ctx, NewKey("bob", "event", time.Now(), "id.pdf"), strings.NewReader("x"), "application/pdf")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rejects escaping keys", func(t *testing.T) {
		_, err := store.Put(context.Background(), "../outside.png", strings.NewReader("x"), "image/png")
		assert.ErrorIs(t, err, ErrInvalidKey)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(store.root), "outside.png"))
	})
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenBadger("", "http://files.test/id-cards")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	contract(t, store)

	t.Run("concurrent puts of one key admit a single writer", func(t *testing.T) {
		key := NewKey("carol", "event", time.Now(), "id.png")
		var wg sync.WaitGroup
		var written atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Put(context.Background(), key, strings.NewReader("x"), "image/png")
				if err == nil {
					written.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrExists)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), written.Load())
	})
}

type flakyStore struct {
	Store
	calls atomic.Int32
	err   error
}

func (f *flakyStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return f.Store.Put(ctx, key, body, contentType)
}

func TestBreaker(t *testing.T) {
	inner, err := NewFSStore(t.TempDir(), "http://files.test")
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("opens after consecutive failures and fails fast", func(t *testing.T) {
		flaky := &flakyStore{Store: inner, err: errors.New("disk unplugged")}
		b := NewBreaker(flaky, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})

		for i := 0; i < 2; i++ {
			_, err := b.Put(ctx, NewKey("u", "e", time.Now(), "a.png"), strings.NewReader("x"), "image/png")
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrUnavailable)
		}
		assert.Equal(t, "open", b.State())

		_, err := b.Put(ctx, NewKey("u", "e", time.Now(), "a.png"), strings.NewReader("x"), "image/png")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int32(2), flaky.calls.Load(), "open breaker must not reach the backend")
	})

	t.Run("collisions do not count as failures", func(t *testing.T) {
		b := NewBreaker(inner, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Hour})
		key := NewKey("u", "e", time.Now(), "a.png")
		_, err := b.Put(ctx, key, strings.NewReader("x"), "image/png")
		require.NoError(t, err)
		_, err = b.Put(ctx, key, strings.NewReader("x"), "image/png")
		assert.ErrorIs(t, err, ErrExists)
		assert.Equal(t, "closed", b.State())

		ok, err := b.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, b.Delete(ctx, key))
	})
}
