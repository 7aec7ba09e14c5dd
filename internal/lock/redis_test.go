package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis understands SET NX and the lock's two scripts
type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	renewals map[string]int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), renewals: make(map[string]int)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.values[key]; held {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] != args[0].(string) {
		cmd.SetVal(int64(0))
		return cmd
	}
	switch sha1 {
	case releaseScript.Hash():
		delete(f.values, keys[0])
	case renewScript.Hash():
		f.renewals[keys[0]]++
	default:
		cmd.SetErr(errors.New("NOSCRIPT unknown script"))
		return cmd
	}
	cmd.SetVal(int64(1))
	return cmd
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(errors.New("unexpected EVAL"))
	return cmd
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceCmd(ctx)
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringCmd(ctx)
}

func (f *fakeRedis) renewed(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewals[lockPrefix+key]
}

func (f *fakeRedis) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[lockPrefix+key]
	return v, ok
}

func TestRedisLockExtendsLeaseWhileHeld(t *testing.T) {
	client := newFakeRedis()
	l := NewRedis(client, 30*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "org-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return client.renewed("org-1") >= 3 }, time.Second, 5*time.Millisecond)

	unlock()
	_, held := client.holder("org-1")
	assert.False(t, held)

	after := client.renewed("org-1")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, client.renewed("org-1"))
}

func TestRedisLockWaitsForHolder(t *testing.T) {
	client := newFakeRedis()
	l := NewRedis(client, time.Second)

	unlock, err := l.Lock(context.Background(), "org-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "org-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "org-1")
	require.NoError(t, err)
	again()
}

func TestRedisLockLostLeaseIsNotReleased(t *testing.T) {
	client := newFakeRedis()
	l := NewRedis(client, 30*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "org-1")
	require.NoError(t, err)

	// Another holder took the key after our lease lapsed
	client.mu.Lock()
	client.values[lockPrefix+"org-1"] = "other-holder"
	client.mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	unlock()

	holder, held := client.holder("org-1")
	require.True(t, held)
	assert.Equal(t, "other-holder", holder)
	assert.Zero(t, client.renewed("org-1"))
}
