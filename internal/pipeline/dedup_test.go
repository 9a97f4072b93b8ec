package pipeline

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenLockAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lock := NewTokenLock(client, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = lock.Acquire(ctx, "tok-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire should be blocked")
	}

	// A different token is independent.
	ok, err = lock.Acquire(ctx, "tok-2")
	if err != nil || !ok {
		t.Fatalf("other token acquire: ok=%v err=%v", ok, err)
	}

	lock.Release(ctx, "tok-1")
	ok, err = lock.Acquire(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestTokenLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lock := NewTokenLock(client, time.Second)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "tok-1"); !ok {
		t.Fatal("first acquire failed")
	}

	mr.FastForward(2 * time.Second)

	ok, err := lock.Acquire(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}
}

func TestTokenLockNilClient(t *testing.T) {
	lock := NewTokenLock(nil, 0)
	ok, err := lock.Acquire(context.Background(), "tok-1")
	if err != nil || !ok {
		t.Fatalf("nil client acquire: ok=%v err=%v", ok, err)
	}
	lock.Release(context.Background(), "tok-1")
}
