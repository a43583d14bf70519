package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	redisrepo "github.com/Harsh-BH/Sentinel/judge/internal/repository/redis"
)

// fakeRedis records the commands the stores issue. Commands it does not
// override panic on the nil embedded client.
type fakeRedis struct {
	goredis.Cmdable

	setNX    bool
	setNXErr error
	pushErr  error

	keys    []string
	ttls    []time.Duration
	pushed  [][]byte
	deleted []string
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.BoolCmd {
	f.keys = append(f.keys, key)
	f.ttls = append(f.ttls, ttl)
	return goredis.NewBoolResult(f.setNX, f.setNXErr)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.deleted = append(f.deleted, keys...)
	return goredis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) RPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd {
	f.keys = append(f.keys, key)
	for _, v := range values {
		f.pushed = append(f.pushed, v.([]byte))
	}
	return goredis.NewIntResult(int64(len(f.pushed)), f.pushErr)
}

func TestIdempotency_AcquireAndRelease(t *testing.T) {
	fake := &fakeRedis{setNX: true}
	store := redisrepo.NewRedisIdempotencyStore(fake, 10*time.Minute)

	ok, err := store.AcquireLock(context.Background(), "42")
	if err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	if fake.keys[0] != "judge:lock:42" || fake.ttls[0] != 10*time.Minute {
		t.Errorf("unexpected SETNX %s ttl %v", fake.keys[0], fake.ttls[0])
	}

	if err := store.ReleaseLock(context.Background(), "42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "judge:lock:42" {
		t.Errorf("expected lock key deleted, got %v", fake.deleted)
	}
}

func TestIdempotency_Duplicate(t *testing.T) {
	store := redisrepo.NewRedisIdempotencyStore(&fakeRedis{setNX: false}, time.Minute)

	ok, err := store.AcquireLock(context.Background(), "42")
	if err != nil || ok {
		t.Errorf("expected duplicate, got %v %v", ok, err)
	}
}

func TestIdempotency_Error(t *testing.T) {
	store := redisrepo.NewRedisIdempotencyStore(&fakeRedis{setNXErr: errors.New("connection refused")}, time.Minute)

	if _, err := store.AcquireLock(context.Background(), "42"); err == nil {
		t.Error("expected error")
	}
}

func TestDeadLetter_Put(t *testing.T) {
	fake := &fakeRedis{}
	store := redisrepo.NewRedisDeadLetterStore(fake, "submissionCallbackDeadLetter")

	letter := &domain.DeadLetter{
		Report:         &domain.Report{SubmissionID: "7", Status: domain.StatusAccepted, Output: []domain.ReportedCase{}},
		IdempotencyKey: "key-1",
		Attempts:       3,
		LastError:      "callback: backend returned status 503",
		FailedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Put(context.Background(), letter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.keys[0] != "submissionCallbackDeadLetter" || len(fake.pushed) != 1 {
		t.Fatalf("unexpected push to %v: %d items", fake.keys, len(fake.pushed))
	}

	var decoded domain.DeadLetter
	if err := json.Unmarshal(fake.pushed[0], &decoded); err != nil {
		t.Fatalf("pushed payload is not JSON: %v", err)
	}
	if decoded.Report.SubmissionID != "7" || decoded.Attempts != 3 || decoded.IdempotencyKey != "key-1" {
		t.Errorf("unexpected letter %+v", decoded)
	}
}

func TestDeadLetter_PushError(t *testing.T) {
	store := redisrepo.NewRedisDeadLetterStore(&fakeRedis{pushErr: errors.New("READONLY")}, "dlq")

	err := store.Put(context.Background(), &domain.DeadLetter{Report: &domain.Report{SubmissionID: "7"}})
	if err == nil {
		t.Error("expected error")
	}
}
