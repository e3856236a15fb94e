package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextWalksLinearSteps(t *testing.T) {
	want := []Step{StepCollectInfo, StepLookup, StepChooseSlot, StepInsurance, StepConfirm, StepDone}
	s := StepGreet
	for _, w := range want {
		next, err := Next(s)
		if err != nil {
			t.Fatalf("Next(%s): %v", s, err)
		}
		if next != w {
			t.Fatalf("Next(%s) = %s, want %s", s, next, w)
		}
		s = next
	}
	if _, err := Next(StepDone); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if _, err := Next("bogus"); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}

func TestAdvanceRequiresCollectedValues(t *testing.T) {
	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)

	s, err := s.Advance(nil, now)
	require.NoError(t, err)
	require.Equal(t, StepCollectInfo, s.Step)

	blocked, err := s.Advance(map[string]string{"name": "Sara Iyer"}, now)
	require.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, StepCollectInfo, blocked.Step)
	assert.Len(t, blocked.Errors, 1)
	assert.Equal(t, "Sara Iyer", blocked.Collected["name"])

	s, err = blocked.Advance(map[string]string{"dob": "1990-02-02", "doctor": "D001", "location": "Koramangala"}, now)
	require.NoError(t, err)
	assert.Equal(t, StepLookup, s.Step)
	assert.Empty(t, s.Errors)
	assert.Empty(t, blocked.Collected["dob"], "advance must not mutate the previous session")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	st := NewRedisStore(rdb, "", time.Minute)
	s := NewSession("abc", time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	s.Collected["name"] = "Sara"
	require.NoError(t, st.Put(ctx, s))

	got, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Sara", got.Collected["name"])
	assert.Equal(t, StepGreet, got.Step)

	mr.FastForward(2 * time.Minute)
	_, err = st.Get(ctx, "abc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Get(context.Background(), "x")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, st.Put(context.Background(), NewSession("x", time.Now())))
	_, err = st.Get(context.Background(), "x")
	require.NoError(t, err)
}
