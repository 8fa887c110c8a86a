package regid

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type stubSequencer struct {
	next  int64
	err   error
	calls int
}

func (s *stubSequencer) Incr(ctx context.Context, key string) *redis.IntCmd {
	s.calls++
	if s.err != nil {
		return redis.NewIntResult(0, s.err)
	}
	s.next++
	return redis.NewIntResult(s.next, nil)
}

func TestNextUsesSequence(t *testing.T) {
	seq := &stubSequencer{next: 41}
	a := NewAllocator(seq, zerolog.Nop())

	id := a.Next(context.Background())
	if id != "FEST-2026-000042" {
		t.Fatalf("id = %q, want FEST-2026-000042", id)
	}
	if seq.calls != 1 {
		t.Fatalf("sequence calls = %d, want 1", seq.calls)
	}
}

func TestNextFallsBackOnSequenceError(t *testing.T) {
	seq := &stubSequencer{err: errors.New("connection refused")}
	a := NewAllocator(seq, zerolog.Nop())
	a.now = func() time.Time { return time.UnixMilli(1756684800000) }

	id := a.Next(context.Background())
	if !strings.HasPrefix(id, "FEST-2026-T") {
		t.Fatalf("fallback id = %q, want T-prefixed token", id)
	}
	parts := strings.Split(id, "-")
	if len(parts) != 4 || len(parts[3]) != 4 {
		t.Fatalf("fallback id = %q, want 4-char random suffix", id)
	}
}

func TestNextWithoutSequencer(t *testing.T) {
	a := NewAllocator(nil, zerolog.Nop())
	first := a.Next(context.Background())
	second := a.Next(context.Background())
	if first == second {
		t.Fatalf("fallback ids collided: %q", first)
	}
}
