// Package regid allocates globally unique, human-readable registration ids.
package regid

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	prefix      = "FEST-2026"
	sequenceKey = "festcred:regid:seq"
)

// Sequencer is the atomic counter contract, satisfied by *redis.Client.
type Sequencer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Allocator hands out registration ids. The preferred path increments a shared
// Redis sequence; without one it degrades to a time-plus-random token, which
// is unique enough in practice but not mathematically collision-free, so the
// degraded path logs loudly.
type Allocator struct {
	seq    Sequencer
	logger zerolog.Logger
	now    func() time.Time
}

// NewAllocator builds an Allocator. seq may be nil, forcing the fallback path.
func NewAllocator(seq Sequencer, logger zerolog.Logger) *Allocator {
	return &Allocator{seq: seq, logger: logger, now: time.Now}
}

// Next returns the next registration id.
func (a *Allocator) Next(ctx context.Context) string {
	if a.seq != nil {
		n, err := a.seq.Incr(ctx, sequenceKey).Result()
		if err == nil {
			return fmt.Sprintf("%s-%06d", prefix, n)
		}
		a.logger.Warn().Err(err).Msg("regid: sequence unavailable, using time-based fallback id")
	} else {
		a.logger.Warn().Msg("regid: no sequence configured, using time-based fallback id")
	}
	return a.fallback()
}

// fallback builds PREFIX-T<base36 unix ms>-<4 hex random>. Collisions are
// astronomically unlikely, not impossible.
func (a *Allocator) fallback() string {
	token := strconv.FormatInt(a.now().UnixMilli(), 36)
	suffix := uuid.NewString()[:4]
	return fmt.Sprintf("%s-T%s-%s", prefix, token, suffix)
}
