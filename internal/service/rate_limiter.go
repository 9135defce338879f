package service

import (
	"sync"
	"time"
)

// RateLimiter limita turnos de chat por usuario (token bucket).
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// MemoryRateLimiter es la variante en proceso del token bucket.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     float64 // tokens por segundo
	capacity float64
	now      func() time.Time
}

func NewMemoryRateLimiter(perMinute, burst int) *MemoryRateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &MemoryRateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     float64(perMinute) / 60.0,
		capacity: float64(burst),
		now:      time.Now,
	}
}

func (l *MemoryRateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastFill: now}
		l.buckets[key] = b
	}
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
