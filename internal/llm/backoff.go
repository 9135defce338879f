package llm

import (
	"context"
	"math/rand"
	"time"
)

const (
	maxRetries  = 2
	backoffBase = 250 * time.Millisecond
)

// retryTransient reintenta fn con backoff exponencial con jitter, solo
// cuando fn reporta un error transitorio. Maximo 2 reintentos.
func retryTransient(ctx context.Context, fn func() error, transient func(error) bool) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !transient(err) || attempt >= maxRetries {
			return err
		}
		delay := backoffBase << attempt
		delay += time.Duration(rand.Int63n(int64(backoffBase)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
