package swap

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTaskTimeout = 30 * time.Second

// Background runs detached side effects. Their errors are logged, never returned to the caller.
type Background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *logrus.Logger
}

func NewBackground(logger *logrus.Logger, timeout time.Duration) *Background {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Background{timeout: timeout, logger: logger}
}

// Go runs fn in its own goroutine with a fresh context bounded by the task timeout.
func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	b.GoWithTimeout(name, b.timeout, fn)
}

func (b *Background) GoWithTimeout(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := b.run(ctx, fn); err != nil {
			b.logger.WithField("task", name).WithError(err).Warn("background task failed")
		}
	}()
}

func (b *Background) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Wait blocks until every task finished or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
