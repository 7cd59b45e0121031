package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts is the retry budget used when a backend is not told otherwise.
const DefaultMaxAttempts = 5

var backoffStep = 5 * time.Millisecond

// Retry runs attempt until it returns something other than ErrConflict.
// Conflicts are retried with a short linear backoff; when the budget is spent
// the last conflict is returned wrapped in ErrTransient.
func Retry(ctx context.Context, maxAttempts int, attempt func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for i := 1; i <= maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if i == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * backoffStep):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrTransient, maxAttempts, err)
}
