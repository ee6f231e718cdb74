package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollTimeout is returned when a polled operation does not reach a
// terminal status within the attempt budget.
var ErrPollTimeout = errors.New("polling attempts exhausted")

// terminal run statuses; anything else means the run is still in flight.
var terminalStatuses = map[string]bool{
	"completed":       true,
	"failed":          true,
	"cancelled":       true,
	"expired":         true,
	"requires_action": true,
	"incomplete":      true,
}

// AwaitCompletion polls pollFn at a fixed interval until it reports a
// terminal status, the attempt budget runs out, or ctx is cancelled. The
// provider exposes no push channel, so a bounded poll loop is the contract.
func AwaitCompletion(ctx context.Context, interval time.Duration, maxAttempts int, pollFn func(context.Context) (string, error)) (string, error) {
	if interval <= 0 {
		interval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, err := pollFn(ctx)
		if err != nil {
			return "", fmt.Errorf("polling attempt %d: %w", attempt+1, err)
		}
		if terminalStatuses[status] {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}

	return "", ErrPollTimeout
}
