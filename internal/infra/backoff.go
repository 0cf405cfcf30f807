package infra

import "time"

const (
	backoffBase = 50 * time.Millisecond
	backoffMax  = 5 * time.Second
)

// CalculateBackoff returns an exponential delay for the given retry count,
// capped at backoffMax.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 16 {
		return backoffMax
	}
	delay := backoffBase << uint(retryCount)
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}
