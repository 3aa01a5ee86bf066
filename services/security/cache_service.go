package security

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	// maxOTPAttempts caps verification tries per transaction before the
	// code must be considered burned.
	maxOTPAttempts = 5

	attemptWindow = 10 * time.Minute
	cleanupPeriod = 15 * time.Minute
)

// AttemptLimiter counts failed OTP verifications per transaction
// reference. It is in-process state: a restart resets the counters,
// which is acceptable because the codes themselves expire in minutes.
type AttemptLimiter struct {
	cache *cache.Cache
}

func NewAttemptLimiter() *AttemptLimiter {
	return &AttemptLimiter{
		cache: cache.New(attemptWindow, cleanupPeriod),
	}
}

func attemptKey(reference string) string {
	return fmt.Sprintf("otp_attempts:%s", reference)
}

// Allow reports whether another verification attempt may proceed for
// the given transaction reference.
func (l *AttemptLimiter) Allow(reference string) bool {
	count, found := l.cache.Get(attemptKey(reference))
	if !found {
		return true
	}
	return count.(int) < maxOTPAttempts
}

// RecordFailure increments the failed-attempt counter.
func (l *AttemptLimiter) RecordFailure(reference string) {
	key := attemptKey(reference)
	if _, found := l.cache.Get(key); !found {
		l.cache.Set(key, 1, attemptWindow)
		return
	}
	if _, err := l.cache.IncrementInt(key, 1); err != nil {
		l.cache.Set(key, 1, attemptWindow)
	}
}

// Reset clears the counter, e.g. after a successful verification.
func (l *AttemptLimiter) Reset(reference string) {
	l.cache.Delete(attemptKey(reference))
}
