package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttemptLimiter(t *testing.T) {
	limiter := NewAttemptLimiter()

	assert.True(t, limiter.Allow("ref-1"))

	for i := 0; i < maxOTPAttempts; i++ {
		limiter.RecordFailure("ref-1")
	}
	assert.False(t, limiter.Allow("ref-1"))

	// Other references are unaffected
	assert.True(t, limiter.Allow("ref-2"))

	limiter.Reset("ref-1")
	assert.True(t, limiter.Allow("ref-1"))
}

func TestAttemptLimiterBelowThreshold(t *testing.T) {
	limiter := NewAttemptLimiter()

	for i := 0; i < maxOTPAttempts-1; i++ {
		limiter.RecordFailure("ref-1")
	}
	assert.True(t, limiter.Allow("ref-1"))
}
