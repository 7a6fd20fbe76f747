package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowOrIndefiniteDefaultsToOneYear(t *testing.T) {
	assert.Equal(t, 365*24*time.Hour, windowOrIndefinite(0))
	assert.Equal(t, 2*time.Hour, windowOrIndefinite(2*time.Hour))
}

func TestToOutcomeClassifiesSlackErrorRetryability(t *testing.T) {
	retryable := toOutcome(&SlackError{Err: errors.New("rate limited"), Retryable: true})
	assert.True(t, retryable.Failed)
	assert.True(t, retryable.Retryable)

	permanent := toOutcome(&SlackError{Err: errors.New("channel_not_found"), Retryable: false})
	assert.True(t, permanent.Failed)
	assert.False(t, permanent.Retryable)
}

func TestToOutcomeDefaultsUnwrappedErrorsToRetryable(t *testing.T) {
	outcome := toOutcome(errors.New("network blip"))
	assert.True(t, outcome.Failed)
	assert.True(t, outcome.Retryable)
}
