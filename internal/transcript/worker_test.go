package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayGrowsLinearlyWithAttempt(t *testing.T) {
	d1 := RetryDelay(1)
	d3 := RetryDelay(3)

	assert.GreaterOrEqual(t, d1, 30*time.Second)
	assert.Less(t, d1, 40*time.Second)

	assert.GreaterOrEqual(t, d3, 90*time.Second)
	assert.Less(t, d3, 100*time.Second)
}

func TestRetryDelayZeroAttemptIsJitterOnly(t *testing.T) {
	d := RetryDelay(0)
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Less(t, d, 10*time.Second)
}
