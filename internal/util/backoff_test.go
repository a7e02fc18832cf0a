package util

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retryViper(policy string, interval, maxTime time.Duration, maxCount int64) *viper.Viper {
	v := viper.New()
	v.Set(paramRetryInterval, interval)
	v.Set(paramRetryMaxCount, maxCount)
	v.Set(paramRetryMaxTime, maxTime)
	v.Set(paramRetryPolicy, policy)
	return v
}

func TestRetryDisabled(t *testing.T) {
	t.Parallel()
	f, err := GetRetryFromViper(retryViper(policyDisabled, time.Second, time.Second, 10))
	require.NoError(t, err)
	assert.Equal(t, backoff.Stop, f().NextBackOff())
}

func TestRetryConstantMaxCount(t *testing.T) {
	t.Parallel()
	f, err := GetRetryFromViper(retryViper(policyConstant, time.Second, time.Minute, 5))
	require.NoError(t, err)

	bo := f()
	for i := 0; i < 5; i++ {
		d := bo.NextBackOff()
		require.NotEqual(t, backoff.Stop, d)
		// Randomised around the interval, never growing
		require.LessOrEqual(t, uint64(d), uint64(2*time.Second))
		require.GreaterOrEqual(t, uint64(d), uint64(time.Second/2))
	}
	assert.Equal(t, backoff.Stop, bo.NextBackOff())

	// Every call starts over
	assert.NotEqual(t, backoff.Stop, f().NextBackOff())
}

func TestRetryExponentialGrows(t *testing.T) {
	t.Parallel()
	f, err := GetRetryFromViper(retryViper(policyExponential, 100*time.Millisecond, time.Minute, 0))
	require.NoError(t, err)

	bo := f()
	var last time.Duration
	for i := 0; i < 10; i++ {
		last = bo.NextBackOff()
	}
	assert.Greater(t, uint64(last), uint64(time.Second))
}

func TestRetryDefaults(t *testing.T) {
	t.Parallel()
	f, err := GetRetryFromViper(viper.New())
	require.NoError(t, err)
	bo := f()
	for i := 0; i < defaultRetryMaxCount; i++ {
		require.NotEqual(t, backoff.Stop, bo.NextBackOff())
	}
	assert.Equal(t, backoff.Stop, bo.NextBackOff())
}

func TestRetryInvalid(t *testing.T) {
	t.Parallel()
	for name, v := range map[string]*viper.Viper{
		"interval": retryViper(policyConstant, 0, time.Second, 1),
		"count":    retryViper(policyConstant, time.Second, time.Second, -1),
		"time":     retryViper(policyConstant, time.Second, 0, 1),
		"policy":   retryViper("sometimes", time.Second, time.Second, 1),
	} {
		_, err := GetRetryFromViper(v)
		assert.Error(t, err, name)
	}
}
