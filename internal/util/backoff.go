package util

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/viper"
)

const (
	paramRetryInterval = "retry-interval"  // constant
	paramRetryMaxCount = "retry-max-count" // constant + exponential
	paramRetryMaxTime  = "retry-max-time"  // constant + exponential
	paramRetryPolicy   = "retry-policy"

	defaultRetryInterval = 1 * time.Second
	defaultRetryMaxCount = 3
	defaultRetryMaxTime  = 5 * time.Second
	defaultRetryPolicy   = policyExponential

	policyConstant    = "constant"
	policyDisabled    = "disabled"
	policyExponential = "exponential"
)

// BackoffFactory creates a fresh backoff for every delivery attempt.
type BackoffFactory func() backoff.BackOff

// NewBackoffFactory creates a BackoffFactory based on backoff.ExponentialBackOff.
// A Multiplier of 1.0 gives a constant, randomised interval bounded by maxElapsedTime,
// which backoff.ConstantBackOff cannot do.
func NewBackoffFactory(multiplier float64, maxElapsedTime, interval time.Duration, maxRetries uint64) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.Multiplier = multiplier
		bo.MaxElapsedTime = maxElapsedTime
		bo.InitialInterval = interval
		bo.Reset() // Required for InitialInterval to take effect.
		if maxRetries == 0 {
			return bo
		}
		return backoff.WithMaxRetries(bo, maxRetries)
	}
}

// GetRetryFromViper reads the retry policy of a backend section.
func GetRetryFromViper(v *viper.Viper) (BackoffFactory, error) {
	v.SetDefault(paramRetryInterval, defaultRetryInterval)
	v.SetDefault(paramRetryMaxCount, defaultRetryMaxCount)
	v.SetDefault(paramRetryMaxTime, defaultRetryMaxTime)
	v.SetDefault(paramRetryPolicy, defaultRetryPolicy)

	interval := v.GetDuration(paramRetryInterval)
	maxCount := v.GetInt64(paramRetryMaxCount)
	maxTime := v.GetDuration(paramRetryMaxTime)
	policy := v.GetString(paramRetryPolicy)

	switch {
	case interval <= 0:
		return nil, errors.New(paramRetryInterval + " must be positive")
	case maxCount < 0:
		return nil, errors.New(paramRetryMaxCount + " must be zero or positive")
	case maxTime <= 0:
		return nil, errors.New(paramRetryMaxTime + " must be positive")
	}

	switch policy {
	case policyDisabled:
		return func() backoff.BackOff { return &backoff.StopBackOff{} }, nil
	case policyExponential:
		return NewBackoffFactory(backoff.DefaultMultiplier, maxTime, interval, uint64(maxCount)), nil
	case policyConstant:
		return NewBackoffFactory(1.0, maxTime, interval, uint64(maxCount)), nil
	default:
		return nil, fmt.Errorf("%s (%s) not one of %s, %s, or %s", paramRetryPolicy, policy, policyDisabled, policyConstant, policyExponential)
	}
}
