package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/fixtures"
)

func TestConstructServer(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set(statsagg.ParamBackends, "console,null")
	v.Set(statsagg.ParamPercentThreshold, "90,99")
	v.Set(statsagg.ParamFlushInterval, 5*time.Second)
	v.Set(statsagg.ParamMaxReaders, 2)
	v.Set(statsagg.ParamWebAddr, "127.0.0.1:0")

	s, err := constructServer(v, fixtures.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"console", "null"}, s.Hub.Backends())
	assert.Equal(t, []float64{90, 99}, s.PercentThreshold)
	assert.Equal(t, 5*time.Second, s.FlushInterval)
	assert.Equal(t, 2, s.MaxReaders)
	assert.Len(t, s.Runnables, 1)
}

func TestConstructServerErrors(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set(statsagg.ParamBackends, "nope")
	_, err := constructServer(v, fixtures.NewTestLogger(t))
	assert.Error(t, err)

	v = viper.New()
	v.Set(statsagg.ParamBackends, "null")
	v.Set(statsagg.ParamPercentThreshold, "ninety")
	_, err = constructServer(v, fixtures.NewTestLogger(t))
	assert.Error(t, err)
}
